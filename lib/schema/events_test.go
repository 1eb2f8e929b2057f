// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"errors"
	"testing"
)

func TestParseChangeEvent(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantKind ChangeKind
		wantID   string
	}{
		{"updated partial", `{"kind":"updated","id":"T-1","entity":{"status":"open"}}`, KindUpdated, "T-1"},
		{"id from entity", `{"kind":"created","entity":{"id":"T-2","subject":"x"}}`, KindCreated, "T-2"},
		{"numeric id", `{"kind":"deleted","id":17}`, KindDeleted, "17"},
		{"deleted without entity", `{"kind":"deleted","id":"C-1"}`, KindDeleted, "C-1"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			event, err := ParseChangeEvent([]byte(test.payload))
			if err != nil {
				t.Fatalf("ParseChangeEvent: %v", err)
			}
			if event.Kind != test.wantKind || event.ID != test.wantID {
				t.Errorf("event = %+v", event)
			}
			if event.Entity != nil && event.Entity["id"] != test.wantID {
				t.Errorf("entity id = %v, want %q", event.Entity["id"], test.wantID)
			}
		})
	}
}

func TestParseChangeEventMalformed(t *testing.T) {
	payloads := map[string]string{
		"not json":         `{{{`,
		"array":            `["kind"]`,
		"unknown kind":     `{"kind":"moved","id":"T-1","entity":{}}`,
		"missing id":       `{"kind":"updated","entity":{"status":"open"}}`,
		"conflicting ids":  `{"kind":"updated","id":"T-1","entity":{"id":"T-2"}}`,
		"update no entity": `{"kind":"updated","id":"T-1"}`,
		"create no entity": `{"kind":"created","id":"T-1"}`,
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			_, err := ParseChangeEvent([]byte(payload))
			if !errors.Is(err, ErrMalformedEvent) {
				t.Fatalf("err = %v, want ErrMalformedEvent", err)
			}
		})
	}
}

func TestChangeEventEncode(t *testing.T) {
	event := ChangeEvent{Kind: KindUpdated, ID: "T-1", Entity: Fields{"status": "closed"}}
	data, err := event.Encode()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseChangeEvent(data)
	if err != nil {
		t.Fatalf("parsing encoded event: %v", err)
	}
	if parsed.Entity["status"] != "closed" {
		t.Errorf("parsed = %+v", parsed)
	}
}

func TestChannels(t *testing.T) {
	if TicketChannel("T-1") != "ticket.T-1" {
		t.Errorf("TicketChannel = %q", TicketChannel("T-1"))
	}
	if AuditLogChannel("T-1") != "ticket.T-1.audit-logs" {
		t.Errorf("AuditLogChannel = %q", AuditLogChannel("T-1"))
	}
	if TicketChannel("") != "" || AuditLogChannel("") != "" {
		t.Error("empty ticket id must yield an empty channel name")
	}
	if got := Channels(TypeTicket, "T-1"); len(got) != 2 || got[0] != TicketsChannel {
		t.Errorf("Channels(ticket) = %v", got)
	}
	if EventName(TypeComment) != EventCommentChanged {
		t.Errorf("EventName(comment) = %q", EventName(TypeComment))
	}
}
