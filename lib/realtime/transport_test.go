// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import (
	"encoding/json"
	"testing"
)

func TestFramePayload(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{"object", `{"event":"ticket.changed","channel":"tickets","data":{"kind":"deleted","id":"T"}}`, `{"kind":"deleted","id":"T"}`},
		{"string", `{"event":"ticket.changed","channel":"tickets","data":"{\"kind\":\"deleted\",\"id\":\"T\"}"}`, `{"kind":"deleted","id":"T"}`},
		{"absent", `{"event":"subscribe","channel":"tickets"}`, ``},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var frame Frame
			if err := json.Unmarshal([]byte(test.frame), &frame); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if got := string(frame.Payload()); got != test.want {
				t.Errorf("Payload = %q, want %q", got, test.want)
			}
		})
	}
}

func TestRouterDispatchesInBindingOrder(t *testing.T) {
	r := newRouter()
	ch, created := r.open("tickets")
	if !created {
		t.Fatal("first open not reported as created")
	}
	if _, again := r.open("tickets"); again {
		t.Fatal("second open reported as created")
	}

	var order []string
	first := ch.Bind("ticket.changed", func([]byte) { order = append(order, "first") })
	ch.Bind("ticket.changed", func([]byte) { order = append(order, "second") })
	ch.Bind("comment.changed", func([]byte) { order = append(order, "other event") })

	if n := r.dispatch("tickets", "ticket.changed", nil); n != 2 {
		t.Fatalf("dispatch ran %d handlers, want 2", n)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v", order)
	}

	ch.Unbind("ticket.changed", first)
	if n := r.dispatch("tickets", "ticket.changed", nil); n != 1 {
		t.Fatalf("after Unbind: %d handlers", n)
	}
	if n := r.dispatch("ticket.T", "ticket.changed", nil); n != 0 {
		t.Fatalf("unsubscribed channel dispatched to %d handlers", n)
	}

	r.remove("tickets")
	if r.has("tickets") || r.dispatch("tickets", "comment.changed", nil) != 0 {
		t.Fatal("removed channel still dispatches")
	}
}

func TestStateNotifierReportsChangesOnly(t *testing.T) {
	n := newStateNotifier()
	var seen []ConnState
	cancel := n.add(func(state ConnState) { seen = append(seen, state) })

	n.set(StateConnecting)
	n.set(StateConnecting)
	n.set(StateConnected)
	cancel()
	n.set(StateDisconnected)

	if len(seen) != 2 || seen[0] != StateConnecting || seen[1] != StateConnected {
		t.Fatalf("seen = %v", seen)
	}
	if n.current() != StateDisconnected {
		t.Fatalf("current = %s", n.current())
	}
}
