// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package livecache

import (
	"slices"
	"testing"

	"github.com/bureau-foundation/helpdesk/lib/schema"
)

func TestFirstPagePolicyPlace(t *testing.T) {
	policy := FirstPagePolicy{}
	open := map[string]string{"status": "open"}
	tests := []struct {
		name   string
		scope  Scope
		fields schema.Fields
		want   Placement
	}{
		{"first page default sort", Scope{Page: 1, PerPage: 10}, ticketFields("N", "open"), PlacePrepend},
		{"first page matching filter", Scope{Page: 1, PerPage: 10, Filters: open}, ticketFields("N", "open"), PlacePrepend},
		{"filter mismatch", Scope{Page: 1, PerPage: 10, Filters: open}, ticketFields("N", "closed"), PlaceSkip},
		{"unverifiable filter", Scope{Page: 1, PerPage: 10, Filters: map[string]string{"q": "printer"}}, ticketFields("N", "open"), PlaceInvalidate},
		{"unknown page", Scope{PerPage: 10}, ticketFields("N", "open"), PlaceInvalidate},
		{"second page", Scope{Page: 2, PerPage: 10}, ticketFields("N", "open"), PlaceSkip},
		{"non-default sort", Scope{Page: 1, PerPage: 10, Sort: "priority"}, ticketFields("N", "open"), PlaceSkip},
		{"whole collection ascending", Scope{Page: 1, Sort: "created_at"}, ticketFields("N", "open"), PlaceAppend},
		{"single slot", Single("N"), ticketFields("N", "open"), PlaceSkip},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			entity := mustEntity(t, schema.TypeTicket, test.fields)
			if got := policy.Place(test.scope, entity); got != test.want {
				t.Errorf("Place = %s, want %s", got, test.want)
			}
		})
	}
}

func TestFirstPagePolicyCustomDefaultSort(t *testing.T) {
	policy := FirstPagePolicy{DefaultSort: "-updated_at"}
	entity := mustEntity(t, schema.TypeTicket, ticketFields("N", "open"))
	if got := policy.Place(Scope{Page: 1, PerPage: 10, Sort: "-updated_at"}, entity); got != PlacePrepend {
		t.Errorf("Place under configured default sort = %s, want prepend", got)
	}
	if got := policy.Place(Scope{Page: 1, PerPage: 10}, entity); got != PlaceSkip {
		t.Errorf("Place under server sort = %s, want skip", got)
	}
}

func TestInsertReplacesResidentEntity(t *testing.T) {
	slot := NewSlot(schema.TypeTicket, Scope{Page: 1, PerPage: 10})
	slot.Items = []schema.Entity{
		mustEntity(t, schema.TypeTicket, ticketFields("A", "open")),
		mustEntity(t, schema.TypeTicket, ticketFields("B", "open")),
	}
	slot.Total = 2

	updated, changed := FirstPagePolicy{}.Insert(slot, mustEntity(t, schema.TypeTicket, ticketFields("B", "pending")))
	if !changed {
		t.Fatal("Insert reported no change")
	}
	if !slices.Equal(updated.IDs(), []string{"A", "B"}) || updated.Total != 2 {
		t.Fatalf("resident entity duplicated: ids=%v total=%d", updated.IDs(), updated.Total)
	}
	if updated.Items[1].Fields["status"] != "pending" {
		t.Errorf("resident entity not replaced: %v", updated.Items[1].Fields)
	}
	if slot.Items[1].Fields["status"] != "open" {
		t.Error("Insert modified its input slot")
	}
}

func TestTruncatingPolicyKeepsPageSize(t *testing.T) {
	slot := NewSlot(schema.TypeTicket, Scope{Page: 1, PerPage: 2})
	slot.Items = []schema.Entity{
		mustEntity(t, schema.TypeTicket, ticketFields("A", "open")),
		mustEntity(t, schema.TypeTicket, ticketFields("B", "open")),
	}
	slot.Total = 5

	updated, changed := TruncatingPolicy{}.Insert(slot, mustEntity(t, schema.TypeTicket, ticketFields("N", "open")))
	if !changed {
		t.Fatal("Insert reported no change")
	}
	if !slices.Equal(updated.IDs(), []string{"N", "A"}) {
		t.Errorf("ids = %v, want [N A]", updated.IDs())
	}
	if updated.Total != 6 {
		t.Errorf("total = %d, want 6", updated.Total)
	}
}

func TestInsertInvalidateIsIdempotent(t *testing.T) {
	slot := NewSlot(schema.TypeTicket, Scope{PerPage: 10})
	entity := mustEntity(t, schema.TypeTicket, ticketFields("N", "open"))
	stale, changed := FirstPagePolicy{}.Insert(slot, entity)
	if !changed || !stale.Stale {
		t.Fatalf("first insert into unknown page: changed=%v stale=%v", changed, stale.Stale)
	}
	if _, changed := (FirstPagePolicy{}).Insert(stale, entity); changed {
		t.Error("invalidating an already-stale slot reported a change")
	}
}
