// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package livecache

import (
	"slices"

	"github.com/bureau-foundation/helpdesk/lib/codec"
	"github.com/bureau-foundation/helpdesk/lib/schema"
)

// Slot is one cache entry. Treat it as immutable: the helpers in this
// package return modified copies and never write through a Slot's
// Items slice or Entity pointer.
type Slot struct {
	Key   SlotKey `json:"key"`
	Scope Scope   `json:"scope"`

	// Single-entity slots. Entity is nil until loaded; Tombstone is
	// set once the entity has been deleted, after which updates for
	// that id are ignored.
	Entity    *schema.Entity `json:"entity,omitempty"`
	Tombstone bool           `json:"tombstone,omitempty"`

	// List slots.
	Items []schema.Entity `json:"items,omitempty"`
	Total int             `json:"total,omitempty"`

	// Stale marks a slot whose contents can no longer be explained
	// by its scope and should be refetched.
	Stale bool `json:"stale,omitempty"`
}

// NewSlot returns an empty slot for the scope.
func NewSlot(entityType schema.EntityType, scope Scope) Slot {
	return Slot{Key: KeyFor(entityType, scope), Scope: scope}
}

// IsList reports whether this is a list slot.
func (s Slot) IsList() bool {
	return !s.Scope.IsSingle()
}

// IndexOf returns the position of id in a list slot, or -1.
func (s Slot) IndexOf(id string) int {
	for index, item := range s.Items {
		if item.ID == id {
			return index
		}
	}
	return -1
}

// Holds reports whether the slot currently shows the entity.
func (s Slot) Holds(id string) bool {
	if s.IsList() {
		return s.IndexOf(id) >= 0
	}
	return s.Entity != nil && s.Entity.ID == id
}

// IDs returns the item ids of a list slot in order.
func (s Slot) IDs() []string {
	ids := make([]string, len(s.Items))
	for index, item := range s.Items {
		ids[index] = item.ID
	}
	return ids
}

// Fingerprint returns the deterministic CBOR encoding of the slot. Two
// slots with equal fingerprints are identical, pagination totals
// included.
func (s Slot) Fingerprint() ([]byte, error) {
	return codec.Marshal(s)
}

// mergeInto applies a partial update for id. In a list slot, an item
// that no longer satisfies the slot's filters is removed and the slot
// marked stale.
func mergeInto(slot Slot, id string, patch schema.Fields) (Slot, bool) {
	if !slot.IsList() {
		if slot.Scope.EntityID != id || slot.Tombstone {
			return slot, false
		}
		var merged schema.Entity
		if slot.Entity == nil {
			merged = schema.Entity{Type: slot.Key.Type, ID: id}.Merge(patch)
		} else {
			merged = slot.Entity.Merge(patch)
		}
		slot.Entity = &merged
		return slot, true
	}

	index := slot.IndexOf(id)
	if index < 0 {
		return slot, false
	}
	merged := slot.Items[index].Merge(patch)
	if matched, known := slot.Scope.Matches(merged); known && !matched {
		slot = removeAt(slot, index)
		slot.Stale = true
		return slot, true
	}
	slot.Items = slices.Clone(slot.Items)
	slot.Items[index] = merged
	return slot, true
}

// removeFrom deletes id from a list slot (decrementing the total only
// when an item was actually removed) or tombstones a single slot.
func removeFrom(slot Slot, id string) (Slot, bool) {
	if !slot.IsList() {
		if slot.Scope.EntityID != id || slot.Tombstone {
			return slot, false
		}
		slot.Entity = nil
		slot.Tombstone = true
		return slot, true
	}
	index := slot.IndexOf(id)
	if index < 0 {
		return slot, false
	}
	return removeAt(slot, index), true
}

func removeAt(slot Slot, index int) Slot {
	slot.Items = slices.Delete(slices.Clone(slot.Items), index, index+1)
	if slot.Total > 0 {
		slot.Total--
	}
	return slot
}

// adoptServerID replaces a provisional create id with the entity the
// server returned. If the server's id is already listed (its echo
// arrived first) the provisional item is dropped instead, so the
// entity is counted once.
func adoptServerID(slot Slot, provisionalID string, server schema.Entity) (Slot, bool) {
	if !slot.IsList() {
		return mergeInto(slot, server.ID, server.Fields)
	}
	provisional := slot.IndexOf(provisionalID)
	if provisionalID == server.ID || provisional < 0 {
		return mergeInto(slot, server.ID, server.Fields)
	}
	if slot.IndexOf(server.ID) >= 0 {
		slot = removeAt(slot, provisional)
		merged, _ := mergeInto(slot, server.ID, server.Fields)
		return merged, true
	}
	slot.Items = slices.Clone(slot.Items)
	slot.Items[provisional] = slot.Items[provisional].WithID(server.ID)
	merged, _ := mergeInto(slot, server.ID, server.Fields)
	return merged, true
}
