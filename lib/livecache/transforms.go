// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package livecache

import (
	"github.com/bureau-foundation/helpdesk/lib/schema"
)

// Transform computes a slot's optimistic state from its current state.
// It must be pure: the coordinator replays it onto rebased snapshots
// whenever other writes land while the mutation is in flight.
type Transform func(Slot) Slot

// UpdateFields merges patch into the entity with the given id wherever
// the slot shows it. A list item that stops matching the slot's
// filters is removed and the slot marked stale.
func UpdateFields(id string, patch schema.Fields) Transform {
	return func(slot Slot) Slot {
		updated, _ := mergeInto(slot, id, patch)
		return updated
	}
}

// InsertEntity places a new entity according to policy. A single slot
// scoped to the entity's id receives it directly.
func InsertEntity(policy PagePolicy, entity schema.Entity) Transform {
	return func(slot Slot) Slot {
		inserted, _ := policy.Insert(slot, entity)
		return inserted
	}
}

// RemoveEntity removes the entity from list slots and tombstones a
// single slot scoped to it.
func RemoveEntity(id string) Transform {
	return func(slot Slot) Slot {
		removed, _ := removeFrom(slot, id)
		return removed
	}
}

// Chain composes transforms left to right.
func Chain(transforms ...Transform) Transform {
	return func(slot Slot) Slot {
		for _, transform := range transforms {
			if transform != nil {
				slot = transform(slot)
			}
		}
		return slot
	}
}
