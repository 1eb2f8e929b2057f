// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package livecache

import (
	"slices"

	"github.com/bureau-foundation/helpdesk/lib/schema"
)

// Placement is a policy's decision for a created entity and one list
// slot.
type Placement int

const (
	// PlaceSkip leaves the slot untouched.
	PlaceSkip Placement = iota
	// PlacePrepend inserts at the head and increments the total.
	PlacePrepend
	// PlaceAppend inserts at the tail and increments the total. Used
	// for whole collections in ascending order (comment threads).
	PlaceAppend
	// PlaceInvalidate marks the slot stale so the next read refetches.
	PlaceInvalidate
)

func (p Placement) String() string {
	switch p {
	case PlaceSkip:
		return "skip"
	case PlacePrepend:
		return "prepend"
	case PlaceAppend:
		return "append"
	case PlaceInvalidate:
		return "invalidate"
	}
	return "unknown"
}

// PagePolicy decides whether, and where, a newly created entity enters
// a list slot. Insert is a pure function of its arguments; it is
// applied to live slots and to pending snapshots alike.
type PagePolicy interface {
	Place(scope Scope, entity schema.Entity) Placement
	Insert(slot Slot, entity schema.Entity) (Slot, bool)
}

// FirstPagePolicy surfaces new entities where newest items appear: the
// first page under the default sort. Whole collections sorted
// ascending receive them at the end.
type FirstPagePolicy struct {
	// DefaultSort is the sort expression under which page one shows
	// the newest items. "" is the server default.
	DefaultSort string
}

// Place implements [PagePolicy].
func (p FirstPagePolicy) Place(scope Scope, entity schema.Entity) Placement {
	if scope.IsSingle() {
		return PlaceSkip
	}
	if scope.Page == 0 {
		return PlaceInvalidate
	}
	matched, known := scope.Matches(entity)
	if !known {
		return PlaceInvalidate
	}
	if !matched {
		return PlaceSkip
	}
	if scope.PerPage == 0 && scope.Page == 1 && scope.Ascending() {
		return PlaceAppend
	}
	if scope.Page != 1 || scope.Sort != p.DefaultSort {
		return PlaceSkip
	}
	return PlacePrepend
}

// Insert implements [PagePolicy].
func (p FirstPagePolicy) Insert(slot Slot, entity schema.Entity) (Slot, bool) {
	return insert(slot, entity, p.Place(slot.Scope, entity))
}

// TruncatingPolicy places like [FirstPagePolicy] and then trims a
// paginated slot back to its page size, so the page never grows past
// PerPage items. The total still counts the new entity.
type TruncatingPolicy struct {
	DefaultSort string
}

// Place implements [PagePolicy].
func (p TruncatingPolicy) Place(scope Scope, entity schema.Entity) Placement {
	return FirstPagePolicy{DefaultSort: p.DefaultSort}.Place(scope, entity)
}

// Insert implements [PagePolicy].
func (p TruncatingPolicy) Insert(slot Slot, entity schema.Entity) (Slot, bool) {
	inserted, changed := insert(slot, entity, p.Place(slot.Scope, entity))
	if changed && inserted.Scope.PerPage > 0 && len(inserted.Items) > inserted.Scope.PerPage {
		inserted.Items = inserted.Items[:inserted.Scope.PerPage:inserted.Scope.PerPage]
	}
	return inserted, changed
}

// insert applies a placement. An entity already present is replaced
// in position rather than inserted twice.
func insert(slot Slot, entity schema.Entity, placement Placement) (Slot, bool) {
	if !slot.IsList() {
		if slot.Scope.EntityID != entity.ID || slot.Entity != nil || slot.Tombstone {
			return slot, false
		}
		slot.Entity = &entity
		return slot, true
	}
	if slot.IndexOf(entity.ID) >= 0 {
		return mergeInto(slot, entity.ID, entity.Fields)
	}

	switch placement {
	case PlacePrepend:
		slot.Items = append([]schema.Entity{entity}, slot.Items...)
		slot.Total++
	case PlaceAppend:
		slot.Items = append(slices.Clip(slot.Items), entity)
		slot.Total++
	case PlaceInvalidate:
		if slot.Stale {
			return slot, false
		}
		slot.Stale = true
	default:
		return slot, false
	}
	return slot, true
}
