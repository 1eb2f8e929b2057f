// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package livecache

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/bureau-foundation/helpdesk/lib/schema"
)

// Scope is the set of query parameters that produced a slot.
type Scope struct {
	// EntityID makes this a single-entity scope. All other fields are
	// ignored when it is set.
	EntityID string

	// Page is the 1-based page number. Zero means the consumer does
	// not know which page it shows; created events then invalidate
	// the slot instead of guessing.
	Page int

	// PerPage is the page size. Zero means the slot holds the whole
	// collection (a comment thread, for instance).
	PerPage int

	// Filters are field equality constraints, e.g. status=open. A
	// filter key that is not an entity field (a search term) cannot
	// be checked locally.
	Filters map[string]string

	// Sort is the sort expression. "" is the server default. A
	// leading "-" means descending.
	Sort string
}

// Single returns the scope of a single-entity slot.
func Single(id string) Scope {
	return Scope{EntityID: id}
}

// IsSingle reports whether the scope names one entity.
func (s Scope) IsSingle() bool {
	return s.EntityID != ""
}

// Key returns the canonical encoding. Two scopes with the same
// parameters produce the same key regardless of filter map order.
func (s Scope) Key() string {
	if s.IsSingle() {
		return "id=" + url.QueryEscape(s.EntityID)
	}
	values := url.Values{}
	values.Set("page", strconv.Itoa(s.Page))
	values.Set("per_page", strconv.Itoa(s.PerPage))
	if s.Sort != "" {
		values.Set("sort", s.Sort)
	}
	for field, value := range s.Filters {
		values.Set("filter."+field, value)
	}
	// Encode sorts by key.
	return values.Encode()
}

// Ascending reports whether the sort is an explicit ascending order.
func (s Scope) Ascending() bool {
	return s.Sort != "" && !strings.HasPrefix(s.Sort, "-")
}

// Matches checks entity against the scope's filters. known is false
// when some filter names a field the entity does not carry; matched is
// then meaningless.
func (s Scope) Matches(entity schema.Entity) (matched, known bool) {
	matched = true
	for field, want := range s.Filters {
		if !entity.Fields.Has(field) {
			return false, false
		}
		if entity.Fields.String(field) != want {
			matched = false
		}
	}
	return matched, true
}

// SlotKey identifies a slot: entity type plus canonical scope.
type SlotKey struct {
	Type  schema.EntityType `json:"type"`
	Scope string            `json:"scope"`
}

// KeyFor returns the key for a scope of the given entity type.
func KeyFor(entityType schema.EntityType, scope Scope) SlotKey {
	return SlotKey{Type: entityType, Scope: scope.Key()}
}

func (k SlotKey) String() string {
	return string(k.Type) + "?" + k.Scope
}
