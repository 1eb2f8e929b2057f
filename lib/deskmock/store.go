// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package deskmock

import (
	"net/http"
	"slices"
	"strings"

	"github.com/bureau-foundation/helpdesk/lib/schema"
)

// record is one stored entity. sequence orders records by creation.
type record struct {
	fields   schema.Fields
	sequence uint64
}

// store holds every entity. Callers hold Server.mutex.
type store struct {
	records  map[schema.EntityType]map[string]*record
	sequence uint64
}

func newStore() *store {
	return &store{records: map[schema.EntityType]map[string]*record{
		schema.TypeTicket:   {},
		schema.TypeComment:  {},
		schema.TypeAuditLog: {},
	}}
}

func (s *store) get(entityType schema.EntityType, id string) (*record, bool) {
	r, ok := s.records[entityType][id]
	return r, ok
}

func (s *store) put(entityType schema.EntityType, fields schema.Fields) *record {
	s.sequence++
	r := &record{fields: fields, sequence: s.sequence}
	s.records[entityType][fields.String("id")] = r
	return r
}

func (s *store) remove(entityType schema.EntityType, id string) {
	delete(s.records[entityType], id)
}

// query returns the records of a type matching every filter, ordered
// by sortSpec: "" is newest first, "field" ascending, "-field"
// descending. created_at sorts by creation order.
func (s *store) query(entityType schema.EntityType, filters map[string]string, sortSpec string) []*record {
	var matched []*record
	for _, r := range s.records[entityType] {
		if matches(r.fields, filters) {
			matched = append(matched, r)
		}
	}

	field, descending := strings.TrimPrefix(sortSpec, "-"), strings.HasPrefix(sortSpec, "-")
	if sortSpec == "" {
		field, descending = "created_at", true
	}
	slices.SortFunc(matched, func(a, b *record) int {
		order := 0
		if field != "created_at" {
			order = strings.Compare(a.fields.String(field), b.fields.String(field))
		}
		if order == 0 {
			order = compareSequence(a.sequence, b.sequence)
		}
		if descending {
			return -order
		}
		return order
	})
	return matched
}

func compareSequence(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func matches(fields schema.Fields, filters map[string]string) bool {
	for field, want := range filters {
		if fields.String(field) != want {
			return false
		}
	}
	return true
}

// page slices records for a 1-based page. perPage 0 returns all.
func page(records []*record, pageNumber, perPage int) []*record {
	if perPage <= 0 {
		return records
	}
	start := (pageNumber - 1) * perPage
	if start >= len(records) || start < 0 {
		return nil
	}
	return records[start:min(start+perPage, len(records))]
}

func fieldsOf(records []*record) []schema.Fields {
	items := make([]schema.Fields, len(records))
	for index, r := range records {
		items[index] = r.fields.Clone()
	}
	return items
}

// apiError is an error response: {"message": ..., "errors": {...}}.
type apiError struct {
	status  int
	message string
	fields  map[string][]string
}

func (e *apiError) Error() string { return e.message }

func notFound(what string) *apiError {
	return &apiError{status: http.StatusNotFound, message: what + " not found."}
}

func invalid(field, message string) *apiError {
	return &apiError{
		status:  http.StatusUnprocessableEntity,
		message: message,
		fields:  map[string][]string{field: {message}},
	}
}
