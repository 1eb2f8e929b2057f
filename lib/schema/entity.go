// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
)

// EntityType names a kind of server entity.
type EntityType string

const (
	TypeTicket   EntityType = "ticket"
	TypeComment  EntityType = "comment"
	TypeAuditLog EntityType = "audit_log"
)

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	switch t {
	case TypeTicket, TypeComment, TypeAuditLog:
		return true
	}
	return false
}

// Fields is a JSON object in its decoded form. Values are whatever
// encoding/json produces for an any target: string, float64, bool, nil,
// []any, map[string]any.
type Fields map[string]any

// Normalize converts v to Fields by a JSON round trip. Integers become
// float64 and structs become maps, matching what a JSON decode of the
// same value on the wire would produce.
func Normalize(v any) (Fields, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("schema: encoding fields: %w", err)
	}
	var fields Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("schema: value is not a JSON object: %w", err)
	}
	return fields, nil
}

// Clone returns a shallow copy. Nested values are shared; they are
// never mutated once decoded.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	return maps.Clone(f)
}

// String returns the field as a string, formatting numbers and bools.
// Missing and null fields return "".
func (f Fields) String(key string) string {
	return stringValue(f[key])
}

// Has reports whether key is present (even if null).
func (f Fields) Has(key string) bool {
	_, ok := f[key]
	return ok
}

// Project returns a copy holding only the named keys that are present.
func (f Fields) Project(keys []string) Fields {
	projected := make(Fields, len(keys))
	for _, key := range keys {
		if value, ok := f[key]; ok {
			projected[key] = value
		}
	}
	return projected
}

func stringValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Entity is an immutable snapshot of one server entity. Replace it,
// never modify its Fields in place.
type Entity struct {
	Type   EntityType `json:"type"`
	ID     string     `json:"id"`
	Fields Fields     `json:"fields"`
}

// NewEntity builds an Entity from decoded fields. The "id" field is
// required; numeric ids are converted to their string form so that
// lookups by id are uniform.
func NewEntity(entityType EntityType, fields Fields) (Entity, error) {
	if !entityType.Valid() {
		return Entity{}, fmt.Errorf("schema: unknown entity type %q", entityType)
	}
	id := fields.String("id")
	if id == "" {
		return Entity{}, errors.New("schema: entity has no id")
	}
	normalized := fields.Clone()
	normalized["id"] = id
	return Entity{Type: entityType, ID: id, Fields: normalized}, nil
}

// Merge returns a new Entity with patch applied over e's fields. Keys
// in patch win; keys absent from patch are kept. The id never changes
// through a merge.
func (e Entity) Merge(patch Fields) Entity {
	merged := e.Fields.Clone()
	if merged == nil {
		merged = make(Fields, len(patch))
	}
	maps.Copy(merged, patch)
	merged["id"] = e.ID
	return Entity{Type: e.Type, ID: e.ID, Fields: merged}
}

// WithID returns a copy of e under a different id. Used when a
// provisional create id is replaced by the server-assigned one.
func (e Entity) WithID(id string) Entity {
	fields := e.Fields.Clone()
	if fields == nil {
		fields = Fields{}
	}
	fields["id"] = id
	return Entity{Type: e.Type, ID: id, Fields: fields}
}

// UpdatedAt returns the updated_at field, or "" when absent.
func (e Entity) UpdatedAt() string {
	return e.Fields.String("updated_at")
}
