// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ChangeKind is the kind of a realtime change event.
type ChangeKind string

const (
	KindCreated ChangeKind = "created"
	KindUpdated ChangeKind = "updated"
	KindDeleted ChangeKind = "deleted"
)

// ChangeEvent is the payload of every realtime entity event.
type ChangeEvent struct {
	Kind ChangeKind `json:"kind"`
	ID   string     `json:"id"`

	// Entity carries full (created) or partial (updated) fields.
	// Deleted events may omit it.
	Entity Fields `json:"entity,omitempty"`
}

// ErrMalformedEvent wraps every ParseChangeEvent failure.
var ErrMalformedEvent = errors.New("malformed change event")

// ParseChangeEvent decodes and validates a change event payload. When
// the top-level id is missing it is taken from entity.id; when both are
// present they must agree. Created and updated events must carry an
// entity.
func ParseChangeEvent(data []byte) (ChangeEvent, error) {
	var raw struct {
		Kind   ChangeKind `json:"kind"`
		ID     any        `json:"id"`
		Entity Fields     `json:"entity"`
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&raw); err != nil {
		return ChangeEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch raw.Kind {
	case KindCreated, KindUpdated, KindDeleted:
	default:
		return ChangeEvent{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedEvent, raw.Kind)
	}

	id := stringValue(raw.ID)
	entityID := raw.Entity.String("id")
	switch {
	case id == "" && entityID == "":
		return ChangeEvent{}, fmt.Errorf("%w: no id", ErrMalformedEvent)
	case id == "":
		id = entityID
	case entityID != "" && entityID != id:
		return ChangeEvent{}, fmt.Errorf("%w: id %q disagrees with entity.id %q", ErrMalformedEvent, id, entityID)
	}

	if raw.Kind != KindDeleted && raw.Entity == nil {
		return ChangeEvent{}, fmt.Errorf("%w: %s event for %s has no entity", ErrMalformedEvent, raw.Kind, id)
	}

	event := ChangeEvent{Kind: raw.Kind, ID: id, Entity: raw.Entity}
	if event.Entity != nil {
		event.Entity["id"] = id
	}
	return event, nil
}

// Encode returns the JSON wire form.
func (e ChangeEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}
