// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"testing"
)

func TestNormalizeMatchesWireForm(t *testing.T) {
	fields, err := Normalize(struct {
		ID    string `json:"id"`
		Count int    `json:"count"`
	}{ID: "T-1", Count: 3})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if _, ok := fields["count"].(float64); !ok {
		t.Fatalf("count decoded as %T, want float64", fields["count"])
	}

	if _, err := Normalize([]string{"not", "an", "object"}); err == nil {
		t.Fatal("expected error for non-object value")
	}
}

func TestNewEntity(t *testing.T) {
	entity, err := NewEntity(TypeTicket, Fields{"id": float64(42), "subject": "Printer on fire"})
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}
	if entity.ID != "42" {
		t.Errorf("ID = %q, want %q", entity.ID, "42")
	}
	if entity.Fields["id"] != "42" {
		t.Errorf("Fields[id] = %v, want string id", entity.Fields["id"])
	}

	if _, err := NewEntity(TypeTicket, Fields{"subject": "no id"}); err == nil {
		t.Error("expected error for missing id")
	}
	if _, err := NewEntity("invoice", Fields{"id": "1"}); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestNewEntityDoesNotAliasInput(t *testing.T) {
	input := Fields{"id": "T-1", "status": "new"}
	entity, err := NewEntity(TypeTicket, input)
	if err != nil {
		t.Fatal(err)
	}
	input["status"] = "closed"
	if entity.Fields["status"] != "new" {
		t.Fatal("entity shares its field map with the caller")
	}
}

func TestMergeIsShallowAndPure(t *testing.T) {
	original, _ := NewEntity(TypeTicket, Fields{
		"id": "T-1", "status": "new", "subject": "Printer", "updated_at": "t0",
	})
	merged := original.Merge(Fields{"status": "in_progress", "updated_at": "t1", "id": "ignored"})

	if merged.Fields["status"] != "in_progress" || merged.UpdatedAt() != "t1" {
		t.Errorf("merged = %v", merged.Fields)
	}
	if merged.Fields["subject"] != "Printer" {
		t.Error("merge dropped a field absent from the patch")
	}
	if merged.ID != "T-1" || merged.Fields["id"] != "T-1" {
		t.Error("merge changed the id")
	}
	if original.Fields["status"] != "new" {
		t.Error("merge modified the original entity")
	}
}

func TestWithID(t *testing.T) {
	provisional, _ := NewEntity(TypeComment, Fields{"id": "tmp-1", "body": "hi"})
	real := provisional.WithID("C-9")
	if real.ID != "C-9" || real.Fields["id"] != "C-9" {
		t.Errorf("WithID = %+v", real)
	}
	if provisional.ID != "tmp-1" || provisional.Fields["id"] != "tmp-1" {
		t.Error("WithID modified the original")
	}
}

func TestFieldsString(t *testing.T) {
	fields := Fields{"s": "x", "n": float64(3), "f": 1.5, "b": true, "null": nil}
	tests := map[string]string{"s": "x", "n": "3", "f": "1.5", "b": "true", "null": "", "missing": ""}
	for key, want := range tests {
		if got := fields.String(key); got != want {
			t.Errorf("String(%q) = %q, want %q", key, got, want)
		}
	}
	if !fields.Has("null") || fields.Has("missing") {
		t.Error("Has does not distinguish null from missing")
	}
}

func TestProject(t *testing.T) {
	fields := Fields{"status": "open", "subject": "x", "assignee": nil}
	projected := fields.Project([]string{"status", "assignee", "absent"})
	if len(projected) != 2 {
		t.Fatalf("Project = %v, want status and assignee", projected)
	}
	if projected["status"] != "open" {
		t.Errorf("status = %v", projected["status"])
	}
}
