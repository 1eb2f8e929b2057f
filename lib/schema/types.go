// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Ticket statuses.
const (
	StatusNew        = "new"
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusPending    = "pending"
	StatusResolved   = "resolved"
	StatusClosed     = "closed"
)

// Ticket priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Ticket is a support request.
type Ticket struct {
	ID string `json:"id"`

	// Subject is the one-line summary shown in lists.
	Subject string `json:"subject"`

	// Description is the requester's message body (HTML from the
	// editor; opaque here).
	Description string `json:"description,omitempty"`

	// Status is one of the Status* constants. List views commonly
	// filter on it, which is why a status change can move a ticket
	// out of a cached page.
	Status string `json:"status"`

	// Priority is one of the Priority* constants.
	Priority string `json:"priority,omitempty"`

	// Assignee is the agent handling the ticket, empty when
	// unassigned.
	Assignee string `json:"assignee,omitempty"`

	// Requester is the customer who opened the ticket.
	Requester string `json:"requester,omitempty"`

	Tags []string `json:"tags,omitempty"`

	// CreatedAt and UpdatedAt are RFC 3339 timestamps set by the
	// server. UpdatedAt is the last-modified marker the server
	// returns on every write.
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Validate checks the fields a client may set on create.
func (t *Ticket) Validate() error {
	if t.Subject == "" {
		return errors.New("ticket: subject is required")
	}
	if !ValidStatus(t.Status) {
		return fmt.Errorf("ticket: unknown status %q", t.Status)
	}
	switch t.Priority {
	case "", PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
	default:
		return fmt.Errorf("ticket: unknown priority %q", t.Priority)
	}
	return nil
}

// ValidStatus reports whether status is a known ticket status.
func ValidStatus(status string) bool {
	switch status {
	case StatusNew, StatusOpen, StatusInProgress, StatusPending, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Comment is a message on a ticket's thread.
type Comment struct {
	ID       string `json:"id"`
	TicketID string `json:"ticket_id"`
	Author   string `json:"author,omitempty"`
	Body     string `json:"body"`

	// Internal comments are visible to agents only.
	Internal bool `json:"internal,omitempty"`

	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Validate checks the fields a client may set on create or edit.
func (c *Comment) Validate() error {
	if c.TicketID == "" {
		return errors.New("comment: ticket_id is required")
	}
	if c.Body == "" {
		return errors.New("comment: body is required")
	}
	return nil
}

// AuditLogEntry records one change to a ticket. Entries are written by
// the server; clients only read and delete them.
type AuditLogEntry struct {
	ID       string `json:"id"`
	TicketID string `json:"ticket_id"`
	Actor    string `json:"actor,omitempty"`

	// Action is a short verb such as "status_changed" or
	// "comment_added".
	Action   string `json:"action"`
	Field    string `json:"field,omitempty"`
	OldValue string `json:"old_value,omitempty"`
	NewValue string `json:"new_value,omitempty"`

	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// FieldsOf converts a typed value to normalized Fields.
func FieldsOf(v any) (Fields, error) {
	return Normalize(v)
}

// Decode converts an entity's fields to a typed view.
//
//	ticket, err := schema.Decode[schema.Ticket](entity)
func Decode[T any](entity Entity) (T, error) {
	var result T
	data, err := json.Marshal(entity.Fields)
	if err != nil {
		return result, fmt.Errorf("schema: encoding %s %s: %w", entity.Type, entity.ID, err)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("schema: decoding %s %s: %w", entity.Type, entity.ID, err)
	}
	return result, nil
}
