// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package deskmock

import (
	"context"
	"strings"

	"github.com/bureau-foundation/helpdesk/lib/schema"
)

// The exported operations below change the store directly and publish
// the same events an API call would. Tests use them to play another
// agent.

// ticketWritable lists the ticket fields a client may set.
var ticketWritable = []string{"subject", "description", "status", "priority", "assignee", "requester", "tags"}

// CreateTicket stores a new ticket and publishes a created event. An
// empty id is assigned; an empty status becomes new.
func (s *Server) CreateTicket(ctx context.Context, fields schema.Fields) (schema.Fields, error) {
	s.mutex.Lock()
	created, err := s.createTicketLocked(fields.Project(append([]string{"id"}, ticketWritable...)))
	s.mutex.Unlock()
	if err != nil {
		return nil, err
	}
	s.outbox.send(ctx, s.changeEvent(schema.KindCreated, schema.TypeTicket, created.String("id"), created.String("id"), created)...)
	return created.Clone(), nil
}

func (s *Server) createTicketLocked(fields schema.Fields) (schema.Fields, error) {
	fields = fields.Clone()
	if fields == nil {
		fields = schema.Fields{}
	}
	if strings.TrimSpace(fields.String("subject")) == "" {
		return nil, invalid("subject", "The subject field is required.")
	}
	if !fields.Has("status") || fields.String("status") == "" {
		fields["status"] = schema.StatusNew
	}
	if err := validateTicketFields(fields); err != nil {
		return nil, err
	}
	id := fields.String("id")
	if id == "" {
		id = newID()
	}
	if _, exists := s.store.get(schema.TypeTicket, id); exists {
		return nil, invalid("id", "The id has already been taken.")
	}
	fields["id"] = id
	stamp := s.stampLocked()
	fields["created_at"] = stamp
	fields["updated_at"] = stamp
	s.store.put(schema.TypeTicket, fields)
	return fields, nil
}

func validateTicketFields(fields schema.Fields) error {
	if fields.Has("subject") && strings.TrimSpace(fields.String("subject")) == "" {
		return invalid("subject", "The subject field is required.")
	}
	if fields.Has("status") && !schema.ValidStatus(fields.String("status")) {
		return invalid("status", "The selected status is invalid.")
	}
	if fields.Has("priority") {
		switch fields.String("priority") {
		case "", schema.PriorityLow, schema.PriorityNormal, schema.PriorityHigh, schema.PriorityUrgent:
		default:
			return invalid("priority", "The selected priority is invalid.")
		}
	}
	return nil
}

// UpdateTicket merges patch into a ticket and publishes an updated
// event carrying the changed fields. A status change also writes an
// audit-log entry attributed to actor.
func (s *Server) UpdateTicket(ctx context.Context, id string, patch schema.Fields, actor string) (schema.Fields, error) {
	s.mutex.Lock()
	current, ok := s.store.get(schema.TypeTicket, id)
	if !ok {
		s.mutex.Unlock()
		return nil, notFound("Ticket")
	}
	patch = patch.Project(ticketWritable)
	if err := validateTicketFields(patch); err != nil {
		s.mutex.Unlock()
		return nil, err
	}

	var entry schema.Fields
	if status, changed := patch["status"]; changed && status != current.fields["status"] {
		entry = s.appendAuditLocked(id, actor, "status_changed", "status", current.fields.String("status"), patch.String("status"))
	}

	stamp := s.stampLocked()
	partial := patch.Clone()
	partial["id"] = id
	partial["updated_at"] = stamp
	for key, value := range partial {
		current.fields[key] = value
	}
	updated := current.fields.Clone()
	s.mutex.Unlock()

	events := s.changeEvent(schema.KindUpdated, schema.TypeTicket, id, id, partial)
	if entry != nil {
		events = append(events, s.changeEvent(schema.KindCreated, schema.TypeAuditLog, id, entry.String("id"), entry)...)
	}
	s.outbox.send(ctx, events...)
	return updated, nil
}

// DeleteTicket removes a ticket with its comments and audit log, and
// publishes a deleted event for the ticket.
func (s *Server) DeleteTicket(ctx context.Context, id string) error {
	s.mutex.Lock()
	if _, ok := s.store.get(schema.TypeTicket, id); !ok {
		s.mutex.Unlock()
		return notFound("Ticket")
	}
	s.store.remove(schema.TypeTicket, id)
	children := map[string]string{"ticket_id": id}
	for _, entityType := range []schema.EntityType{schema.TypeComment, schema.TypeAuditLog} {
		for _, r := range s.store.query(entityType, children, "") {
			s.store.remove(entityType, r.fields.String("id"))
		}
	}
	s.mutex.Unlock()

	s.outbox.send(ctx, s.changeEvent(schema.KindDeleted, schema.TypeTicket, id, id, nil)...)
	return nil
}

// Ticket returns a copy of a stored ticket.
func (s *Server) Ticket(id string) (schema.Fields, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	r, ok := s.store.get(schema.TypeTicket, id)
	if !ok {
		return nil, false
	}
	return r.fields.Clone(), true
}

// Count returns how many entities of a type match filters.
func (s *Server) Count(entityType schema.EntityType, filters map[string]string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.store.query(entityType, filters, ""))
}

// CreateComment adds a comment to a ticket, writes a comment_added
// audit-log entry, and publishes both.
func (s *Server) CreateComment(ctx context.Context, ticketID string, fields schema.Fields) (schema.Fields, error) {
	s.mutex.Lock()
	if _, ok := s.store.get(schema.TypeTicket, ticketID); !ok {
		s.mutex.Unlock()
		return nil, notFound("Ticket")
	}
	fields = fields.Project([]string{"id", "author", "body", "internal"})
	if strings.TrimSpace(fields.String("body")) == "" {
		s.mutex.Unlock()
		return nil, invalid("body", "The body field is required.")
	}
	if fields.String("id") == "" {
		fields["id"] = newID()
	}
	fields["ticket_id"] = ticketID
	stamp := s.stampLocked()
	fields["created_at"] = stamp
	fields["updated_at"] = stamp
	s.store.put(schema.TypeComment, fields)
	created := fields.Clone()
	entry := s.appendAuditLocked(ticketID, fields.String("author"), "comment_added", "", "", created.String("id"))
	s.mutex.Unlock()

	events := s.changeEvent(schema.KindCreated, schema.TypeComment, ticketID, created.String("id"), created)
	events = append(events, s.changeEvent(schema.KindCreated, schema.TypeAuditLog, ticketID, entry.String("id"), entry)...)
	s.outbox.send(ctx, events...)
	return created.Clone(), nil
}

// UpdateComment replaces a comment's body.
func (s *Server) UpdateComment(ctx context.Context, ticketID, commentID, body string) (schema.Fields, error) {
	s.mutex.Lock()
	current, ok := s.store.get(schema.TypeComment, commentID)
	if !ok || current.fields.String("ticket_id") != ticketID {
		s.mutex.Unlock()
		return nil, notFound("Comment")
	}
	if strings.TrimSpace(body) == "" {
		s.mutex.Unlock()
		return nil, invalid("body", "The body field is required.")
	}
	stamp := s.stampLocked()
	current.fields["body"] = body
	current.fields["updated_at"] = stamp
	updated := current.fields.Clone()
	s.mutex.Unlock()

	partial := schema.Fields{"id": commentID, "body": body, "updated_at": stamp}
	s.outbox.send(ctx, s.changeEvent(schema.KindUpdated, schema.TypeComment, ticketID, commentID, partial)...)
	return updated, nil
}

// DeleteComment removes a comment.
func (s *Server) DeleteComment(ctx context.Context, ticketID, commentID string) error {
	return s.deleteChild(ctx, schema.TypeComment, "Comment", ticketID, commentID)
}

// DeleteAuditLog removes an audit-log entry.
func (s *Server) DeleteAuditLog(ctx context.Context, ticketID, entryID string) error {
	return s.deleteChild(ctx, schema.TypeAuditLog, "Audit log entry", ticketID, entryID)
}

func (s *Server) deleteChild(ctx context.Context, entityType schema.EntityType, what, ticketID, id string) error {
	s.mutex.Lock()
	current, ok := s.store.get(entityType, id)
	if !ok || current.fields.String("ticket_id") != ticketID {
		s.mutex.Unlock()
		return notFound(what)
	}
	s.store.remove(entityType, id)
	s.mutex.Unlock()

	s.outbox.send(ctx, s.changeEvent(schema.KindDeleted, entityType, ticketID, id, nil)...)
	return nil
}

// AppendAuditLog writes an audit-log entry and publishes a created
// event for it.
func (s *Server) AppendAuditLog(ctx context.Context, ticketID, actor, action string) (schema.Fields, error) {
	s.mutex.Lock()
	if _, ok := s.store.get(schema.TypeTicket, ticketID); !ok {
		s.mutex.Unlock()
		return nil, notFound("Ticket")
	}
	entry := s.appendAuditLocked(ticketID, actor, action, "", "", "")
	s.mutex.Unlock()

	s.outbox.send(ctx, s.changeEvent(schema.KindCreated, schema.TypeAuditLog, ticketID, entry.String("id"), entry)...)
	return entry.Clone(), nil
}

func (s *Server) appendAuditLocked(ticketID, actor, action, field, oldValue, newValue string) schema.Fields {
	stamp := s.stampLocked()
	entry := schema.Fields{
		"id":         newID(),
		"ticket_id":  ticketID,
		"action":     action,
		"created_at": stamp,
		"updated_at": stamp,
	}
	for key, value := range map[string]string{"actor": actor, "field": field, "old_value": oldValue, "new_value": newValue} {
		if value != "" {
			entry[key] = value
		}
	}
	s.store.put(schema.TypeAuditLog, entry)
	return entry.Clone()
}
