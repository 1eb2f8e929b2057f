// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package desk

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/helpdesk/lib/livecache"
	"github.com/bureau-foundation/helpdesk/lib/schema"
)

// CreateTicket creates a ticket. It appears at once in every cached
// list its scope admits, under a provisional id that becomes the
// server's id on confirmation. An empty status defaults to new.
func (d *Desk) CreateTicket(ctx context.Context, ticket schema.Ticket) (schema.Ticket, error) {
	if ticket.Status == "" {
		ticket.Status = schema.StatusNew
	}
	if err := ticket.Validate(); err != nil {
		return schema.Ticket{}, fmt.Errorf("desk: %w", err)
	}
	ticket.ID = ""
	ticket.CreatedAt, ticket.UpdatedAt = "", ""
	entity, payload, err := provisional(schema.TypeTicket, ticket)
	if err != nil {
		return schema.Ticket{}, err
	}

	result, err := d.coordinator.Apply(ctx, livecache.Mutation{
		Operation: livecache.OperationCreate,
		Type:      schema.TypeTicket,
		EntityID:  entity.ID,
		Resource:  "/tickets",
		Payload:   payload,
	}, livecache.InsertEntity(d.reconciler.Policy(), entity), d.cache.ListKeys(schema.TypeTicket))
	if err != nil {
		return schema.Ticket{}, err
	}
	return decodeResult[schema.Ticket](result, entity)
}

// UpdateTicket changes ticket fields. Every cached slot showing the
// ticket reflects the change at once; a failed write restores them.
func (d *Desk) UpdateTicket(ctx context.Context, id string, patch schema.Fields) (livecache.Result, error) {
	if id == "" {
		return livecache.Result{}, errors.New("desk: ticket id is required")
	}
	if len(patch) == 0 {
		return livecache.Result{}, errors.New("desk: empty ticket update")
	}
	if patch.Has("id") {
		return livecache.Result{}, errors.New("desk: a ticket's id cannot be changed")
	}
	normalized, err := schema.Normalize(patch)
	if err != nil {
		return livecache.Result{}, fmt.Errorf("desk: %w", err)
	}
	return d.coordinator.Apply(ctx, livecache.Mutation{
		Operation: livecache.OperationUpdate,
		Type:      schema.TypeTicket,
		EntityID:  id,
		Resource:  ticketResource(id),
		Payload:   normalized,
	}, livecache.UpdateFields(id, normalized), d.cache.KeysHolding(schema.TypeTicket, id))
}

// SetTicketStatus changes a ticket's status.
func (d *Desk) SetTicketStatus(ctx context.Context, id, status string) (livecache.Result, error) {
	if !schema.ValidStatus(status) {
		return livecache.Result{}, fmt.Errorf("desk: unknown status %q", status)
	}
	return d.UpdateTicket(ctx, id, schema.Fields{"status": status})
}

// DeleteTicket deletes a ticket.
func (d *Desk) DeleteTicket(ctx context.Context, id string) (livecache.Result, error) {
	if id == "" {
		return livecache.Result{}, errors.New("desk: ticket id is required")
	}
	return d.coordinator.Apply(ctx, livecache.Mutation{
		Operation: livecache.OperationDelete,
		Type:      schema.TypeTicket,
		EntityID:  id,
		Resource:  ticketResource(id),
	}, livecache.RemoveEntity(id), d.cache.KeysHolding(schema.TypeTicket, id))
}

// CreateComment adds a comment to a ticket's thread.
func (d *Desk) CreateComment(ctx context.Context, comment schema.Comment) (schema.Comment, error) {
	if err := comment.Validate(); err != nil {
		return schema.Comment{}, fmt.Errorf("desk: %w", err)
	}
	comment.ID = ""
	comment.CreatedAt, comment.UpdatedAt = "", ""
	entity, payload, err := provisional(schema.TypeComment, comment)
	if err != nil {
		return schema.Comment{}, err
	}

	result, err := d.coordinator.Apply(ctx, livecache.Mutation{
		Operation: livecache.OperationCreate,
		Type:      schema.TypeComment,
		EntityID:  entity.ID,
		Resource:  commentsResource(comment.TicketID),
		Payload:   payload,
	}, livecache.InsertEntity(d.reconciler.Policy(), entity), d.cache.ListKeys(schema.TypeComment))
	if err != nil {
		return schema.Comment{}, err
	}
	return decodeResult[schema.Comment](result, entity)
}

// EditComment replaces a comment's body.
func (d *Desk) EditComment(ctx context.Context, ticketID, commentID, body string) (livecache.Result, error) {
	if ticketID == "" || commentID == "" {
		return livecache.Result{}, errors.New("desk: ticket and comment ids are required")
	}
	if body == "" {
		return livecache.Result{}, errors.New("desk: comment body is required")
	}
	patch := schema.Fields{"body": body}
	return d.coordinator.Apply(ctx, livecache.Mutation{
		Operation: livecache.OperationUpdate,
		Type:      schema.TypeComment,
		EntityID:  commentID,
		Resource:  commentResource(ticketID, commentID),
		Payload:   patch,
	}, livecache.UpdateFields(commentID, patch), d.cache.KeysHolding(schema.TypeComment, commentID))
}

// DeleteComment removes a comment from its thread.
func (d *Desk) DeleteComment(ctx context.Context, ticketID, commentID string) (livecache.Result, error) {
	if ticketID == "" || commentID == "" {
		return livecache.Result{}, errors.New("desk: ticket and comment ids are required")
	}
	return d.coordinator.Apply(ctx, livecache.Mutation{
		Operation: livecache.OperationDelete,
		Type:      schema.TypeComment,
		EntityID:  commentID,
		Resource:  commentResource(ticketID, commentID),
	}, livecache.RemoveEntity(commentID), d.cache.KeysHolding(schema.TypeComment, commentID))
}

// DeleteAuditLog removes an entry from a ticket's audit log.
func (d *Desk) DeleteAuditLog(ctx context.Context, ticketID, entryID string) (livecache.Result, error) {
	if ticketID == "" || entryID == "" {
		return livecache.Result{}, errors.New("desk: ticket and entry ids are required")
	}
	return d.coordinator.Apply(ctx, livecache.Mutation{
		Operation: livecache.OperationDelete,
		Type:      schema.TypeAuditLog,
		EntityID:  entryID,
		Resource:  auditLogEntryResource(ticketID, entryID),
	}, livecache.RemoveEntity(entryID), d.cache.KeysHolding(schema.TypeAuditLog, entryID))
}

// provisional builds the optimistic entity for a create under a fresh
// provisional id, and the request payload (the same fields without
// the id).
func provisional(entityType schema.EntityType, value any) (schema.Entity, schema.Fields, error) {
	payload, err := schema.FieldsOf(value)
	if err != nil {
		return schema.Entity{}, nil, fmt.Errorf("desk: %w", err)
	}
	delete(payload, "id")
	fields := payload.Clone()
	fields["id"] = livecache.NewProvisionalID()
	entity, err := schema.NewEntity(entityType, fields)
	if err != nil {
		return schema.Entity{}, nil, fmt.Errorf("desk: %w", err)
	}
	return entity, payload, nil
}

// decodeResult returns the server's entity from a confirmed create, or
// the optimistic one if the server sent none.
func decodeResult[T any](result livecache.Result, optimistic schema.Entity) (T, error) {
	if result.Entity != nil {
		return schema.Decode[T](*result.Entity)
	}
	return schema.Decode[T](optimistic)
}
