// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package desk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bureau-foundation/helpdesk/lib/api"
	"github.com/bureau-foundation/helpdesk/lib/clock"
	"github.com/bureau-foundation/helpdesk/lib/livecache"
	"github.com/bureau-foundation/helpdesk/lib/realtime"
	"github.com/bureau-foundation/helpdesk/lib/schema"
)

// defaultResyncTimeout bounds the refetch triggered by a realtime
// reconnect.
const defaultResyncTimeout = 30 * time.Second

// Config holds the dependencies of a Desk.
type Config struct {
	// API performs reads and writes. Usually an *api.Client.
	API livecache.Requester

	// Transport carries realtime events. The caller runs it (for
	// example WebSocketTransport.Run); the Desk only binds to it.
	Transport realtime.Transport

	// Clock drives self-origin marker expiry. Default: real time.
	Clock clock.Clock

	// EchoWindow is how long a confirmed write waits for its echo.
	// Default: livecache.DefaultEchoWindow.
	EchoWindow time.Duration

	// Policy places created entities in list slots. Default:
	// livecache.FirstPagePolicy.
	Policy livecache.PagePolicy

	// Notifier is told about every rolled-back mutation.
	Notifier livecache.Notifier

	Logger *slog.Logger
}

// Desk is a helpdesk client session.
type Desk struct {
	api         livecache.Requester
	cache       *livecache.Cache
	coordinator *livecache.Coordinator
	reconciler  *livecache.Reconciler
	manager     *realtime.Manager
	logger      *slog.Logger
}

// New creates a Desk.
func New(config Config) (*Desk, error) {
	if config.API == nil {
		return nil, errors.New("desk: API is required")
	}
	if config.Transport == nil {
		return nil, errors.New("desk: realtime transport is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Desk{
		api:    config.API,
		cache:  livecache.NewCache(),
		logger: logger,
	}
	suppressor := livecache.NewSuppressor(config.Clock, config.EchoWindow)
	d.coordinator = livecache.NewCoordinator(d.cache, livecache.CoordinatorConfig{
		Requester:  config.API,
		Suppressor: suppressor,
		Notifier:   config.Notifier,
		Logger:     logger.With("component", "coordinator"),
	})
	d.reconciler = livecache.NewReconciler(d.cache, livecache.ReconcilerConfig{
		Suppressor: suppressor,
		Policy:     config.Policy,
		Fetcher:    d.fetch,
		Logger:     logger.With("component", "reconciler"),
	})
	d.manager = realtime.NewManager(config.Transport, logger.With("component", "realtime"))
	return d, nil
}

// Cache returns the shared cache views read from.
func (d *Desk) Cache() *livecache.Cache {
	return d.cache
}

// Close unbinds every watch. In-flight writes are not cancelled; they
// still resolve against the cache.
func (d *Desk) Close() {
	d.manager.Close()
}

// fetch is the Reconciler's Fetcher.
func (d *Desk) fetch(ctx context.Context, key livecache.SlotKey, scope livecache.Scope) (api.Response, error) {
	resource, err := readResource(key.Type, scope)
	if err != nil {
		return api.Response{}, err
	}
	return d.api.Request(ctx, http.MethodGet, resource, nil)
}

// load reads a scope from the API and hydrates its slot.
func (d *Desk) load(ctx context.Context, entityType schema.EntityType, scope livecache.Scope) (livecache.SlotKey, error) {
	key := livecache.KeyFor(entityType, scope)
	response, err := d.fetch(ctx, key, scope)
	if err != nil {
		return key, fmt.Errorf("desk: loading %s: %w", key, err)
	}
	return d.reconciler.Hydrate(entityType, scope, response)
}

// LoadTickets loads one page of tickets.
func (d *Desk) LoadTickets(ctx context.Context, scope livecache.Scope) (livecache.SlotKey, error) {
	if scope.IsSingle() {
		return livecache.SlotKey{}, errors.New("desk: LoadTickets needs a list scope; use LoadTicket")
	}
	return d.load(ctx, schema.TypeTicket, scope)
}

// LoadTicket loads one ticket into its single slot.
func (d *Desk) LoadTicket(ctx context.Context, id string) (livecache.SlotKey, error) {
	if id == "" {
		return livecache.SlotKey{}, errors.New("desk: ticket id is required")
	}
	return d.load(ctx, schema.TypeTicket, livecache.Single(id))
}

// LoadComments loads a ticket's whole comment thread.
func (d *Desk) LoadComments(ctx context.Context, ticketID string) (livecache.SlotKey, error) {
	if ticketID == "" {
		return livecache.SlotKey{}, errors.New("desk: ticket id is required")
	}
	return d.load(ctx, schema.TypeComment, CommentsScope(ticketID))
}

// LoadAuditLog loads one page of a ticket's audit log.
func (d *Desk) LoadAuditLog(ctx context.Context, ticketID string, page, perPage int) (livecache.SlotKey, error) {
	if ticketID == "" {
		return livecache.SlotKey{}, errors.New("desk: ticket id is required")
	}
	return d.load(ctx, schema.TypeAuditLog, AuditLogScope(ticketID, page, perPage))
}

// Ticket returns the cached ticket with the given id.
func (d *Desk) Ticket(id string) (schema.Ticket, bool) {
	entity, ok := d.cache.Entity(schema.TypeTicket, id)
	if !ok {
		return schema.Ticket{}, false
	}
	ticket, err := schema.Decode[schema.Ticket](entity)
	if err != nil {
		d.logger.Warn("cached ticket does not decode", "entity_id", id, "error", err)
		return schema.Ticket{}, false
	}
	return ticket, true
}

// Tickets returns the tickets of a list slot in order, with the
// slot's total.
func (d *Desk) Tickets(key livecache.SlotKey) ([]schema.Ticket, int, error) {
	slot, ok := d.cache.Get(key)
	if !ok {
		return nil, 0, fmt.Errorf("desk: no slot %s", key)
	}
	tickets := make([]schema.Ticket, 0, len(slot.Items))
	for _, item := range slot.Items {
		ticket, err := schema.Decode[schema.Ticket](item)
		if err != nil {
			return nil, 0, err
		}
		tickets = append(tickets, ticket)
	}
	return tickets, slot.Total, nil
}

// Comments returns the comments of a thread slot in order.
func (d *Desk) Comments(key livecache.SlotKey) ([]schema.Comment, error) {
	slot, ok := d.cache.Get(key)
	if !ok {
		return nil, fmt.Errorf("desk: no slot %s", key)
	}
	comments := make([]schema.Comment, 0, len(slot.Items))
	for _, item := range slot.Items {
		comment, err := schema.Decode[schema.Comment](item)
		if err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	return comments, nil
}

// Refresh refetches every slot marked stale.
func (d *Desk) Refresh(ctx context.Context) error {
	return d.reconciler.Refetch(ctx)
}

// Pending returns the mutations still awaiting a server answer.
func (d *Desk) Pending() []livecache.Mutation {
	return d.coordinator.Pending()
}

// InFlight reports whether a write for the entity is awaiting the
// server: the edit-in-progress indicator.
func (d *Desk) InFlight(entityType schema.EntityType, id string) bool {
	return d.coordinator.InFlight(entityType, id)
}
