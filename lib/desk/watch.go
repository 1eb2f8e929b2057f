// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package desk

import (
	"context"
	"errors"

	"github.com/bureau-foundation/helpdesk/lib/livecache"
	"github.com/bureau-foundation/helpdesk/lib/realtime"
	"github.com/bureau-foundation/helpdesk/lib/schema"
)

// Watch is a set of realtime subscriptions feeding the cache. Close it
// when the view goes away.
type Watch struct {
	subscriptions []*realtime.Subscription
}

// Close unbinds every subscription of the watch. Safe to call more
// than once.
func (w *Watch) Close() {
	for _, subscription := range w.subscriptions {
		subscription.Close()
	}
}

// WatchTicketList applies ticket events from the all-tickets channel.
// After a reconnect the list slot is refetched.
func (d *Desk) WatchTicketList(key livecache.SlotKey) *Watch {
	subscription := d.manager.Bind(schema.TicketsChannel, schema.EventTicketChanged,
		d.handler(schema.TypeTicket),
		realtime.Options{OnResync: d.resyncer(func() []livecache.SlotKey { return []livecache.SlotKey{key} })},
	)
	return &Watch{subscriptions: []*realtime.Subscription{subscription}}
}

// WatchTicket applies events for one ticket: its field updates, its
// comments, and its audit log. After a reconnect every cached slot
// for the ticket is refetched. An empty id binds nothing until the
// caller watches again with a real id.
func (d *Desk) WatchTicket(ticketID string) *Watch {
	ticketChannel := schema.TicketChannel(ticketID)
	return &Watch{subscriptions: []*realtime.Subscription{
		d.manager.Bind(ticketChannel, schema.EventTicketChanged,
			d.handler(schema.TypeTicket),
			realtime.Options{OnResync: d.resyncer(func() []livecache.SlotKey { return d.ticketKeys(ticketID) })},
		),
		d.manager.Bind(ticketChannel, schema.EventCommentChanged,
			d.handler(schema.TypeComment), realtime.Options{}),
		d.manager.Bind(schema.AuditLogChannel(ticketID), schema.EventAuditLogChanged,
			d.handler(schema.TypeAuditLog), realtime.Options{}),
	}}
}

func (d *Desk) handler(entityType schema.EntityType) realtime.Handler {
	return func(payload []byte) {
		d.reconciler.HandlePayload(entityType, payload)
	}
}

// resyncer refetches the slots named by keys. It runs on the
// transport's goroutine, so events received after the reconnect apply
// on top of the refetched state.
func (d *Desk) resyncer(keys func() []livecache.SlotKey) func() {
	return func() {
		targets := keys()
		if len(targets) == 0 {
			return
		}
		d.reconciler.Invalidate(targets...)
		ctx, cancel := context.WithTimeout(context.Background(), defaultResyncTimeout)
		defer cancel()
		if err := d.reconciler.Refetch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Warn("resync after reconnect incomplete", "error", err)
		}
	}
}

// ticketKeys returns every cached slot about one ticket: slots showing
// the ticket, its comment thread, and its audit-log pages.
func (d *Desk) ticketKeys(ticketID string) []livecache.SlotKey {
	keys := d.cache.KeysHolding(schema.TypeTicket, ticketID)
	for _, entityType := range []schema.EntityType{schema.TypeComment, schema.TypeAuditLog} {
		for _, key := range d.cache.ListKeys(entityType) {
			if slot, ok := d.cache.Get(key); ok && slot.Scope.Filters[filterTicketID] == ticketID {
				keys = append(keys, key)
			}
		}
	}
	return keys
}
