// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package livecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/helpdesk/lib/api"
	"github.com/bureau-foundation/helpdesk/lib/schema"
)

// Outcome is what the reconciler did with one event.
type Outcome int

const (
	// OutcomeMerged: the event was applied as a foreign change.
	OutcomeMerged Outcome = iota + 1
	// OutcomeEcho: the event matched a self-origin marker.
	OutcomeEcho
	// OutcomeDeletedID: the id is in the deleted-id set. For a delete
	// event this confirms a local delete; for anything else it is a
	// late event that must not resurrect the entity.
	OutcomeDeletedID
	// OutcomeMalformed: the payload could not be decoded.
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMerged:
		return "merged"
	case OutcomeEcho:
		return "echo"
	case OutcomeDeletedID:
		return "deleted_id"
	case OutcomeMalformed:
		return "malformed"
	}
	return "unknown"
}

// Fetcher reads the authoritative contents of a slot. Used to refetch
// stale slots and to resync after a realtime reconnect.
type Fetcher func(ctx context.Context, key SlotKey, scope Scope) (api.Response, error)

// ReconcilerConfig holds the dependencies of a Reconciler.
type ReconcilerConfig struct {
	Suppressor *Suppressor

	// Policy decides list placement of created entities. Default:
	// FirstPagePolicy with the server's default sort.
	Policy PagePolicy

	// Fetcher is required for Refetch and Resync.
	Fetcher Fetcher

	Logger *slog.Logger
}

// Reconciler merges realtime events and authoritative reads into the
// cache.
type Reconciler struct {
	cache      *Cache
	suppressor *Suppressor
	policy     PagePolicy
	fetcher    Fetcher
	logger     *slog.Logger
}

// NewReconciler creates a Reconciler writing to cache. Share the
// Suppressor with the Coordinator writing to the same cache.
func NewReconciler(cache *Cache, config ReconcilerConfig) *Reconciler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := config.Policy
	if policy == nil {
		policy = FirstPagePolicy{}
	}
	suppressor := config.Suppressor
	if suppressor == nil {
		suppressor = NewSuppressor(nil, 0)
	}
	return &Reconciler{
		cache:      cache,
		suppressor: suppressor,
		policy:     policy,
		fetcher:    config.Fetcher,
		logger:     logger,
	}
}

// Policy returns the placement policy, for building optimistic create
// transforms that agree with event handling.
func (r *Reconciler) Policy() PagePolicy {
	return r.policy
}

// HandlePayload decodes a raw realtime payload and applies it.
// Malformed payloads are logged and dropped; this never panics and
// never returns an error, so one bad event cannot break a subscription.
func (r *Reconciler) HandlePayload(entityType schema.EntityType, payload []byte) Outcome {
	event, err := schema.ParseChangeEvent(payload)
	if err != nil {
		r.logger.Warn("dropping malformed realtime event",
			"entity_type", entityType,
			"error", err,
			"payload_bytes", len(payload),
		)
		return OutcomeMalformed
	}
	return r.HandleEvent(entityType, event)
}

// HandleEvent applies one decoded change event.
func (r *Reconciler) HandleEvent(entityType schema.EntityType, event schema.ChangeEvent) Outcome {
	var outcome Outcome
	r.cache.update(func(t *turn) {
		switch event.Kind {
		case schema.KindUpdated:
			outcome = r.updated(t, entityType, event)
		case schema.KindCreated:
			outcome = r.created(t, entityType, event)
		case schema.KindDeleted:
			outcome = r.deleted(t, entityType, event)
		default:
			outcome = OutcomeMalformed
		}
	})
	r.logger.Debug("realtime event reconciled",
		"entity_type", entityType,
		"entity_id", event.ID,
		"kind", event.Kind,
		"outcome", outcome,
	)
	return outcome
}

func (r *Reconciler) updated(t *turn, entityType schema.EntityType, event schema.ChangeEvent) Outcome {
	if r.suppressor.ConsumeIfSelfOrigin(entityType, event.ID, schema.KindUpdated, event.Entity) {
		return OutcomeEcho
	}
	if t.isDeleted(entityType, event.ID) {
		return OutcomeDeletedID
	}
	t.applyAll(entityType, func(slot Slot) (Slot, bool) {
		return mergeInto(slot, event.ID, event.Entity)
	})
	return OutcomeMerged
}

func (r *Reconciler) created(t *turn, entityType schema.EntityType, event schema.ChangeEvent) Outcome {
	if r.suppressor.ConsumeIfSelfOrigin(entityType, event.ID, schema.KindCreated, event.Entity) {
		return OutcomeEcho
	}
	if t.isDeleted(entityType, event.ID) {
		return OutcomeDeletedID
	}
	entity, err := schema.NewEntity(entityType, event.Entity)
	if err != nil {
		r.logger.Warn("dropping created event with unusable entity",
			"entity_type", entityType,
			"entity_id", event.ID,
			"error", err,
		)
		return OutcomeMalformed
	}
	t.applyAll(entityType, func(slot Slot) (Slot, bool) {
		return r.policy.Insert(slot, entity)
	})
	return OutcomeMerged
}

func (r *Reconciler) deleted(t *turn, entityType schema.EntityType, event schema.ChangeEvent) Outcome {
	remove := func(slot Slot) (Slot, bool) {
		return removeFrom(slot, event.ID)
	}

	if t.isDeleted(entityType, event.ID) {
		// The live slots already lack the entity. Snapshots may still
		// hold it (our own delete is in flight); the server no longer
		// does, so a rollback must not bring it back.
		t.unmarkDeleted(entityType, event.ID)
		if record := t.findApplied(entityType, event.ID); record != nil {
			record.addedDeleted = false
		}
		r.suppressor.ConsumeIfSelfOrigin(entityType, event.ID, schema.KindDeleted, event.Entity)
		t.rebase(entityType, remove)
		return OutcomeDeletedID
	}
	if r.suppressor.ConsumeIfSelfOrigin(entityType, event.ID, schema.KindDeleted, event.Entity) {
		return OutcomeEcho
	}

	t.applyAll(entityType, remove)
	// A late duplicate of this delete is then discarded rather than
	// decrementing totals again.
	t.markDeleted(entityType, event.ID)
	return OutcomeMerged
}

// Hydrate stores the result of an authoritative read for scope and
// returns the slot key. Pending optimistic transforms for the key are
// replayed on top. List items the local actor has deleted (and whose
// delete is no longer in flight) are left out.
func (r *Reconciler) Hydrate(entityType schema.EntityType, scope Scope, response api.Response) (SlotKey, error) {
	key, _, err := r.hydrate(entityType, scope, response, nil)
	return key, err
}

// hydrate stores response as the slot for scope. With a non-nil
// revision the store happens only if the slot still exists and has not
// been written since that revision was read; stored reports whether it
// did.
func (r *Reconciler) hydrate(entityType schema.EntityType, scope Scope, response api.Response, revision *uint64) (key SlotKey, stored bool, err error) {
	slot := NewSlot(entityType, scope)

	var items []schema.Entity
	var single *schema.Entity
	if scope.IsSingle() {
		if response.Entity == nil {
			return slot.Key, false, fmt.Errorf("livecache: %s response carries no entity", slot.Key)
		}
		entity, err := schema.NewEntity(entityType, response.Entity)
		if err != nil {
			return slot.Key, false, fmt.Errorf("livecache: hydrating %s: %w", slot.Key, err)
		}
		single = &entity
	} else {
		items = make([]schema.Entity, 0, len(response.Items))
		for _, fields := range response.Items {
			entity, err := schema.NewEntity(entityType, fields)
			if err != nil {
				return slot.Key, false, fmt.Errorf("livecache: hydrating %s: %w", slot.Key, err)
			}
			items = append(items, entity)
		}
	}

	r.cache.update(func(t *turn) {
		if revision != nil {
			if current, ok := t.cache.revisions[slot.Key]; !ok || current != *revision {
				return
			}
		}
		stored = true
		if single != nil {
			slot.Entity = single
			if t.isDeleted(entityType, single.ID) && t.findApplied(entityType, single.ID) == nil {
				slot.Entity = nil
				slot.Tombstone = true
			}
			t.hydrate(slot)
			return
		}
		total := max(response.Total, len(items))
		kept := items[:0:0]
		for _, item := range items {
			if t.isDeleted(entityType, item.ID) && t.findApplied(entityType, item.ID) == nil {
				total--
				continue
			}
			kept = append(kept, item)
		}
		slot.Items = kept
		slot.Total = total
		t.hydrate(slot)
	})
	return slot.Key, stored, nil
}

// Invalidate marks the given slots stale, or every slot when no key is
// given.
func (r *Reconciler) Invalidate(keys ...SlotKey) {
	wanted := make(map[SlotKey]bool, len(keys))
	for _, key := range keys {
		wanted[key] = true
	}
	markStale := func(slot Slot) (Slot, bool) {
		if slot.Stale || (len(wanted) > 0 && !wanted[slot.Key]) {
			return slot, false
		}
		slot.Stale = true
		return slot, true
	}
	r.cache.update(func(t *turn) {
		for _, entityType := range []schema.EntityType{schema.TypeTicket, schema.TypeComment, schema.TypeAuditLog} {
			t.applyAll(entityType, markStale)
		}
	})
}

// Refetch rereads every stale slot through the Fetcher. Failures are
// logged and joined; slots that failed stay stale. A slot written while
// its fetch was in flight also stays stale rather than being replaced
// by a response that may predate the write.
func (r *Reconciler) Refetch(ctx context.Context) error {
	if r.fetcher == nil {
		return errors.New("livecache: no fetcher configured")
	}

	type staleSlot struct {
		slot     Slot
		revision uint64
	}
	r.cache.mutex.RLock()
	var stale []staleSlot
	for key, slot := range r.cache.slots {
		if slot.Stale {
			stale = append(stale, staleSlot{slot, r.cache.revisions[key]})
		}
	}
	r.cache.mutex.RUnlock()

	var errs []error
	for _, entry := range stale {
		slot := entry.slot
		response, err := r.fetcher(ctx, slot.Key, slot.Scope)
		if err != nil {
			r.logger.Warn("refetch failed",
				"slot", slot.Key.String(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("refetching %s: %w", slot.Key, err))
			continue
		}
		_, stored, err := r.hydrate(slot.Key.Type, slot.Scope, response, &entry.revision)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !stored {
			// The response may predate that write; storing it could
			// undo an event. The slot stays stale for the next refetch.
			r.logger.Info("slot written during refetch; left stale",
				"slot", slot.Key.String(),
			)
		}
	}
	return errors.Join(errs...)
}

// Resync marks every slot stale and refetches. Call it after a
// realtime reconnect: events sent while disconnected are lost.
func (r *Reconciler) Resync(ctx context.Context) error {
	r.Invalidate()
	return r.Refetch(ctx)
}
