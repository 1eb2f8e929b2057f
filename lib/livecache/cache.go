// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package livecache

import (
	"slices"
	"sync"

	"github.com/bureau-foundation/helpdesk/lib/schema"
)

// Change describes one slot write, delivered on [Cache.Subscribe]
// channels. Slot is the state at the end of the turn that wrote it;
// changes arrive in turn order, but a later turn may already have
// replaced it by the time the consumer reads the change.
type Change struct {
	Key     SlotKey
	Slot    Slot
	Removed bool
}

// Cache is the shared store of slots, deleted-id sets, and pending
// mutation records. Reads are safe from any goroutine and always see
// fully applied state. Writes happen only through a [Coordinator] or a
// [Reconciler] bound to this cache.
type Cache struct {
	mutex       sync.RWMutex
	slots       map[SlotKey]Slot
	deleted     map[schema.EntityType]map[string]struct{}
	pending     []*PendingMutation
	sequence    uint64

	// revisions records, per slot, the value of writes at the slot's
	// last write. Refetch uses it to detect writes made while a fetch
	// was in flight.
	revisions map[SlotKey]uint64
	writes    uint64

	// dispatchMutex orders change delivery. It is taken before mutex
	// is released, so lock order is mutex then dispatchMutex.
	dispatchMutex  sync.Mutex
	subscribers    map[uint64]chan Change
	nextSubscriber uint64
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{
		slots:       make(map[SlotKey]Slot),
		revisions:   make(map[SlotKey]uint64),
		deleted:     make(map[schema.EntityType]map[string]struct{}),
		subscribers: make(map[uint64]chan Change),
	}
}

// Get returns the slot for key.
func (c *Cache) Get(key SlotKey) (Slot, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	slot, ok := c.slots[key]
	return slot, ok
}

// Keys returns the keys of every slot of the given type, sorted.
func (c *Cache) Keys(entityType schema.EntityType) []SlotKey {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	var keys []SlotKey
	for key := range c.slots {
		if key.Type == entityType {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, func(a, b SlotKey) int {
		switch {
		case a.Scope < b.Scope:
			return -1
		case a.Scope > b.Scope:
			return 1
		}
		return 0
	})
	return keys
}

// KeysHolding returns the keys of every slot of the type that shows
// the entity, sorted. A single slot scoped to the id counts even when
// tombstoned.
func (c *Cache) KeysHolding(entityType schema.EntityType, id string) []SlotKey {
	return c.keysWhere(entityType, func(slot Slot) bool {
		return slot.Holds(id) || (!slot.IsList() && slot.Scope.EntityID == id)
	})
}

// ListKeys returns the keys of every list slot of the type, sorted.
func (c *Cache) ListKeys(entityType schema.EntityType) []SlotKey {
	return c.keysWhere(entityType, Slot.IsList)
}

func (c *Cache) keysWhere(entityType schema.EntityType, keep func(Slot) bool) []SlotKey {
	var keys []SlotKey
	for _, key := range c.Keys(entityType) {
		if slot, ok := c.Get(key); ok && keep(slot) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Entity returns the cached copy of an entity, preferring its
// single-entity slot over list items.
func (c *Cache) Entity(entityType schema.EntityType, id string) (schema.Entity, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if slot, ok := c.slots[KeyFor(entityType, Single(id))]; ok && slot.Entity != nil {
		return *slot.Entity, true
	}
	for key, slot := range c.slots {
		if key.Type != entityType || !slot.IsList() {
			continue
		}
		if index := slot.IndexOf(id); index >= 0 {
			return slot.Items[index], true
		}
	}
	return schema.Entity{}, false
}

// Deleted reports whether id is in the deleted-id set for its type.
func (c *Cache) Deleted(entityType schema.EntityType, id string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	_, ok := c.deleted[entityType][id]
	return ok
}

// Subscribe returns a channel that receives a Change for every slot
// write. Delivery never blocks a writer: when the buffer is full the
// change is dropped and the consumer picks up current state on its next
// read. cancel stops delivery and closes the channel.
func (c *Cache) Subscribe() (changes <-chan Change, cancel func()) {
	c.dispatchMutex.Lock()
	defer c.dispatchMutex.Unlock()
	id := c.nextSubscriber
	c.nextSubscriber++
	channel := make(chan Change, 64)
	c.subscribers[id] = channel

	var once sync.Once
	return channel, func() {
		once.Do(func() {
			c.dispatchMutex.Lock()
			defer c.dispatchMutex.Unlock()
			delete(c.subscribers, id)
			close(channel)
		})
	}
}

// Drop removes a slot, typically when the view that loaded it goes
// away. Pending mutations that targeted it will not recreate it.
func (c *Cache) Drop(key SlotKey) {
	c.update(func(t *turn) {
		if _, ok := t.cache.slots[key]; ok {
			delete(t.cache.slots, key)
			delete(t.cache.revisions, key)
			t.removed = append(t.removed, key)
		}
	})
}

// update runs fn as one write turn and dispatches the resulting
// changes after releasing the lock.
func (c *Cache) update(fn func(t *turn)) {
	c.mutex.Lock()
	t := &turn{cache: c, written: make(map[SlotKey]struct{})}
	fn(t)
	changes := make([]Change, 0, len(t.written)+len(t.removed))
	for key := range t.written {
		changes = append(changes, Change{Key: key, Slot: c.slots[key]})
	}
	for _, key := range t.removed {
		changes = append(changes, Change{Key: key, Removed: true})
	}
	c.dispatchMutex.Lock()
	c.mutex.Unlock()
	defer c.dispatchMutex.Unlock()

	for _, change := range changes {
		for _, subscriber := range c.subscribers {
			select {
			case subscriber <- change:
			default:
			}
		}
	}
}

// turn is the write view of the cache for one critical section.
type turn struct {
	cache   *Cache
	written map[SlotKey]struct{}
	removed []SlotKey
}

func (t *turn) put(slot Slot) {
	t.cache.slots[slot.Key] = slot
	t.cache.writes++
	t.cache.revisions[slot.Key] = t.cache.writes
	t.written[slot.Key] = struct{}{}
}

func (t *turn) isDeleted(entityType schema.EntityType, id string) bool {
	_, ok := t.cache.deleted[entityType][id]
	return ok
}

func (t *turn) markDeleted(entityType schema.EntityType, id string) {
	set := t.cache.deleted[entityType]
	if set == nil {
		set = make(map[string]struct{})
		t.cache.deleted[entityType] = set
	}
	set[id] = struct{}{}
}

func (t *turn) unmarkDeleted(entityType schema.EntityType, id string) {
	delete(t.cache.deleted[entityType], id)
}

// applyLive applies fn to every live slot of the type.
func (t *turn) applyLive(entityType schema.EntityType, fn func(Slot) (Slot, bool)) {
	for key, slot := range t.cache.slots {
		if key.Type != entityType {
			continue
		}
		if updated, changed := fn(slot); changed {
			t.put(updated)
		}
	}
}

// rebase applies fn to every pending snapshot of the type, so that a
// later rollback restores a state that includes this write.
func (t *turn) rebase(entityType schema.EntityType, fn func(Slot) (Slot, bool)) {
	for _, record := range t.cache.pending {
		for key, snap := range record.snapshots {
			if key.Type != entityType || !snap.present {
				continue
			}
			if updated, changed := fn(snap.slot); changed {
				record.snapshots[key] = snapshot{slot: updated, present: true}
			}
		}
	}
}

// applyAll is applyLive followed by rebase: the shape of every write
// that does not originate from a pending mutation.
func (t *turn) applyAll(entityType schema.EntityType, fn func(Slot) (Slot, bool)) {
	t.applyLive(entityType, fn)
	t.rebase(entityType, fn)
}

// hydrate stores an authoritative slot. Pending transforms targeting
// the key are replayed on top in order, and each record's snapshot
// becomes the state just before its own transform.
func (t *turn) hydrate(slot Slot) {
	current := slot
	for _, record := range t.cache.pending {
		if _, targeted := record.snapshots[slot.Key]; !targeted {
			continue
		}
		record.snapshots[slot.Key] = snapshot{slot: current, present: true}
		if record.transform != nil {
			current = record.transform(current)
		}
	}
	t.put(current)
}

func (t *turn) findApplied(entityType schema.EntityType, id string) *PendingMutation {
	for _, record := range t.cache.pending {
		if record.Status == StatusApplied && record.Mutation.Type == entityType && record.Mutation.EntityID == id {
			return record
		}
	}
	return nil
}

// begin creates a pending record: snapshot, optimistic apply, and the
// deleted-id entry for deletes.
func (t *turn) begin(mutation Mutation, transform Transform, keys []SlotKey) *PendingMutation {
	t.cache.sequence++
	record := &PendingMutation{
		Mutation:  mutation,
		Keys:      uniqueKeys(keys),
		Status:    StatusApplied,
		sequence:  t.cache.sequence,
		transform: transform,
		snapshots: make(map[SlotKey]snapshot, len(keys)),
	}
	for _, key := range record.Keys {
		slot, present := t.cache.slots[key]
		record.snapshots[key] = snapshot{slot: slot, present: present}
		if present && transform != nil {
			t.put(transform(slot))
		}
	}
	if mutation.Operation == OperationDelete && !t.isDeleted(mutation.Type, mutation.EntityID) {
		t.markDeleted(mutation.Type, mutation.EntityID)
		record.addedDeleted = true
	}
	t.cache.pending = append(t.cache.pending, record)
	return record
}

// finish removes a record from the pending list with its final status.
func (t *turn) finish(record *PendingMutation, status Status) {
	record.Status = status
	t.cache.pending = slices.DeleteFunc(t.cache.pending, func(candidate *PendingMutation) bool {
		return candidate == record
	})
}

func uniqueKeys(keys []SlotKey) []SlotKey {
	seen := make(map[SlotKey]struct{}, len(keys))
	unique := make([]SlotKey, 0, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}
	return unique
}
