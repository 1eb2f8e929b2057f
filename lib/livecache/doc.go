// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package livecache keeps a client-side view of helpdesk entities
// consistent while local optimistic writes, realtime change events,
// and paginated reads all land on the same state.
//
// # Slots
//
// The [Cache] holds [Slot] values keyed by [SlotKey]: an entity type
// plus the canonical encoding of the [Scope] that produced the slot.
// A scope with an EntityID is a single-entity slot; any other scope is
// a list slot holding an ordered page of items and a total count.
// Slots are values. Every change produces a new Slot; nothing modifies
// one in place, so a copy kept as a snapshot stays valid.
//
// # Writers
//
// Exactly two components write to the cache:
//
//   - [Coordinator] applies local mutations: it snapshots the targeted
//     slots, applies an optimistic [Transform], performs the remote
//     write, and either confirms (merging the server's entity and
//     recording a self-origin marker) or restores the snapshots.
//     Only one mutation per entity may be in flight; a second one is
//     suppressed without a network call.
//   - [Reconciler] applies realtime [schema.ChangeEvent]s and
//     authoritative reads ([Reconciler.Hydrate]). Before merging an
//     event it asks the [Suppressor] whether the event is the echo of
//     a confirmed local write, and consults the per-type deleted-id
//     set so a late update never resurrects a deleted entity.
//
// All writes run inside a single critical section of the Cache (one
// "turn"); the only blocking call, the remote write, happens outside
// it. While a mutation is in flight, every other write that lands
// (foreign events, other confirmations, hydration) is applied to its
// snapshots too, so a rollback restores the state the server actually
// has rather than discarding someone else's change.
//
// # Pagination
//
// Whether a created entity belongs in a list slot is decided by a
// [PagePolicy]. [FirstPagePolicy] inserts only on the first page under
// the default sort and invalidates slots whose page or filters it
// cannot verify; [TruncatingPolicy] additionally keeps the page at its
// declared size.
//
// Consumers observe changes through [Cache.Subscribe].
package livecache
