// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package livecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bureau-foundation/helpdesk/lib/api"
	"github.com/bureau-foundation/helpdesk/lib/schema"
)

// Operation is the kind of remote write a mutation performs.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// changeKind maps an operation to the realtime event kind its echo
// carries.
func (o Operation) changeKind() schema.ChangeKind {
	switch o {
	case OperationCreate:
		return schema.KindCreated
	case OperationDelete:
		return schema.KindDeleted
	}
	return schema.KindUpdated
}

func (o Operation) defaultMethod() string {
	switch o {
	case OperationCreate:
		return http.MethodPost
	case OperationDelete:
		return http.MethodDelete
	}
	return http.MethodPatch
}

// Mutation is one remote write.
type Mutation struct {
	Operation Operation
	Type      schema.EntityType

	// EntityID is the entity being written. Creates use a provisional
	// id from [NewProvisionalID], replaced by the server's id on
	// confirmation.
	EntityID string

	// Method defaults to POST, PATCH, or DELETE by operation.
	Method   string
	Resource string
	Payload  any
}

func (m Mutation) method() string {
	if m.Method != "" {
		return m.Method
	}
	return m.Operation.defaultMethod()
}

func (m Mutation) validate() error {
	switch m.Operation {
	case OperationCreate, OperationUpdate, OperationDelete:
	default:
		return fmt.Errorf("livecache: unknown operation %q", m.Operation)
	}
	if !m.Type.Valid() {
		return fmt.Errorf("livecache: unknown entity type %q", m.Type)
	}
	if m.EntityID == "" {
		return errors.New("livecache: mutation has no entity id")
	}
	if m.Resource == "" {
		return errors.New("livecache: mutation has no resource")
	}
	return nil
}

// Status is the lifecycle state of a pending mutation.
type Status int

const (
	StatusApplied Status = iota + 1
	StatusConfirmed
	StatusRolledBack
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusConfirmed:
		return "confirmed"
	case StatusRolledBack:
		return "rolled_back"
	}
	return "none"
}

// PendingMutation is the record of one in-flight mutation. It lives in
// the cache from the optimistic apply until Confirmed or RolledBack.
type PendingMutation struct {
	Mutation Mutation
	Keys     []SlotKey
	Status   Status

	sequence     uint64
	transform    Transform
	snapshots    map[SlotKey]snapshot
	addedDeleted bool
}

type snapshot struct {
	slot    Slot
	present bool
}

// Result reports how Apply ended.
type Result struct {
	// Status is StatusConfirmed or StatusRolledBack, or zero when
	// Suppressed.
	Status Status

	// Entity is the server's authoritative entity, when the write
	// returned one.
	Entity *schema.Entity

	// Suppressed is set when another mutation for the same entity
	// was still in flight. Nothing was applied or sent.
	Suppressed bool
}

// MutationError is returned by Apply when the remote write failed and
// the optimistic change was rolled back.
type MutationError struct {
	Mutation Mutation

	// Message is the human-readable text for the user.
	Message string

	Err error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("livecache: %s %s %s rolled back: %v",
		e.Mutation.Operation, e.Mutation.Type, e.Mutation.EntityID, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// Requester performs remote writes. [*api.Client] implements it.
type Requester interface {
	Request(ctx context.Context, method, resource string, payload any) (api.Response, error)
}

// Notifier is told about every rolled-back mutation, for a toast or
// status line.
type Notifier func(failure *MutationError)

// CoordinatorConfig holds the dependencies of a Coordinator.
type CoordinatorConfig struct {
	Requester  Requester
	Suppressor *Suppressor
	Notifier   Notifier
	Logger     *slog.Logger
}

// Coordinator applies local mutations optimistically.
type Coordinator struct {
	cache      *Cache
	requester  Requester
	suppressor *Suppressor
	notifier   Notifier
	logger     *slog.Logger
}

// NewCoordinator creates a Coordinator writing to cache.
func NewCoordinator(cache *Cache, config CoordinatorConfig) *Coordinator {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	suppressor := config.Suppressor
	if suppressor == nil {
		suppressor = NewSuppressor(nil, 0)
	}
	return &Coordinator{
		cache:      cache,
		requester:  config.Requester,
		suppressor: suppressor,
		notifier:   config.Notifier,
		logger:     logger,
	}
}

// InFlight reports whether a mutation for the entity is applied but
// not yet resolved. UIs use it as the edit-in-progress indicator.
func (c *Coordinator) InFlight(entityType schema.EntityType, id string) bool {
	c.cache.mutex.RLock()
	defer c.cache.mutex.RUnlock()
	for _, record := range c.cache.pending {
		if record.Status == StatusApplied && record.Mutation.Type == entityType && record.Mutation.EntityID == id {
			return true
		}
	}
	return false
}

// Pending returns the unresolved mutations in the order they were
// applied.
func (c *Coordinator) Pending() []Mutation {
	c.cache.mutex.RLock()
	defer c.cache.mutex.RUnlock()
	mutations := make([]Mutation, len(c.cache.pending))
	for index, record := range c.cache.pending {
		mutations[index] = record.Mutation
	}
	return mutations
}

// Apply snapshots the slots named by keys, applies transform to them
// immediately, and performs the remote write. On success the server's
// entity is merged and a self-origin marker recorded; on failure every
// targeted slot is restored and a *MutationError returned.
//
// If a mutation for the same entity is already in flight, Apply
// returns a Suppressed result and a nil error without touching the
// cache or the network. The write itself is not cancellable once
// issued; ctx bounds only the HTTP request.
func (c *Coordinator) Apply(ctx context.Context, mutation Mutation, transform Transform, keys []SlotKey) (Result, error) {
	if err := mutation.validate(); err != nil {
		return Result{}, err
	}

	var record *PendingMutation
	c.cache.update(func(t *turn) {
		if t.findApplied(mutation.Type, mutation.EntityID) != nil {
			return
		}
		record = t.begin(mutation, transform, keys)
	})
	if record == nil {
		c.logger.Debug("mutation suppressed: another write in flight",
			"entity_type", mutation.Type,
			"entity_id", mutation.EntityID,
			"operation", mutation.Operation,
		)
		return Result{Suppressed: true}, nil
	}

	response, err := c.requester.Request(ctx, mutation.method(), mutation.Resource, mutation.Payload)
	if err != nil {
		return c.rollback(record, err)
	}
	return c.confirm(record, response)
}

func (c *Coordinator) confirm(record *PendingMutation, response api.Response) (Result, error) {
	mutation := record.Mutation

	var server *schema.Entity
	if response.Entity != nil {
		entity, err := schema.NewEntity(mutation.Type, response.Entity)
		if err != nil {
			c.logger.Warn("ignoring unusable entity in write response",
				"entity_type", mutation.Type,
				"entity_id", mutation.EntityID,
				"error", err,
			)
		} else {
			server = &entity
		}
	}

	markerID := mutation.EntityID
	if server != nil {
		markerID = server.ID
	}
	fingerprint, fingerprintErr := c.fingerprint(mutation, server)
	merge := confirmMerge(mutation, server)

	c.cache.update(func(t *turn) {
		t.finish(record, StatusConfirmed)
		t.applyLive(mutation.Type, merge)

		for _, other := range t.cache.pending {
			for key, snap := range other.snapshots {
				if !snap.present {
					continue
				}
				slot := snap.slot
				// Records applied before this one took their snapshots
				// without this mutation's transform.
				if other.sequence < record.sequence && record.transform != nil {
					if _, targeted := record.snapshots[key]; targeted {
						slot = record.transform(slot)
					}
				}
				if key.Type == mutation.Type {
					slot, _ = merge(slot)
				}
				other.snapshots[key] = snapshot{slot: slot, present: true}
			}
		}

		if fingerprintErr == nil {
			c.suppressor.MarkSelfOrigin(mutation.Type, markerID, fingerprint)
		}
	})

	if fingerprintErr != nil {
		c.logger.Warn("confirmed mutation has no self-origin marker; its echo will be merged",
			"entity_type", mutation.Type,
			"entity_id", markerID,
			"error", fingerprintErr,
		)
	}
	c.logger.Debug("mutation confirmed",
		"entity_type", mutation.Type,
		"entity_id", markerID,
		"operation", mutation.Operation,
	)
	return Result{Status: StatusConfirmed, Entity: server}, nil
}

// fingerprint describes the confirmed change as its echo will carry it:
// the payload's field names, with values as the server stored them.
// The server's updated_at is included when it sent one: the echo
// repeats that stamp, while a later change that happens to resend the
// same values carries a newer one.
func (c *Coordinator) fingerprint(mutation Mutation, server *schema.Entity) (Fingerprint, error) {
	kind := mutation.Operation.changeKind()
	if mutation.Operation == OperationDelete || mutation.Payload == nil {
		return NewFingerprint(kind, schema.Fields{})
	}
	payload, err := schema.Normalize(mutation.Payload)
	if err != nil {
		return Fingerprint{}, err
	}
	if server != nil {
		for name := range payload {
			if value, ok := server.Fields[name]; ok {
				payload[name] = value
			}
		}
		if stamp, ok := server.Fields["updated_at"]; ok {
			payload["updated_at"] = stamp
		}
	}
	return NewFingerprint(kind, payload)
}

// confirmMerge returns the write that folds the server's response into
// a slot. Only the mutated entity is touched.
func confirmMerge(mutation Mutation, server *schema.Entity) func(Slot) (Slot, bool) {
	if server == nil || mutation.Operation == OperationDelete {
		return func(slot Slot) (Slot, bool) { return slot, false }
	}
	if mutation.Operation == OperationCreate {
		return func(slot Slot) (Slot, bool) {
			return adoptServerID(slot, mutation.EntityID, *server)
		}
	}
	return func(slot Slot) (Slot, bool) {
		return mergeInto(slot, server.ID, server.Fields)
	}
}

func (c *Coordinator) rollback(record *PendingMutation, cause error) (Result, error) {
	mutation := record.Mutation

	c.cache.update(func(t *turn) {
		t.finish(record, StatusRolledBack)
		for _, key := range record.Keys {
			snap := record.snapshots[key]
			if _, live := t.cache.slots[key]; !live || !snap.present {
				continue
			}
			// Later mutations keep their optimistic state on top of
			// the restored snapshot, and their own snapshots lose
			// this one's transform.
			current := snap.slot
			for _, later := range t.cache.pending {
				if later.sequence < record.sequence {
					continue
				}
				if _, targeted := later.snapshots[key]; !targeted {
					continue
				}
				later.snapshots[key] = snapshot{slot: current, present: true}
				if later.transform != nil {
					current = later.transform(current)
				}
			}
			t.put(current)
		}
		if record.addedDeleted {
			t.unmarkDeleted(mutation.Type, mutation.EntityID)
		}
	})

	failure := &MutationError{
		Mutation: mutation,
		Message:  api.Message(cause),
		Err:      cause,
	}
	c.logger.Warn("mutation rolled back",
		"entity_type", mutation.Type,
		"entity_id", mutation.EntityID,
		"operation", mutation.Operation,
		"error", cause,
	)
	if c.notifier != nil {
		c.notifier(failure)
	}
	return Result{Status: StatusRolledBack}, failure
}
