// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package livecache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/helpdesk/lib/api"
	"github.com/bureau-foundation/helpdesk/lib/clock"
	"github.com/bureau-foundation/helpdesk/lib/schema"
	"github.com/bureau-foundation/helpdesk/lib/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type requestCall struct {
	Method   string
	Resource string
	Payload  any
}

// scriptedRequester answers writes through respond. When hold is set,
// each request announces itself on started and blocks until hold
// yields, so tests can interleave events with an in-flight write.
type scriptedRequester struct {
	mutex   sync.Mutex
	calls   []requestCall
	respond func(call requestCall) (api.Response, error)
	hold    chan struct{}
	started chan requestCall
}

func (r *scriptedRequester) Request(ctx context.Context, method, resource string, payload any) (api.Response, error) {
	call := requestCall{Method: method, Resource: resource, Payload: payload}
	r.mutex.Lock()
	r.calls = append(r.calls, call)
	hold, started := r.hold, r.started
	r.mutex.Unlock()

	if started != nil {
		started <- call
	}
	if hold != nil {
		<-hold
	}
	// Read after the hold so tests can script the answer while the
	// request is blocked.
	r.mutex.Lock()
	respond := r.respond
	r.mutex.Unlock()
	if respond == nil {
		return api.Response{}, nil
	}
	return respond(call)
}

func (r *scriptedRequester) callCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.calls)
}

type harness struct {
	cache       *Cache
	clock       *clock.FakeClock
	suppressor  *Suppressor
	requester   *scriptedRequester
	coordinator *Coordinator
	reconciler  *Reconciler
	failures    []*MutationError
	fetches     map[SlotKey]api.Response
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		cache:     NewCache(),
		clock:     clock.Fake(time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)),
		requester: &scriptedRequester{},
		fetches:   make(map[SlotKey]api.Response),
	}
	h.suppressor = NewSuppressor(h.clock, 10*time.Second)
	h.coordinator = NewCoordinator(h.cache, CoordinatorConfig{
		Requester:  h.requester,
		Suppressor: h.suppressor,
		Notifier:   func(failure *MutationError) { h.failures = append(h.failures, failure) },
		Logger:     quietLogger(),
	})
	h.reconciler = NewReconciler(h.cache, ReconcilerConfig{
		Suppressor: h.suppressor,
		Fetcher: func(ctx context.Context, key SlotKey, scope Scope) (api.Response, error) {
			response, ok := h.fetches[key]
			if !ok {
				return api.Response{}, fmt.Errorf("no fixture for %s", key)
			}
			return response, nil
		},
		Logger: quietLogger(),
	})
	return h
}

func ticketFields(id, status string, extra ...any) schema.Fields {
	fields := schema.Fields{"id": id, "subject": "Ticket " + id, "status": status, "updated_at": "t0"}
	for index := 0; index+1 < len(extra); index += 2 {
		fields[extra[index].(string)] = extra[index+1]
	}
	return fields
}

func mustEntity(t *testing.T, entityType schema.EntityType, fields schema.Fields) schema.Entity {
	t.Helper()
	entity, err := schema.NewEntity(entityType, fields)
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}
	return entity
}

// hydrateList loads a ticket list slot with ids in order.
func (h *harness) hydrateList(t *testing.T, entityType schema.EntityType, scope Scope, total int, items ...schema.Fields) SlotKey {
	t.Helper()
	key, err := h.reconciler.Hydrate(entityType, scope, api.Response{Items: items, Total: total})
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	return key
}

func (h *harness) hydrateSingle(t *testing.T, entityType schema.EntityType, fields schema.Fields) SlotKey {
	t.Helper()
	key, err := h.reconciler.Hydrate(entityType, Single(fields.String("id")), api.Response{Entity: fields})
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	return key
}

func (h *harness) slot(t *testing.T, key SlotKey) Slot {
	t.Helper()
	slot, ok := h.cache.Get(key)
	if !ok {
		t.Fatalf("slot %s missing", key)
	}
	return slot
}

func (h *harness) fingerprint(t *testing.T, key SlotKey) []byte {
	t.Helper()
	data, err := h.slot(t, key).Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	return data
}

func requireSameSlot(t *testing.T, label string, want, got []byte) {
	t.Helper()
	if !bytes.Equal(want, got) {
		t.Fatalf("%s: slot differs from expected state\nwant %x\ngot  %x", label, want, got)
	}
}

// inFlight starts Apply in a goroutine with the requester held, waits
// until the request is issued, and returns a release function yielding
// the outcome.
func (h *harness) inFlight(t *testing.T, mutation Mutation, transform Transform, keys []SlotKey) func() (Result, error) {
	t.Helper()
	h.requester.mutex.Lock()
	h.requester.hold = make(chan struct{})
	h.requester.started = make(chan requestCall, 1)
	hold, started := h.requester.hold, h.requester.started
	h.requester.mutex.Unlock()

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := h.coordinator.Apply(context.Background(), mutation, transform, keys)
		done <- outcome{result, err}
	}()
	testutil.RequireReceive(t, started, 5*time.Second, "waiting for request to be issued")

	return func() (Result, error) {
		h.requester.mutex.Lock()
		h.requester.hold = nil
		h.requester.started = nil
		h.requester.mutex.Unlock()
		close(hold)
		result := testutil.RequireReceive(t, done, 5*time.Second, "waiting for Apply to return")
		return result.result, result.err
	}
}

func (h *harness) setRespond(respond func(call requestCall) (api.Response, error)) {
	h.requester.mutex.Lock()
	defer h.requester.mutex.Unlock()
	h.requester.respond = respond
}
