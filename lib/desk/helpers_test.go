// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package desk

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/bureau-foundation/helpdesk/lib/api"
	"github.com/bureau-foundation/helpdesk/lib/deskmock"
	"github.com/bureau-foundation/helpdesk/lib/livecache"
	"github.com/bureau-foundation/helpdesk/lib/realtime"
	"github.com/bureau-foundation/helpdesk/lib/schema"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture is a Desk talking to an in-memory server. Server events
// reach the Desk through a MemoryTransport synchronously, before the
// HTTP response that caused them; pause the server's events to make
// an echo arrive after the response instead.
type fixture struct {
	server    *deskmock.Server
	transport *realtime.MemoryTransport
	desk      *Desk
	failures  chan *livecache.MutationError
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		transport: realtime.NewMemoryTransport(),
		failures:  make(chan *livecache.MutationError, 8),
	}
	f.transport.Connect()
	f.server = deskmock.New(deskmock.Config{Logger: quietLogger()})
	f.server.AddPublisher(deskmock.PublisherFunc(func(ctx context.Context, channel, event string, payload []byte) error {
		f.transport.Publish(channel, event, payload)
		return nil
	}))
	if err := f.server.Load(deskmock.Seed{
		Tickets: []schema.Fields{
			{"id": "T1", "subject": "Printer on fire", "status": schema.StatusOpen},
			{"id": "T2", "subject": "VPN down", "status": schema.StatusOpen},
			{"id": "T3", "subject": "Password reset", "status": schema.StatusPending},
		},
		Comments: []schema.Fields{
			{"id": "C1", "ticket_id": "T1", "body": "Have you tried water?"},
			{"id": "C2", "ticket_id": "T1", "body": "It is a laser printer."},
		},
		AuditLogs: []schema.Fields{
			{"id": "L1", "ticket_id": "T1", "action": "opened"},
			{"id": "L2", "ticket_id": "T1", "action": "viewed"},
			{"id": "L3", "ticket_id": "T1", "action": "escalated"},
		},
	}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	httpServer := httptest.NewServer(f.server.Handler())
	t.Cleanup(httpServer.Close)
	client, err := api.NewClient(api.Config{BaseURL: httpServer.URL + "/api", Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	f.desk, err = New(Config{
		API:       client,
		Transport: f.transport,
		Notifier:  func(failure *livecache.MutationError) { f.failures <- failure },
		Logger:    quietLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(f.desk.Close)
	return f
}

var firstPage = livecache.Scope{Page: 1, PerPage: 10}

func (f *fixture) loadTickets(t *testing.T, scope livecache.Scope) livecache.SlotKey {
	t.Helper()
	key, err := f.desk.LoadTickets(context.Background(), scope)
	if err != nil {
		t.Fatalf("LoadTickets: %v", err)
	}
	return key
}

func (f *fixture) slot(t *testing.T, key livecache.SlotKey) livecache.Slot {
	t.Helper()
	slot, ok := f.desk.Cache().Get(key)
	if !ok {
		t.Fatalf("slot %s missing", key)
	}
	return slot
}

func (f *fixture) fingerprint(t *testing.T, key livecache.SlotKey) string {
	t.Helper()
	data, err := f.slot(t, key).Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	return string(data)
}

func requireIDs(t *testing.T, label string, slot livecache.Slot, want ...string) {
	t.Helper()
	got := slot.IDs()
	if len(got) != len(want) {
		t.Fatalf("%s ids = %v, want %v", label, got, want)
	}
	for index := range want {
		if got[index] != want[index] {
			t.Fatalf("%s ids = %v, want %v", label, got, want)
		}
	}
}
