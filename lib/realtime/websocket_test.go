// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/helpdesk/lib/clock"
	"github.com/bureau-foundation/helpdesk/lib/testutil"
)

// frameServer accepts WebSocket connections, hands each to the test,
// and reports the control frames clients send.
type frameServer struct {
	server   *httptest.Server
	conns    chan *websocket.Conn
	controls chan Frame
}

func newFrameServer(t *testing.T) *frameServer {
	t.Helper()
	s := &frameServer{
		conns:    make(chan *websocket.Conn, 4),
		controls: make(chan Frame, 16),
	}
	upgrader := websocket.Upgrader{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
		for {
			var frame Frame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			s.controls <- frame
		}
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *frameServer) url() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func waitState(t *testing.T, states <-chan ConnState, want ConnState) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case state := <-states:
			if state == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func TestWebSocketTransportReceivesAndReconnects(t *testing.T) {
	server := newFrameServer(t)
	fakeClock := clock.Fake(time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC))
	transport, err := NewWebSocketTransport(WebSocketConfig{
		URL:    server.url(),
		Clock:  fakeClock,
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	states := make(chan ConnState, 16)
	transport.Notify(func(state ConnState) { states <- state })

	ch, err := transport.Subscribe("tickets")
	if err != nil {
		t.Fatalf("Subscribe while disconnected: %v", err)
	}
	handler, received := collect()
	ch.Bind("ticket.changed", handler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- transport.Run(ctx) }()

	conn := testutil.RequireReceive(t, server.conns, 5*time.Second, "waiting for connection")
	control := testutil.RequireReceive(t, server.controls, 5*time.Second, "waiting for subscribe frame")
	if control.Event != EventSubscribe || control.Channel != "tickets" {
		t.Fatalf("control frame = %+v", control)
	}
	waitState(t, states, StateConnected)

	// Malformed frames are skipped; the connection survives.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	// Pusher-style string data.
	if err := conn.WriteJSON(Frame{
		Event:   "ticket.changed",
		Channel: "tickets",
		Data:    json.RawMessage(`"{\"kind\":\"deleted\",\"id\":\"T\"}"`),
	}); err != nil {
		t.Fatal(err)
	}
	if got := testutil.RequireReceive(t, received, 5*time.Second, "waiting for event"); string(got) != `{"kind":"deleted","id":"T"}` {
		t.Fatalf("payload = %s", got)
	}

	// The server drops the connection; the transport backs off on the
	// clock, redials, and replays the subscription.
	conn.Close()
	waitState(t, states, StateDisconnected)
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(DefaultInitialBackoff)

	conn = testutil.RequireReceive(t, server.conns, 5*time.Second, "waiting for reconnection")
	control = testutil.RequireReceive(t, server.controls, 5*time.Second, "waiting for replayed subscribe")
	if control.Event != EventSubscribe || control.Channel != "tickets" {
		t.Fatalf("replayed control frame = %+v", control)
	}
	waitState(t, states, StateConnected)

	if err := conn.WriteJSON(Frame{Event: "ticket.changed", Channel: "tickets", Data: json.RawMessage(`{"kind":"updated","id":"T","entity":{}}`)}); err != nil {
		t.Fatal(err)
	}
	testutil.RequireReceive(t, received, 5*time.Second, "waiting for event after reconnect")

	if err := transport.Unsubscribe("tickets"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	control = testutil.RequireReceive(t, server.controls, 5*time.Second, "waiting for unsubscribe frame")
	if control.Event != EventUnsubscribe || control.Channel != "tickets" {
		t.Fatalf("unsubscribe frame = %+v", control)
	}

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for Run to return"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if transport.Connected() {
		t.Fatal("still connected after Run returned")
	}
}

func TestWebSocketTransportBacksOffWhenUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	server.Close()

	fakeClock := clock.Fake(time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC))
	transport, err := NewWebSocketTransport(WebSocketConfig{
		URL:        url,
		Clock:      fakeClock,
		MaxBackoff: 3 * time.Second,
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go transport.Run(ctx)

	// Delays double from the initial backoff and stop at the maximum.
	for _, delay := range []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second} {
		fakeClock.WaitForTimers(1)
		fakeClock.Advance(delay - time.Millisecond)
		if fakeClock.PendingCount() != 1 {
			t.Fatalf("retry fired before %s", delay)
		}
		fakeClock.Advance(time.Millisecond)
	}
}

func TestNewWebSocketTransportRequiresURL(t *testing.T) {
	if _, err := NewWebSocketTransport(WebSocketConfig{}); err == nil {
		t.Fatal("empty URL accepted")
	}
}
