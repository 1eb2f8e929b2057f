// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/helpdesk/lib/clock"
	"github.com/bureau-foundation/helpdesk/lib/netutil"
)

// Reconnect backoff defaults.
const (
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 30 * time.Second
)

// WebSocketConfig configures a WebSocketTransport.
type WebSocketConfig struct {
	// URL is the ws:// or wss:// realtime endpoint.
	URL string

	// Header is sent with every handshake, typically carrying the
	// Authorization bearer token.
	Header http.Header

	Dialer *websocket.Dialer
	Clock  clock.Clock

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Logger *slog.Logger
}

// WebSocketTransport speaks the helpdesk realtime protocol: JSON
// [Frame] messages over one WebSocket, with subscribe and unsubscribe
// control frames. Run owns the connection and reconnects with
// exponential backoff until its context is cancelled. Subscriptions
// are replayed on every new connection.
type WebSocketTransport struct {
	url            string
	header         http.Header
	dialer         *websocket.Dialer
	clock          clock.Clock
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger

	router *router
	state  *stateNotifier

	// writeMutex serializes writes and guards conn.
	writeMutex sync.Mutex
	conn       *websocket.Conn
}

// NewWebSocketTransport creates a transport. Nothing is dialed until
// Run.
func NewWebSocketTransport(config WebSocketConfig) (*WebSocketTransport, error) {
	if config.URL == "" {
		return nil, errors.New("realtime: websocket URL is required")
	}
	t := &WebSocketTransport{
		url:            config.URL,
		header:         config.Header,
		dialer:         config.Dialer,
		clock:          config.Clock,
		initialBackoff: config.InitialBackoff,
		maxBackoff:     config.MaxBackoff,
		logger:         config.Logger,
		router:         newRouter(),
		state:          newStateNotifier(),
	}
	if t.dialer == nil {
		t.dialer = websocket.DefaultDialer
	}
	if t.clock == nil {
		t.clock = clock.Real()
	}
	if t.initialBackoff <= 0 {
		t.initialBackoff = DefaultInitialBackoff
	}
	if t.maxBackoff < t.initialBackoff {
		t.maxBackoff = max(DefaultMaxBackoff, t.initialBackoff)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t, nil
}

// Subscribe implements [Transport]. While disconnected the channel is
// recorded and subscribed on the next connection.
func (t *WebSocketTransport) Subscribe(name string) (Channel, error) {
	ch, created := t.router.open(name)
	if created {
		if err := t.send(Frame{Event: EventSubscribe, Channel: name}); err != nil {
			// The read loop will notice the broken connection; the
			// channel is resubscribed when it comes back.
			t.logger.Debug("subscribe frame not sent", "channel", name, "error", err)
		}
	}
	return ch, nil
}

// Unsubscribe implements [Transport].
func (t *WebSocketTransport) Unsubscribe(name string) error {
	if !t.router.remove(name) {
		return nil
	}
	if err := t.send(Frame{Event: EventUnsubscribe, Channel: name}); err != nil {
		return fmt.Errorf("realtime: unsubscribing %s: %w", name, err)
	}
	return nil
}

// Connected implements [Transport].
func (t *WebSocketTransport) Connected() bool {
	return t.state.current() == StateConnected
}

// Notify implements [Transport].
func (t *WebSocketTransport) Notify(fn func(ConnState)) func() {
	return t.state.add(fn)
}

// send writes a frame on the current connection. Without a connection
// it does nothing.
func (t *WebSocketTransport) send(frame Frame) error {
	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.WriteJSON(frame)
}

// Run connects and serves until ctx is cancelled, reconnecting after
// every failure. It returns ctx.Err().
func (t *WebSocketTransport) Run(ctx context.Context) error {
	backoff := t.initialBackoff
	for {
		t.state.set(StateConnecting)
		conn, _, err := t.dialer.DialContext(ctx, t.url, t.header)
		if err != nil {
			t.state.set(StateDisconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.Warn("realtime connect failed",
				"url", t.url,
				"error", err,
				"retry_in", backoff,
			)
			if err := t.wait(ctx, backoff); err != nil {
				return err
			}
			backoff = min(backoff*2, t.maxBackoff)
			continue
		}

		backoff = t.initialBackoff
		err = t.serve(ctx, conn)
		t.state.set(StateDisconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if netutil.IsExpectedCloseError(err) {
			t.logger.Info("realtime connection closed", "url", t.url, "retry_in", backoff)
		} else {
			t.logger.Warn("realtime connection lost", "url", t.url, "error", err, "retry_in", backoff)
		}
		if err := t.wait(ctx, backoff); err != nil {
			return err
		}
	}
}

func (t *WebSocketTransport) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.clock.After(d):
		return nil
	}
}

// serve replays subscriptions on conn and reads frames until the
// connection fails or ctx is cancelled.
func (t *WebSocketTransport) serve(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	t.writeMutex.Lock()
	t.conn = conn
	for _, name := range t.router.names() {
		if err := conn.WriteJSON(Frame{Event: EventSubscribe, Channel: name}); err != nil {
			t.conn = nil
			t.writeMutex.Unlock()
			conn.Close()
			return fmt.Errorf("replaying subscription %s: %w", name, err)
		}
	}
	t.writeMutex.Unlock()

	defer func() {
		t.writeMutex.Lock()
		t.conn = nil
		t.writeMutex.Unlock()
		conn.Close()
	}()

	t.logger.Info("realtime connected", "url", t.url)
	t.state.set(StateConnected)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			t.logger.Warn("dropping malformed realtime frame", "error", err, "bytes", len(message))
			continue
		}
		if frame.Channel == "" {
			// Server acknowledgements and pings carry no channel.
			continue
		}
		t.router.dispatch(frame.Channel, frame.Event, frame.Payload())
	}
}
