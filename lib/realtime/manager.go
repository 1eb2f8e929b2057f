// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import (
	"log/slog"
	"sync"
)

// Options configures one subscription.
type Options struct {
	// OnResync is called after the transport reconnects, for every
	// subscription that was bound before the disconnect. Events sent
	// while disconnected are not replayed, so the consumer should
	// refetch.
	OnResync func()
}

// Manager binds consumer handlers to transport channels.
type Manager struct {
	transport Transport
	logger    *slog.Logger

	mutex         sync.Mutex
	connected     bool
	subscriptions map[*Subscription]struct{}
	refs          map[string]int
	channels      map[string]Channel
	closed        bool
	stopNotify    func()
}

// Subscription is one handler bound to one event on one channel.
type Subscription struct {
	manager *Manager
	channel string
	event   string
	handler Handler
	options Options

	// Guarded by manager.mutex.
	bound   bool
	closed  bool
	binding BindingID
}

// NewManager creates a Manager for transport. A nil logger uses
// slog.Default.
func NewManager(transport Transport, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		transport:     transport,
		logger:        logger,
		subscriptions: make(map[*Subscription]struct{}),
		refs:          make(map[string]int),
		channels:      make(map[string]Channel),
	}
	m.stopNotify = transport.Notify(m.stateChanged)
	m.mutex.Lock()
	m.connected = transport.Connected()
	m.mutex.Unlock()
	return m
}

// Bind registers handler for event on channel. When the transport is
// connected and the channel name is known, the binding happens now;
// otherwise it happens on the next connect. Bind never fails: an empty
// channel name or an unavailable transport just leaves the
// subscription waiting.
func (m *Manager) Bind(channelName, event string, handler Handler, options Options) *Subscription {
	s := &Subscription{
		manager: m,
		channel: channelName,
		event:   event,
		handler: handler,
		options: options,
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.closed {
		s.closed = true
		return s
	}
	m.subscriptions[s] = struct{}{}
	if m.connected {
		m.bindLocked(s)
	}
	return s
}

// bindLocked subscribes the channel if needed and binds the handler.
func (m *Manager) bindLocked(s *Subscription) {
	if s.bound || s.closed || s.channel == "" {
		return
	}
	ch, ok := m.channels[s.channel]
	if !ok {
		var err error
		ch, err = m.transport.Subscribe(s.channel)
		if err != nil {
			m.logger.Warn("channel subscribe failed; will retry on reconnect",
				"channel", s.channel,
				"error", err,
			)
			return
		}
		m.channels[s.channel] = ch
	}
	s.binding = ch.Bind(s.event, s.handler)
	s.bound = true
	m.refs[s.channel]++
}

// unbindLocked removes the handler and, when the last subscription
// for the channel goes, unsubscribes the channel.
func (m *Manager) unbindLocked(s *Subscription) {
	if !s.bound {
		return
	}
	s.bound = false
	if ch, ok := m.channels[s.channel]; ok {
		ch.Unbind(s.event, s.binding)
	}
	m.refs[s.channel]--
	if m.refs[s.channel] > 0 {
		return
	}
	delete(m.refs, s.channel)
	delete(m.channels, s.channel)
	if err := m.transport.Unsubscribe(s.channel); err != nil {
		m.logger.Warn("channel unsubscribe failed",
			"channel", s.channel,
			"error", err,
		)
	}
}

func (m *Manager) stateChanged(state ConnState) {
	m.mutex.Lock()
	if m.closed {
		m.mutex.Unlock()
		return
	}
	wasConnected := m.connected
	connected := state == StateConnected
	m.connected = connected
	if !connected || wasConnected {
		m.mutex.Unlock()
		if wasConnected && !connected {
			m.logger.Warn("realtime transport disconnected", "state", state)
		}
		return
	}

	var resync []func()
	for s := range m.subscriptions {
		if s.bound {
			if s.options.OnResync != nil {
				resync = append(resync, s.options.OnResync)
			}
			continue
		}
		m.bindLocked(s)
	}
	m.mutex.Unlock()

	m.logger.Info("realtime transport connected", "resyncing", len(resync))
	for _, fn := range resync {
		fn()
	}
}

// Close unbinds every subscription and stops watching the transport.
func (m *Manager) Close() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for s := range m.subscriptions {
		m.unbindLocked(s)
		s.closed = true
	}
	clear(m.subscriptions)
	m.stopNotify()
}

// Close unbinds the handler, then unsubscribes the channel if no other
// subscription uses it. Safe to call more than once.
func (s *Subscription) Close() {
	m := s.manager
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if s.closed {
		return
	}
	m.unbindLocked(s)
	s.closed = true
	delete(m.subscriptions, s)
}

// Bound reports whether the handler is currently bound.
func (s *Subscription) Bound() bool {
	s.manager.mutex.Lock()
	defer s.manager.mutex.Unlock()
	return s.bound
}

// Channel returns the channel name the subscription was created for.
func (s *Subscription) Channel() string {
	return s.channel
}
