// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

// MemoryTransport is an in-process transport. Tests drive it directly:
// Connect and Disconnect change the connection state, Publish delivers
// an event to bound handlers. It starts disconnected.
type MemoryTransport struct {
	router *router
	state  *stateNotifier
}

// NewMemoryTransport creates a disconnected MemoryTransport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{router: newRouter(), state: newStateNotifier()}
}

// Subscribe implements [Transport]. It fails with [ErrNotConnected]
// while disconnected.
func (t *MemoryTransport) Subscribe(name string) (Channel, error) {
	if !t.Connected() {
		return nil, ErrNotConnected
	}
	ch, _ := t.router.open(name)
	return ch, nil
}

// Unsubscribe implements [Transport].
func (t *MemoryTransport) Unsubscribe(name string) error {
	t.router.remove(name)
	return nil
}

// Connected implements [Transport].
func (t *MemoryTransport) Connected() bool {
	return t.state.current() == StateConnected
}

// Notify implements [Transport].
func (t *MemoryTransport) Notify(fn func(ConnState)) func() {
	return t.state.add(fn)
}

// Connect marks the transport connected. Existing subscriptions and
// bindings survive a disconnect, as they do on a real connection that
// resubscribes after reconnecting.
func (t *MemoryTransport) Connect() {
	t.state.set(StateConnected)
}

// Disconnect marks the transport disconnected. Events published while
// disconnected are lost.
func (t *MemoryTransport) Disconnect() {
	t.state.set(StateDisconnected)
}

// Subscribed reports whether the channel is currently subscribed.
func (t *MemoryTransport) Subscribed(name string) bool {
	return t.router.has(name)
}

// Publish delivers an event to the handlers bound on the channel and
// returns how many received it.
func (t *MemoryTransport) Publish(channelName, event string, payload []byte) int {
	if !t.Connected() {
		return 0
	}
	return t.router.dispatch(channelName, event, payload)
}
