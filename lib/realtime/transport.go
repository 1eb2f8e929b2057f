// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
	"sync"
)

// ConnState is the connection state of a transport.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}

// ErrNotConnected is returned by transports that cannot subscribe while
// disconnected.
var ErrNotConnected = errors.New("realtime: transport not connected")

// Handler receives the payload of one event. Handlers for a channel run
// on the transport's receive goroutine, in arrival order.
type Handler func(payload []byte)

// BindingID identifies one handler binding on a channel.
type BindingID uint64

// Channel is one subscribed channel on a transport.
type Channel interface {
	Name() string
	Bind(event string, handler Handler) BindingID
	Unbind(event string, id BindingID)
}

// Transport is a realtime connection carrying named channels.
type Transport interface {
	// Subscribe returns the channel with the given name, subscribing
	// to it on the server if this is the first interest in it.
	Subscribe(name string) (Channel, error)

	// Unsubscribe drops the channel and all of its bindings.
	Unsubscribe(name string) error

	Connected() bool

	// Notify registers fn for connection state changes and returns a
	// function that unregisters it. fn is never called with a
	// transport lock held.
	Notify(fn func(ConnState)) (cancel func())
}

// Frame is the JSON message carried by the WebSocket and Redis
// transports. Server frames name an event and channel and carry the
// event payload in Data. Client control frames use the events
// "subscribe" and "unsubscribe" with no data.
type Frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Control frame events sent by clients.
const (
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
)

// Payload returns the event payload. Data may hold the payload object
// directly or a JSON string containing it; both decode to the same
// bytes.
func (f Frame) Payload() []byte {
	data := bytes.TrimSpace(f.Data)
	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err == nil {
			return []byte(inner)
		}
	}
	return data
}

// router holds the channels and bindings of one transport and
// dispatches received events to them.
type router struct {
	mutex    sync.Mutex
	channels map[string]*channel
	nextID   BindingID
}

func newRouter() *router {
	return &router{channels: make(map[string]*channel)}
}

// open returns the named channel, creating it if needed. created
// reports whether it was new.
func (r *router) open(name string) (ch *channel, created bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if existing, ok := r.channels[name]; ok {
		return existing, false
	}
	ch = &channel{name: name, router: r, bindings: make(map[string]map[BindingID]Handler)}
	r.channels[name] = ch
	return ch, true
}

func (r *router) remove(name string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.channels[name]; !ok {
		return false
	}
	delete(r.channels, name)
	return true
}

func (r *router) has(name string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	_, ok := r.channels[name]
	return ok
}

// names returns the subscribed channel names, sorted.
func (r *router) names() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// dispatch calls every handler bound to event on the channel, in
// binding order, and returns how many ran.
func (r *router) dispatch(channelName, event string, payload []byte) int {
	r.mutex.Lock()
	ch, ok := r.channels[channelName]
	var handlers []Handler
	if ok {
		bound := ch.bindings[event]
		ids := make([]BindingID, 0, len(bound))
		for id := range bound {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			handlers = append(handlers, bound[id])
		}
	}
	r.mutex.Unlock()

	for _, handler := range handlers {
		handler(payload)
	}
	return len(handlers)
}

type channel struct {
	name     string
	router   *router
	bindings map[string]map[BindingID]Handler
}

func (c *channel) Name() string { return c.name }

func (c *channel) Bind(event string, handler Handler) BindingID {
	c.router.mutex.Lock()
	defer c.router.mutex.Unlock()
	c.router.nextID++
	id := c.router.nextID
	bound := c.bindings[event]
	if bound == nil {
		bound = make(map[BindingID]Handler)
		c.bindings[event] = bound
	}
	bound[id] = handler
	return id
}

func (c *channel) Unbind(event string, id BindingID) {
	c.router.mutex.Lock()
	defer c.router.mutex.Unlock()
	delete(c.bindings[event], id)
	if len(c.bindings[event]) == 0 {
		delete(c.bindings, event)
	}
}

// stateNotifier tracks a transport's connection state and fans state
// changes out to listeners.
type stateNotifier struct {
	mutex     sync.Mutex
	state     ConnState
	nextID    int
	listeners map[int]func(ConnState)
}

func newStateNotifier() *stateNotifier {
	return &stateNotifier{listeners: make(map[int]func(ConnState))}
}

func (n *stateNotifier) current() ConnState {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.state
}

// set records the state and, if it changed, calls every listener
// after releasing the lock.
func (n *stateNotifier) set(state ConnState) {
	n.mutex.Lock()
	if n.state == state {
		n.mutex.Unlock()
		return
	}
	n.state = state
	ids := make([]int, 0, len(n.listeners))
	for id := range n.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	listeners := make([]func(ConnState), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, n.listeners[id])
	}
	n.mutex.Unlock()

	for _, listener := range listeners {
		listener(state)
	}
}

func (n *stateNotifier) add(fn func(ConnState)) func() {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.nextID++
	id := n.nextID
	n.listeners[id] = fn
	return func() {
		n.mutex.Lock()
		defer n.mutex.Unlock()
		delete(n.listeners, id)
	}
}
