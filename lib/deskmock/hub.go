// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package deskmock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/helpdesk/lib/netutil"
	"github.com/bureau-foundation/helpdesk/lib/realtime"
)

// sendBuffer is the per-client outbound queue. A client that falls
// this far behind loses events, as it would behind a real broker.
const sendBuffer = 64

var upgrader = websocket.Upgrader{
	// The mock serves local tools and tests only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub serves the realtime WebSocket protocol: clients send subscribe
// and unsubscribe control frames and receive event frames for the
// channels they subscribed to. Event data is sent as a JSON string,
// the way Pusher-compatible servers do.
type Hub struct {
	logger *slog.Logger

	mutex   sync.Mutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	conn *websocket.Conn
	send chan realtime.Frame

	// Guarded by Hub.mutex.
	channels map[string]bool
}

// NewHub creates a Hub with no clients.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, clients: make(map[*hubClient]struct{})}
}

// ServeWebSocket upgrades the request and serves the client until it
// disconnects.
func (h *Hub) ServeWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "origin", c.Request.Header.Get("Origin"))
		return
	}
	client := &hubClient{
		conn:     conn,
		send:     make(chan realtime.Frame, sendBuffer),
		channels: make(map[string]bool),
	}
	h.mutex.Lock()
	h.clients[client] = struct{}{}
	h.mutex.Unlock()
	h.logger.Debug("realtime client connected", "remote", c.Request.RemoteAddr)

	go h.writeLoop(client)
	h.readLoop(client)
}

func (h *Hub) readLoop(client *hubClient) {
	defer func() {
		h.mutex.Lock()
		delete(h.clients, client)
		close(client.send)
		h.mutex.Unlock()
		client.conn.Close()
	}()
	for {
		var frame realtime.Frame
		if err := client.conn.ReadJSON(&frame); err != nil {
			if !netutil.IsExpectedCloseError(err) {
				h.logger.Debug("realtime client read failed", "error", err)
			}
			return
		}
		h.mutex.Lock()
		switch frame.Event {
		case realtime.EventSubscribe:
			client.channels[frame.Channel] = true
		case realtime.EventUnsubscribe:
			delete(client.channels, frame.Channel)
		}
		h.mutex.Unlock()
	}
}

func (h *Hub) writeLoop(client *hubClient) {
	for frame := range client.send {
		if err := client.conn.WriteJSON(frame); err != nil {
			client.conn.Close()
			// Drain so Publish never blocks on a dead client.
			for range client.send {
			}
			return
		}
	}
}

// Publish implements [Publisher]: it queues the event for every client
// subscribed to channel.
func (h *Hub) Publish(ctx context.Context, channel, event string, payload []byte) error {
	data, err := json.Marshal(string(payload))
	if err != nil {
		return fmt.Errorf("deskmock: encoding event data: %w", err)
	}
	frame := realtime.Frame{Event: event, Channel: channel, Data: data}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		if !client.channels[channel] {
			continue
		}
		select {
		case client.send <- frame:
		default:
			h.logger.Warn("realtime client too slow; event dropped", "channel", channel, "event", event)
		}
	}
	return nil
}

// Subscribers returns how many connected clients are subscribed to
// channel.
func (h *Hub) Subscribers(channel string) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	count := 0
	for client := range h.clients {
		if client.channels[channel] {
			count++
		}
	}
	return count
}

// DisconnectAll closes every client connection, as a server restart
// would.
func (h *Hub) DisconnectAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		client.conn.Close()
	}
}
