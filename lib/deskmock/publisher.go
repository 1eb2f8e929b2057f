// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package deskmock

import (
	"context"
	"sync"
)

// Publisher delivers one realtime event. [*Hub] and
// [realtime.RedisPublisher] implement it.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload []byte) error
}

// PublisherFunc adapts a function to [Publisher].
type PublisherFunc func(ctx context.Context, channel, event string, payload []byte) error

// Publish implements [Publisher].
func (f PublisherFunc) Publish(ctx context.Context, channel, event string, payload []byte) error {
	return f(ctx, channel, event, payload)
}

// outboundEvent is one change event to publish on its channels.
type outboundEvent struct {
	channels []string
	name     string
	payload  []byte
}

// outbox fans events out to publishers. While paused, events queue in
// order until resumed.
type outbox struct {
	mutex      sync.Mutex
	publishers []Publisher
	paused     bool
	held       []outboundEvent

	// sending serializes delivery so events reach publishers in the
	// order they were produced.
	sending sync.Mutex

	onError func(channel string, err error)
}

func (o *outbox) add(publisher Publisher) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.publishers = append(o.publishers, publisher)
}

func (o *outbox) pause() {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.paused = true
}

// resume delivers every held event and returns how many there were.
func (o *outbox) resume(ctx context.Context) int {
	o.mutex.Lock()
	o.paused = false
	held := o.held
	o.held = nil
	o.mutex.Unlock()

	o.deliver(ctx, held)
	return len(held)
}

func (o *outbox) send(ctx context.Context, events ...outboundEvent) {
	o.mutex.Lock()
	if o.paused {
		o.held = append(o.held, events...)
		o.mutex.Unlock()
		return
	}
	o.mutex.Unlock()
	o.deliver(ctx, events)
}

func (o *outbox) deliver(ctx context.Context, events []outboundEvent) {
	o.sending.Lock()
	defer o.sending.Unlock()

	o.mutex.Lock()
	publishers := o.publishers
	o.mutex.Unlock()

	for _, event := range events {
		for _, channel := range event.channels {
			if channel == "" {
				continue
			}
			for _, publisher := range publishers {
				if err := publisher.Publish(ctx, channel, event.name, event.payload); err != nil && o.onError != nil {
					o.onError(channel, err)
				}
			}
		}
	}
}
