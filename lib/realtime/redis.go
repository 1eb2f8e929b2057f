// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bureau-foundation/helpdesk/lib/clock"
)

// DefaultRedisPrefix namespaces helpdesk channels in the Redis pub/sub
// keyspace.
const DefaultRedisPrefix = "helpdesk:"

// NewRedisClient parses a redis:// URL and returns a client. It does
// not connect.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("realtime: parsing redis url: %w", err)
	}
	return redis.NewClient(options), nil
}

// RedisConfig configures a RedisTransport.
type RedisConfig struct {
	Client *redis.Client

	// Prefix is prepended to every channel name. Default
	// DefaultRedisPrefix.
	Prefix string

	Clock          clock.Clock
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         *slog.Logger
}

// RedisTransport receives helpdesk frames from Redis pub/sub. Each
// helpdesk channel maps to one Redis channel; messages are JSON
// [Frame] values. Run owns the pub/sub connection and reconnects with
// backoff.
type RedisTransport struct {
	client         *redis.Client
	prefix         string
	clock          clock.Clock
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger

	router *router
	state  *stateNotifier

	mutex  sync.Mutex
	pubsub *redis.PubSub
}

// NewRedisTransport creates a transport. Nothing is subscribed until
// Run.
func NewRedisTransport(config RedisConfig) (*RedisTransport, error) {
	if config.Client == nil {
		return nil, errors.New("realtime: redis client is required")
	}
	t := &RedisTransport{
		client:         config.Client,
		prefix:         config.Prefix,
		clock:          config.Clock,
		initialBackoff: config.InitialBackoff,
		maxBackoff:     config.MaxBackoff,
		logger:         config.Logger,
		router:         newRouter(),
		state:          newStateNotifier(),
	}
	if t.prefix == "" {
		t.prefix = DefaultRedisPrefix
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
func (t *RedisTransport) Subscribe(name string) (Channel, error) {
	ch, created := t.router.open(name)
	if !created {
		return ch, nil
	}
	if pubsub := t.current(); pubsub != nil {
		if err := pubsub.Subscribe(context.Background(), t.prefix+name); err != nil {
			t.logger.Debug("redis subscribe failed", "channel", name, "error", err)
		}
	}
	return ch, nil
}

// Unsubscribe implements [Transport].
func (t *RedisTransport) Unsubscribe(name string) error {
	if !t.router.remove(name) {
		return nil
	}
	if pubsub := t.current(); pubsub != nil {
		if err := pubsub.Unsubscribe(context.Background(), t.prefix+name); err != nil {
			return fmt.Errorf("realtime: unsubscribing %s: %w", name, err)
		}
	}
	return nil
}

// Connected implements [Transport].
func (t *RedisTransport) Connected() bool {
	return t.state.current() == StateConnected
}

// Notify implements [Transport].
func (t *RedisTransport) Notify(fn func(ConnState)) func() {
	return t.state.add(fn)
}

func (t *RedisTransport) current() *redis.PubSub {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.pubsub
}

// Run connects and receives until ctx is cancelled, reconnecting after
// every failure. It returns ctx.Err().
func (t *RedisTransport) Run(ctx context.Context) error {
	backoff := t.initialBackoff
	for {
		t.state.set(StateConnecting)
		if err := t.client.Ping(ctx).Err(); err != nil {
			t.state.set(StateDisconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.Warn("redis connect failed", "error", err, "retry_in", backoff)
			if err := t.wait(ctx, backoff); err != nil {
				return err
			}
			backoff = min(backoff*2, t.maxBackoff)
			continue
		}

		backoff = t.initialBackoff
		err := t.receive(ctx)
		t.state.set(StateDisconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.logger.Warn("redis subscription lost", "error", err, "retry_in", backoff)
		if err := t.wait(ctx, backoff); err != nil {
			return err
		}
	}
}

func (t *RedisTransport) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.clock.After(d):
		return nil
	}
}

// receive subscribes every recorded channel on a fresh pub/sub
// connection and dispatches messages until it fails.
func (t *RedisTransport) receive(ctx context.Context) error {
	pubsub := t.client.Subscribe(ctx)
	// A blocked receive does not observe cancellation; closing the
	// pub/sub does.
	stop := context.AfterFunc(ctx, func() { pubsub.Close() })
	defer stop()

	// Publish the connection before replaying, so a concurrent
	// Subscribe is either in the replay or sent by Subscribe itself.
	t.mutex.Lock()
	t.pubsub = pubsub
	t.mutex.Unlock()
	defer func() {
		t.mutex.Lock()
		t.pubsub = nil
		t.mutex.Unlock()
		pubsub.Close()
	}()

	if names := t.router.names(); len(names) > 0 {
		channels := make([]string, len(names))
		for index, name := range names {
			channels[index] = t.prefix + name
		}
		if err := pubsub.Subscribe(ctx, channels...); err != nil {
			return fmt.Errorf("replaying subscriptions: %w", err)
		}
	}

	t.logger.Info("redis realtime connected", "prefix", t.prefix)
	t.state.set(StateConnected)

	for {
		message, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		var frame Frame
		if err := json.Unmarshal([]byte(message.Payload), &frame); err != nil {
			t.logger.Warn("dropping malformed redis frame",
				"redis_channel", message.Channel,
				"error", err,
			)
			continue
		}
		name := frame.Channel
		if name == "" {
			name = strings.TrimPrefix(message.Channel, t.prefix)
		}
		t.router.dispatch(name, frame.Event, frame.Payload())
	}
}

// RedisPublisher publishes helpdesk frames to Redis for a
// RedisTransport to receive.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

// NewRedisPublisher creates a publisher. An empty prefix uses
// DefaultRedisPrefix.
func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// Publish sends one event with its JSON payload on channel.
func (p *RedisPublisher) Publish(ctx context.Context, channel, event string, payload []byte) error {
	data, err := json.Marshal(Frame{Event: event, Channel: channel, Data: json.RawMessage(payload)})
	if err != nil {
		return fmt.Errorf("realtime: encoding frame for %s: %w", channel, err)
	}
	if err := p.client.Publish(ctx, p.prefix+channel, data).Err(); err != nil {
		return fmt.Errorf("realtime: publishing to %s: %w", channel, err)
	}
	return nil
}
