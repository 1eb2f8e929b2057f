// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bureau-foundation/helpdesk/lib/api"
	"github.com/bureau-foundation/helpdesk/lib/config"
	"github.com/bureau-foundation/helpdesk/lib/desk"
	"github.com/bureau-foundation/helpdesk/lib/livecache"
	"github.com/bureau-foundation/helpdesk/lib/realtime"
)

// runnableTransport is a transport with its connection loop.
type runnableTransport interface {
	realtime.Transport
	Run(ctx context.Context) error
}

type session struct {
	desk          *desk.Desk
	transportDone <-chan error
	cancel        context.CancelFunc
	cleanup       []func()
}

func (s *session) close() {
	s.desk.Close()
	s.cancel()
	for _, fn := range s.cleanup {
		fn()
	}
}

// connect builds the API client, starts the realtime transport, and
// creates the Desk.
func connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*session, error) {
	client, err := api.NewClient(api.Config{
		BaseURL:    cfg.API.BaseURL,
		Token:      cfg.API.Token,
		HTTPClient: &http.Client{Timeout: cfg.APITimeout()},
		Logger:     logger.With("component", "api"),
	})
	if err != nil {
		return nil, err
	}

	transport, cleanup, err := newTransport(cfg, logger.With("component", "transport"))
	if err != nil {
		return nil, err
	}

	d, err := desk.New(desk.Config{
		API:        client,
		Transport:  transport,
		EchoWindow: cfg.EchoWindow(),
		Policy:     pagePolicy(cfg),
		Notifier: func(failure *livecache.MutationError) {
			logger.Warn("change rolled back", "entity_id", failure.Mutation.EntityID, "message", failure.Message)
		},
		Logger: logger,
	})
	if err != nil {
		cleanup()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- transport.Run(runCtx)
	}()
	return &session{desk: d, transportDone: done, cancel: cancel, cleanup: []func(){cleanup}}, nil
}

// newTransport builds the configured realtime transport. The cleanup
// function releases anything it opened.
func newTransport(cfg *config.Config, logger *slog.Logger) (runnableTransport, func(), error) {
	initial, maximum := cfg.Backoff()
	switch cfg.Realtime.Transport {
	case config.TransportWebSocket:
		header := http.Header{}
		if cfg.API.Token != "" {
			header.Set("Authorization", "Bearer "+cfg.API.Token)
		}
		transport, err := realtime.NewWebSocketTransport(realtime.WebSocketConfig{
			URL:            cfg.Realtime.WebSocketURL,
			Header:         header,
			InitialBackoff: initial,
			MaxBackoff:     maximum,
			Logger:         logger,
		})
		return transport, func() {}, err
	case config.TransportRedis:
		client, err := realtime.NewRedisClient(cfg.Realtime.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		transport, err := realtime.NewRedisTransport(realtime.RedisConfig{
			Client:         client,
			InitialBackoff: initial,
			MaxBackoff:     maximum,
			Logger:         logger,
		})
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return transport, func() { client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown realtime transport %q", cfg.Realtime.Transport)
}

func pagePolicy(cfg *config.Config) livecache.PagePolicy {
	if cfg.Sync.PagePolicy == config.PagePolicyTruncate {
		return livecache.TruncatingPolicy{DefaultSort: cfg.Sync.DefaultSort}
	}
	return livecache.FirstPagePolicy{DefaultSort: cfg.Sync.DefaultSort}
}

// newLogger writes to w at the configured level: text when the format
// is "text" or unset on a terminal, JSON otherwise.
func newLogger(cfg *config.Config, w io.Writer, terminal bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: cfg.LogLevel()}
	format := cfg.Log.Format
	if format == "" && terminal {
		format = "text"
	}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

// formatChange renders one cache change as a single line.
func formatChange(change livecache.Change) string {
	if change.Removed {
		return fmt.Sprintf("%s removed", change.Key)
	}
	slot := change.Slot
	var line strings.Builder
	line.WriteString(change.Key.String())
	if slot.IsList() {
		fmt.Fprintf(&line, " total=%d items=[%s]", slot.Total, strings.Join(slot.IDs(), " "))
	} else if slot.Tombstone {
		line.WriteString(" deleted")
	} else if slot.Entity != nil {
		fmt.Fprintf(&line, " %v", slot.Entity.Fields)
	}
	if slot.Stale {
		line.WriteString(" stale")
	}
	return line.String()
}
