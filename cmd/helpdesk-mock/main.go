// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// helpdesk-mock runs the in-memory helpdesk server: the JSON API under
// /api and the realtime WebSocket on /realtime. With --redis-url every
// change event is also published to Redis, for clients configured with
// the redis transport.
//
// Usage:
//
//	helpdesk-mock [--listen :8080] [--seed tickets.jsonc] [--token secret] [--redis-url redis://localhost:6379/0]
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/helpdesk/lib/deskmock"
	"github.com/bureau-foundation/helpdesk/lib/process"
	"github.com/bureau-foundation/helpdesk/lib/realtime"
	"github.com/bureau-foundation/helpdesk/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	listen      string
	seedPath    string
	token       string
	redisURL    string
	redisPrefix string
	verbose     bool
}

func run() error {
	var opts options
	var showVersion bool
	flagSet := pflag.NewFlagSet("helpdesk-mock", pflag.ContinueOnError)
	flagSet.StringVar(&opts.listen, "listen", ":8080", "address to serve on")
	flagSet.StringVar(&opts.seedPath, "seed", "", "JSONC file with initial tickets, comments, and audit logs")
	flagSet.StringVar(&opts.token, "token", "", "require this bearer token on every request")
	flagSet.StringVar(&opts.redisURL, "redis-url", "", "also publish change events to this Redis server")
	flagSet.StringVar(&opts.redisPrefix, "redis-prefix", realtime.DefaultRedisPrefix, "prefix for Redis channel names")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log every request")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("helpdesk-mock")
		return nil
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, cleanup, err := newServer(opts, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	listener, err := net.Listen("tcp", opts.listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", opts.listen, err)
	}
	return serve(ctx, listener, server.Handler(), logger)
}

// newServer builds the mock server from the flags: seed data and the
// optional Redis fan-out.
func newServer(opts options, logger *slog.Logger) (*deskmock.Server, func(), error) {
	cleanup := func() {}
	var publishers []deskmock.Publisher
	if opts.redisURL != "" {
		client, err := realtime.NewRedisClient(opts.redisURL)
		if err != nil {
			return nil, nil, err
		}
		publishers = append(publishers, realtime.NewRedisPublisher(client, opts.redisPrefix))
		cleanup = func() { client.Close() }
	}

	server := deskmock.New(deskmock.Config{
		Token:      opts.token,
		Publishers: publishers,
		Logger:     logger,
	})
	if opts.seedPath != "" {
		seed, err := deskmock.ReadSeedFile(opts.seedPath)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		if err := server.Load(seed); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("%s: %w", opts.seedPath, err)
		}
		logger.Info("seed loaded",
			"path", opts.seedPath,
			"tickets", len(seed.Tickets),
			"comments", len(seed.Comments),
			"audit_logs", len(seed.AuditLogs),
		)
	}
	return server, cleanup, nil
}

// serve runs the HTTP server until ctx is cancelled, then shuts it
// down gracefully.
func serve(ctx context.Context, listener net.Listener, handler http.Handler, logger *slog.Logger) error {
	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- httpServer.Serve(listener)
	}()
	logger.Info("helpdesk mock running", "address", listener.Addr().String())

	select {
	case err := <-serveDone:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-serveDone; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
