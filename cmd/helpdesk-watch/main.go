// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// helpdesk-watch loads a page of tickets (or one ticket with its
// comments and audit log) into a live cache and prints every cache
// change as it happens: local writes, foreign realtime events, and the
// refetches that follow a reconnect.
//
// Configuration comes from the file named by --config or
// HELPDESK_CONFIG. Logs go to stderr (text on a terminal, JSON
// otherwise); cache changes go to stdout, one line each.
//
// Usage:
//
//	helpdesk-watch [--config helpdesk.yaml] [--status open] [--page 2]
//	helpdesk-watch --ticket T-1042
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/helpdesk/lib/config"
	"github.com/bureau-foundation/helpdesk/lib/desk"
	"github.com/bureau-foundation/helpdesk/lib/livecache"
	"github.com/bureau-foundation/helpdesk/lib/process"
	"github.com/bureau-foundation/helpdesk/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		ticketID    string
		status      string
		page        int
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("helpdesk-watch", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to helpdesk.yaml (default: $HELPDESK_CONFIG)")
	flagSet.StringVar(&ticketID, "ticket", "", "watch one ticket with its comments and audit log")
	flagSet.StringVar(&status, "status", "", "only list tickets with this status")
	flagSet.IntVar(&page, "page", 1, "ticket list page to watch")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("helpdesk-watch")
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	if page < 1 {
		return fmt.Errorf("--page must be at least 1, got %d", page)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer session.close()

	changes, cancelChanges := session.desk.Cache().Subscribe()
	defer cancelChanges()
	if ticketID != "" {
		err = watchTicket(ctx, session.desk, ticketID, cfg.Sync.PerPage)
	} else {
		scope := livecache.Scope{Page: page, PerPage: cfg.Sync.PerPage, Sort: cfg.Sync.DefaultSort}
		if status != "" {
			scope.Filters = map[string]string{"status": status}
		}
		err = watchList(ctx, session.desk, scope)
	}
	if err != nil {
		return err
	}
	logger.Info("watching", "ticket", ticketID, "status", status, "page", page)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case change := <-changes:
			fmt.Fprintln(os.Stdout, formatChange(change))
		case err := <-session.transportDone:
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("realtime transport: %w", err)
			}
			return nil
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// watchList loads one ticket page and keeps it live.
func watchList(ctx context.Context, d *desk.Desk, scope livecache.Scope) error {
	key, err := d.LoadTickets(ctx, scope)
	if err != nil {
		return err
	}
	d.WatchTicketList(key)
	return nil
}

// watchTicket loads a ticket, its thread, and the first audit-log page,
// and keeps them live.
func watchTicket(ctx context.Context, d *desk.Desk, ticketID string, perPage int) error {
	if _, err := d.LoadTicket(ctx, ticketID); err != nil {
		return err
	}
	if _, err := d.LoadComments(ctx, ticketID); err != nil {
		return err
	}
	if _, err := d.LoadAuditLog(ctx, ticketID, 1, perPage); err != nil {
		return err
	}
	d.WatchTicket(ticketID)
	return nil
}
