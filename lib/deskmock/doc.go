// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package deskmock is an in-memory helpdesk server for tests and local
// development.
//
// [Server] serves the helpdesk JSON API under /api with gin and the
// realtime protocol on /realtime through a WebSocket [Hub]. Every
// write publishes change events to the hub and to any extra
// [Publisher] (a Redis fan-out, or an in-process transport in tests).
// Tests can pause event delivery to control whether an echo arrives
// before or after the HTTP response, inject failures for a specific
// request, and make changes as another agent would.
//
// Seed data is JSONC: JSON with comments and trailing commas.
package deskmock
