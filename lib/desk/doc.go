// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package desk wires the live cache to the helpdesk domain.
//
// A [Desk] owns one [livecache.Cache] with its Coordinator and
// Reconciler, a [realtime.Manager] over the configured transport, and
// the API client. It offers the operations helpdesk views need:
// loading ticket lists, single tickets, comment threads and audit logs
// into cache slots; watching them for realtime changes; and mutating
// tickets, comments and audit-log entries optimistically.
//
// Views read state from [Desk.Cache] (and re-render on
// [livecache.Cache.Subscribe]); they never write slots directly.
package desk
