// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package realtime connects the helpdesk cache to a server push
// channel.
//
// A [Transport] carries named channels; each [Channel] delivers events
// by name to bound [Handler] functions. Three transports are provided:
// [MemoryTransport] for tests, [WebSocketTransport] for the helpdesk
// server's realtime endpoint, and [RedisTransport] for deployments that
// fan changes out over Redis pub/sub. WebSocket and Redis messages use
// the same JSON [Frame].
//
// [Manager] sits between consumers and a transport. It keeps exactly
// one handler binding per [Subscription] from the moment the transport
// is connected until the subscription is closed, defers binding while
// disconnected, reference-counts channel subscriptions, and reports
// reconnects through [Options.OnResync] so consumers can refetch
// whatever they missed.
package realtime
