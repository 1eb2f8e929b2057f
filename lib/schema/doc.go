// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the helpdesk entity types and the realtime
// wire contract shared by the API client, the live cache, and the mock
// server.
//
// Three entity types exist: [TypeTicket], [TypeComment], and
// [TypeAuditLog]. The cache works on the generic [Entity] value, whose
// [Fields] are JSON-normalized (numbers are float64, nested objects are
// map[string]any) so that an entity decoded from an HTTP response and
// the same entity decoded from a realtime event compare and hash
// identically. Typed views ([Ticket], [Comment], [AuditLogEntry]) are
// converted with [FieldsOf] and [Decode].
//
// A realtime change notification is a [ChangeEvent]:
//
//	{"kind": "updated", "id": "T-1", "entity": {"status": "in_progress"}}
//
// Partial entities are merged into the cached copy, never treated as a
// replacement. [ParseChangeEvent] validates the payload shape.
//
// Channel names ([TicketsChannel], [TicketChannel], [AuditLogChannel])
// and event names ([EventTicketChanged], [EventCommentChanged],
// [EventAuditLogChanged]) are agreed with the server.
//
// This package depends on no other helpdesk packages.
package schema
