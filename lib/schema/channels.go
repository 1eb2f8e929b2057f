// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// TicketsChannel carries ticket.changed events for every ticket. List
// views subscribe to it.
const TicketsChannel = "tickets"

// Realtime event names.
const (
	EventTicketChanged   = "ticket.changed"
	EventCommentChanged  = "comment.changed"
	EventAuditLogChanged = "audit_log.changed"
)

// TicketChannel is the per-ticket channel carrying that ticket's field
// updates and its comment events.
func TicketChannel(ticketID string) string {
	if ticketID == "" {
		return ""
	}
	return "ticket." + ticketID
}

// AuditLogChannel is the per-ticket channel carrying audit-log events.
func AuditLogChannel(ticketID string) string {
	if ticketID == "" {
		return ""
	}
	return "ticket." + ticketID + ".audit-logs"
}

// EventName returns the realtime event name for an entity type.
func EventName(entityType EntityType) string {
	switch entityType {
	case TypeTicket:
		return EventTicketChanged
	case TypeComment:
		return EventCommentChanged
	case TypeAuditLog:
		return EventAuditLogChanged
	}
	return ""
}

// Channels returns every channel an event about an entity of the given
// type, belonging to ticketID, is published on.
func Channels(entityType EntityType, ticketID string) []string {
	switch entityType {
	case TypeTicket:
		return []string{TicketsChannel, TicketChannel(ticketID)}
	case TypeComment:
		return []string{TicketChannel(ticketID)}
	case TypeAuditLog:
		return []string{AuditLogChannel(ticketID)}
	}
	return nil
}
