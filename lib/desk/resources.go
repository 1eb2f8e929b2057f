// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package desk

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"

	"github.com/bureau-foundation/helpdesk/lib/livecache"
	"github.com/bureau-foundation/helpdesk/lib/schema"
)

// filterTicketID is the scope filter naming the parent ticket of
// comment and audit-log lists. It is part of the resource path, not
// the query.
const filterTicketID = "ticket_id"

// CommentsScope is the scope of a ticket's whole comment thread,
// oldest first. New comments are appended.
func CommentsScope(ticketID string) livecache.Scope {
	return livecache.Scope{
		Page:    1,
		Sort:    "created_at",
		Filters: map[string]string{filterTicketID: ticketID},
	}
}

// AuditLogScope is the scope of one page of a ticket's audit log,
// newest first.
func AuditLogScope(ticketID string, page, perPage int) livecache.Scope {
	return livecache.Scope{
		Page:    page,
		PerPage: perPage,
		Filters: map[string]string{filterTicketID: ticketID},
	}
}

func ticketResource(id string) string {
	return "/tickets/" + url.PathEscape(id)
}

func commentsResource(ticketID string) string {
	return ticketResource(ticketID) + "/comments"
}

func commentResource(ticketID, commentID string) string {
	return commentsResource(ticketID) + "/" + url.PathEscape(commentID)
}

func auditLogResource(ticketID string) string {
	return ticketResource(ticketID) + "/audit-logs"
}

func auditLogEntryResource(ticketID, entryID string) string {
	return auditLogResource(ticketID) + "/" + url.PathEscape(entryID)
}

// listQuery encodes a list scope as a query string: page, per_page,
// sort, and one parameter per filter not in skip.
func listQuery(scope livecache.Scope, skip ...string) string {
	values := url.Values{}
	for field, value := range scope.Filters {
		if !slices.Contains(skip, field) {
			values.Set(field, value)
		}
	}
	if scope.Page > 0 {
		values.Set("page", strconv.Itoa(scope.Page))
	}
	if scope.PerPage > 0 {
		values.Set("per_page", strconv.Itoa(scope.PerPage))
	}
	if scope.Sort != "" {
		values.Set("sort", scope.Sort)
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

// readResource returns the GET resource that fills a slot with the
// given type and scope.
func readResource(entityType schema.EntityType, scope livecache.Scope) (string, error) {
	if entityType == schema.TypeTicket {
		if scope.IsSingle() {
			return ticketResource(scope.EntityID), nil
		}
		return "/tickets" + listQuery(scope), nil
	}

	if scope.IsSingle() {
		return "", fmt.Errorf("desk: %s entities are only loaded as lists", entityType)
	}
	ticketID := scope.Filters[filterTicketID]
	if ticketID == "" {
		return "", fmt.Errorf("desk: %s scope has no %s filter", entityType, filterTicketID)
	}
	switch entityType {
	case schema.TypeComment:
		return commentsResource(ticketID) + listQuery(scope, filterTicketID), nil
	case schema.TypeAuditLog:
		return auditLogResource(ticketID) + listQuery(scope, filterTicketID), nil
	}
	return "", fmt.Errorf("desk: unknown entity type %q", entityType)
}
