// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package desk

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bureau-foundation/helpdesk/lib/api"
	"github.com/bureau-foundation/helpdesk/lib/livecache"
	"github.com/bureau-foundation/helpdesk/lib/realtime"
	"github.com/bureau-foundation/helpdesk/lib/schema"
	"github.com/bureau-foundation/helpdesk/lib/testutil"
)

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Config{Transport: realtime.NewMemoryTransport()}); err == nil {
		t.Error("New accepted a config without an API")
	}
	client, err := api.NewClient(api.Config{BaseURL: "http://localhost"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := New(Config{API: client}); err == nil {
		t.Error("New accepted a config without a transport")
	}
}

func TestLoadAndRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	key := f.loadTickets(t, firstPage)
	tickets, total, err := f.desk.Tickets(key)
	if err != nil {
		t.Fatalf("Tickets: %v", err)
	}
	if total != 3 || len(tickets) != 3 || tickets[0].ID != "T3" || tickets[2].Subject != "Printer on fire" {
		t.Fatalf("tickets = %+v (total %d)", tickets, total)
	}

	if _, err := f.desk.LoadTicket(ctx, "T2"); err != nil {
		t.Fatalf("LoadTicket: %v", err)
	}
	ticket, ok := f.desk.Ticket("T2")
	if !ok || ticket.Subject != "VPN down" || ticket.Status != schema.StatusOpen {
		t.Fatalf("Ticket(T2) = %+v, %v", ticket, ok)
	}

	commentsKey, err := f.desk.LoadComments(ctx, "T1")
	if err != nil {
		t.Fatalf("LoadComments: %v", err)
	}
	comments, err := f.desk.Comments(commentsKey)
	if err != nil {
		t.Fatalf("Comments: %v", err)
	}
	if len(comments) != 2 || comments[0].ID != "C1" || comments[1].ID != "C2" {
		t.Fatalf("comments = %+v, want oldest first", comments)
	}

	auditKey, err := f.desk.LoadAuditLog(ctx, "T1", 1, 2)
	if err != nil {
		t.Fatalf("LoadAuditLog: %v", err)
	}
	audit := f.slot(t, auditKey)
	requireIDs(t, "audit page", audit, "L3", "L2")
	if audit.Total != 3 {
		t.Errorf("audit total = %d, want 3", audit.Total)
	}
}

func TestLoadValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.desk.LoadTickets(ctx, livecache.Single("T1")); err == nil {
		t.Error("LoadTickets accepted a single scope")
	}
	if _, err := f.desk.LoadTicket(ctx, ""); err == nil {
		t.Error("LoadTicket accepted an empty id")
	}
	if _, err := f.desk.LoadComments(ctx, ""); err == nil {
		t.Error("LoadComments accepted an empty ticket id")
	}
	_, err := f.desk.LoadTicket(ctx, "T404")
	if !api.IsStatus(err, http.StatusNotFound) {
		t.Errorf("LoadTicket(T404) err = %v, want 404", err)
	}
	if _, _, err := f.desk.Tickets(livecache.KeyFor(schema.TypeTicket, firstPage)); err == nil {
		t.Error("Tickets read a slot that was never loaded")
	}
}

// The echo of a confirmed status change arrives after the response:
// it is recognised and changes nothing.
func TestStatusChangeEchoAfterConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.loadTickets(t, firstPage)
	watch := f.desk.WatchTicketList(key)
	defer watch.Close()

	f.server.PauseEvents()
	result, err := f.desk.SetTicketStatus(ctx, "T1", schema.StatusResolved)
	if err != nil {
		t.Fatalf("SetTicketStatus: %v", err)
	}
	if result.Status != livecache.StatusConfirmed || result.Entity == nil {
		t.Fatalf("result = %+v", result)
	}
	confirmed := f.fingerprint(t, key)
	if ticket, _ := f.desk.Ticket("T1"); ticket.Status != schema.StatusResolved {
		t.Fatalf("status = %q, want resolved", ticket.Status)
	}
	if ticket, _ := f.desk.Ticket("T1"); ticket.UpdatedAt != result.Entity.UpdatedAt() {
		t.Errorf("updated_at = %q, want the server's %q", ticket.UpdatedAt, result.Entity.UpdatedAt())
	}

	changes, cancel := f.desk.Cache().Subscribe()
	defer cancel()
	if held := f.server.ResumeEvents(ctx); held == 0 {
		t.Fatal("no events were held")
	}
	testutil.RequireNoReceive(t, changes, 50*time.Millisecond, "echo rewrote the cache")
	if f.fingerprint(t, key) != confirmed {
		t.Error("echo changed the list slot")
	}
}

// The echo arrives while the write is still in flight: the list
// converges on the server's state without counting anything twice.
func TestStatusChangeEchoBeforeConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	openTickets := livecache.Scope{Page: 1, PerPage: 10, Filters: map[string]string{"status": schema.StatusOpen}}
	key := f.loadTickets(t, openTickets)
	watch := f.desk.WatchTicketList(key)
	defer watch.Close()

	if _, err := f.desk.SetTicketStatus(ctx, "T1", schema.StatusClosed); err != nil {
		t.Fatalf("SetTicketStatus: %v", err)
	}
	slot := f.slot(t, key)
	requireIDs(t, "open tickets", slot, "T2")
	if slot.Total != 1 {
		t.Errorf("total = %d, want 1", slot.Total)
	}
	if !slot.Stale {
		t.Error("slot a ticket left is not stale")
	}

	if err := f.desk.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	slot = f.slot(t, key)
	requireIDs(t, "refetched open tickets", slot, "T2")
	if slot.Stale || slot.Total != 1 {
		t.Errorf("after refresh: stale %v total %d", slot.Stale, slot.Total)
	}
}

// Another agent creates a ticket: it appears at the top of page one
// and the total grows.
func TestForeignCreateAppearsOnFirstPage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.loadTickets(t, livecache.Scope{Page: 1, PerPage: 2})
	second := f.loadTickets(t, livecache.Scope{Page: 2, PerPage: 2})
	secondBefore := f.fingerprint(t, second)
	watch := f.desk.WatchTicketList(first)
	defer watch.Close()

	created, err := f.server.CreateTicket(ctx, schema.Fields{"subject": "Coffee machine", "status": schema.StatusNew})
	if err != nil {
		t.Fatalf("server CreateTicket: %v", err)
	}

	slot := f.slot(t, first)
	if slot.Total != 4 || slot.IDs()[0] != created.String("id") {
		t.Fatalf("page 1 = %v (total %d), want the new ticket first of 4", slot.IDs(), slot.Total)
	}
	if f.fingerprint(t, second) != secondBefore {
		t.Error("page 2 changed")
	}
}

func TestCreateTicketAdoptsServerID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.loadTickets(t, firstPage)
	watch := f.desk.WatchTicketList(key)
	defer watch.Close()

	ticket, err := f.desk.CreateTicket(ctx, schema.Ticket{Subject: "Monitor flickers", Priority: schema.PriorityHigh})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if ticket.ID == "" || livecache.IsProvisional(ticket.ID) {
		t.Fatalf("id = %q, want the server's", ticket.ID)
	}
	if ticket.Status != schema.StatusNew {
		t.Errorf("status = %q, want new", ticket.Status)
	}

	// The created event arrived before the response; the entity is
	// still listed exactly once.
	slot := f.slot(t, key)
	requireIDs(t, "tickets", slot, ticket.ID, "T3", "T2", "T1")
	if slot.Total != 4 {
		t.Errorf("total = %d, want 4", slot.Total)
	}
	if len(f.desk.Pending()) != 0 {
		t.Errorf("pending = %v", f.desk.Pending())
	}
}

func TestCreateTicketValidation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.desk.CreateTicket(context.Background(), schema.Ticket{Status: schema.StatusOpen}); err == nil {
		t.Error("CreateTicket accepted a ticket without a subject")
	}
	if _, err := f.desk.SetTicketStatus(context.Background(), "T1", "snoozed"); err == nil {
		t.Error("SetTicketStatus accepted an unknown status")
	}
	if _, err := f.desk.UpdateTicket(context.Background(), "T1", schema.Fields{"id": "T9"}); err == nil {
		t.Error("UpdateTicket accepted an id change")
	}
	if _, err := f.desk.UpdateTicket(context.Background(), "T1", nil); err == nil {
		t.Error("UpdateTicket accepted an empty patch")
	}
}

func TestRejectedCreateDisappears(t *testing.T) {
	f := newFixture(t)
	key := f.loadTickets(t, firstPage)
	before := f.fingerprint(t, key)
	f.server.FailNext(http.MethodPost, "/tickets", http.StatusUnprocessableEntity, "The subject has already been taken.")

	_, err := f.desk.CreateTicket(context.Background(), schema.Ticket{Subject: "Printer on fire"})
	var failure *livecache.MutationError
	if !errors.As(err, &failure) || failure.Message != "The subject has already been taken." {
		t.Fatalf("err = %v", err)
	}
	if f.fingerprint(t, key) != before {
		t.Error("provisional ticket survived the rollback")
	}
	notified := testutil.RequireReceive(t, f.failures, time.Second, "notifier")
	if notified.Mutation.Operation != livecache.OperationCreate {
		t.Errorf("notified about %s", notified.Mutation.Operation)
	}
}

// A second edit while the first is in flight is suppressed without a
// network call.
func TestSecondEditSuppressedWhileInFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.desk.LoadTicket(ctx, "T1"); err != nil {
		t.Fatalf("LoadTicket: %v", err)
	}

	var second livecache.Result
	var secondErr error
	var inFlight bool
	hookDone := make(chan struct{})
	f.server.BeforeNext(http.MethodPatch, "/tickets/T1", func() {
		defer close(hookDone)
		inFlight = f.desk.InFlight(schema.TypeTicket, "T1")
		second, secondErr = f.desk.SetTicketStatus(ctx, "T1", schema.StatusClosed)
	})
	if _, err := f.desk.SetTicketStatus(ctx, "T1", schema.StatusInProgress); err != nil {
		t.Fatalf("SetTicketStatus: %v", err)
	}
	testutil.RequireClosed(t, hookDone, time.Second, "hook did not run")
	if !inFlight {
		t.Error("InFlight was false during the request")
	}
	if secondErr != nil || !second.Suppressed {
		t.Fatalf("second edit = %+v, %v; want suppressed", second, secondErr)
	}
	if ticket, _ := f.desk.Ticket("T1"); ticket.Status != schema.StatusInProgress {
		t.Errorf("status = %q, want in_progress", ticket.Status)
	}
	server, _ := f.server.Ticket("T1")
	if server.String("status") != schema.StatusInProgress {
		t.Errorf("server status = %q", server.String("status"))
	}
	if f.desk.InFlight(schema.TypeTicket, "T1") {
		t.Error("InFlight still set after confirmation")
	}
}

func TestFailedDeleteRestoresTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.loadTickets(t, firstPage)
	single, err := f.desk.LoadTicket(ctx, "T2")
	if err != nil {
		t.Fatalf("LoadTicket: %v", err)
	}
	listBefore, singleBefore := f.fingerprint(t, key), f.fingerprint(t, single)
	f.server.FailNext(http.MethodDelete, "/tickets/T2", http.StatusForbidden, "You may not delete this ticket.")

	_, err = f.desk.DeleteTicket(ctx, "T2")
	if !api.IsStatus(err, http.StatusForbidden) {
		t.Fatalf("err = %v, want 403", err)
	}
	if f.fingerprint(t, key) != listBefore || f.fingerprint(t, single) != singleBefore {
		t.Error("rollback did not restore the ticket")
	}
	if f.desk.Cache().Deleted(schema.TypeTicket, "T2") {
		t.Error("T2 still marked deleted")
	}
}

// Scenario: a comment edit fails with a server error. The edit is
// reverted, the user is told why, and nothing stays pending.
func TestFailedCommentEditReverts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key, err := f.desk.LoadComments(ctx, "T1")
	if err != nil {
		t.Fatalf("LoadComments: %v", err)
	}
	watch := f.desk.WatchTicket("T1")
	defer watch.Close()
	before := f.fingerprint(t, key)
	f.server.FailNext(http.MethodPatch, "/tickets/T1/comments/C1", http.StatusInternalServerError, "Server Error")

	_, err = f.desk.EditComment(ctx, "T1", "C1", "Use a fire extinguisher.")
	if err == nil {
		t.Fatal("EditComment succeeded")
	}
	if f.fingerprint(t, key) != before {
		t.Error("comment not reverted")
	}
	notified := testutil.RequireReceive(t, f.failures, time.Second, "notifier")
	if notified.Message != "Server Error" {
		t.Errorf("message = %q", notified.Message)
	}
	if f.desk.InFlight(schema.TypeComment, "C1") || len(f.desk.Pending()) != 0 {
		t.Error("edit still pending")
	}
}

func TestCommentLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key, err := f.desk.LoadComments(ctx, "T1")
	if err != nil {
		t.Fatalf("LoadComments: %v", err)
	}
	otherThread, err := f.desk.LoadComments(ctx, "T2")
	if err != nil {
		t.Fatalf("LoadComments(T2): %v", err)
	}
	watch := f.desk.WatchTicket("T1")
	defer watch.Close()

	f.server.PauseEvents()
	comment, err := f.desk.CreateComment(ctx, schema.Comment{TicketID: "T1", Body: "Replaced the toner."})
	if err != nil {
		t.Fatalf("CreateComment: %v", err)
	}
	requireIDs(t, "thread", f.slot(t, key), "C1", "C2", comment.ID)
	if len(f.slot(t, otherThread).Items) != 0 {
		t.Error("comment leaked into another ticket's thread")
	}
	f.server.ResumeEvents(ctx)
	requireIDs(t, "thread after echo", f.slot(t, key), "C1", "C2", comment.ID)

	if _, err := f.desk.EditComment(ctx, "T1", comment.ID, "Replaced the toner twice."); err != nil {
		t.Fatalf("EditComment: %v", err)
	}
	comments, err := f.desk.Comments(key)
	if err != nil {
		t.Fatalf("Comments: %v", err)
	}
	if comments[2].Body != "Replaced the toner twice." {
		t.Errorf("body = %q", comments[2].Body)
	}

	if _, err := f.desk.DeleteComment(ctx, "T1", "C1"); err != nil {
		t.Fatalf("DeleteComment: %v", err)
	}
	slot := f.slot(t, key)
	requireIDs(t, "thread after delete", slot, "C2", comment.ID)
	if slot.Total != 2 {
		t.Errorf("total = %d, want 2", slot.Total)
	}
}

func TestForeignCommentAndAuditEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	comments, err := f.desk.LoadComments(ctx, "T1")
	if err != nil {
		t.Fatalf("LoadComments: %v", err)
	}
	audit, err := f.desk.LoadAuditLog(ctx, "T1", 1, 10)
	if err != nil {
		t.Fatalf("LoadAuditLog: %v", err)
	}
	watch := f.desk.WatchTicket("T1")
	defer watch.Close()

	created, err := f.server.CreateComment(ctx, "T1", schema.Fields{"author": "kim", "body": "On my way."})
	if err != nil {
		t.Fatalf("server CreateComment: %v", err)
	}
	requireIDs(t, "thread", f.slot(t, comments), "C1", "C2", created.String("id"))

	slot := f.slot(t, audit)
	if slot.Total != 4 || slot.Items[0].Fields.String("action") != "comment_added" {
		t.Fatalf("audit = %v (total %d), want the comment_added entry first", slot.IDs(), slot.Total)
	}
}

// Scenario: the user deletes an audit-log entry. The server's delete
// event arrives before the response; the entry is removed and counted
// once, and a late duplicate of the event changes nothing.
func TestAuditLogDeleteCountsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key, err := f.desk.LoadAuditLog(ctx, "T1", 1, 10)
	if err != nil {
		t.Fatalf("LoadAuditLog: %v", err)
	}
	watch := f.desk.WatchTicket("T1")
	defer watch.Close()

	result, err := f.desk.DeleteAuditLog(ctx, "T1", "L2")
	if err != nil {
		t.Fatalf("DeleteAuditLog: %v", err)
	}
	if result.Status != livecache.StatusConfirmed {
		t.Fatalf("result = %+v", result)
	}
	slot := f.slot(t, key)
	requireIDs(t, "audit", slot, "L3", "L1")
	if slot.Total != 2 {
		t.Fatalf("total = %d, want 2", slot.Total)
	}

	late, err := schema.ChangeEvent{Kind: schema.KindDeleted, ID: "L2"}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for range 2 {
		f.transport.Publish(schema.AuditLogChannel("T1"), schema.EventAuditLogChanged, late)
	}
	slot = f.slot(t, key)
	requireIDs(t, "audit after duplicates", slot, "L3", "L1")
	if slot.Total != 2 {
		t.Errorf("total = %d after duplicates, want 2", slot.Total)
	}
}

// Scenario: another agent deletes the same audit-log entry while the
// user's delete is in flight. The user's request then fails with 404;
// the rollback must not bring the entry back.
func TestAuditLogDeleteRacesForeignDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key, err := f.desk.LoadAuditLog(ctx, "T1", 1, 10)
	if err != nil {
		t.Fatalf("LoadAuditLog: %v", err)
	}
	watch := f.desk.WatchTicket("T1")
	defer watch.Close()

	f.server.BeforeNext(http.MethodDelete, "/tickets/T1/audit-logs/L2", func() {
		if err := f.server.DeleteAuditLog(ctx, "T1", "L2"); err != nil {
			t.Errorf("foreign delete: %v", err)
		}
	})
	_, err = f.desk.DeleteAuditLog(ctx, "T1", "L2")
	if !api.IsStatus(err, http.StatusNotFound) {
		t.Fatalf("err = %v, want 404", err)
	}

	slot := f.slot(t, key)
	requireIDs(t, "audit", slot, "L3", "L1")
	if slot.Total != 2 {
		t.Errorf("total = %d, want 2", slot.Total)
	}
	if f.server.Count(schema.TypeAuditLog, map[string]string{"ticket_id": "T1"}) != 2 {
		t.Error("server and cache disagree")
	}
}

func TestMutationValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	checks := []struct {
		name string
		call func() error
	}{
		{"delete ticket without id", func() error { _, err := f.desk.DeleteTicket(ctx, ""); return err }},
		{"comment without body", func() error {
			_, err := f.desk.CreateComment(ctx, schema.Comment{TicketID: "T1"})
			return err
		}},
		{"edit without ids", func() error { _, err := f.desk.EditComment(ctx, "", "C1", "x"); return err }},
		{"edit to empty body", func() error { _, err := f.desk.EditComment(ctx, "T1", "C1", ""); return err }},
		{"delete comment without ids", func() error { _, err := f.desk.DeleteComment(ctx, "T1", ""); return err }},
		{"delete audit entry without ids", func() error { _, err := f.desk.DeleteAuditLog(ctx, "", "L1"); return err }},
	}
	for _, check := range checks {
		t.Run(check.name, func(t *testing.T) {
			if check.call() == nil {
				t.Error("accepted")
			}
		})
	}
}
