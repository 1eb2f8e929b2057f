// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package deskmock

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/bureau-foundation/helpdesk/lib/clock"
	"github.com/bureau-foundation/helpdesk/lib/schema"
)

// Config holds the parameters for creating a Server.
type Config struct {
	// Clock stamps created_at and updated_at. Default: real time.
	Clock clock.Clock

	// Token, when set, is required as a bearer token on every API
	// and realtime request.
	Token string

	// Publishers receive every change event in addition to the
	// built-in WebSocket hub.
	Publishers []Publisher

	Logger *slog.Logger
}

// Server is an in-memory helpdesk. Safe for concurrent use.
type Server struct {
	clock  clock.Clock
	token  string
	logger *slog.Logger
	hub    *Hub
	outbox *outbox
	engine *gin.Engine

	mutex     sync.Mutex
	store     *store
	lastStamp time.Time
	hooks     []requestHook
}

// requestHook is a one-shot action for the next request matching
// method and path (relative to /api).
type requestHook struct {
	method string
	path   string
	before func()
	fail   *apiError
}

// New creates a Server with an empty store.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		clock:  config.Clock,
		token:  config.Token,
		logger: logger,
		hub:    NewHub(logger.With("component", "hub")),
		store:  newStore(),
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	s.outbox = &outbox{onError: func(channel string, err error) {
		s.logger.Warn("event publish failed", "channel", channel, "error", err)
	}}
	s.outbox.add(s.hub)
	for _, publisher := range config.Publishers {
		s.outbox.add(publisher)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.logRequests)
	api := engine.Group("/api", s.authenticate, s.runHooks)
	api.GET("/tickets", s.handleListTickets)
	api.POST("/tickets", s.handleCreateTicket)
	api.GET("/tickets/:ticket", s.handleGetTicket)
	api.PATCH("/tickets/:ticket", s.handleUpdateTicket)
	api.DELETE("/tickets/:ticket", s.handleDeleteTicket)
	api.GET("/tickets/:ticket/comments", s.handleListComments)
	api.POST("/tickets/:ticket/comments", s.handleCreateComment)
	api.PATCH("/tickets/:ticket/comments/:comment", s.handleUpdateComment)
	api.DELETE("/tickets/:ticket/comments/:comment", s.handleDeleteComment)
	api.GET("/tickets/:ticket/audit-logs", s.handleListAuditLogs)
	api.DELETE("/tickets/:ticket/audit-logs/:entry", s.handleDeleteAuditLog)
	engine.GET("/realtime", s.authenticate, s.hub.ServeWebSocket)
	s.engine = engine
	return s
}

// Handler returns the HTTP handler serving /api and /realtime.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// AddPublisher adds an event destination.
func (s *Server) AddPublisher(publisher Publisher) {
	s.outbox.add(publisher)
}

// PauseEvents holds change events until ResumeEvents.
func (s *Server) PauseEvents() {
	s.outbox.pause()
}

// ResumeEvents publishes every held event in order and returns how
// many there were.
func (s *Server) ResumeEvents(ctx context.Context) int {
	return s.outbox.resume(ctx)
}

// FailNext makes the next request matching method and path (relative
// to /api, e.g. "/tickets/T1") fail with status and message without
// touching the store.
func (s *Server) FailNext(method, path string, status int, message string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.hooks = append(s.hooks, requestHook{
		method: method,
		path:   path,
		fail:   &apiError{status: status, message: message},
	})
}

// BeforeNext runs fn when the next request matching method and path
// arrives, before it is handled. Tests use it to interleave another
// agent's change with an in-flight request.
func (s *Server) BeforeNext(method, path string, fn func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.hooks = append(s.hooks, requestHook{method: method, path: path, before: fn})
}

func (s *Server) runHooks(c *gin.Context) {
	path := strings.TrimPrefix(c.Request.URL.Path, "/api")
	s.mutex.Lock()
	index := slices.IndexFunc(s.hooks, func(hook requestHook) bool {
		return hook.method == c.Request.Method && hook.path == path
	})
	if index < 0 {
		s.mutex.Unlock()
		c.Next()
		return
	}
	hook := s.hooks[index]
	s.hooks = slices.Delete(s.hooks, index, index+1)
	s.mutex.Unlock()

	if hook.before != nil {
		hook.before()
	}
	if hook.fail != nil {
		respondError(c, hook.fail)
		c.Abort()
		return
	}
	c.Next()
}

func (s *Server) authenticate(c *gin.Context) {
	if s.token == "" || c.GetHeader("Authorization") == "Bearer "+s.token {
		c.Next()
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthenticated."})
}

func (s *Server) logRequests(c *gin.Context) {
	started := time.Now()
	c.Next()
	s.logger.Debug("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(started),
	)
}

// stampLocked returns a strictly increasing RFC 3339 timestamp with
// microsecond precision.
func (s *Server) stampLocked() string {
	now := s.clock.Now().UTC().Truncate(time.Microsecond)
	if !now.After(s.lastStamp) {
		now = s.lastStamp.Add(time.Microsecond)
	}
	s.lastStamp = now
	return now.Format(stampFormat)
}

// stampFormat is fixed width so timestamps order as strings.
const stampFormat = "2006-01-02T15:04:05.000000Z07:00"

func newID() string {
	return ulid.Make().String()
}

// changeEvent builds the realtime event for one entity change.
func (s *Server) changeEvent(kind schema.ChangeKind, entityType schema.EntityType, ticketID, id string, entity schema.Fields) []outboundEvent {
	payload, err := schema.ChangeEvent{Kind: kind, ID: id, Entity: entity}.Encode()
	if err != nil {
		s.logger.Error("encoding change event", "entity_type", entityType, "entity_id", id, "error", err)
		return nil
	}
	return []outboundEvent{{
		channels: schema.Channels(entityType, ticketID),
		name:     schema.EventName(entityType),
		payload:  payload,
	}}
}

func respondError(c *gin.Context, err error) {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server Error"})
		return
	}
	body := gin.H{"message": apiErr.message}
	if len(apiErr.fields) > 0 {
		body["errors"] = apiErr.fields
	}
	c.JSON(apiErr.status, body)
}

func respondEntity(c *gin.Context, status int, fields schema.Fields) {
	c.JSON(status, gin.H{"data": fields})
}

func respondList(c *gin.Context, items []schema.Fields, total, pageNumber, perPage int) {
	c.JSON(http.StatusOK, gin.H{
		"data": items,
		"meta": gin.H{"total": total, "current_page": pageNumber, "per_page": perPage},
	})
}

// bindFields decodes the JSON request body.
func bindFields(c *gin.Context) (schema.Fields, bool) {
	var body schema.Fields
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Malformed JSON body."})
		return nil, false
	}
	if body == nil {
		body = schema.Fields{}
	}
	return body, true
}
