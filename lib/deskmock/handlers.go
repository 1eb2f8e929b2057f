// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package deskmock

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bureau-foundation/helpdesk/lib/schema"
)

// listParams are the query parameters every list endpoint accepts.
// Any other parameter is an equality filter.
var listParams = map[string]bool{"page": true, "per_page": true, "sort": true}

// listRequest is a parsed list query.
type listRequest struct {
	page    int
	perPage int
	sort    string
	filters map[string]string
}

func parseList(c *gin.Context, defaultSort string) (listRequest, bool) {
	request := listRequest{page: 1, sort: c.DefaultQuery("sort", defaultSort), filters: map[string]string{}}
	for name, values := range c.Request.URL.Query() {
		if !listParams[name] && len(values) > 0 {
			request.filters[name] = values[0]
		}
	}
	for name, target := range map[string]*int{"page": &request.page, "per_page": &request.perPage} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 || (name == "page" && value == 0) {
			respondError(c, invalid(name, "The "+name+" must be a positive integer."))
			return listRequest{}, false
		}
		*target = value
	}
	return request, true
}

func (s *Server) list(c *gin.Context, entityType schema.EntityType, defaultSort string, scope map[string]string) {
	request, ok := parseList(c, defaultSort)
	if !ok {
		return
	}
	for name, value := range scope {
		request.filters[name] = value
	}

	s.mutex.Lock()
	matched := s.store.query(entityType, request.filters, request.sort)
	items := fieldsOf(page(matched, request.page, request.perPage))
	s.mutex.Unlock()

	perPage := request.perPage
	if perPage == 0 {
		perPage = len(matched)
	}
	respondList(c, items, len(matched), request.page, perPage)
}

// requireTicket responds 404 and returns false when the path's ticket
// does not exist.
func (s *Server) requireTicket(c *gin.Context) bool {
	s.mutex.Lock()
	_, ok := s.store.get(schema.TypeTicket, c.Param("ticket"))
	s.mutex.Unlock()
	if !ok {
		respondError(c, notFound("Ticket"))
	}
	return ok
}

func (s *Server) handleListTickets(c *gin.Context) {
	s.list(c, schema.TypeTicket, "", nil)
}

func (s *Server) handleCreateTicket(c *gin.Context) {
	body, ok := bindFields(c)
	if !ok {
		return
	}
	// Clients never choose ticket ids over the API.
	delete(body, "id")
	created, err := s.CreateTicket(c.Request.Context(), body)
	if err != nil {
		respondError(c, err)
		return
	}
	respondEntity(c, http.StatusCreated, created)
}

func (s *Server) handleGetTicket(c *gin.Context) {
	ticket, ok := s.Ticket(c.Param("ticket"))
	if !ok {
		respondError(c, notFound("Ticket"))
		return
	}
	respondEntity(c, http.StatusOK, ticket)
}

func (s *Server) handleUpdateTicket(c *gin.Context) {
	body, ok := bindFields(c)
	if !ok {
		return
	}
	updated, err := s.UpdateTicket(c.Request.Context(), c.Param("ticket"), body, actorOf(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondEntity(c, http.StatusOK, updated)
}

func (s *Server) handleDeleteTicket(c *gin.Context) {
	if err := s.DeleteTicket(c.Request.Context(), c.Param("ticket")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListComments(c *gin.Context) {
	if !s.requireTicket(c) {
		return
	}
	s.list(c, schema.TypeComment, "created_at", map[string]string{"ticket_id": c.Param("ticket")})
}

func (s *Server) handleCreateComment(c *gin.Context) {
	body, ok := bindFields(c)
	if !ok {
		return
	}
	delete(body, "id")
	if !body.Has("author") {
		body["author"] = actorOf(c)
	}
	created, err := s.CreateComment(c.Request.Context(), c.Param("ticket"), body)
	if err != nil {
		respondError(c, err)
		return
	}
	respondEntity(c, http.StatusCreated, created)
}

func (s *Server) handleUpdateComment(c *gin.Context) {
	body, ok := bindFields(c)
	if !ok {
		return
	}
	updated, err := s.UpdateComment(c.Request.Context(), c.Param("ticket"), c.Param("comment"), body.String("body"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondEntity(c, http.StatusOK, updated)
}

func (s *Server) handleDeleteComment(c *gin.Context) {
	if err := s.DeleteComment(c.Request.Context(), c.Param("ticket"), c.Param("comment")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListAuditLogs(c *gin.Context) {
	if !s.requireTicket(c) {
		return
	}
	s.list(c, schema.TypeAuditLog, "", map[string]string{"ticket_id": c.Param("ticket")})
}

func (s *Server) handleDeleteAuditLog(c *gin.Context) {
	if err := s.DeleteAuditLog(c.Request.Context(), c.Param("ticket"), c.Param("entry")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// actorOf names the agent making a request: the X-Agent header, or
// "agent" when absent.
func actorOf(c *gin.Context) string {
	if agent := c.GetHeader("X-Agent"); agent != "" {
		return agent
	}
	return "agent"
}
