// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package deskmock

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/helpdesk/lib/schema"
)

// Seed is the initial content of a Server, in file order. Seed files
// are JSONC: JSON with // and /* */ comments and trailing commas.
//
//	{
//	  "tickets": [{"id": "T1", "subject": "Printer on fire", "status": "open"}],
//	  "comments": [{"ticket_id": "T1", "body": "Have you tried water?"}],
//	  "audit_logs": [],
//	}
type Seed struct {
	Tickets   []schema.Fields `json:"tickets"`
	Comments  []schema.Fields `json:"comments"`
	AuditLogs []schema.Fields `json:"audit_logs"`
}

// ParseSeed strips JSONC comments and trailing commas from data, then
// decodes it.
func ParseSeed(data []byte) (Seed, error) {
	var seed Seed
	if err := json.Unmarshal(jsonc.ToJSON(data), &seed); err != nil {
		return Seed{}, fmt.Errorf("parsing seed: %w", err)
	}
	return seed, nil
}

// ReadSeedFile reads and parses a JSONC seed file.
func ReadSeedFile(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("reading seed: %w", err)
	}
	seed, err := ParseSeed(data)
	if err != nil {
		return Seed{}, fmt.Errorf("%s: %w", path, err)
	}
	return seed, nil
}

// Load adds seed content to the store without publishing events.
// Missing ids and timestamps are filled in. Comments and audit-log
// entries must name an existing ticket.
func (s *Server) Load(seed Seed) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for index, fields := range seed.Tickets {
		if err := validateTicketFields(fields); err != nil {
			return fmt.Errorf("seed ticket %d: %w", index, err)
		}
		if fields.String("subject") == "" {
			return fmt.Errorf("seed ticket %d: subject is required", index)
		}
		fields = s.completeLocked(fields)
		if !fields.Has("status") {
			fields["status"] = schema.StatusNew
		}
		s.store.put(schema.TypeTicket, fields)
	}
	children := []struct {
		entityType schema.EntityType
		items      []schema.Fields
	}{
		{schema.TypeComment, seed.Comments},
		{schema.TypeAuditLog, seed.AuditLogs},
	}
	for _, child := range children {
		for index, fields := range child.items {
			ticketID := fields.String("ticket_id")
			if _, ok := s.store.get(schema.TypeTicket, ticketID); !ok {
				return fmt.Errorf("seed %s %d: unknown ticket %q", child.entityType, index, ticketID)
			}
			s.store.put(child.entityType, s.completeLocked(fields))
		}
	}
	return nil
}

func (s *Server) completeLocked(fields schema.Fields) schema.Fields {
	fields = fields.Clone()
	if fields.String("id") == "" {
		fields["id"] = newID()
	}
	if fields.String("created_at") == "" {
		fields["created_at"] = s.stampLocked()
	}
	if fields.String("updated_at") == "" {
		fields["updated_at"] = fields["created_at"]
	}
	return fields
}
