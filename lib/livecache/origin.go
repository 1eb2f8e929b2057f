// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package livecache

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/helpdesk/lib/clock"
	"github.com/bureau-foundation/helpdesk/lib/codec"
	"github.com/bureau-foundation/helpdesk/lib/schema"
)

// DefaultEchoWindow is how long a self-origin marker waits for its
// realtime echo.
const DefaultEchoWindow = 10 * time.Second

// Fingerprint identifies the content of one confirmed local change: the
// event kind, the names of the fields it changed, and a digest of their
// values. An event matches only if it has the same kind and carries the
// same values for every one of those fields, so an unrelated later
// change to the same entity is never mistaken for the echo.
type Fingerprint struct {
	Kind   schema.ChangeKind
	Fields []string
	Digest codec.Digest
}

// NewFingerprint computes the fingerprint of a change. The id field is
// excluded; the marker is already keyed by id.
func NewFingerprint(kind schema.ChangeKind, fields schema.Fields) (Fingerprint, error) {
	names := slices.Sorted(maps.Keys(fields))
	names = slices.DeleteFunc(names, func(name string) bool { return name == "id" })
	digest, err := codec.DigestOf(fields.Project(names))
	if err != nil {
		return Fingerprint{}, fmt.Errorf("livecache: fingerprinting %s change: %w", kind, err)
	}
	return Fingerprint{Kind: kind, Fields: names, Digest: digest}, nil
}

// Matches reports whether an event of the given kind and payload is
// the change this fingerprint describes.
func (f Fingerprint) Matches(kind schema.ChangeKind, payload schema.Fields) bool {
	if kind != f.Kind {
		return false
	}
	for _, name := range f.Fields {
		if !payload.Has(name) {
			return false
		}
	}
	digest, err := codec.DigestOf(payload.Project(f.Fields))
	return err == nil && digest == f.Digest
}

type markerKey struct {
	entityType schema.EntityType
	id         string
}

type marker struct {
	fingerprint Fingerprint
	expires     time.Time
}

// Suppressor holds short-lived self-origin markers. Markers are
// recorded when a local mutation is confirmed and consumed by the
// first realtime event that matches them. Every marker expires after
// the echo window; expired markers are pruned on each call.
//
// Suppressor has its own lock and never calls out while holding it,
// so the cache may call it during a write turn.
type Suppressor struct {
	mutex   sync.Mutex
	clock   clock.Clock
	window  time.Duration
	markers map[markerKey][]marker
}

// NewSuppressor creates a Suppressor. A non-positive window uses
// [DefaultEchoWindow]; a nil clock uses the real clock.
func NewSuppressor(clk clock.Clock, window time.Duration) *Suppressor {
	if clk == nil {
		clk = clock.Real()
	}
	if window <= 0 {
		window = DefaultEchoWindow
	}
	return &Suppressor{
		clock:   clk,
		window:  window,
		markers: make(map[markerKey][]marker),
	}
}

// Window returns the configured echo window.
func (s *Suppressor) Window() time.Duration {
	return s.window
}

// MarkSelfOrigin records that the local actor just changed the entity.
// Several markers may be outstanding for one entity when confirmations
// outpace their echoes; each is consumed independently.
func (s *Suppressor) MarkSelfOrigin(entityType schema.EntityType, id string, fingerprint Fingerprint) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	now := s.clock.Now()
	s.pruneLocked(now)
	key := markerKey{entityType, id}
	s.markers[key] = append(s.markers[key], marker{
		fingerprint: fingerprint,
		expires:     now.Add(s.window),
	})
}

// ConsumeIfSelfOrigin reports whether the event is the echo of an
// outstanding marker, removing that marker if so.
func (s *Suppressor) ConsumeIfSelfOrigin(entityType schema.EntityType, id string, kind schema.ChangeKind, payload schema.Fields) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.pruneLocked(s.clock.Now())

	key := markerKey{entityType, id}
	outstanding := s.markers[key]
	for index, candidate := range outstanding {
		if !candidate.fingerprint.Matches(kind, payload) {
			continue
		}
		remaining := slices.Delete(slices.Clone(outstanding), index, index+1)
		if len(remaining) == 0 {
			delete(s.markers, key)
		} else {
			s.markers[key] = remaining
		}
		return true
	}
	return false
}

// Outstanding returns the number of unexpired markers.
func (s *Suppressor) Outstanding() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.pruneLocked(s.clock.Now())
	count := 0
	for _, markers := range s.markers {
		count += len(markers)
	}
	return count
}

func (s *Suppressor) pruneLocked(now time.Time) {
	for key, markers := range s.markers {
		live := slices.DeleteFunc(markers, func(m marker) bool {
			return !now.Before(m.expires)
		})
		if len(live) == 0 {
			delete(s.markers, key)
		} else {
			s.markers[key] = live
		}
	}
}
