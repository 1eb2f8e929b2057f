// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package livecache

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

const provisionalPrefix = "tmp-"

// NewProvisionalID returns a client-side id for an optimistic create.
// ULIDs sort by creation time, so provisional items created in one
// session keep their relative order.
func NewProvisionalID() string {
	return provisionalPrefix + ulid.Make().String()
}

// IsProvisional reports whether id was produced by NewProvisionalID.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, provisionalPrefix)
}
