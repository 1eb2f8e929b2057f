// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// MaxResponseSize bounds API response reads: 32 MB. A full ticket page
// with embedded comments is a few hundred kilobytes.
const MaxResponseSize int64 = 32 << 20

// ErrResponseTooLarge is returned by [ReadResponse] when the body does
// not fit in [MaxResponseSize].
var ErrResponseTooLarge = errors.New("response body exceeds size limit")

// ReadResponse reads a whole API response body. A body longer than
// MaxResponseSize is an error rather than a silently truncated read,
// since a cut-off JSON page would decode as garbage.
func ReadResponse(body io.Reader) ([]byte, error) {
	return readLimited(body, MaxResponseSize)
}

func readLimited(body io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrResponseTooLarge, limit)
	}
	return data, nil
}

// Snippet returns at most limit bytes of body as a single line, for
// logging bodies that could not be decoded.
func Snippet(body []byte, limit int) string {
	text := strings.Join(strings.Fields(string(body)), " ")
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
