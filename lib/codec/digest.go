// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 keyed hash of a deterministic encoding.
type Digest [32]byte

// String returns the hex form, truncated for log readability.
func (d Digest) String() string {
	return hex.EncodeToString(d[:8])
}

// digestDomainKey separates helpdesk digests from any other BLAKE3 use
// of the same bytes. ASCII of the domain name, zero-padded to 32 bytes.
var digestDomainKey = [32]byte{
	'h', 'e', 'l', 'p', 'd', 'e', 's', 'k', '.', 'c', 'o', 'd', 'e', 'c', '.',
	'd', 'i', 'g', 'e', 's', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// DigestOf encodes v deterministically and hashes the encoding. Two
// values with the same logical content yield the same digest regardless
// of map iteration order.
func DigestOf(v any) (Digest, error) {
	data, err := Marshal(v)
	if err != nil {
		return Digest{}, fmt.Errorf("codec: encoding digest input: %w", err)
	}
	return DigestBytes(data), nil
}

// DigestBytes hashes raw bytes in the helpdesk digest domain.
func DigestBytes(data []byte) Digest {
	hasher, err := blake3.NewKeyed(digestDomainKey[:])
	if err != nil {
		panic("codec: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}
