// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the deterministic CBOR encoding used to compare
// and fingerprint cache contents.
//
// The helpdesk client speaks JSON on the wire (HTTP API, realtime
// frames). CBOR is used internally where identical logical data must
// produce identical bytes:
//
//   - Slot fingerprints in lib/livecache. A rolled-back slot must equal
//     its pre-mutation snapshot byte for byte, and the cheapest honest
//     way to check that is to compare Core Deterministic encodings.
//   - Self-origin digests. A confirmed mutation records a [Digest] of
//     the fields it changed; the matching realtime echo is recognized by
//     recomputing the digest over the same fields of the event payload.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2) with nil
// slices and maps written as empty containers. Nothing decodes these
// bytes; they exist to be compared and hashed.
//
//	data, err := codec.Marshal(value)
//	digest, err := codec.DigestOf(value)
//
// Types carrying `json` tags encode with the same field names, since
// fxamacker/cbor falls back to json tags when no cbor tag is present.
package codec
