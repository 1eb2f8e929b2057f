// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// fingerprintMode is Core Deterministic Encoding with nil slices and
// maps encoded as empty containers. Cache values come from JSON, where
// an absent list and an empty one are the same thing, so they must
// fingerprint the same.
var fingerprintMode cbor.EncMode

func init() {
	options := cbor.CoreDetEncOptions()
	options.NilContainers = cbor.NilContainerAsEmpty
	var err error
	fingerprintMode, err = options.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v deterministically. The output is for comparison
// and hashing only; nothing decodes it.
func Marshal(v any) ([]byte, error) {
	return fingerprintMode.Marshal(v)
}
