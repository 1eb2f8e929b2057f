// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
)

// exit is swapped in tests.
var exit = os.Exit

// Fatal writes "error: err" to stderr and exits with code 1.
func Fatal(err error) {
	report(os.Stderr, err)
	exit(1)
}

func report(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
}
