// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for the helpdesk binaries.
// [Fatal] reports an error from run() on stderr before the structured
// logger exists (or after it has been torn down) and exits non-zero.
package process
