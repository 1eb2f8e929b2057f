// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP and connection I/O utilities.
//
// [ReadResponse] bounds body reads at [MaxResponseSize] so a
// misbehaving helpdesk API cannot exhaust memory, and [Snippet] trims an
// undecodable body for a log line. [IsExpectedCloseError] classifies errors seen
// when a realtime connection is torn down normally, so transports can
// log those at Info rather than Warn.
package netutil
