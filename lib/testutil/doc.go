// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for helpdesk packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] wrap the
// select-with-timeout safety valve so individual tests never call
// time.After directly. [RequireNoReceive] is the inverse check, used
// where a test asserts that a realtime echo or a dropped notification
// produced nothing.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
