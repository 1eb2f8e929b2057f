// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Code that needs the current time or a delay takes a [Clock] instead of
// calling time.Now or time.After directly. Production wiring passes
// [Real]; tests pass [Fake] and move time forward explicitly with
// [FakeClock.Advance].
//
// Two consumers drive the shape of this package: self-origin markers in
// lib/livecache expire relative to Now, and realtime transports in
// lib/realtime wait out reconnect backoff with After. A test that wants
// a reconnect to happen calls WaitForTimers(1) to be sure the transport
// is parked in its backoff, then Advance to release it.
package clock
