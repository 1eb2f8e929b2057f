// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package api is the HTTP client for the helpdesk JSON API.
//
// Every call goes through [Client.Request]:
//
//	response, err := client.Request(ctx, http.MethodPatch, "/tickets/T-1",
//	    map[string]any{"status": "in_progress"})
//
// Successful responses use the envelope
//
//	{"data": {...} | [...], "meta": {"total": 37, "current_page": 1, "per_page": 10}}
//
// and decode to a [Response] holding either a single entity or a page
// of items. Non-2xx responses decode {"message": "..."} into an
// [*Error]. [Message] turns any error from this package into the single
// human-readable string shown to the user.
package api
