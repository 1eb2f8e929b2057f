// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error is a non-2xx API response. Callers inspect it with errors.As:
//
//	var apiErr *api.Error
//	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound { ... }
type Error struct {
	// Message is the human-readable description from the server.
	Message string `json:"message"`

	// Errors holds per-field validation messages, when the server
	// sends them (422 responses).
	Errors map[string][]string `json:"errors,omitempty"`

	StatusCode int    `json:"-"`
	Method     string `json:"-"`
	Resource   string `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %s %s: %d: %s", e.Method, e.Resource, e.StatusCode, e.displayMessage())
}

func (e *Error) displayMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if text := http.StatusText(e.StatusCode); text != "" {
		return text
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// IsStatus reports whether err is an *Error with the given status code.
func IsStatus(err error, statusCode int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == statusCode
}

// Message returns the single human-readable string for err. Server
// messages are passed through; transport failures get a generic
// sentence rather than a Go error chain.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.displayMessage()
	}
	if errors.Is(err, context.Canceled) {
		return "The request was cancelled."
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The helpdesk server took too long to respond."
	}
	return "Could not reach the helpdesk server."
}
