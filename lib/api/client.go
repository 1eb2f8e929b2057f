// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bureau-foundation/helpdesk/lib/netutil"
	"github.com/bureau-foundation/helpdesk/lib/schema"
	"github.com/bureau-foundation/helpdesk/lib/version"
)

// Response is a decoded success envelope. Exactly one of Entity and
// Items is set for responses that carry data; both are nil for empty
// (204) responses.
type Response struct {
	Entity schema.Fields
	Items  []schema.Fields

	// Pagination metadata, zero when the server sent no meta.
	Total   int
	Page    int
	PerPage int
}

// Config holds the parameters for creating a Client.
type Config struct {
	// BaseURL is prefixed to every resource, e.g.
	// "http://localhost:8080/api". A trailing slash is trimmed.
	BaseURL string

	// Token is sent as "Authorization: Bearer <token>" when set.
	Token string

	// HTTPClient defaults to a client with a 15s timeout.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client issues requests against the helpdesk API. Safe for
// concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("api: base URL is required")
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		token:      config.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// envelope is the success body shape.
type envelope struct {
	Data json.RawMessage `json:"data"`
	Meta *struct {
		Total       int `json:"total"`
		CurrentPage int `json:"current_page"`
		PerPage     int `json:"per_page"`
	} `json:"meta"`
}

// Request performs method on resource (a path beginning with "/",
// optionally with a query string). A non-nil payload is JSON-encoded
// as the request body.
func (c *Client) Request(ctx context.Context, method, resource string, payload any) (Response, error) {
	var bodyReader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return Response{}, fmt.Errorf("api: encoding %s %s body: %w", method, resource, err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+resource, bodyReader)
	if err != nil {
		return Response{}, fmt.Errorf("api: creating request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", version.UserAgent())
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	started := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		return Response{}, fmt.Errorf("api: %s %s failed: %w", method, resource, err)
	}
	defer response.Body.Close()

	body, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return Response{}, fmt.Errorf("api: reading %s %s response: %w", method, resource, err)
	}
	c.logger.Debug("api request",
		"method", method,
		"resource", resource,
		"status", response.StatusCode,
		"duration", time.Since(started),
	)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		apiErr := &Error{StatusCode: response.StatusCode, Method: method, Resource: resource}
		if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil {
			// Proxies and crashed backends send HTML; keep a trimmed
			// body for diagnostics but not as the user message.
			c.logger.Warn("api error response is not JSON",
				"method", method,
				"resource", resource,
				"status", response.StatusCode,
				"body", netutil.Snippet(body, 200),
			)
		}
		return Response{}, apiErr
	}

	return decodeEnvelope(body)
}

func decodeEnvelope(body []byte) (Response, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Response{}, nil
	}
	var decoded envelope
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Response{}, fmt.Errorf("api: decoding response envelope: %w", err)
	}

	var result Response
	if decoded.Meta != nil {
		result.Total = decoded.Meta.Total
		result.Page = decoded.Meta.CurrentPage
		result.PerPage = decoded.Meta.PerPage
	}

	data := bytes.TrimSpace(decoded.Data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
	case data[0] == '[':
		if err := json.Unmarshal(data, &result.Items); err != nil {
			return Response{}, fmt.Errorf("api: decoding item list: %w", err)
		}
		if result.Items == nil {
			result.Items = []schema.Fields{}
		}
	case data[0] == '{':
		if err := json.Unmarshal(data, &result.Entity); err != nil {
			return Response{}, fmt.Errorf("api: decoding entity: %w", err)
		}
	default:
		return Response{}, fmt.Errorf("api: response data is neither object nor array: %.40s", data)
	}
	return result, nil
}
