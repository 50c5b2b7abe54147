// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

// Package clinical is a token-scoped client for the Bayleaf clinical
// backend. The caller's bearer token is forwarded as-is; the backend infers
// the patient from it, so no patient ids are passed.
package clinical

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

const (
	// DefaultTimeout bounds one backend call.
	DefaultTimeout = 15 * time.Second
	// DefaultWindow is the slot search range used when no dates are given.
	DefaultWindow = 30 * 24 * time.Hour
	// DefaultServiceID is the service searched when none is given.
	DefaultServiceID = 1

	dateLayout = "2006-01-02"
)

// RequestError is a non-2xx backend response. Body is the decoded JSON
// when the response was JSON, otherwise the raw text.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Body       any
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("clinical %s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// Config configures a Client.
type Config struct {
	BaseURL            string
	Timeout            time.Duration
	OnboardingPassword string
	HTTPClient         *http.Client
	Logger             *slog.Logger
	// Now overrides the clock used for default date windows.
	Now func() time.Time
}

// Client talks to the clinical backend.
type Client struct {
	base     string
	password string
	http     *http.Client
	log      *slog.Logger
	now      func() time.Time
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, bayerr.New(bayerr.CodeClinicalConfigInvalid, "clinical base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, bayerr.Wrap(err, bayerr.CodeClinicalConfigInvalid, "parsing clinical base url")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		base:     base,
		password: cfg.OnboardingPassword,
		http:     hc,
		log:      logger.With("component", "clinical"),
		now:      now,
	}, nil
}

// do performs one request and decodes the JSON response into a generic
// value. token may be empty for unauthenticated calls.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, token string, body any) (any, error) {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, bayerr.Wrap(err, bayerr.CodeClinicalRequestFail, "encoding request body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, bayerr.Wrap(err, bayerr.CodeClinicalRequestFail, "building request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, bayerr.Wrap(err, bayerr.CodeClinicalRequestFail, "calling clinical backend",
			bayerr.Field("path", path))
	}
	defer resp.Body.Close() //nolint:errcheck // body already consumed

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, bayerr.Wrap(err, bayerr.CodeClinicalRequestFail, "reading response body")
	}

	c.log.LogAttrs(ctx, slog.LevelDebug, "clinical_call",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Int64("ms", c.now().Sub(start).Milliseconds()),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: decodeBody(raw)}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &UnexpectedResponseError{Path: path, Raw: string(raw)}
	}
	return out, nil
}

// UnexpectedResponseError is a 2xx response whose body is not the
// expected JSON shape.
type UnexpectedResponseError struct {
	Path string
	Raw  string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("clinical %s: unexpected response", e.Path)
}

func decodeBody(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	return string(raw)
}
