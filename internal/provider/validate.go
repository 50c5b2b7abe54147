// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package provider

import (
	"context"
	"io"
	"net/http"
	"strings"

	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

// Default model-listing endpoints used for key checks.
var keyCheckBase = map[string]string{
	"anthropic":  "https://api.anthropic.com/v1",
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"google":     "https://generativelanguage.googleapis.com/v1beta",
}

// CheckKey makes a lightweight call to a provider's models endpoint to
// confirm the API key is accepted. baseURL overrides the public endpoint.
func CheckKey(ctx context.Context, client *http.Client, name, key, baseURL string) error {
	base, ok := keyCheckBase[name]
	if !ok {
		return bayerr.New(bayerr.CodeProviderNotFound, "unknown provider: "+name, bayerr.FieldProvider(name))
	}
	if baseURL != "" {
		base = baseURL
	}
	url := strings.TrimRight(base, "/") + "/models"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return bayerr.Wrapf(err, bayerr.CodeProviderKeyCheckFailed, "building %s key check", name)
	}
	switch name {
	case "anthropic":
		req.Header.Set("x-api-key", key)
		req.Header.Set("anthropic-version", "2023-06-01")
	case "google":
		req.Header.Set("x-goog-api-key", key)
	default:
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return bayerr.Wrapf(err, bayerr.CodeProviderKeyCheckFailed, "checking %s key", name)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return bayerr.Errorf(bayerr.CodeProviderKeyInvalid, "invalid %s API key (HTTP %d)", name, resp.StatusCode)
	case resp.StatusCode >= 400:
		return bayerr.Errorf(bayerr.CodeProviderKeyCheckFailed, "%s key check failed (HTTP %d)", name, resp.StatusCode)
	}
	return nil
}
