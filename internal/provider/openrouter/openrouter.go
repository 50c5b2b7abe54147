// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

// Package openrouter configures the OpenAI backend for OpenRouter's
// OpenAI-compatible endpoint.
package openrouter

import (
	"time"

	"github.com/bayleaf-health/bayleaf-agents/internal/provider/openai"
)

const baseURL = "https://openrouter.ai/api/v1"

// Config holds OpenRouter provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	Timeout time.Duration
}

// New creates an OpenAI-compatible provider named "openrouter".
func New(cfg Config) (*openai.Provider, error) {
	base := baseURL
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}
	return openai.New(openai.Config{
		APIKey:  cfg.APIKey,
		BaseURL: base,
		Name:    "openrouter",
		Timeout: cfg.Timeout,
	})
}
