// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

// Package mock provides a deterministic provider for local development and
// tests. It needs no network and no credentials.
package mock

import (
	"context"
	"strings"

	"github.com/bayleaf-health/bayleaf-agents/internal/provider"
)

const (
	medicationsTool  = "list_medications"
	medicationsReply = "Certo, vou verificar seus medicamentos."
	symptomsReply    = "Conte mais sobre seus sintomas (início, intensidade, gatilhos)."
)

var medicationKeywords = []string{"remédio", "remedios", "medicação", "medication", "meds"}

// Provider answers from the last user message alone.
type Provider struct{}

// New returns a mock provider.
func New() *Provider { return &Provider{} }

func (p *Provider) Name() string { return "mock" }

func (p *Provider) Available(_ context.Context) bool { return true }

// Chat asks for the medication list when the last user message mentions
// medications and the tool is on offer.
func (p *Provider) Chat(_ context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	var user string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == provider.MessageRoleUser {
			user = strings.ToLower(req.Messages[i].Content)
			break
		}
	}

	wantsMeds := false
	for _, k := range medicationKeywords {
		if strings.Contains(user, k) {
			wantsMeds = true
			break
		}
	}
	if !wantsMeds {
		return &provider.ChatResponse{Content: symptomsReply}, nil
	}

	resp := &provider.ChatResponse{Content: medicationsReply}
	for _, t := range req.Tools {
		if t.Name == medicationsTool {
			resp.ToolCalls = []provider.ToolCall{{ID: "call_1", Name: medicationsTool, Arguments: "{}"}}
			break
		}
	}
	return resp, nil
}

func (p *Provider) Status(_ context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: true, Provider: "mock", Message: "ok"}, nil
}

func (p *Provider) Close() error { return nil }
