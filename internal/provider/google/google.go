// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package google

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/bayleaf-health/bayleaf-agents/internal/provider"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
	"github.com/bayleaf-health/bayleaf-agents/pkg/health"
)

// Config holds Google Gemini provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Provider implements provider.Provider using the Gemini API.
type Provider struct {
	client *genai.Client
	health *provider.HealthTracker
}

// New creates a Gemini provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, bayerr.New(bayerr.CodeProviderRequestInvalid, "google: missing api_key in config",
			bayerr.FieldProvider("google"))
	}

	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, bayerr.Wrapf(err, bayerr.CodeProviderUpstreamFailure, "google: creating client")
	}

	tracker, err := provider.NewHealthTracker(provider.DefaultHealthCooldown)
	if err != nil {
		return nil, bayerr.Wrapf(err, bayerr.CodeProviderRequestInvalid, "google: creating health tracker")
	}

	return &Provider{client: client, health: tracker}, nil
}

func (p *Provider) Name() string { return "google" }

func (p *Provider) Available(_ context.Context) bool {
	return p.health.IsHealthy()
}

// Health reports the provider's failure history.
func (p *Provider) Health() health.Metrics { return p.health.Metrics() }

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, bayerr.Wrapf(err, bayerr.CodeProviderRequestInvalid, "google: converting messages")
	}

	result, err := p.client.Models.GenerateContent(ctx, req.Model, contents, buildConfig(req))
	p.health.Record(err)
	if err != nil {
		return nil, bayerr.Wrap(err, bayerr.CodeProviderUpstreamFailure, "google: generate content",
			bayerr.FieldProvider("google"))
	}

	resp := &provider.ChatResponse{}
	if result.UsageMetadata != nil {
		resp.Usage = provider.Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return resp, nil
	}

	for _, part := range result.Candidates[0].Content.Parts {
		switch {
		case part.Thought:
		case part.FunctionCall != nil:
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil || part.FunctionCall.Args == nil {
				args = []byte("{}")
			}
			id := part.FunctionCall.ID
			if id == "" {
				// Gemini does not always assign call ids.
				id = fmt.Sprintf("call_%d", len(resp.ToolCalls)+1)
			}
			resp.ToolCalls = append(resp.ToolCalls, provider.ToolCall{
				ID:        id,
				Name:      part.FunctionCall.Name,
				Arguments: string(args),
			})
		case part.Text != "":
			resp.Content += part.Text
		}
	}
	return resp, nil
}

func (p *Provider) Status(ctx context.Context) (provider.ProviderStatus, error) {
	available := p.Available(ctx)
	msg := "ok"
	if !available {
		msg = "cooling down after failure"
	}
	return provider.ProviderStatus{Available: available, Provider: "google", Message: msg}, nil
}

func (p *Provider) Close() error { return nil }

func buildConfig(req provider.ChatRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.Options.Temperature > 0 {
		cfg.Temperature = genai.Ptr(req.Options.Temperature)
	}
	if req.Options.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.Options.MaxTokens)
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if len(req.Tools) > 0 {
		cfg.Tools = convertTools(req.Tools)
	}
	return cfg
}

// convertMessages maps provider messages onto Gemini contents. Consecutive
// tool results share one user content.
func convertMessages(msgs []provider.Message) ([]*genai.Content, error) {
	var result []*genai.Content
	prevTool := false

	for _, msg := range msgs {
		isTool := false
		switch msg.Role {
		case provider.MessageRoleUser:
			result = append(result, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: msg.Content}}})
		case provider.MessageRoleAssistant:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: decodeArgs(tc.Arguments),
				}})
			}
			if len(parts) == 0 {
				parts = append(parts, &genai.Part{Text: ""})
			}
			result = append(result, &genai.Content{Role: "model", Parts: parts})
		case provider.MessageRoleTool:
			isTool = true
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       msg.ToolCallID,
				Name:     msg.ToolName,
				Response: map[string]any{"result": decodeResult(msg.Content)},
			}}
			if prevTool {
				last := result[len(result)-1]
				last.Parts = append(last.Parts, part)
			} else {
				result = append(result, &genai.Content{Role: "user", Parts: []*genai.Part{part}})
			}
		case provider.MessageRoleSystem:
			// Carried by the system instruction.
		default:
			return nil, bayerr.Errorf(bayerr.CodeProviderRequestInvalid, "google: unsupported message role %q", msg.Role)
		}
		prevTool = isTool
	}

	return result, nil
}

func decodeArgs(raw string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

// decodeResult passes JSON tool output through structurally and anything
// else as a string.
func decodeResult(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func convertTools(tools []provider.ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.InputSchema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
