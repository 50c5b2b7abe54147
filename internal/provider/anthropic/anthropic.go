// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/bayleaf-health/bayleaf-agents/internal/provider"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
	"github.com/bayleaf-health/bayleaf-agents/pkg/health"
)

const defaultMaxTokens = 1024

// Config holds Anthropic provider configuration.
type Config struct {
	APIKey     string
	BaseURL    string // optional, useful for testing against a mock server
	Timeout    time.Duration
	MaxRetries int
	Cooldown   time.Duration
}

// Provider implements provider.Provider using the Anthropic Messages API.
type Provider struct {
	client anthropicsdk.Client
	health *provider.HealthTracker
}

// New creates a new Anthropic provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, bayerr.New(bayerr.CodeProviderRequestInvalid,
			"anthropic: missing api_key in config", bayerr.FieldProvider("anthropic"))
	}
	cooldown := cfg.Cooldown
	if cooldown == 0 {
		cooldown = provider.DefaultHealthCooldown
	}
	tracker, err := provider.NewHealthTracker(cooldown)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &Provider{client: anthropicsdk.NewClient(opts...), health: tracker}, nil
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Available(_ context.Context) bool {
	return p.health.IsHealthy()
}

// Health reports the provider's failure history.
func (p *Provider) Health() health.Metrics { return p.health.Metrics() }

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, bayerr.Wrap(err, bayerr.CodeProviderRequestInvalid,
			"anthropic: building request params", bayerr.FieldProvider("anthropic"))
	}

	msg, err := p.client.Messages.New(ctx, params)
	p.health.Record(err)
	if err != nil {
		return nil, bayerr.Wrap(err, bayerr.CodeProviderUpstreamFailure,
			"anthropic: create message", bayerr.FieldProvider("anthropic"))
	}

	resp := &provider.ChatResponse{
		Usage: provider.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Content += block.Text
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, provider.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
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
	return provider.ProviderStatus{Available: available, Provider: "anthropic", Message: msg}, nil
}

func (p *Provider) Close() error { return nil }

func buildParams(req provider.ChatRequest) (anthropicsdk.MessageNewParams, error) {
	msgs, err := convertMessages(req.Messages)
	if err != nil {
		return anthropicsdk.MessageNewParams{}, err
	}

	maxTokens := int64(req.Options.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Options.Temperature > 0 {
		params.Temperature = anthropicsdk.Float(float64(req.Options.Temperature))
	}
	switch replayed := replayedTools(req.Messages); {
	case len(req.Tools) > 0:
		params.Tools = convertTools(req.Tools)
	case len(replayed) > 0:
		// The API rejects tool_use and tool_result blocks in a request that
		// declares no tools. Replayed tools are declared and calls disabled.
		params.Tools = replayed
		params.ToolChoice = anthropicsdk.ToolChoiceUnionParam{OfNone: &anthropicsdk.ToolChoiceNoneParam{}}
	}
	return params, nil
}

// replayedTools declares each tool called in msgs once, with an open schema.
func replayedTools(msgs []provider.Message) []anthropicsdk.ToolUnionParam {
	var (
		out  []anthropicsdk.ToolUnionParam
		seen = map[string]bool{}
	)
	for _, msg := range msgs {
		for _, tc := range msg.ToolCalls {
			if tc.Name == "" || seen[tc.Name] {
				continue
			}
			seen[tc.Name] = true
			out = append(out, anthropicsdk.ToolUnionParam{
				OfTool: &anthropicsdk.ToolParam{
					Name:        tc.Name,
					InputSchema: anthropicsdk.ToolInputSchemaParam{},
				},
			})
		}
	}
	return out
}

// convertMessages maps provider messages onto Anthropic turns. Results of
// one batch of tool calls travel together in a single user turn.
func convertMessages(msgs []provider.Message) ([]anthropicsdk.MessageParam, error) {
	var result []anthropicsdk.MessageParam
	prevTool := false

	for _, msg := range msgs {
		isTool := false
		switch msg.Role {
		case provider.MessageRoleUser:
			result = append(result, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(msg.Content)))
		case provider.MessageRoleAssistant:
			var blocks []anthropicsdk.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropicsdk.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropicsdk.NewToolUseBlock(tc.ID, toolInput(tc.Arguments), tc.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropicsdk.NewTextBlock(""))
			}
			result = append(result, anthropicsdk.NewAssistantMessage(blocks...))
		case provider.MessageRoleTool:
			isTool = true
			block := anthropicsdk.NewToolResultBlock(msg.ToolCallID, msg.Content, false)
			if prevTool {
				last := &result[len(result)-1]
				last.Content = append(last.Content, block)
			} else {
				result = append(result, anthropicsdk.NewUserMessage(block))
			}
		case provider.MessageRoleSystem:
			// Carried by the top-level system param.
		default:
			return nil, fmt.Errorf("unsupported message role %q", msg.Role)
		}
		prevTool = isTool
	}

	return result, nil
}

func toolInput(args string) any {
	if args != "" && json.Valid([]byte(args)) {
		return json.RawMessage(args)
	}
	return map[string]any{}
}

func convertTools(tools []provider.ToolDefinition) []anthropicsdk.ToolUnionParam {
	result := make([]anthropicsdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		result = append(result, anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        t.Name,
				Description: anthropicsdk.Opt(t.Description),
				InputSchema: extractSchema(t.InputSchema),
			},
		})
	}
	return result
}

// extractSchema splits a JSON Schema object into the SDK's Properties and
// Required fields.
func extractSchema(raw map[string]any) anthropicsdk.ToolInputSchemaParam {
	schema := anthropicsdk.ToolInputSchemaParam{}
	if props, ok := raw["properties"]; ok {
		schema.Properties = props
	}
	switch req := raw["required"].(type) {
	case []string:
		schema.Required = req
	case []any:
		strs := make([]string, 0, len(req))
		for _, v := range req {
			if s, ok := v.(string); ok {
				strs = append(strs, s)
			}
		}
		schema.Required = strs
	}
	return schema
}
