// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package openai

import (
	"context"
	"fmt"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/bayleaf-health/bayleaf-agents/internal/provider"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
	"github.com/bayleaf-health/bayleaf-agents/pkg/health"
)

// Config holds OpenAI provider configuration.
type Config struct {
	APIKey string
	// BaseURL points the client at any OpenAI-compatible endpoint.
	BaseURL string
	// Name overrides the provider name reported to the registry.
	Name       string
	Timeout    time.Duration
	MaxRetries int
	Cooldown   time.Duration
}

// Provider implements provider.Provider using the OpenAI Chat Completions API.
type Provider struct {
	name   string
	client openaisdk.Client
	health *provider.HealthTracker
}

// New creates a new OpenAI provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	if cfg.APIKey == "" {
		return nil, bayerr.New(bayerr.CodeProviderRequestInvalid,
			name+": missing api_key in config", bayerr.FieldProvider(name))
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

	return &Provider{
		name:   name,
		client: openaisdk.NewClient(opts...),
		health: tracker,
	}, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Available(_ context.Context) bool {
	return p.health.IsHealthy()
}

// Health reports the provider's failure history.
func (p *Provider) Health() health.Metrics { return p.health.Metrics() }

// Chat sends one completion request and returns the first choice.
func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, bayerr.Wrap(err, bayerr.CodeProviderRequestInvalid,
			p.name+": building request params", bayerr.FieldProvider(p.name))
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	p.health.Record(err)
	if err != nil {
		return nil, bayerr.Wrap(err, bayerr.CodeProviderUpstreamFailure,
			p.name+": chat completion", bayerr.FieldProvider(p.name))
	}
	if len(completion.Choices) == 0 {
		return nil, bayerr.New(bayerr.CodeProviderResponseInvalid,
			p.name+": completion has no choices", bayerr.FieldProvider(p.name))
	}

	msg := completion.Choices[0].Message
	resp := &provider.ChatResponse{
		Content: msg.Content,
		Usage: provider.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}
	for _, tc := range msg.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, provider.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return resp, nil
}

func (p *Provider) Status(ctx context.Context) (provider.ProviderStatus, error) {
	available := p.Available(ctx)
	msg := "ok"
	if !available {
		msg = "cooling down after failure"
	}
	return provider.ProviderStatus{Available: available, Provider: p.name, Message: msg}, nil
}

func (p *Provider) Close() error { return nil }

// buildParams converts a provider.ChatRequest into OpenAI SDK ChatCompletionNewParams.
func buildParams(req provider.ChatRequest) (openaisdk.ChatCompletionNewParams, error) {
	msgs, err := convertMessages(req.Messages, req.SystemPrompt)
	if err != nil {
		return openaisdk.ChatCompletionNewParams{}, err
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.Options.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.Options.MaxTokens))
	}
	if req.Options.Temperature > 0 {
		params.Temperature = param.NewOpt(float64(req.Options.Temperature))
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	return params, nil
}

// convertMessages transforms provider messages into SDK message params.
// The system prompt is prepended as a system message if present.
func convertMessages(msgs []provider.Message, systemPrompt string) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	var result []openaisdk.ChatCompletionMessageParamUnion

	if systemPrompt != "" {
		result = append(result, openaisdk.SystemMessage(systemPrompt))
	}

	for _, msg := range msgs {
		switch msg.Role {
		case provider.MessageRoleUser:
			result = append(result, openaisdk.UserMessage(msg.Content))
		case provider.MessageRoleAssistant:
			if len(msg.ToolCalls) == 0 {
				result = append(result, openaisdk.AssistantMessage(msg.Content))
				continue
			}
			assistant := openaisdk.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content.OfString = param.NewOpt(msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openaisdk.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openaisdk.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			result = append(result, openaisdk.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case provider.MessageRoleTool:
			result = append(result, openaisdk.ToolMessage(msg.Content, msg.ToolCallID))
		case provider.MessageRoleSystem:
			result = append(result, openaisdk.SystemMessage(msg.Content))
		default:
			return nil, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}

func convertTools(tools []provider.ToolDefinition) []openaisdk.ChatCompletionToolParam {
	result := make([]openaisdk.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		result = append(result, openaisdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  shared.FunctionParameters(t.InputSchema),
			},
		})
	}
	return result
}
