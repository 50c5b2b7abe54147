// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bayleaf-health/bayleaf-agents/internal/provider"
	"github.com/bayleaf-health/bayleaf-agents/internal/provider/openai"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

var _ provider.Provider = (*openai.Provider)(nil)
var _ provider.HealthReporter = (*openai.Provider)(nil)

const toolCallCompletion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": null,
      "tool_calls": [{
        "id": "call_1",
        "type": "function",
        "function": {"name": "list_medications", "arguments": "{}"}
      }]
    }
  }],
  "usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
}`

type upstream struct {
	mu     sync.Mutex
	bodies []map[string]any
}

func (u *upstream) last() map[string]any {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.bodies[len(u.bodies)-1]
}

func newUpstream(t *testing.T, status int, body string) (*httptest.Server, *upstream) {
	t.Helper()
	u := &upstream{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		u.mu.Lock()
		u.bodies = append(u.bodies, req)
		u.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, u
}

func newProvider(t *testing.T, baseURL string) *openai.Provider {
	t.Helper()
	p, err := openai.New(openai.Config{APIKey: "test-key-not-real", BaseURL: baseURL})
	require.NoError(t, err)
	return p
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := openai.New(openai.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, bayerr.HasCode(err, bayerr.CodeProviderRequestInvalid))
}

func TestNameOverride(t *testing.T) {
	p, err := openai.New(openai.Config{APIKey: "k", Name: "openrouter"})
	require.NoError(t, err)
	assert.Equal(t, "openrouter", p.Name())

	assert.Equal(t, "openai", newProvider(t, "").Name())
}

func TestChatReturnsToolCalls(t *testing.T) {
	srv, up := newUpstream(t, http.StatusOK, toolCallCompletion)
	p := newProvider(t, srv.URL)

	resp, err := p.Chat(context.Background(), provider.ChatRequest{
		Model:        "gpt-4o-mini",
		SystemPrompt: "You are Bayleaf.",
		Messages:     []provider.Message{{Role: provider.MessageRoleUser, Content: "meus remédios"}},
		Tools: []provider.ToolDefinition{{
			Name:        "list_medications",
			Description: "List the patient's medications.",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		}},
		Options: provider.ChatOptions{Temperature: 0.2},
	})
	require.NoError(t, err)

	assert.Empty(t, resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, provider.ToolCall{ID: "call_1", Name: "list_medications", Arguments: "{}"}, resp.ToolCalls[0])
	assert.Equal(t, provider.Usage{InputTokens: 12, OutputTokens: 3}, resp.Usage)

	sent := up.last()
	assert.Equal(t, "gpt-4o-mini", sent["model"])
	msgs, ok := sent["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	tools, ok := sent["tools"].([]any)
	require.True(t, ok)
	assert.Len(t, tools, 1)
}

func TestChatFailureMarksUnavailable(t *testing.T) {
	srv, _ := newUpstream(t, http.StatusInternalServerError, `{"error":{"message":"boom"}}`)
	p := newProvider(t, srv.URL)
	require.True(t, p.Available(context.Background()))

	_, err := p.Chat(context.Background(), provider.ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []provider.Message{{Role: provider.MessageRoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.True(t, bayerr.HasCode(err, bayerr.CodeProviderUpstreamFailure))
	assert.False(t, p.Available(context.Background()))
	assert.EqualValues(t, 1, p.Health().FailureCount)

	status, err := p.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Available)
}

func TestConvertMessages(t *testing.T) {
	msgs := []provider.Message{
		{Role: provider.MessageRoleUser, Content: "question"},
		{Role: provider.MessageRoleAssistant, ToolCalls: []provider.ToolCall{{ID: "c1", Name: "patient_summary", Arguments: "{}"}}},
		{Role: provider.MessageRoleTool, Content: `{"id":"p1"}`, ToolCallID: "c1", ToolName: "patient_summary"},
		{Role: provider.MessageRoleAssistant, Content: "answer"},
	}

	params, err := openai.ConvertMessages(msgs, "system prompt")
	require.NoError(t, err)
	require.Len(t, params, 5)

	require.NotNil(t, params[0].OfSystem)
	require.NotNil(t, params[1].OfUser)
	assert.Equal(t, "question", params[1].OfUser.Content.OfString.Value)

	require.NotNil(t, params[2].OfAssistant)
	require.Len(t, params[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "c1", params[2].OfAssistant.ToolCalls[0].ID)
	assert.Equal(t, "patient_summary", params[2].OfAssistant.ToolCalls[0].Function.Name)

	require.NotNil(t, params[3].OfTool)
	assert.Equal(t, "c1", params[3].OfTool.ToolCallID)
	assert.Equal(t, `{"id":"p1"}`, params[3].OfTool.Content.OfString.Value)

	require.NotNil(t, params[4].OfAssistant)
	assert.Equal(t, "answer", params[4].OfAssistant.Content.OfString.Value)
}

func TestConvertMessagesRejectsUnknownRole(t *testing.T) {
	_, err := openai.ConvertMessages([]provider.Message{{Role: "narrator"}}, "")
	require.Error(t, err)
}

func TestBuildParamsOptions(t *testing.T) {
	params, err := openai.BuildParams(provider.ChatRequest{
		Model:   "gpt-4o-mini",
		Options: provider.ChatOptions{MaxTokens: 256},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(256), params.MaxCompletionTokens.Value)
	assert.False(t, params.Temperature.Valid())
	assert.Empty(t, params.Tools)
}
