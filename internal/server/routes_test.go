// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package server_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bayleaf-health/bayleaf-agents/internal/agent"
	"github.com/bayleaf-health/bayleaf-agents/internal/server"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
	"github.com/bayleaf-health/bayleaf-agents/pkg/types"
)

// fakeChat resolves agents from the builtin catalog and records requests.
type fakeChat struct {
	catalog *agent.Catalog
	err     error

	mu   sync.Mutex
	reqs []agent.TurnRequest
}

func (f *fakeChat) Catalog() *agent.Catalog { return f.catalog }

func (f *fakeChat) Chat(_ context.Context, slug string, req agent.TurnRequest) (*agent.TurnResult, error) {
	a, err := f.catalog.Get(slug)
	if err != nil {
		return nil, err
	}
	req.Agent = a
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &agent.TurnResult{
		Reply:          "echo: " + req.Message,
		UsedTools:      []string{},
		TraceID:        slug + "_abc",
		ConversationID: "conv-1",
		Triage:         types.TriageNonUrgent,
	}, nil
}

func (f *fakeChat) last() agent.TurnRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

func newTestServer(t *testing.T, chat *fakeChat, mutate ...func(*server.Config)) *server.Server {
	t.Helper()
	cfg := server.Config{
		ListenAddr:     "127.0.0.1:0",
		Env:            "test",
		Provider:       "mock/echo",
		RequiredScopes: []string{"agents:chat"},
		Logger:         slog.New(slog.DiscardHandler),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	srv, err := server.New(cfg, chat)
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv
}

func newFakeChat(err error) *fakeChat {
	return &fakeChat{catalog: agent.BuiltinCatalog(slog.New(slog.DiscardHandler)), err: err}
}

func authed(t *testing.T, req *http.Request) *http.Request {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"user_id": "42", "scope": "agents:chat"}))
	return req
}

func chatRequest(t *testing.T, slug, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/"+slug+"/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return authed(t, req)
}

func TestNew_Validation(t *testing.T) {
	_, err := server.New(server.Config{}, newFakeChat(nil))
	assert.True(t, bayerr.HasCode(err, bayerr.CodeServerConfigInvalid))

	_, err = server.New(server.Config{ListenAddr: ":0"}, nil)
	assert.True(t, bayerr.HasCode(err, bayerr.CodeServerConfigInvalid))

	_, err = server.New(server.Config{ListenAddr: ":0", RateLimit: server.RateLimitConfig{RequestsPerSecond: 1}}, newFakeChat(nil))
	assert.True(t, bayerr.HasCode(err, bayerr.CodeServerConfigInvalid))
}

func TestHealth_IsPublic(t *testing.T) {
	srv := newTestServer(t, newFakeChat(nil))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body server.HealthBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, server.HealthBody{Status: "ok", Env: "test", Provider: "mock/echo"}, body)
}

func TestListAgents(t *testing.T) {
	srv := newTestServer(t, newFakeChat(nil))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, authed(t, httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	var body []server.AgentSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, "appointment", body[0].Slug)
	assert.Equal(t, "treatment", body[1].Slug)
	assert.Equal(t, []string{"en-US", "pt-BR"}, body[0].Languages)
}

func TestListAgents_RequiresToken(t *testing.T) {
	srv := newTestServer(t, newFakeChat(nil))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChat(t *testing.T) {
	chat := newFakeChat(nil)
	srv := newTestServer(t, chat)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, chatRequest(t, "appointment",
		`{"channel":"whatsapp","message":"hello","conversation_id":"wa-1","lang":"en-US"}`))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body server.ChatResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, server.ChatResponseBody{
		Reply:          "echo: hello",
		UsedTools:      []string{},
		Safety:         server.Safety{Triage: "non-urgent"},
		TraceID:        "appointment_abc",
		ConversationID: "conv-1",
	}, body)

	req := chat.last()
	assert.Equal(t, "appointment", req.Agent.Slug)
	assert.Equal(t, types.ChannelWhatsApp, req.Channel)
	assert.Equal(t, "wa-1", req.ConversationID)
	assert.Equal(t, "en-US", req.Language)
	assert.Equal(t, "42", req.Principal.UserID)
	assert.NotEmpty(t, req.Principal.RawToken)
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name       string
		chatErr    error
		slug       string
		body       string
		wantStatus int
		wantDetail string
	}{
		{
			name:       "unknown agent",
			slug:       "billing",
			body:       `{"channel":"bayleaf_app","message":"hi"}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unknown channel",
			slug:       "appointment",
			body:       `{"channel":"sms","message":"hi"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "empty message",
			slug:       "appointment",
			body:       `{"channel":"bayleaf_app","message":""}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "detector down",
			chatErr:    bayerr.New(bayerr.CodePHIRedactionUnavailable, "detector returned 500"),
			slug:       "appointment",
			body:       `{"channel":"bayleaf_app","message":"hi"}`,
			wantStatus: http.StatusServiceUnavailable,
			wantDetail: "phi_filter_unavailable",
		},
		{
			name:       "provider failure",
			chatErr:    bayerr.New(bayerr.CodeProviderUpstreamFailure, "secret upstream body"),
			slug:       "appointment",
			body:       `{"channel":"bayleaf_app","message":"hi"}`,
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "lock timeout",
			chatErr:    bayerr.New(bayerr.CodeLockAcquireTimeout, "busy"),
			slug:       "appointment",
			body:       `{"channel":"bayleaf_app","message":"hi","conversation_id":"c"}`,
			wantStatus: http.StatusGatewayTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, newFakeChat(tt.chatErr))

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, chatRequest(t, tt.slug, tt.body))

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), "secret upstream body")
			if tt.wantDetail != "" {
				assert.Contains(t, rec.Body.String(), tt.wantDetail)
			}
		})
	}
}

func TestRateLimit_ThroughServer(t *testing.T) {
	srv := newTestServer(t, newFakeChat(nil), func(c *server.Config) {
		c.RateLimit = server.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}
	})

	codes := make([]int, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
