// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package agent_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bayleaf-health/bayleaf-agents/internal/agent"
	"github.com/bayleaf-health/bayleaf-agents/internal/clinical"
	"github.com/bayleaf-health/bayleaf-agents/internal/phi"
	"github.com/bayleaf-health/bayleaf-agents/internal/provider"
	"github.com/bayleaf-health/bayleaf-agents/internal/store"
	"github.com/bayleaf-health/bayleaf-agents/internal/store/memory"
	"github.com/bayleaf-health/bayleaf-agents/internal/tools"
	"github.com/bayleaf-health/bayleaf-agents/pkg/types"
)

var (
	fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	patient  = types.Principal{UserID: "u1", RawToken: "caller-token"}
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedProvider answers Chat calls from a fixed script and records
// every request it receives.
type scriptedProvider struct {
	mu       sync.Mutex
	script   []*provider.ChatResponse
	err      error
	requests []provider.ChatRequest
}

func script(responses ...*provider.ChatResponse) *scriptedProvider {
	return &scriptedProvider{script: responses}
}

func reply(text string) *provider.ChatResponse {
	return &provider.ChatResponse{Content: text}
}

func toolCall(id, name, args string) *provider.ChatResponse {
	return &provider.ChatResponse{ToolCalls: []provider.ToolCall{{ID: id, Name: name, Arguments: args}}}
}

func (p *scriptedProvider) Name() string                  { return "scripted" }
func (p *scriptedProvider) Available(context.Context) bool { return true }
func (p *scriptedProvider) Close() error                   { return nil }

func (p *scriptedProvider) Status(context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: true, Provider: "scripted", Message: "ok"}, nil
}

func (p *scriptedProvider) Chat(_ context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req.Messages = slices.Clone(req.Messages)
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.script) == 0 {
		return nil, errors.New("script exhausted")
	}
	next := p.script[0]
	p.script = p.script[1:]
	return next, nil
}

func (p *scriptedProvider) calls() []provider.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.requests)
}

type fixedRouter struct{ p provider.Provider }

func (r fixedRouter) Route(context.Context) (provider.Provider, string, error) {
	return r.p, "test-model", nil
}

// detectorServer is a PHI detector that finds nothing, leaving the email
// fallback as the only detection. A non-200 status makes it unavailable.
func detectorServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type backendRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Auth   string
	Body   map[string]any
}

// clinicalBackend fakes the clinical API routes the tools call.
type clinicalBackend struct {
	mu       sync.Mutex
	requests []backendRequest
	slots    int
}

func (b *clinicalBackend) last(path string) (backendRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.requests) - 1; i >= 0; i-- {
		if b.requests[i].Path == path {
			return b.requests[i], true
		}
	}
	return backendRequest{}, false
}

func (b *clinicalBackend) serve(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := backendRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  map[string]string{},
			Auth:   r.Header.Get("Authorization"),
		}
		for k := range r.URL.Query() {
			rec.Query[k] = r.URL.Query().Get(k)
		}
		_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		b.mu.Lock()
		b.requests = append(b.requests, rec)
		b.mu.Unlock()

		var out any
		switch r.URL.Path {
		case "/api/appointments/available-slots/":
			slots := make([]any, 0, b.slots)
			for i := range b.slots {
				start := fixedNow.Add(time.Duration(24+i) * time.Hour)
				slots = append(slots, map[string]any{
					"id":              i + 1,
					"start":           start.Format(time.RFC3339),
					"end":             start.Add(30 * time.Minute).Format(time.RFC3339),
					"professional_id": 16,
				})
			}
			out = slots
		case "/api/users/chat-token/":
			out = map[string]any{"access_token": "tok-9"}
		case "/api/appointments/":
			out = map[string]any{"id": 77, "status": "confirmed"}
		default:
			w.WriteHeader(http.StatusNotFound)
			out = map[string]any{"detail": "not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	loop     *agent.Loop
	store    *memory.Store
	provider *scriptedProvider
	backend  *clinicalBackend
	catalog  *agent.Catalog
}

type harnessConfig struct {
	loop           agent.LoopConfig
	detectorStatus int
}

type harnessOption func(*harnessConfig)

func withHooks(h *agent.LoopHooks) harnessOption {
	return func(c *harnessConfig) { c.loop.Hooks = h }
}

func withDetectorStatus(status int) harnessOption {
	return func(c *harnessConfig) { c.detectorStatus = status }
}

func newHarness(t *testing.T, p *scriptedProvider, opts ...harnessOption) *harness {
	t.Helper()

	hc := harnessConfig{
		loop: agent.LoopConfig{
			Router:      fixedRouter{p: p},
			Temperature: 0.2,
			Now:         func() time.Time { return fixedNow },
			Logger:      quietLogger(),
		},
		detectorStatus: http.StatusOK,
	}
	for _, opt := range opts {
		opt(&hc)
	}
	cfg := hc.loop

	engine, err := phi.NewEngine(phi.EngineConfig{URL: detectorServer(t, hc.detectorStatus).URL, Logger: quietLogger()})
	require.NoError(t, err)

	backend := &clinicalBackend{slots: 12}
	client, err := clinical.New(clinical.Config{
		BaseURL:            backend.serve(t).URL,
		OnboardingPassword: "onboarding-pw",
		Logger:             quietLogger(),
		Now:                func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	dispatcher, err := tools.NewDispatcher(client, quietLogger())
	require.NoError(t, err)

	st := memory.New()
	t.Cleanup(func() { _ = st.Close() })

	cfg.Store = st
	cfg.Redactor = engine
	cfg.Tools = dispatcher
	loop, err := agent.NewLoop(cfg)
	require.NoError(t, err)

	catalog, err := agent.NewCatalog(agent.Builtin(quietLogger())...)
	require.NoError(t, err)

	return &harness{loop: loop, store: st, provider: p, backend: backend, catalog: catalog}
}

func (h *harness) agent(t *testing.T, slug string) *agent.Agent {
	t.Helper()
	a, err := h.catalog.Get(slug)
	require.NoError(t, err)
	return a
}

func (h *harness) turn(t *testing.T, slug, conversationID, message string) (*agent.TurnResult, error) {
	t.Helper()
	return h.loop.ProcessTurn(context.Background(), agent.TurnRequest{
		Agent:          h.agent(t, slug),
		Principal:      patient,
		Channel:        types.ChannelApp,
		Message:        message,
		ConversationID: conversationID,
		Language:       "en-US",
	})
}

func (h *harness) conversation(t *testing.T, externalID string) *store.Conversation {
	t.Helper()
	conv, created, err := h.store.Conversations().FindOrCreate(context.Background(), store.ConversationKey{
		ExternalID: externalID,
		UserID:     patient.UserID,
		Channel:    string(types.ChannelApp),
	})
	require.NoError(t, err)
	require.False(t, created, "conversation %s should already exist", externalID)
	return conv
}

func (h *harness) messages(t *testing.T, convID string) []*store.Message {
	t.Helper()
	msgs, err := h.store.Messages().Recent(context.Background(), convID, 100)
	require.NoError(t, err)
	return msgs
}
