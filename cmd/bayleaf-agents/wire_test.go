// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bayleaf-health/bayleaf-agents/internal/config"
	"github.com/bayleaf-health/bayleaf-agents/internal/provider"
	"github.com/bayleaf-health/bayleaf-agents/internal/store"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

func testAppConfig(t *testing.T, detectorURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Env:        "test",
		Log:        config.LogConfig{Level: "info", Format: "json"},
		Networking: config.NetworkingConfig{Listen: "127.0.0.1:0"},
		Models:     config.ModelsConfig{Default: "mock/mock", Temperature: 0.2},
		Clinical:   config.ClinicalConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second},
		PHIFilter: config.PHIFilterConfig{
			URL:      detectorURL,
			Timeout:  time.Second,
			Entities: []string{"PERSON", "EMAIL_ADDRESS"},
		},
		Storage: config.StorageConfig{Backend: "memory"},
		Agent:   config.AgentConfig{HistoryLimit: 20, DefaultLanguage: "pt-BR"},
		Lock:    config.LockConfig{Backend: "local", TTL: time.Minute},
	}
}

func detector(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func quietLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestWireApp(t *testing.T) {
	app, err := WireApp(context.Background(), testAppConfig(t, detector(t).URL), quietLogger())
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	assert.NotNil(t, app.Server)
	assert.NotNil(t, app.Service)
	assert.NotNil(t, app.Store)
	assert.NotNil(t, app.Locker)
	assert.Equal(t, "mock/mock", app.Providers.Default())
}

func TestWireApp_SQLiteCreatesDataDir(t *testing.T) {
	cfg := testAppConfig(t, detector(t).URL)
	cfg.Storage = config.StorageConfig{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "nested", "agents.db")}

	app, err := WireApp(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	assert.NoError(t, app.Close())
}

func TestWireApp_Errors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config.Config)
		wantCode bayerr.Code
	}{
		{
			name:     "unregistered default provider",
			mutate:   func(c *config.Config) { c.Models.Default = "openai/gpt-4o-mini" },
			wantCode: bayerr.CodeProviderNotFound,
		},
		{
			name:     "unknown store backend",
			mutate:   func(c *config.Config) { c.Storage.Backend = "mongo" },
			wantCode: bayerr.CodeStoreBackendUnsupported,
		},
		{
			name:     "unknown lock backend",
			mutate:   func(c *config.Config) { c.Lock.Backend = "etcd" },
			wantCode: bayerr.CodeCLISetupFailure,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testAppConfig(t, detector(t).URL)
			tt.mutate(cfg)
			app, err := WireApp(context.Background(), cfg, quietLogger())
			require.Error(t, err)
			assert.Nil(t, app)
			assert.True(t, bayerr.HasCode(err, tt.wantCode), "got %v", err)
		})
	}
}

func TestWireApp_EndToEndChat(t *testing.T) {
	app, err := WireApp(context.Background(), testAppConfig(t, detector(t).URL), quietLogger())
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	health := httptest.NewRecorder()
	app.Server.Handler().ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, health.Code)
	assert.Contains(t, health.Body.String(), `"provider":"mock/mock"`)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 7}).SignedString([]byte("k"))
	require.NoError(t, err)

	body := `{"channel":"bayleaf_app","message":"Estou com dor de cabeça","conversation_id":"app-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/treatment/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	app.Server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res struct {
		Reply          string   `json:"reply"`
		UsedTools      []string `json:"used_tools"`
		TraceID        string   `json:"trace_id"`
		ConversationID string   `json:"conversation_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEmpty(t, res.Reply)
	assert.Empty(t, res.UsedTools)
	assert.True(t, strings.HasPrefix(res.TraceID, "treatment_"))

	msgs, err := app.Store.Messages().Recent(context.Background(), res.ConversationID, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 2, "user message and reply")

	entries, err := app.Store.AuditLog().Query(context.Background(), store.AuditFilter{ConversationID: res.ConversationID})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRegisterBuiltinProviders(t *testing.T) {
	saved := builtinProviderFactories
	t.Cleanup(func() { builtinProviderFactories = saved })
	builtinProviderFactories = map[string]providerFactory{
		"openai": func(config.ProviderConfig) (provider.Provider, error) {
			return nil, fmt.Errorf("boom")
		},
	}

	cfg := &config.Config{Providers: map[string]config.ProviderConfig{
		"openai":    {APIKey: "sk"},
		"anthropic": {APIKey: ""},
		"cohere":    {APIKey: "ck"},
	}}
	reg := provider.NewRegistry()
	registerBuiltinProviders(cfg, reg, quietLogger())

	assert.Equal(t, []string{"mock"}, reg.Names())
}

func TestProvidersCheck(t *testing.T) {
	isolateEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("OPENAI_API_KEY", "good-key")
	t.Setenv("BAYLEAF_PROVIDERS_OPENAI_ENDPOINT", srv.URL)
	out, _, err := run(t, "providers", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "openai")
	assert.Contains(t, out, "ok")

	t.Setenv("OPENAI_API_KEY", "bad-key")
	out, _, err = run(t, "providers", "check")
	require.Error(t, err)
	assert.Contains(t, out, "FAIL")
	assert.True(t, bayerr.HasCode(err, bayerr.CodeProviderKeyCheckFailed))
}

func TestProvidersCheck_NoneConfigured(t *testing.T) {
	isolateEnv(t)
	out, _, err := run(t, "providers", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "no providers configured")
}
