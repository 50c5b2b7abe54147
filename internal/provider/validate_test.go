// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package provider_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bayleaf-health/bayleaf-agents/internal/provider"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

func TestCheckKeyHeaders(t *testing.T) {
	tests := []struct {
		provider string
		header   string
		want     string
	}{
		{provider: "anthropic", header: "x-api-key", want: "k1"},
		{provider: "openai", header: "Authorization", want: "Bearer k1"},
		{provider: "openrouter", header: "Authorization", want: "Bearer k1"},
		{provider: "google", header: "x-goog-api-key", want: "k1"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/models", r.URL.Path)
				assert.Equal(t, tt.want, r.Header.Get(tt.header))
				_, _ = w.Write([]byte(`{"data":[]}`))
			}))
			defer srv.Close()

			require.NoError(t, provider.CheckKey(context.Background(), srv.Client(), tt.provider, "k1", srv.URL+"/v1/"))
		})
	}
}

func TestCheckKeyFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bayerr.Code
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, want: bayerr.CodeProviderKeyInvalid},
		{name: "forbidden", status: http.StatusForbidden, want: bayerr.CodeProviderKeyInvalid},
		{name: "server error", status: http.StatusInternalServerError, want: bayerr.CodeProviderKeyCheckFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := provider.CheckKey(context.Background(), srv.Client(), "openai", "bad", srv.URL)
			require.Error(t, err)
			assert.Equal(t, tt.want, bayerr.CodeOf(err))
		})
	}

	err := provider.CheckKey(context.Background(), http.DefaultClient, "acme", "k", "")
	assert.True(t, bayerr.HasCode(err, bayerr.CodeProviderNotFound))
}
