// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package server_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bayleaf-health/bayleaf-agents/internal/server"
	"github.com/bayleaf-health/bayleaf-agents/pkg/types"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestParsePrincipal(t *testing.T) {
	tests := []struct {
		name       string
		claims     jwt.MapClaims
		wantUser   string
		wantScopes []string
	}{
		{
			name:       "user_id and space separated scope",
			claims:     jwt.MapClaims{"user_id": "42", "scope": "agents:chat profile"},
			wantUser:   "42",
			wantScopes: []string{"agents:chat", "profile"},
		},
		{
			name:     "numeric user_id",
			claims:   jwt.MapClaims{"user_id": 1234},
			wantUser: "1234",
		},
		{
			name:       "sub fallback and scopes list",
			claims:     jwt.MapClaims{"sub": "abc", "scopes": []string{"agents:chat"}},
			wantUser:   "abc",
			wantScopes: []string{"agents:chat"},
		},
		{
			name:     "user_id wins over sub",
			claims:   jwt.MapClaims{"user_id": "7", "sub": "other"},
			wantUser: "7",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := signToken(t, tt.claims)
			p := server.ParsePrincipal(tok)
			assert.Equal(t, tt.wantUser, p.UserID)
			assert.Equal(t, tt.wantScopes, p.Scopes)
			assert.Equal(t, tok, p.RawToken)
		})
	}
}

func TestParsePrincipal_Garbage(t *testing.T) {
	p := server.ParsePrincipal("not-a-jwt")
	assert.Empty(t, p.UserID)
	assert.Equal(t, "not-a-jwt", p.RawToken)
}

func TestPrincipalMiddleware(t *testing.T) {
	var got types.Principal
	h := server.PrincipalMiddleware([]string{"agents:chat"}, slog.New(slog.DiscardHandler))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = server.PrincipalFrom(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))

	good := signToken(t, jwt.MapClaims{"user_id": "42", "scope": "agents:chat"})
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "no header", wantStatus: http.StatusUnauthorized, wantBody: `{"error":"missing_token"}`},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized, wantBody: `{"error":"missing_token"}`},
		{name: "empty bearer", header: "Bearer ", wantStatus: http.StatusUnauthorized, wantBody: `{"error":"missing_token"}`},
		{
			name:       "missing scope",
			header:     "Bearer " + signToken(t, jwt.MapClaims{"user_id": "42", "scope": "profile"}),
			wantStatus: http.StatusForbidden,
			wantBody:   `{"error":"insufficient_scope"}`,
		},
		{
			name:       "no user",
			header:     "Bearer " + signToken(t, jwt.MapClaims{"scope": "agents:chat"}),
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"error":"invalid_token"}`,
		},
		{name: "lowercase scheme", header: "bearer " + good, wantStatus: http.StatusNoContent},
		{name: "valid", header: "Bearer " + good, wantStatus: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = types.Principal{}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/appointment/chat", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
				return
			}
			assert.Equal(t, "42", got.UserID)
			assert.Equal(t, good, got.RawToken)
		})
	}
}
