// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package server_test

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bayleaf-health/bayleaf-agents/internal/server"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     server.RateLimitConfig
		wantErr bool
		wantMax int
	}{
		{name: "disabled", cfg: server.RateLimitConfig{}, wantMax: 10000},
		{name: "rate with burst", cfg: server.RateLimitConfig{RequestsPerSecond: 5, Burst: 10, MaxVisitors: 50}, wantMax: 50},
		{name: "negative rate", cfg: server.RateLimitConfig{RequestsPerSecond: -1}, wantErr: true},
		{name: "rate without burst", cfg: server.RateLimitConfig{RequestsPerSecond: 1}, wantErr: true},
		{name: "negative visitors", cfg: server.RateLimitConfig{MaxVisitors: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, bayerr.HasCode(err, bayerr.CodeServerConfigInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMax, cfg.MaxVisitors)
		})
	}
}

func TestLimiter_RefillsOverTime(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	l := server.NewLimiter(server.RateLimitConfig{RequestsPerSecond: 1, Burst: 2, MaxVisitors: 10}, clock.now)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "buckets are per IP")

	clock.advance(time.Second)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
}

func TestLimiter_Sweep(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	l := server.NewLimiter(server.RateLimitConfig{RequestsPerSecond: 1, Burst: 1, MaxVisitors: 2}, clock.now)

	for i := range 3 {
		l.Allow(fmt.Sprintf("10.0.0.%d", i))
		clock.advance(time.Second)
	}
	require.Equal(t, 3, l.Size())

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 2, l.Size())

	clock.advance(11 * time.Minute)
	assert.Equal(t, 0, l.Sweep())
	assert.Equal(t, 0, l.Size(), "stale visitors are dropped")
}

func TestLimitWith_Rejects(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	l := server.NewLimiter(server.RateLimitConfig{RequestsPerSecond: 1, Burst: 1, MaxVisitors: 10}, clock.now)
	h := server.LimitWith(l, slog.New(slog.DiscardHandler))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusNoContent, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate_limited"}`, second.Body.String())
}
