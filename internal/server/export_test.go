// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package server

import (
	"log/slog"
	"net/http"
	"time"
)

// Limiter exposes the per-IP limiter to external tests.
type Limiter = limiter

func NewLimiter(cfg RateLimitConfig, now func() time.Time) *Limiter {
	return newLimiter(cfg, now)
}

func (l *limiter) Allow(ip string) bool { return l.allow(ip) }
func (l *limiter) Sweep() int { return l.sweep() }
func (l *limiter) Size() int { return l.size() }

func LimitWith(l *Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return limitWith(l, log)
}

func PrincipalMiddleware(required []string, log *slog.Logger) func(http.Handler) http.Handler {
	return principalMiddleware(required, log)
}
