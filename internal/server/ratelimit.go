// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package server

import (
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

const (
	defaultMaxVisitors = 10000
	visitorStaleAfter  = 10 * time.Minute
	visitorSweepEvery  = 5 * time.Minute
)

// RateLimitConfig configures per-IP token buckets.
type RateLimitConfig struct {
	// RequestsPerSecond is the refill rate. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	// MaxVisitors caps the tracked IPs; the least recently seen are evicted
	// first. Defaults to 10000.
	MaxVisitors int
}

// Validate checks the config and fills defaults.
func (c *RateLimitConfig) Validate() error {
	if c.RequestsPerSecond < 0 {
		return bayerr.Errorf(bayerr.CodeServerConfigInvalid,
			"rate limit requests per second must not be negative (got %g)", c.RequestsPerSecond)
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		return bayerr.Errorf(bayerr.CodeServerConfigInvalid,
			"rate limit burst must be positive when a rate is set (got burst=%d)", c.Burst)
	}
	if c.MaxVisitors < 0 {
		return bayerr.Errorf(bayerr.CodeServerConfigInvalid,
			"rate limit max visitors must not be negative (got %d)", c.MaxVisitors)
	}
	if c.MaxVisitors == 0 {
		c.MaxVisitors = defaultMaxVisitors
	}
	return nil
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
}

// limiter holds one token bucket per client IP.
type limiter struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	buckets map[string]*bucket
	now     func() time.Time
}

func newLimiter(cfg RateLimitConfig, now func() time.Time) *limiter {
	if now == nil {
		now = time.Now
	}
	return &limiter{cfg: cfg, buckets: make(map[string]*bucket), now: now}
}

// allow takes one token from ip's bucket.
func (l *limiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.Burst), lastRefill: now}
		l.buckets[ip] = b
	}
	b.lastSeen = now

	b.tokens = min(float64(l.cfg.Burst), b.tokens+now.Sub(b.lastRefill).Seconds()*l.cfg.RequestsPerSecond)
	b.lastRefill = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops stale buckets, then evicts the oldest until the map fits
// MaxVisitors. It returns how many were evicted for size.
func (l *limiter) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	type seen struct {
		ip string
		at time.Time
	}
	live := make([]seen, 0, len(l.buckets))
	for ip, b := range l.buckets {
		if now.Sub(b.lastSeen) > visitorStaleAfter {
			delete(l.buckets, ip)
			continue
		}
		live = append(live, seen{ip: ip, at: b.lastSeen})
	}

	over := len(live) - l.cfg.MaxVisitors
	if l.cfg.MaxVisitors <= 0 || over <= 0 {
		return 0
	}
	slices.SortFunc(live, func(a, b seen) int { return a.at.Compare(b.at) })
	for _, s := range live[:over] {
		delete(l.buckets, s.ip)
	}
	return over
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// rateLimitMiddleware enforces cfg per client IP. A zero rate passes every
// request through. The sweeper goroutine exits when done closes.
func rateLimitMiddleware(cfg RateLimitConfig, log *slog.Logger, done <-chan struct{}) func(http.Handler) http.Handler {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := newLimiter(cfg, nil)

	go func() {
		ticker := time.NewTicker(visitorSweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := l.sweep(); n > 0 {
					log.Warn("rate_limit_visitors_evicted", slog.Int("evicted", n), slog.Int("max_visitors", cfg.MaxVisitors))
				}
			case <-done:
				return
			}
		}
	}()

	return limitWith(l, log)
}

func limitWith(l *limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !l.allow(ip) {
				log.Warn("rate_limit_exceeded", slog.String("ip", ip), slog.String("path", r.URL.Path))
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate_limited")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
