// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package provider

import (
	"sync"
	"time"

	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
	"github.com/bayleaf-health/bayleaf-agents/pkg/health"
)

// DefaultHealthCooldown is how long a provider stays out of routing after
// a failed call.
const DefaultHealthCooldown = 30 * time.Second

// HealthTracker records call outcomes for one provider. A failure takes the
// provider out of routing until the cooldown elapses; the next success
// restores it.
type HealthTracker struct {
	mu           sync.RWMutex
	healthy      bool
	failedAt     time.Time
	cooldown     time.Duration
	failureCount int64
	now          func() time.Time
}

// NewHealthTracker returns a healthy tracker. cooldown must be positive.
func NewHealthTracker(cooldown time.Duration) (*HealthTracker, error) {
	if cooldown <= 0 {
		return nil, bayerr.Errorf(bayerr.CodeConfigValidateInvalidValue,
			"health tracker cooldown must be positive, got %s", cooldown)
	}
	return &HealthTracker{healthy: true, cooldown: cooldown, now: time.Now}, nil
}

// must hold at least h.mu.RLock.
func (h *HealthTracker) availableLocked() bool {
	return h.healthy || h.now().Sub(h.failedAt) >= h.cooldown
}

// IsHealthy reports whether the provider may be routed to.
func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.availableLocked()
}

// Record stores the outcome of one call.
func (h *HealthTracker) Record(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		h.healthy = true
		return
	}
	h.healthy = false
	h.failedAt = h.now()
	h.failureCount++
}

// SetNowFunc overrides the clock.
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.now = fn
	h.mu.Unlock()
}

// Metrics returns a snapshot for the health endpoint.
func (h *HealthTracker) Metrics() health.Metrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := health.Metrics{FailureCount: h.failureCount, Available: h.availableLocked()}
	if h.failureCount > 0 {
		t := h.failedAt
		m.LastFailureAt = &t
	}
	if !h.healthy {
		until := h.failedAt.Add(h.cooldown)
		m.CooldownUntil = &until
	}
	return m
}

// HealthReporter is implemented by providers that expose a HealthTracker.
type HealthReporter interface {
	Health() health.Metrics
}
