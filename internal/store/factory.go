// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package store

import (
	"context"
	"sort"
	"sync"

	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

// Config controls which backend Open uses and where it keeps its data.
type Config struct {
	Backend     string // "sqlite" (default), "postgres" or "memory".
	Path        string // SQLite database file.
	DatabaseURL string // Postgres connection string.
}

// Factory opens a Store for a backend.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers the factory for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Backends lists the registered backend names.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolveBackend returns the effective backend name, defaulting to "sqlite".
func resolveBackend(cfg Config) string {
	if cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// Open creates the store for cfg.Backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, bayerr.Errorf(bayerr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	return factory(ctx, cfg)
}
