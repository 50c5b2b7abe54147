// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package provider

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

// Registry holds the configured providers and picks one per call: the
// default "provider/model" ref first, then the failover chain in order,
// skipping providers that report themselves unavailable.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider

	defaultRef string
	failover   []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, bayerr.New(bayerr.CodeProviderNotFound, "provider not found: "+name,
			bayerr.FieldProvider(name))
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SetDefault sets the primary "provider/model" ref. The provider must be
// registered.
func (r *Registry) SetDefault(ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkRefLocked(ref); err != nil {
		return err
	}
	r.defaultRef = ref
	return nil
}

// Default returns the primary ref.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultRef
}

// SetFailover sets the ordered failover chain.
func (r *Registry) SetFailover(chain []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ref := range chain {
		if err := r.checkRefLocked(ref); err != nil {
			return err
		}
	}
	r.failover = slices.Clone(chain)
	return nil
}

// must hold r.mu.
func (r *Registry) checkRefLocked(ref string) error {
	name, model := ParseRef(ref)
	if name == "" || model == "" {
		return bayerr.Errorf(bayerr.CodeProviderInvalidModelRef,
			"model ref %q must use provider/model format", ref)
	}
	if _, ok := r.providers[name]; !ok {
		return bayerr.New(bayerr.CodeProviderNotFound, "provider not registered: "+name,
			bayerr.FieldProvider(name))
	}
	return nil
}

// Route returns the first available provider and the model to ask it for.
// A provider that failed recently reports itself unavailable and is
// skipped until its cooldown passes.
func (r *Registry) Route(ctx context.Context) (Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultRef == "" {
		return nil, "", bayerr.New(bayerr.CodeProviderNoDefault, "no default provider configured")
	}

	for _, ref := range append([]string{r.defaultRef}, r.failover...) {
		name, model := ParseRef(ref)
		p, ok := r.providers[name]
		if !ok || !p.Available(ctx) {
			continue
		}
		return p, model, nil
	}
	return nil, "", bayerr.New(bayerr.CodeProviderAllUnavailable,
		"all providers unavailable: no healthy provider found")
}

// Close shuts down all registered providers.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return bayerr.Join(errs...)
}

// ParseRef splits a "provider/model" reference on the first "/".
func ParseRef(ref string) (providerName, model string) {
	name, model, ok := strings.Cut(ref, "/")
	if !ok {
		return ref, ""
	}
	return name, model
}
