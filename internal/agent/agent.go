// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

// Package agent runs conversation turns for the configured agent personas.
package agent

import (
	"log/slog"
	"slices"
	"sort"

	"github.com/bayleaf-health/bayleaf-agents/internal/state"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

// FallbackLanguage is used when an agent has no objective in the requested
// language.
const FallbackLanguage = "en-US"

// Agent is one persona: a name, its objective per language and the handler
// that folds tool results into its session state.
type Agent struct {
	Slug       string
	Name       string
	Objectives map[string]string
	State      state.Handler
}

// Objective returns the objective for lang, then for en-US, then the first
// language in sorted order.
func (a *Agent) Objective(lang string) string {
	if o, ok := a.Objectives[lang]; ok {
		return o
	}
	if o, ok := a.Objectives[FallbackLanguage]; ok {
		return o
	}
	if langs := a.Languages(); len(langs) > 0 {
		return a.Objectives[langs[0]]
	}
	return ""
}

// Languages lists the languages the agent has objectives for, sorted.
func (a *Agent) Languages() []string {
	langs := make([]string, 0, len(a.Objectives))
	for l := range a.Objectives {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

func (a *Agent) handler() state.Handler {
	if a.State == nil {
		return state.Nop{}
	}
	return a.State
}

// Catalog is the fixed set of agents served by the API.
type Catalog struct {
	agents map[string]*Agent
}

// NewCatalog indexes agents by slug. Duplicate or empty slugs are rejected.
func NewCatalog(agents ...*Agent) (*Catalog, error) {
	c := &Catalog{agents: make(map[string]*Agent, len(agents))}
	for _, a := range agents {
		if a == nil || a.Slug == "" {
			return nil, bayerr.New(bayerr.CodeAgentLoopInvalidInput, "agent slug is required")
		}
		if _, dup := c.agents[a.Slug]; dup {
			return nil, bayerr.New(bayerr.CodeAgentLoopInvalidInput, "duplicate agent slug: "+a.Slug,
				bayerr.FieldAgent(a.Slug))
		}
		c.agents[a.Slug] = a
	}
	return c, nil
}

// Get returns the agent for slug.
func (c *Catalog) Get(slug string) (*Agent, error) {
	a, ok := c.agents[slug]
	if !ok {
		return nil, bayerr.New(bayerr.CodeAgentNotFound, "agent not found: "+slug, bayerr.FieldAgent(slug))
	}
	return a, nil
}

// List returns every agent ordered by slug.
func (c *Catalog) List() []*Agent {
	out := make([]*Agent, 0, len(c.agents))
	for _, a := range c.agents {
		out = append(out, a)
	}
	slices.SortFunc(out, func(x, y *Agent) int {
		switch {
		case x.Slug < y.Slug:
			return -1
		case x.Slug > y.Slug:
			return 1
		}
		return 0
	})
	return out
}

// Builtin returns the appointment and treatment agents.
func Builtin(logger *slog.Logger) []*Agent {
	return []*Agent{
		{
			Slug:       "appointment",
			Name:       "Appointment Agent",
			Objectives: map[string]string{"en-US": appointmentEN, "pt-BR": appointmentPT},
			State:      state.NewAppointmentHandler(logger),
		},
		{
			Slug:       "treatment",
			Name:       "Treatment Agent",
			Objectives: map[string]string{"en-US": treatmentEN, "pt-BR": treatmentPT},
			State:      state.Nop{},
		},
	}
}

// BuiltinCatalog is NewCatalog over Builtin.
func BuiltinCatalog(logger *slog.Logger) *Catalog {
	c, err := NewCatalog(Builtin(logger)...)
	if err != nil {
		panic(err) // built-in slugs are fixed and unique
	}
	return c
}
