// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package phi

import (
	"cmp"
	"context"
	"regexp"
	"slices"
	"strings"

	"github.com/bayleaf-health/bayleaf-agents/internal/store"
	"github.com/bayleaf-health/bayleaf-agents/internal/value"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

// Mapping resolves placeholders back to the original text for one
// conversation. Both "<x>" and bare "x" keys are held.
//
// Restoration is a single left-to-right pass. Bracketed keys win over bare
// ones and longer keys over shorter ones; bare keys only match whole words.
// Restored text is never scanned again, so an original value that happens
// to look like a placeholder stays as written.
type Mapping struct {
	values  map[string]string
	pattern *regexp.Regexp
}

// NewMapping builds a Mapping from key/value pairs.
func NewMapping(values map[string]string) Mapping {
	m := Mapping{values: make(map[string]string, len(values))}
	for k, v := range values {
		if k != "" {
			m.values[k] = v
		}
	}
	if len(m.values) == 0 {
		return m
	}

	var bracketed, bare []string
	for k := range m.values {
		if strings.HasPrefix(k, "<") && strings.HasSuffix(k, ">") {
			bracketed = append(bracketed, k)
		} else {
			bare = append(bare, k)
		}
	}
	byLength := func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	}
	slices.SortFunc(bracketed, byLength)
	slices.SortFunc(bare, byLength)

	alts := make([]string, 0, len(m.values))
	for _, k := range bracketed {
		alts = append(alts, regexp.QuoteMeta(k))
	}
	for _, k := range bare {
		alts = append(alts, `\b`+regexp.QuoteMeta(k)+`\b`)
	}
	m.pattern = regexp.MustCompile(strings.Join(alts, "|"))
	return m
}

// Len returns the number of keys.
func (m Mapping) Len() int { return len(m.values) }

// Lookup returns the original text for a key.
func (m Mapping) Lookup(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// RestoreString replaces every placeholder occurrence in s.
func (m Mapping) RestoreString(s string) string {
	if m.pattern == nil || s == "" {
		return s
	}
	return m.pattern.ReplaceAllStringFunc(s, func(match string) string {
		return m.values[match]
	})
}

// Restore rewrites every string leaf of v. Containers keep their shape and
// non-string leaves pass through.
func (m Mapping) Restore(v value.Value) value.Value {
	if m.pattern == nil {
		return v
	}
	return value.MapStrings(v, m.RestoreString)
}

// RestoreAny is Restore for plain Go values.
func (m Mapping) RestoreAny(x any) any {
	return m.Restore(value.FromAny(x)).Any()
}

// Registry builds mappings from the PHI entities committed for a
// conversation.
type Registry struct {
	entities store.EntityStore
}

// NewRegistry returns a Registry reading from entities.
func NewRegistry(entities store.EntityStore) *Registry {
	return &Registry{entities: entities}
}

// MappingFor returns the mapping for conversationID. Entities are applied
// in insertion order, so the last writer wins for a repeated placeholder.
// Entities without original text are ignored.
func (r *Registry) MappingFor(ctx context.Context, conversationID string) (Mapping, error) {
	rows, err := r.entities.ListByConversation(ctx, conversationID)
	if err != nil {
		return Mapping{}, bayerr.Wrap(err, bayerr.CodePHIRegistryFailure, "loading phi entities",
			bayerr.FieldConversationID(conversationID))
	}

	values := make(map[string]string, len(rows)*2)
	for _, e := range rows {
		if e.Placeholder == "" || e.OriginalText == "" {
			continue
		}
		values[e.Placeholder] = e.OriginalText
		values[strings.TrimSuffix(strings.TrimPrefix(e.Placeholder, "<"), ">")] = e.OriginalText
	}
	return NewMapping(values), nil
}
