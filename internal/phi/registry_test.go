// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package phi_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bayleaf-health/bayleaf-agents/internal/phi"
	"github.com/bayleaf-health/bayleaf-agents/internal/store"
	"github.com/bayleaf-health/bayleaf-agents/internal/store/memory"
	"github.com/bayleaf-health/bayleaf-agents/internal/value"
)

func TestMappingRestoreString(t *testing.T) {
	m := phi.NewMapping(map[string]string{
		"<person>":      "Maria",
		"person":        "Maria",
		"<person_name>": "Maria Silva",
		"<e_mail>":      "maria@x.com",
		"e_mail":        "maria@x.com",
	})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bracketed", "Olá <person>!", "Olá Maria!"},
		{"longer bracketed key first", "<person_name>", "Maria Silva"},
		{"bare key whole word", "person e e_mail", "Maria e maria@x.com"},
		{"bare key inside word untouched", "personal", "personal"},
		{"multiple occurrences", "<e_mail>, <e_mail>", "maria@x.com, maria@x.com"},
		{"unknown placeholder kept", "<ssn>", "<ssn>"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.RestoreString(tt.in))
		})
	}
}

func TestMappingDoesNotRescanRestoredValues(t *testing.T) {
	m := phi.NewMapping(map[string]string{
		"<person>": "<e_mail>",
		"<e_mail>": "a@b.io",
	})
	assert.Equal(t, "<e_mail> / a@b.io", m.RestoreString("<person> / <e_mail>"))
}

func TestMappingRestoreValue(t *testing.T) {
	m := phi.NewMapping(map[string]string{"<person>": "Ana"})

	in := value.Object{
		"<person>": value.String("hi <person>"),
		"items":    value.Array{value.String("<person>"), value.Number{N: float64(3)}, value.Null{}},
		"ok":       value.Bool(true),
	}
	out := m.Restore(in)

	obj, ok := out.(value.Object)
	require.True(t, ok)
	assert.Equal(t, value.String("hi Ana"), obj["<person>"])
	assert.Equal(t, value.Array{value.String("Ana"), value.Number{N: float64(3)}, value.Null{}}, obj["items"])
	assert.Equal(t, value.Bool(true), obj["ok"])

	got := m.RestoreAny(map[string]any{"name": "<person>", "n": float64(1)})
	assert.Equal(t, map[string]any{"name": "Ana", "n": float64(1)}, got)
}

func TestEmptyMappingIsIdentity(t *testing.T) {
	m := phi.NewMapping(nil)
	assert.Zero(t, m.Len())
	assert.Equal(t, "<person>", m.RestoreString("<person>"))
}

func TestRegistryMappingFor(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	conv, _, err := s.Conversations().FindOrCreate(ctx, store.ConversationKey{UserID: "u1", Channel: "bayleaf_app"})
	require.NoError(t, err)

	first := &store.Message{ConversationID: conv.ID, Role: store.MessageRoleUser, Content: "Maria"}
	second := &store.Message{ConversationID: conv.ID, Role: store.MessageRoleUser, Content: "Joana"}
	require.NoError(t, s.Messages().Append(ctx, first))
	require.NoError(t, s.Messages().Append(ctx, second))

	_, err = s.Entities().CreateForMessage(ctx, first.ID, []*store.PHIEntity{
		{EntityType: "PERSON", Placeholder: "<person>", OriginalText: "Maria"},
		{EntityType: "EMAIL_ADDRESS", Placeholder: "<e_mail>", OriginalText: ""},
	})
	require.NoError(t, err)
	_, err = s.Entities().CreateForMessage(ctx, second.ID, []*store.PHIEntity{
		{EntityType: "PERSON", Placeholder: "<person>", OriginalText: "Joana"},
	})
	require.NoError(t, err)

	m, err := phi.NewRegistry(s.Entities()).MappingFor(ctx, conv.ID)
	require.NoError(t, err)

	got, ok := m.Lookup("<person>")
	require.True(t, ok)
	assert.Equal(t, "Joana", got, "later entity wins")
	got, ok = m.Lookup("person")
	require.True(t, ok)
	assert.Equal(t, "Joana", got)

	_, ok = m.Lookup("<e_mail>")
	assert.False(t, ok, "entities without original text are skipped")
	assert.Equal(t, "<e_mail>", m.RestoreString("<e_mail>"))
}
