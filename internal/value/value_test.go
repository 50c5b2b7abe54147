// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package value_test

import (
	"strings"
	"testing"
	"time"

	"github.com/bayleaf-health/bayleaf-agents/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAnyRoundTripsPlainValues(t *testing.T) {
	in := map[string]any{
		"name":  "<person>",
		"count": 3,
		"ok":    true,
		"none":  nil,
		"tags":  []any{"a", 1.5},
		"rows":  []map[string]any{{"id": "x"}},
	}

	got := value.FromAny(in).Any()
	assert.Equal(t, map[string]any{
		"name":  "<person>",
		"count": 3,
		"ok":    true,
		"none":  nil,
		"tags":  []any{"a", 1.5},
		"rows":  []any{map[string]any{"id": "x"}},
	}, got)
}

func TestMapStringsRewritesOnlyStrings(t *testing.T) {
	when := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	in := value.FromAny(map[string]any{
		"a": "x",
		"b": []any{"y", 2, map[string]any{"c": "z", "d": false}},
		"t": when,
	})

	out := value.MapStrings(in, strings.ToUpper).Any().(map[string]any)

	assert.Equal(t, "X", out["a"])
	assert.Equal(t, []any{"Y", 2, map[string]any{"c": "Z", "d": false}}, out["b"])
	assert.Equal(t, when, out["t"])
}

func TestMapStringsKeepsKeys(t *testing.T) {
	in := value.FromAny(map[string]any{"<person>": "<person>"})
	out := value.MapStrings(in, func(string) string { return "Ana" }).Any()
	assert.Equal(t, map[string]any{"<person>": "Ana"}, out)
}

func TestParse(t *testing.T) {
	v, err := value.Parse([]byte(`{"slot_id": 42, "notes": ["a"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"notes", "slot_id"}, v.(value.Object).Keys())

	empty, err := value.Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, empty.Any())

	_, err = value.Parse([]byte(`{`))
	assert.Error(t, err)
}
