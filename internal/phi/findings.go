// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package phi

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

// parseFindings accepts the response shapes detectors are known to send:
// a bare list of findings, or an object carrying "entities" or "items".
// Anything else yields no findings; a body that is not JSON also returns an
// error. A "redacted_text" field is ignored, the engine always builds the
// redacted text from the spans itself.
func parseFindings(raw []byte) ([]Entity, error) {
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, bayerr.Wrap(err, bayerr.CodePHIResponseInvalid, "decoding detector response")
	}

	var findings []any
	switch d := data.(type) {
	case []any:
		findings = d
	case map[string]any:
		findings = nonEmptyList(d["entities"])
		if findings == nil {
			findings = nonEmptyList(d["items"])
		}
	}

	entities := make([]Entity, 0, len(findings))
	for _, f := range findings {
		obj, ok := f.(map[string]any)
		if !ok {
			continue
		}
		label := firstText(obj, "label", "entity_type", "type")
		entities = append(entities, Entity{
			Type:        label,
			Text:        firstText(obj, "text", "value"),
			Start:       firstOffset(obj, "start", "begin", "offset"),
			End:         firstOffset(obj, "end", "stop"),
			Placeholder: PlaceholderFor(label),
		})
	}
	return entities, nil
}

func nonEmptyList(v any) []any {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	return list
}

// firstText returns the first key holding a non-empty value.
func firstText(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case nil:
			continue
		case string:
			if v != "" {
				return v
			}
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}

// firstOffset returns the first key present with an integer value. Zero is
// a valid offset.
func firstOffset(obj map[string]any, keys ...string) *int {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || v == nil {
			continue
		}
		return toInt(v)
	}
	return nil
}

func toInt(v any) *int {
	var n int
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return nil
		}
		n = int(t)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return nil
		}
		n = parsed
	default:
		return nil
	}
	return &n
}
