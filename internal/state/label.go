// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package state

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime accepts ISO 8601 timestamps with or without an offset. The
// result keeps its own offset; naive times are read as UTC.
func parseTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func clock(t time.Time) string {
	return strings.TrimLeft(t.Format("03:04 PM"), "0")
}

// provider extracts the provider id and display name of a slot. The id
// comes from provider.id, then provider_id, then professional_id; the name
// from provider first and last names, then provider.name.
func provider(slot map[string]any) (id any, name string) {
	p, _ := slot["provider"].(map[string]any)
	for _, v := range []any{p["id"], slot["provider_id"], slot["professional_id"]} {
		if truthy(v) {
			id = v
			break
		}
	}
	var parts []string
	for _, k := range []string{"first_name", "last_name"} {
		if s := display(p[k]); s != "" {
			parts = append(parts, s)
		}
	}
	name = strings.Join(parts, " ")
	if name == "" {
		name = display(p["name"])
	}
	return id, name
}

// slotLabel renders a slot as "Mon, Jan 02, 3:00 PM–3:30 PM (UTC) — Name".
func slotLabel(slot map[string]any) string {
	var datePart, startPart, endPart string
	if t, ok := parseTime(slot["start"]); ok {
		datePart = t.Format("Mon, Jan 02")
		startPart = clock(t)
	} else {
		startPart = display(slot["start"])
	}
	if t, ok := parseTime(slot["end"]); ok {
		endPart = clock(t)
	} else {
		endPart = display(slot["end"])
	}

	id, name := provider(slot)
	var suffix string
	switch {
	case name != "":
		suffix = " — " + name
	case id != nil:
		suffix = " — provider (ID: " + display(id) + ")"
	}

	label := fmt.Sprintf("%s, %s–%s (UTC)%s", datePart, startPart, endPart, suffix)
	return strings.TrimSpace(strings.Trim(label, ", "))
}

func buildSlotOptions(slots []any) []SlotOption {
	options := make([]SlotOption, 0, len(slots))
	for _, s := range slots {
		slot, ok := s.(map[string]any)
		if !ok {
			continue
		}
		slotID := slot["id"]
		if !truthy(slotID) {
			slotID = slot["slot_id"]
		}
		id, name := provider(slot)
		options = append(options, SlotOption{
			SlotID:       slotID,
			Start:        slot["start"],
			End:          slot["end"],
			ProviderID:   id,
			ProviderName: name,
			Label:        slotLabel(slot),
		})
	}
	return options
}

// display formats a JSON leaf for humans. Integral numbers print without
// a fraction; nil prints as the empty string.
func display(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
