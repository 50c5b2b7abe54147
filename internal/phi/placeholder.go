// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package phi

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var placeholderNames = map[string]string{
	"first_name":    "first_name",
	"last_name":     "last_name",
	"person":        "person",
	"email":         "e_mail",
	"email_address": "e_mail",
	"emailaddr":     "e_mail",
	"phone":         "phone_number",
	"phone_number":  "phone_number",
	"sin":           "sin",
	"ssn":           "ssn",
	"dob":           "date_of_birth",
	"date_of_birth": "date_of_birth",
}

// PlaceholderFor returns the bracketed placeholder for a detector label.
// Unknown labels map to <phi_label>; an empty label counts as "phi".
func PlaceholderFor(label string) string {
	key := strings.ToLower(label)
	if key == "" {
		key = "phi"
	}
	name, ok := placeholderNames[key]
	if !ok {
		name = "phi_" + key
	}
	return "<" + name + ">"
}

const emailPlaceholder = "<e_mail>"

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

// emailFallback finds email-like strings. Offsets are in code points.
func emailFallback(text string) []Entity {
	matches := emailPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]Entity, 0, len(matches))
	for _, m := range matches {
		start := utf8.RuneCountInString(text[:m[0]])
		end := start + utf8.RuneCountInString(text[m[0]:m[1]])
		out = append(out, Entity{
			Type:        "EMAIL_ADDRESS",
			Text:        text[m[0]:m[1]],
			Start:       &start,
			End:         &end,
			Placeholder: emailPlaceholder,
		})
	}
	return out
}

type span struct {
	start, end  int
	placeholder string
}

// applyReplacements swaps entity spans for their placeholders. Spans are
// code point offsets; invalid ones are dropped and, after sorting by start,
// a span that begins inside an earlier replacement is skipped. With no
// usable span every entity text, and its decomposed spelling, is replaced
// literally instead.
func applyReplacements(text string, entities []Entity) string {
	runes := []rune(text)

	var spans []span
	for _, e := range entities {
		if e.Start == nil || e.End == nil {
			continue
		}
		start, end := *e.Start, *e.End
		if start < 0 || end <= start || end > len(runes) {
			continue
		}
		spans = append(spans, span{start: start, end: end, placeholder: e.Placeholder})
	}

	if len(spans) == 0 {
		redacted := text
		for _, e := range entities {
			if e.Text == "" {
				continue
			}
			redacted = strings.ReplaceAll(redacted, e.Text, e.Placeholder)
			if nfd := norm.NFD.String(e.Text); nfd != e.Text {
				redacted = strings.ReplaceAll(redacted, nfd, e.Placeholder)
			}
		}
		return redacted
	}

	slices.SortStableFunc(spans, func(a, b span) int { return cmp.Compare(a.start, b.start) })

	var b strings.Builder
	cursor := 0
	for _, s := range spans {
		if s.start < cursor {
			continue
		}
		b.WriteString(string(runes[cursor:s.start]))
		b.WriteString(s.placeholder)
		cursor = s.end
	}
	b.WriteString(string(runes[cursor:]))
	return b.String()
}
