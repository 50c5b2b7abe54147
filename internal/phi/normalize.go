// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package phi

import (
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// normalized is the NFC form of a caller's text. When the text was not
// already NFC, nfc and src hold the boundaries of its normalization segments
// (a starter and the marks that follow it) in both forms as code point
// offsets, index for index.
type normalized struct {
	text string
	nfc  []int
	src  []int
}

func normalize(text string) normalized {
	if norm.NFC.IsNormalString(text) {
		return normalized{text: text}
	}

	n := normalized{nfc: []int{0}, src: []int{0}}
	var b strings.Builder
	for pos := 0; pos < len(text); {
		size := norm.NFC.NextBoundaryInString(text[pos:], true)
		if size <= 0 {
			size = len(text) - pos
		}
		seg := text[pos : pos+size]
		composed := norm.NFC.String(seg)
		b.WriteString(composed)
		n.nfc = append(n.nfc, n.nfc[len(n.nfc)-1]+utf8.RuneCountInString(composed))
		n.src = append(n.src, n.src[len(n.src)-1]+utf8.RuneCountInString(seg))
		pos += size
	}
	n.text = b.String()
	return n
}

// toSource moves entity spans found on the normalized text onto src, the
// text the caller passed in. A span edge inside a segment is widened to the
// segment, and the entity text becomes the covered slice of src so that
// restoring it reproduces the caller's bytes. Spans that are not valid on the
// normalized text lose their offsets.
func (n normalized) toSource(src string, entities []Entity) []Entity {
	if n.nfc == nil {
		return entities
	}

	runes := []rune(src)
	total := n.nfc[len(n.nfc)-1]
	out := make([]Entity, len(entities))
	for i, e := range entities {
		out[i] = e
		if e.Start == nil || e.End == nil {
			continue
		}
		start, end := *e.Start, *e.End
		if start < 0 || end <= start || end > total {
			out[i].Start, out[i].End = nil, nil
			continue
		}

		lo, found := slices.BinarySearch(n.nfc, start)
		if !found {
			lo--
		}
		hi, _ := slices.BinarySearch(n.nfc, end)
		s, en := n.src[lo], n.src[hi]
		out[i].Start, out[i].End = &s, &en
		out[i].Text = string(runes[s:en])
	}
	return out
}
