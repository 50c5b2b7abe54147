// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package types

import "slices"

// Principal is the authenticated caller of a turn. RawToken is forwarded
// to the clinical backend unchanged.
type Principal struct {
	UserID   string
	Scopes   []string
	RawToken string
}

// HasScopes reports whether every scope in required is granted.
func (p Principal) HasScopes(required ...string) bool {
	for _, s := range required {
		if !slices.Contains(p.Scopes, s) {
			return false
		}
	}
	return true
}
