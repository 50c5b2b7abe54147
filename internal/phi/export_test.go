// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package phi

// Export internals for white-box testing.
var (
	ApplyReplacements = applyReplacements
	EmailFallback     = emailFallback
	ParseFindings     = parseFindings
)
