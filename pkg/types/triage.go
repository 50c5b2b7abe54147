// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package types

// Triage is the safety classification attached to every reply.
type Triage string

const (
	TriageNonUrgent Triage = "non-urgent"
	TriageUrgent    Triage = "urgent"
)
