// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

// Package tools executes the tool calls a model requests against the
// clinical backend. The set of tools is closed: every name, alias and
// argument struct is declared here.
package tools

import "strings"

// Name is a canonical tool name.
type Name string

const (
	PatientSummary               Name = "patient_summary"
	ListMedications              Name = "list_medications"
	CreatePatient                Name = "create_patient"
	ListAvailableSlots           Name = "list_available_slots"
	ListAvailableProfessionals   Name = "list_available_professionals"
	ListAvailableSpecializations Name = "list_available_specializations"
	ChatToken                    Name = "chat_token"
	BookAppointment              Name = "book_appointment"
)

var aliases = map[string]Name{
	"current_patient_summary":   PatientSummary,
	"current_medications":       ListMedications,
	"register_patient":          CreatePatient,
	"available_slots":           ListAvailableSlots,
	"available_professionals":   ListAvailableProfessionals,
	"available_specializations": ListAvailableSpecializations,
}

// Names returns the canonical names in catalogue order.
func Names() []Name {
	return []Name{
		PatientSummary,
		ListMedications,
		CreatePatient,
		ListAvailableSlots,
		ListAvailableProfessionals,
		ListAvailableSpecializations,
		ChatToken,
		BookAppointment,
	}
}

// Lookup resolves raw, which may be an alias, to its canonical name.
// Matching is exact apart from surrounding whitespace.
func Lookup(raw string) (Name, bool) {
	raw = strings.TrimSpace(raw)
	if n, ok := aliases[raw]; ok {
		return n, true
	}
	if _, ok := table[Name(raw)]; ok {
		return Name(raw), true
	}
	return "", false
}

func (n Name) String() string { return string(n) }
