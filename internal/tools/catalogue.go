// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package tools

import "github.com/bayleaf-health/bayleaf-agents/internal/provider"

// CatalogueVersion identifies the tool contract offered to models.
const CatalogueVersion = "2025-01"

func object(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func searchSchema() map[string]any {
	return object(map[string]any{
		"start_date": str("First day to search, YYYY-MM-DD. Omit for today."),
		"end_date":   str("Last day to search, YYYY-MM-DD. Omit for 30 days after start."),
		"service_id": map[string]any{"type": "integer", "description": "Service to book. Defaults to 1."},
	})
}

// Catalogue returns the tool definitions offered to the model, in a fixed
// order. The patient is always inferred from the caller's token, so no tool
// takes a patient id.
func Catalogue() []provider.ToolDefinition {
	return []provider.ToolDefinition{
		{
			Name:        string(PatientSummary),
			Description: "Get a safe, reduced summary of the current patient.",
			InputSchema: object(map[string]any{}),
		},
		{
			Name:        string(ListMedications),
			Description: "List the current patient's medications.",
			InputSchema: object(map[string]any{}),
		},
		{
			Name:        string(CreatePatient),
			Description: "Register a new patient with first name and email.",
			InputSchema: object(map[string]any{
				"first_name": str("Patient first name."),
				"last_name":  str("Patient last name, if given."),
				"email":      str("Patient email address."),
				"phone":      str("Patient phone number, if given."),
			}, "first_name", "email"),
		},
		{
			Name:        string(ListAvailableSlots),
			Description: "List open appointment slots in a date range.",
			InputSchema: searchSchema(),
		},
		{
			Name:        string(ListAvailableProfessionals),
			Description: "List professionals with open slots in a date range.",
			InputSchema: searchSchema(),
		},
		{
			Name:        string(ListAvailableSpecializations),
			Description: "List specializations with open slots in a date range.",
			InputSchema: searchSchema(),
		},
		{
			Name:        string(ChatToken),
			Description: "Obtain an access token for booking. The onboarding password is used when none is given.",
			InputSchema: object(map[string]any{
				"email":    str("Registered email address."),
				"password": str("Leave empty to use the onboarding password."),
			}, "email"),
		},
		{
			Name:        string(BookAppointment),
			Description: "Book the selected slot.",
			InputSchema: object(map[string]any{
				"slot_id":        str("Id of the chosen slot."),
				"payment_method": str("card, insurance or pix."),
				"access_token":   str("Token from chat_token. Filled from the session when omitted."),
			}, "slot_id"),
		},
	}
}
