// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package clinical

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// PatientInput registers a patient.
type PatientInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

// SearchQuery narrows slot, professional and specialization searches.
// Dates are YYYY-MM-DD; empty dates are filled by Resolve.
type SearchQuery struct {
	StartDate string
	EndDate   string
	ServiceID int
}

// Resolve fills missing fields: the window starts today (UTC) and spans
// DefaultWindow, and the service defaults to DefaultServiceID.
func (q SearchQuery) Resolve(now time.Time) SearchQuery {
	today := now.UTC().Truncate(24 * time.Hour)
	if q.StartDate == "" {
		q.StartDate = today.Format(dateLayout)
	}
	if q.EndDate == "" {
		from := today
		if t, err := time.Parse(dateLayout, q.StartDate); err == nil {
			from = t
		}
		q.EndDate = from.Add(DefaultWindow).Format(dateLayout)
	}
	if q.ServiceID == 0 {
		q.ServiceID = DefaultServiceID
	}
	return q
}

func (q SearchQuery) values() url.Values {
	v := url.Values{}
	v.Set("start_date", q.StartDate)
	v.Set("end_date", q.EndDate)
	v.Set("service_id", strconv.Itoa(q.ServiceID))
	return v
}

// BookingInput books a slot.
type BookingInput struct {
	SlotID        string `json:"slot_id"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

// PatientSummary returns a reduced view of the caller's patient record.
func (c *Client) PatientSummary(ctx context.Context, token string) (map[string]any, error) {
	const path = "/api/patients/me/"
	data, err := c.do(ctx, http.MethodGet, path, nil, token, nil)
	if err != nil {
		return nil, err
	}
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, unexpected(path, data)
	}
	return map[string]any{
		"id":              firstOf(obj, "id", "patient_uuid"),
		"name":            firstOf(obj, "full_name", "name"),
		"gender":          obj["gender"],
		"age":             obj["age"],
		"active_episodes": obj["active_episodes_count"],
		"last_updated":    obj["updated_at"],
	}, nil
}

// Medications lists the caller's medications.
func (c *Client) Medications(ctx context.Context, token string) ([]map[string]any, error) {
	const path = "/api/medications/"
	data, err := c.do(ctx, http.MethodGet, path, url.Values{"limit": {"100"}}, token, nil)
	if err != nil {
		return nil, err
	}
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, unexpected(path, data)
	}
	results, _ := obj["results"].([]any)
	out := make([]map[string]any, 0, len(results))
	for _, r := range results {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, map[string]any{
			"id":        m["id"],
			"name":      m["name"],
			"dose":      m["dose"],
			"route":     m["route"],
			"frequency": m["frequency"],
			"status":    m["status"],
		})
	}
	return out, nil
}

// CreatePatient registers a new patient.
func (c *Client) CreatePatient(ctx context.Context, token string, in PatientInput) (any, error) {
	return c.do(ctx, http.MethodPost, "/api/patients/", nil, token, in)
}

// AvailableSlots lists open appointment slots.
func (c *Client) AvailableSlots(ctx context.Context, token string, q SearchQuery) ([]any, error) {
	return c.search(ctx, "/api/appointments/available-slots/", token, q)
}

// AvailableProfessionals lists professionals with open slots.
func (c *Client) AvailableProfessionals(ctx context.Context, token string, q SearchQuery) ([]any, error) {
	return c.search(ctx, "/api/professionals/available/", token, q)
}

// AvailableSpecializations lists specializations with open slots.
func (c *Client) AvailableSpecializations(ctx context.Context, token string, q SearchQuery) ([]any, error) {
	return c.search(ctx, "/api/specializations/available/", token, q)
}

func (c *Client) search(ctx context.Context, path, token string, q SearchQuery) ([]any, error) {
	data, err := c.do(ctx, http.MethodGet, path, q.Resolve(c.now()).values(), token, nil)
	if err != nil {
		return nil, err
	}
	switch d := data.(type) {
	case []any:
		return d, nil
	case map[string]any:
		if results, ok := d["results"].([]any); ok {
			return results, nil
		}
	}
	return nil, unexpected(path, data)
}

// ChatToken exchanges credentials for a chat access token. An empty
// password uses the configured onboarding password. The call is
// unauthenticated.
func (c *Client) ChatToken(ctx context.Context, email, password string) (any, error) {
	if password == "" {
		password = c.password
	}
	body := map[string]string{"email": email, "password": password}
	return c.do(ctx, http.MethodPost, "/api/users/chat-token/", nil, "", body)
}

// BookAppointment books a slot using token.
func (c *Client) BookAppointment(ctx context.Context, token string, in BookingInput) (any, error) {
	return c.do(ctx, http.MethodPost, "/api/appointments/", nil, token, in)
}

func firstOf(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil && v != "" {
			return v
		}
	}
	return nil
}

func unexpected(path string, data any) error {
	raw, _ := json.Marshal(data)
	return &UnexpectedResponseError{Path: path, Raw: string(raw)}
}
