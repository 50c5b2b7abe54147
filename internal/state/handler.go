// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package state

import (
	"log/slog"

	"github.com/bayleaf-health/bayleaf-agents/internal/tools"
)

// Handler folds one tool result into the session state. Apply mutates st
// in place and reports whether anything changed; the caller decides from
// that flag whether to persist a snapshot.
type Handler interface {
	Apply(name tools.Name, args map[string]any, result any, st *State) bool
}

// Nop is a Handler for agents that keep no session state.
type Nop struct{}

// Apply never changes anything.
func (Nop) Apply(tools.Name, map[string]any, any, *State) bool { return false }

// AppointmentHandler caches search results, the booking token and the
// booking outcome for the scheduling flow.
type AppointmentHandler struct {
	log *slog.Logger
}

// NewAppointmentHandler returns an AppointmentHandler logging to logger.
func NewAppointmentHandler(logger *slog.Logger) *AppointmentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppointmentHandler{log: logger.With("component", "agent")}
}

// Apply implements Handler.
func (h *AppointmentHandler) Apply(name tools.Name, args map[string]any, result any, st *State) bool {
	switch name {
	case tools.ChatToken:
		obj, ok := result.(map[string]any)
		if !ok || !truthy(obj["access_token"]) {
			return false
		}
		st.AccessToken = display(obj["access_token"])
		return true

	case tools.ListAvailableSlots:
		list, ok := result.([]any)
		if !ok {
			return false
		}
		if isErrorList(list) {
			st.LastSlots = nil
			st.LastSlotOptions = nil
			return false
		}
		st.LastSlots = capped(list, MaxSlots)
		st.LastSlotOptions = buildSlotOptions(st.LastSlots)
		st.LastSlotQuery = queryFrom(args)
		h.logCached("slots_cached", len(st.LastSlots), st.LastSlotQuery)
		return true

	case tools.ListAvailableProfessionals:
		list, ok := result.([]any)
		if !ok || isErrorList(list) {
			return false
		}
		st.LastProfessionals = capped(list, MaxListings)
		st.LastProfessionalQuery = queryFrom(args)
		h.logCached("professionals_cached", len(st.LastProfessionals), st.LastProfessionalQuery)
		return true

	case tools.ListAvailableSpecializations:
		list, ok := result.([]any)
		if !ok || isErrorList(list) {
			return false
		}
		st.LastSpecializations = capped(list, MaxListings)
		st.LastSpecializationQuery = queryFrom(args)
		h.logCached("specializations_cached", len(st.LastSpecializations), st.LastSpecializationQuery)
		return true

	case tools.BookAppointment:
		st.SelectedSlotID = args["slot_id"]
		if obj, ok := result.(map[string]any); ok {
			st.LastBooking = obj
		} else {
			st.LastBooking = map[string]any{"result": result}
		}
		return true
	}
	return false
}

func (h *AppointmentHandler) logCached(event string, count int, q *Query) {
	h.log.Info(event,
		slog.Int("count", count),
		slog.Any("start", q.StartDate),
		slog.Any("end", q.EndDate),
		slog.Any("service_id", q.ServiceID),
	)
}

func queryFrom(args map[string]any) *Query {
	q := &Query{
		StartDate: args["start_date"],
		EndDate:   args["end_date"],
		ServiceID: args["service_id"],
	}
	if _, ok := args["service_id"]; !ok {
		q.ServiceID = 1
	}
	return q
}

// isErrorList matches the backend's structured failure: a single object
// carrying a non-null "error".
func isErrorList(list []any) bool {
	if len(list) != 1 {
		return false
	}
	obj, ok := list[0].(map[string]any)
	return ok && obj["error"] != nil
}

func capped(list []any, limit int) []any {
	if len(list) > limit {
		list = list[:limit]
	}
	out := make([]any, len(list))
	copy(out, list)
	return out
}
