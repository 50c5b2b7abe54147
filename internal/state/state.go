// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

// Package state holds the small cross-turn cache of a conversation: tokens,
// the last search results offered, the selected slot and the last booking.
// Every turn loads the latest snapshot and appends a new one only when a
// tool result changed it.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bayleaf-health/bayleaf-agents/internal/store"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

const (
	// MaxSlots caps the cached slot list and its options.
	MaxSlots = 10
	// MaxListings caps cached professionals and specializations.
	MaxListings = 8
)

// Query records the search parameters behind a cached list.
type Query struct {
	StartDate any `json:"start_date"`
	EndDate   any `json:"end_date"`
	ServiceID any `json:"service_id"`
}

// SlotOption is a display-ready view of one cached slot.
type SlotOption struct {
	SlotID       any    `json:"slot_id"`
	Start        any    `json:"start"`
	End          any    `json:"end"`
	ProviderID   any    `json:"provider_id"`
	ProviderName string `json:"provider_name,omitempty"`
	Label        string `json:"label"`
}

// State is the session state of one conversation.
type State struct {
	AccessToken             string         `json:"access_token,omitempty"`
	LastSlotQuery           *Query         `json:"last_slot_query,omitempty"`
	LastSlots               []any          `json:"last_slots,omitempty"`
	LastSlotOptions         []SlotOption   `json:"last_slot_options,omitempty"`
	LastProfessionals       []any          `json:"last_professionals,omitempty"`
	LastProfessionalQuery   *Query         `json:"last_professional_query,omitempty"`
	LastSpecializations     []any          `json:"last_specializations,omitempty"`
	LastSpecializationQuery *Query         `json:"last_specialization_query,omitempty"`
	SelectedSlotID          any            `json:"selected_slot_id,omitempty"`
	LastBooking             map[string]any `json:"last_booking,omitempty"`
}

// Empty reports whether nothing has been cached yet.
func (s *State) Empty() bool {
	return s.AccessToken == "" &&
		s.LastSlotQuery == nil && len(s.LastSlots) == 0 && len(s.LastSlotOptions) == 0 &&
		s.LastProfessionalQuery == nil && len(s.LastProfessionals) == 0 &&
		s.LastSpecializationQuery == nil && len(s.LastSpecializations) == 0 &&
		s.SelectedSlotID == nil && s.LastBooking == nil
}

// Summary renders the state for the system prompt. It carries no token
// value and no raw tool payload.
func (s *State) Summary() string {
	if s.Empty() {
		return "Session state: empty."
	}
	var b strings.Builder
	b.WriteString("Session state:\n")
	if s.AccessToken != "" {
		b.WriteString("- booking access token: on file\n")
	}
	if q := s.LastSlotQuery; q != nil {
		fmt.Fprintf(&b, "- last slot search: %v to %v, service %v\n", orDash(q.StartDate), orDash(q.EndDate), q.ServiceID)
	}
	if len(s.LastSlotOptions) > 0 {
		b.WriteString("- slots last offered:\n")
		for _, o := range s.LastSlotOptions {
			fmt.Fprintf(&b, "  - [%v] %s\n", o.SlotID, o.Label)
		}
	}
	if len(s.LastProfessionals) > 0 {
		fmt.Fprintf(&b, "- professionals cached: %d\n", len(s.LastProfessionals))
	}
	if len(s.LastSpecializations) > 0 {
		fmt.Fprintf(&b, "- specializations cached: %d\n", len(s.LastSpecializations))
	}
	if s.SelectedSlotID != nil {
		fmt.Fprintf(&b, "- selected slot: %v\n", s.SelectedSlotID)
	}
	if s.LastBooking != nil {
		fmt.Fprintf(&b, "- last booking: %s\n", bookingStatus(s.LastBooking))
	}
	return strings.TrimRight(b.String(), "\n")
}

func orDash(v any) any {
	if v == nil || v == "" {
		return "-"
	}
	return v
}

func bookingStatus(booking map[string]any) string {
	if e, ok := booking["error"]; ok && e != nil {
		return fmt.Sprintf("failed (%v)", e)
	}
	if st, ok := booking["status"]; ok && st != nil {
		return fmt.Sprintf("%v", st)
	}
	return "recorded"
}

// Store loads and saves state snapshots.
type Store struct {
	snapshots store.StateStore
}

// NewStore wraps a snapshot store.
func NewStore(snapshots store.StateStore) *Store {
	return &Store{snapshots: snapshots}
}

// Load returns the latest state, or an empty State when none was saved.
func (s *Store) Load(ctx context.Context, conversationID string) (*State, error) {
	snap, err := s.snapshots.Latest(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return &State{}, nil
	}
	if err != nil {
		return nil, bayerr.Wrap(err, bayerr.CodeStoreDatabaseFailure, "loading session state",
			bayerr.FieldConversationID(conversationID))
	}
	st := &State{}
	if err := json.Unmarshal(snap.Data, st); err != nil {
		return nil, bayerr.Wrap(err, bayerr.CodeStateDecodeInvalid, "decoding session state",
			bayerr.FieldConversationID(conversationID),
			bayerr.Field("version", snap.Version))
	}
	return st, nil
}

// Save appends st as a new snapshot when changed is set. It returns the
// version written, or 0 when nothing was written.
func (s *Store) Save(ctx context.Context, conversationID string, st *State, changed bool) (int, error) {
	if !changed {
		return 0, nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return 0, bayerr.Wrap(err, bayerr.CodeStateDecodeInvalid, "encoding session state")
	}
	snap, err := s.snapshots.Append(ctx, conversationID, data)
	if err != nil {
		code := bayerr.CodeStoreDatabaseFailure
		if errors.Is(err, store.ErrConflict) {
			code = bayerr.CodeStoreStateAppendConflict
		}
		return 0, bayerr.Wrap(err, code, "saving session state",
			bayerr.FieldConversationID(conversationID))
	}
	return snap.Version, nil
}
