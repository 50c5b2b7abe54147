// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package store

import (
	"fmt"
	"time"
)

// PrepareMessage validates msg and fills ID and CreatedAt when unset.
// Backends call it before inserting.
func PrepareMessage(msg *Message, now time.Time) error {
	if msg == nil {
		return fmt.Errorf("message is nil: %w", ErrInvalidInput)
	}
	if msg.ConversationID == "" {
		return fmt.Errorf("message conversation id is empty: %w", ErrInvalidInput)
	}
	switch msg.Role {
	case MessageRoleUser, MessageRoleAssistant, MessageRoleSystem, MessageRoleTool:
	default:
		return fmt.Errorf("message role %q: %w", msg.Role, ErrInvalidInput)
	}
	if msg.ID == "" {
		msg.ID = NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now.UTC()
	}
	return nil
}

// PrepareEntities binds entities to the message they were detected in and
// fills ID and CreatedAt when unset.
func PrepareEntities(msg *Message, entities []*PHIEntity, now time.Time) error {
	for i, e := range entities {
		if e == nil {
			return fmt.Errorf("entity %d is nil: %w", i, ErrInvalidInput)
		}
		if e.Placeholder == "" {
			return fmt.Errorf("entity %d has no placeholder: %w", i, ErrInvalidInput)
		}
		e.MessageID = msg.ID
		e.ConversationID = msg.ConversationID
		if e.ID == "" {
			e.ID = NewID()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now.UTC()
		}
	}
	return nil
}
