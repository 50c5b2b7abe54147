// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bayleaf-health/bayleaf-agents/internal/store"
)

type conversationStore struct{ s *Store }

func (c *conversationStore) FindOrCreate(ctx context.Context, key store.ConversationKey) (*store.Conversation, bool, error) {
	if key.UserID == "" {
		return nil, false, fmt.Errorf("conversation user id is empty: %w", store.ErrInvalidInput)
	}

	conv := &store.Conversation{
		ID:         store.NewID(),
		ExternalID: key.ExternalID,
		UserID:     key.UserID,
		Channel:    key.Channel,
		CreatedAt:  c.s.now().UTC(),
	}

	// The partial unique index turns a concurrent duplicate into a no-op.
	const q = `INSERT OR IGNORE INTO conversations (id, external_id, user_id, channel, created_at) VALUES (?, ?, ?, ?, ?)`
	res, err := c.s.db.ExecContext(ctx, q, conv.ID, conv.ExternalID, conv.UserID, conv.Channel, formatTime(conv.CreatedAt))
	if err != nil {
		return nil, false, fmt.Errorf("inserting conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return conv, true, nil
	}

	const sel = `SELECT id, external_id, user_id, channel, created_at FROM conversations
WHERE external_id = ? AND user_id = ? AND channel = ?`
	existing, err := scanConversation(c.s.db.QueryRowContext(ctx, sel, key.ExternalID, key.UserID, key.Channel))
	if err != nil {
		return nil, false, fmt.Errorf("loading conversation %q: %w", key.ExternalID, err)
	}
	return existing, false, nil
}

func (c *conversationStore) Get(ctx context.Context, id string) (*store.Conversation, error) {
	const q = `SELECT id, external_id, user_id, channel, created_at FROM conversations WHERE id = ?`
	conv, err := scanConversation(c.s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", id, err)
	}
	return conv, nil
}

func (c *conversationStore) Delete(ctx context.Context, id string) error {
	res, err := c.s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func scanConversation(row *sql.Row) (*store.Conversation, error) {
	var conv store.Conversation
	var created string
	err := row.Scan(&conv.ID, &conv.ExternalID, &conv.UserID, &conv.Channel, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	conv.CreatedAt = parseTime(created)
	return &conv, nil
}
