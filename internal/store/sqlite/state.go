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

type stateStore struct{ s *Store }

func (st *stateStore) Latest(ctx context.Context, conversationID string) (*store.StateSnapshot, error) {
	const q = `SELECT version, data, created_at FROM state_snapshots
WHERE conversation_id = ? ORDER BY version DESC LIMIT 1`

	snap := store.StateSnapshot{ConversationID: conversationID}
	var data, created string
	err := st.s.db.QueryRowContext(ctx, q, conversationID).Scan(&snap.Version, &data, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("state for conversation %s: %w", conversationID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading state for %s: %w", conversationID, err)
	}
	snap.Data = []byte(data)
	snap.CreatedAt = parseTime(created)
	return &snap, nil
}

func (st *stateStore) Append(ctx context.Context, conversationID string, data []byte) (*store.StateSnapshot, error) {
	tx, err := st.s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning tx for state of %s: %w", conversationID, err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var latest int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM state_snapshots WHERE conversation_id = ?`, conversationID,
	).Scan(&latest); err != nil {
		return nil, fmt.Errorf("reading latest state version: %w", err)
	}

	snap := &store.StateSnapshot{
		ConversationID: conversationID,
		Version:        latest + 1,
		Data:           data,
		CreatedAt:      st.s.now().UTC(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO state_snapshots (conversation_id, version, data, created_at) VALUES (?, ?, ?, ?)`,
		snap.ConversationID, snap.Version, string(data), formatTime(snap.CreatedAt),
	); err != nil {
		return nil, fmt.Errorf("appending state version %d: %w", snap.Version, classify(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing state of %s: %w", conversationID, err)
	}
	return snap, nil
}

func (st *stateStore) List(ctx context.Context, conversationID string) ([]*store.StateSnapshot, error) {
	rows, err := st.s.db.QueryContext(ctx,
		`SELECT version, data, created_at FROM state_snapshots WHERE conversation_id = ? ORDER BY version ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying states: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var out []*store.StateSnapshot
	for rows.Next() {
		snap := store.StateSnapshot{ConversationID: conversationID}
		var data, created string
		if err := rows.Scan(&snap.Version, &data, &created); err != nil {
			return nil, fmt.Errorf("scanning state row: %w", err)
		}
		snap.Data = []byte(data)
		snap.CreatedAt = parseTime(created)
		out = append(out, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating states: %w", err)
	}
	return out, nil
}
