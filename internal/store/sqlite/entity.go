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

type entityStore struct{ s *Store }

func (e *entityStore) CreateForMessage(ctx context.Context, messageID string, entities []*store.PHIEntity) (bool, error) {
	if len(entities) == 0 {
		return false, nil
	}

	tx, err := e.s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning tx for message %s entities: %w", messageID, err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var msg store.Message
	err = tx.QueryRowContext(ctx, `SELECT id, conversation_id FROM messages WHERE id = ?`, messageID).
		Scan(&msg.ID, &msg.ConversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("message %s: %w", messageID, store.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("loading message %s: %w", messageID, err)
	}

	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM phi_entities WHERE message_id = ?`, messageID).Scan(&existing); err != nil {
		return false, fmt.Errorf("counting entities for %s: %w", messageID, err)
	}
	if existing > 0 {
		return false, nil
	}

	if err := store.PrepareEntities(&msg, entities, e.s.now()); err != nil {
		return false, err
	}

	const q = `INSERT INTO phi_entities (id, conversation_id, message_id, entity_type, placeholder, original_text, start_offset, end_offset, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, ent := range entities {
		res, err := tx.ExecContext(ctx, q,
			ent.ID, ent.ConversationID, ent.MessageID, ent.EntityType, ent.Placeholder,
			ent.OriginalText, nullInt(ent.Start), nullInt(ent.End), formatTime(ent.CreatedAt),
		)
		if err != nil {
			return false, fmt.Errorf("inserting entity %s: %w", ent.ID, classify(err))
		}
		if seq, err := res.LastInsertId(); err == nil {
			ent.Seq = seq
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing entities for %s: %w", messageID, err)
	}
	return true, nil
}

func (e *entityStore) ListByConversation(ctx context.Context, conversationID string) ([]*store.PHIEntity, error) {
	const q = `SELECT seq, id, conversation_id, message_id, entity_type, placeholder, original_text, start_offset, end_offset, created_at
FROM phi_entities WHERE conversation_id = ? ORDER BY seq ASC`

	rows, err := e.s.db.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var out []*store.PHIEntity
	for rows.Next() {
		var (
			ent        store.PHIEntity
			start, end sql.NullInt64
			created    string
		)
		if err := rows.Scan(&ent.Seq, &ent.ID, &ent.ConversationID, &ent.MessageID, &ent.EntityType,
			&ent.Placeholder, &ent.OriginalText, &start, &end, &created); err != nil {
			return nil, fmt.Errorf("scanning entity row: %w", err)
		}
		ent.Start = intFromNull(start)
		ent.End = intFromNull(end)
		ent.CreatedAt = parseTime(created)
		out = append(out, &ent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}
	return out, nil
}
