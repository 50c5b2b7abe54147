// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/bayleaf-health/bayleaf-agents/internal/store"
)

const messageColumns = `seq, id, conversation_id, role, content, redacted_content, tool_name, tool_call_id, tool_args, tool_result, created_at`

type messageStore struct{ s *Store }

// Append inserts a message. Raw and redacted content land in the same row
// write, so the redacted form never trails the raw one.
func (m *messageStore) Append(ctx context.Context, msg *store.Message) error {
	if err := store.PrepareMessage(msg, m.s.now()); err != nil {
		return err
	}

	var args sql.NullString
	if msg.ToolArgs != nil {
		b, err := json.Marshal(msg.ToolArgs)
		if err != nil {
			return fmt.Errorf("marshalling tool args: %w", err)
		}
		args = sql.NullString{String: string(b), Valid: true}
	}
	result, err := marshalNullable(msg.ToolResult)
	if err != nil {
		return fmt.Errorf("marshalling tool result: %w", err)
	}

	var redacted sql.NullString
	if msg.RedactedContent != nil {
		redacted = sql.NullString{String: *msg.RedactedContent, Valid: true}
	}

	const q = `INSERT INTO messages (id, conversation_id, role, content, redacted_content, tool_name, tool_call_id, tool_args, tool_result, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := m.s.db.ExecContext(ctx, q,
		msg.ID,
		msg.ConversationID,
		string(msg.Role),
		msg.Content,
		redacted,
		msg.ToolName,
		msg.ToolCallID,
		args,
		result,
		formatTime(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("appending message %s: %w", msg.ID, classify(err))
	}
	if seq, err := res.LastInsertId(); err == nil {
		msg.Seq = seq
	}
	return nil
}

func (m *messageStore) Get(ctx context.Context, id string) (*store.Message, error) {
	row := m.s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading message %s: %w", id, err)
	}
	return msg, nil
}

func (m *messageStore) SetRedactedContent(ctx context.Context, id, redacted string) (string, error) {
	tx, err := m.s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning tx for message %s: %w", id, err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx,
		`UPDATE messages SET redacted_content = ? WHERE id = ? AND redacted_content IS NULL`, redacted, id); err != nil {
		return "", fmt.Errorf("setting redacted content for %s: %w", id, err)
	}

	var stored sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT redacted_content FROM messages WHERE id = ?`, id).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("reading redacted content for %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing redacted content for %s: %w", id, err)
	}
	return stored.String, nil
}

func (m *messageStore) Recent(ctx context.Context, conversationID string, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := m.s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY seq DESC LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent messages: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var out []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(sc scanner) (*store.Message, error) {
	var (
		msg      store.Message
		role     string
		redacted sql.NullString
		args     sql.NullString
		result   sql.NullString
		created  string
	)
	if err := sc.Scan(&msg.Seq, &msg.ID, &msg.ConversationID, &role, &msg.Content, &redacted,
		&msg.ToolName, &msg.ToolCallID, &args, &result, &created); err != nil {
		return nil, err
	}
	msg.Role = store.MessageRole(role)
	msg.CreatedAt = parseTime(created)
	if redacted.Valid {
		r := redacted.String
		msg.RedactedContent = &r
	}
	if args.Valid {
		if err := json.Unmarshal([]byte(args.String), &msg.ToolArgs); err != nil {
			return nil, fmt.Errorf("unmarshalling tool args: %w", err)
		}
	}
	if result.Valid {
		if err := json.Unmarshal([]byte(result.String), &msg.ToolResult); err != nil {
			return nil, fmt.Errorf("unmarshalling tool result: %w", err)
		}
	}
	return &msg, nil
}
