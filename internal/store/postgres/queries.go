// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bayleaf-health/bayleaf-agents/internal/store"
)

// ---------- conversations ----------

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

	const q = `INSERT INTO conversations (id, external_id, user_id, channel, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (external_id, user_id, channel) WHERE external_id <> '' DO NOTHING
RETURNING id`

	var id string
	err := c.s.pool.QueryRow(ctx, q, conv.ID, conv.ExternalID, conv.UserID, conv.Channel, conv.CreatedAt).Scan(&id)
	if err == nil {
		return conv, true, nil
	}
	if !isNoRows(err) {
		return nil, false, fmt.Errorf("inserting conversation: %w", err)
	}

	const sel = `SELECT id, external_id, user_id, channel, created_at FROM conversations
WHERE external_id = $1 AND user_id = $2 AND channel = $3`
	existing, err := scanConversation(c.s.pool.QueryRow(ctx, sel, key.ExternalID, key.UserID, key.Channel))
	if err != nil {
		return nil, false, fmt.Errorf("loading conversation %q: %w", key.ExternalID, err)
	}
	return existing, false, nil
}

func (c *conversationStore) Get(ctx context.Context, id string) (*store.Conversation, error) {
	conv, err := scanConversation(c.s.pool.QueryRow(ctx,
		`SELECT id, external_id, user_id, channel, created_at FROM conversations WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", id, err)
	}
	return conv, nil
}

func (c *conversationStore) Delete(ctx context.Context, id string) error {
	tag, err := c.s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func scanConversation(row pgx.Row) (*store.Conversation, error) {
	var conv store.Conversation
	err := row.Scan(&conv.ID, &conv.ExternalID, &conv.UserID, &conv.Channel, &conv.CreatedAt)
	if isNoRows(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ---------- messages ----------

const messageColumns = `seq, id, conversation_id, role, content, redacted_content, tool_name, tool_call_id, tool_args, tool_result, created_at`

type messageStore struct{ s *Store }

func (m *messageStore) Append(ctx context.Context, msg *store.Message) error {
	if err := store.PrepareMessage(msg, m.s.now()); err != nil {
		return err
	}

	args, err := marshalJSON(msg.ToolArgs, msg.ToolArgs == nil)
	if err != nil {
		return fmt.Errorf("marshalling tool args: %w", err)
	}
	result, err := marshalJSON(msg.ToolResult, msg.ToolResult == nil)
	if err != nil {
		return fmt.Errorf("marshalling tool result: %w", err)
	}

	const q = `INSERT INTO messages (id, conversation_id, role, content, redacted_content, tool_name, tool_call_id, tool_args, tool_result, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING seq`

	err = m.s.pool.QueryRow(ctx, q,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.RedactedContent,
		msg.ToolName, msg.ToolCallID, args, result, msg.CreatedAt,
	).Scan(&msg.Seq)
	if err != nil {
		return fmt.Errorf("appending message %s: %w", msg.ID, classify(err))
	}
	return nil
}

func (m *messageStore) Get(ctx context.Context, id string) (*store.Message, error) {
	msg, err := scanMessage(m.s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading message %s: %w", id, err)
	}
	return msg, nil
}

func (m *messageStore) SetRedactedContent(ctx context.Context, id, redacted string) (string, error) {
	const q = `UPDATE messages SET redacted_content = COALESCE(redacted_content, $2)
WHERE id = $1
RETURNING redacted_content`

	var stored string
	err := m.s.pool.QueryRow(ctx, q, id, redacted).Scan(&stored)
	if isNoRows(err) {
		return "", fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("setting redacted content for %s: %w", id, err)
	}
	return stored, nil
}

func (m *messageStore) Recent(ctx context.Context, conversationID string, limit int) ([]*store.Message, error) {
	q := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = $1 ORDER BY seq DESC`
	args := []any{conversationID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := m.s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying recent messages: %w", err)
	}
	defer rows.Close()

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

func scanMessage(row pgx.Row) (*store.Message, error) {
	var (
		msg    store.Message
		role   string
		args   []byte
		result []byte
	)
	if err := row.Scan(&msg.Seq, &msg.ID, &msg.ConversationID, &role, &msg.Content, &msg.RedactedContent,
		&msg.ToolName, &msg.ToolCallID, &args, &result, &msg.CreatedAt); err != nil {
		return nil, err
	}
	msg.Role = store.MessageRole(role)
	if len(args) > 0 {
		if err := json.Unmarshal(args, &msg.ToolArgs); err != nil {
			return nil, fmt.Errorf("unmarshalling tool args: %w", err)
		}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &msg.ToolResult); err != nil {
			return nil, fmt.Errorf("unmarshalling tool result: %w", err)
		}
	}
	return &msg, nil
}

// ---------- entities ----------

type entityStore struct{ s *Store }

func (e *entityStore) CreateForMessage(ctx context.Context, messageID string, entities []*store.PHIEntity) (bool, error) {
	if len(entities) == 0 {
		return false, nil
	}

	tx, err := e.s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning tx for message %s entities: %w", messageID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	// Locking the message row serializes concurrent writers for it.
	var msg store.Message
	err = tx.QueryRow(ctx, `SELECT id, conversation_id FROM messages WHERE id = $1 FOR UPDATE`, messageID).
		Scan(&msg.ID, &msg.ConversationID)
	if isNoRows(err) {
		return false, fmt.Errorf("message %s: %w", messageID, store.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("locking message %s: %w", messageID, err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM phi_entities WHERE message_id = $1)`, messageID).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking entities for %s: %w", messageID, err)
	}
	if exists {
		return false, nil
	}

	if err := store.PrepareEntities(&msg, entities, e.s.now()); err != nil {
		return false, err
	}

	const q = `INSERT INTO phi_entities (id, conversation_id, message_id, entity_type, placeholder, original_text, start_offset, end_offset, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING seq`
	for _, ent := range entities {
		if err := tx.QueryRow(ctx, q,
			ent.ID, ent.ConversationID, ent.MessageID, ent.EntityType, ent.Placeholder,
			ent.OriginalText, ent.Start, ent.End, ent.CreatedAt,
		).Scan(&ent.Seq); err != nil {
			return false, fmt.Errorf("inserting entity %s: %w", ent.ID, classify(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing entities for %s: %w", messageID, err)
	}
	return true, nil
}

func (e *entityStore) ListByConversation(ctx context.Context, conversationID string) ([]*store.PHIEntity, error) {
	const q = `SELECT seq, id, conversation_id, message_id, entity_type, placeholder, original_text, start_offset, end_offset, created_at
FROM phi_entities WHERE conversation_id = $1 ORDER BY seq ASC`

	rows, err := e.s.pool.Query(ctx, q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var out []*store.PHIEntity
	for rows.Next() {
		var ent store.PHIEntity
		if err := rows.Scan(&ent.Seq, &ent.ID, &ent.ConversationID, &ent.MessageID, &ent.EntityType,
			&ent.Placeholder, &ent.OriginalText, &ent.Start, &ent.End, &ent.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning entity row: %w", err)
		}
		out = append(out, &ent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}
	return out, nil
}

// ---------- state snapshots ----------

type stateStore struct{ s *Store }

func (st *stateStore) Latest(ctx context.Context, conversationID string) (*store.StateSnapshot, error) {
	const q = `SELECT version, data, created_at FROM state_snapshots
WHERE conversation_id = $1 ORDER BY version DESC LIMIT 1`

	snap := store.StateSnapshot{ConversationID: conversationID}
	err := st.s.pool.QueryRow(ctx, q, conversationID).Scan(&snap.Version, &snap.Data, &snap.CreatedAt)
	if isNoRows(err) {
		return nil, fmt.Errorf("state for conversation %s: %w", conversationID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading state for %s: %w", conversationID, err)
	}
	return &snap, nil
}

func (st *stateStore) Append(ctx context.Context, conversationID string, data []byte) (*store.StateSnapshot, error) {
	tx, err := st.s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning tx for state of %s: %w", conversationID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var id string
	err = tx.QueryRow(ctx, `SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, conversationID).Scan(&id)
	if isNoRows(err) {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("locking conversation %s: %w", conversationID, err)
	}

	snap := &store.StateSnapshot{ConversationID: conversationID, Data: data, CreatedAt: st.s.now().UTC()}
	const q = `INSERT INTO state_snapshots (conversation_id, version, data, created_at)
SELECT $1, COALESCE(MAX(version), 0) + 1, $2, $3 FROM state_snapshots WHERE conversation_id = $1
RETURNING version`
	if err := tx.QueryRow(ctx, q, conversationID, string(data), snap.CreatedAt).Scan(&snap.Version); err != nil {
		return nil, fmt.Errorf("appending state: %w", classify(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing state of %s: %w", conversationID, err)
	}
	return snap, nil
}

func (st *stateStore) List(ctx context.Context, conversationID string) ([]*store.StateSnapshot, error) {
	rows, err := st.s.pool.Query(ctx,
		`SELECT version, data, created_at FROM state_snapshots WHERE conversation_id = $1 ORDER BY version ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying states: %w", err)
	}
	defer rows.Close()

	var out []*store.StateSnapshot
	for rows.Next() {
		snap := store.StateSnapshot{ConversationID: conversationID}
		if err := rows.Scan(&snap.Version, &snap.Data, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning state row: %w", err)
		}
		out = append(out, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating states: %w", err)
	}
	return out, nil
}

// ---------- audit ----------

type auditStore struct{ s *Store }

func (a *auditStore) Append(ctx context.Context, entry *store.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = store.NewID()
	}
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshalling audit details: %w", err)
	}

	_, err = a.s.pool.Exec(ctx,
		`INSERT INTO audit_log (id, timestamp, action, actor, conversation_id, details, result)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.Timestamp, entry.Action, entry.Actor, entry.ConversationID, string(raw), entry.Result,
	)
	if err != nil {
		return fmt.Errorf("appending audit entry %s: %w", entry.ID, err)
	}
	return nil
}

func (a *auditStore) Query(ctx context.Context, filter store.AuditFilter) ([]*store.AuditEntry, error) {
	var qb strings.Builder
	qb.WriteString(`SELECT id, timestamp, action, actor, conversation_id, details, result FROM audit_log`)

	var conditions []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.Action != "" {
		add("action = $%d", filter.Action)
	}
	if filter.Actor != "" {
		add("actor = $%d", filter.Actor)
	}
	if filter.ConversationID != "" {
		add("conversation_id = $%d", filter.ConversationID)
	}
	if !filter.From.IsZero() {
		add("timestamp >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("timestamp < $%d", filter.To)
	}
	if len(conditions) > 0 {
		qb.WriteString(" WHERE ")
		qb.WriteString(strings.Join(conditions, " AND "))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit, filter.Offset)
	fmt.Fprintf(&qb, " ORDER BY timestamp ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := a.s.pool.Query(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []*store.AuditEntry
	for rows.Next() {
		var e store.AuditEntry
		var details []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Action, &e.Actor, &e.ConversationID, &details, &e.Result); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		if len(details) > 0 && string(details) != "{}" {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshalling audit details: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}

// marshalJSON encodes v for a nullable JSONB column.
func marshalJSON(v any, isNil bool) (*string, error) {
	if isNil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}
