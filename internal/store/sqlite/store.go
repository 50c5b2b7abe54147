// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/bayleaf-health/bayleaf-agents/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", func(_ context.Context, cfg store.Config) (store.Store, error) {
		path := cfg.Path
		if path == "" {
			path = "bayleaf-agents.db"
		}
		return Open(path)
	})
}

// Compile-time interface checks.
var (
	_ store.Store             = (*Store)(nil)
	_ store.ConversationStore = (*conversationStore)(nil)
	_ store.MessageStore      = (*messageStore)(nil)
	_ store.EntityStore       = (*entityStore)(nil)
	_ store.StateStore        = (*stateStore)(nil)
	_ store.AuditStore        = (*auditStore)(nil)
)

// Store implements store.Store backed by a single SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) a SQLite database at dbPath and initialises the
// schema. Immediate transactions keep the check-then-insert guards race free.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating sqlite db: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS conversations (
	id          TEXT PRIMARY KEY,
	external_id TEXT NOT NULL DEFAULT '',
	user_id     TEXT NOT NULL,
	channel     TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_external
	ON conversations(external_id, user_id, channel) WHERE external_id <> '';

CREATE TABLE IF NOT EXISTS messages (
	seq              INTEGER PRIMARY KEY AUTOINCREMENT,
	id               TEXT UNIQUE NOT NULL,
	conversation_id  TEXT NOT NULL,
	role             TEXT NOT NULL,
	content          TEXT NOT NULL DEFAULT '',
	redacted_content TEXT,
	tool_name        TEXT NOT NULL DEFAULT '',
	tool_call_id     TEXT NOT NULL DEFAULT '',
	tool_args        TEXT,
	tool_result      TEXT,
	created_at       TEXT NOT NULL,
	FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);

CREATE TABLE IF NOT EXISTS phi_entities (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT UNIQUE NOT NULL,
	conversation_id TEXT NOT NULL,
	message_id      TEXT NOT NULL,
	entity_type     TEXT NOT NULL DEFAULT '',
	placeholder     TEXT NOT NULL,
	original_text   TEXT NOT NULL DEFAULT '',
	start_offset    INTEGER,
	end_offset      INTEGER,
	created_at      TEXT NOT NULL,
	FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
	FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_phi_entities_conversation ON phi_entities(conversation_id, seq);
CREATE INDEX IF NOT EXISTS idx_phi_entities_message ON phi_entities(message_id);

CREATE TABLE IF NOT EXISTS state_snapshots (
	conversation_id TEXT NOT NULL,
	version         INTEGER NOT NULL,
	data            TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	PRIMARY KEY (conversation_id, version),
	FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS audit_log (
	id              TEXT PRIMARY KEY,
	timestamp       TEXT NOT NULL,
	action          TEXT NOT NULL DEFAULT '',
	actor           TEXT NOT NULL DEFAULT '',
	conversation_id TEXT NOT NULL DEFAULT '',
	details         TEXT NOT NULL DEFAULT '{}',
	result          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_log_actor     ON audit_log(actor);
`
	_, err := db.Exec(ddl)
	return err
}

func (s *Store) Conversations() store.ConversationStore { return &conversationStore{s} }
func (s *Store) Messages() store.MessageStore           { return &messageStore{s} }
func (s *Store) Entities() store.EntityStore            { return &entityStore{s} }
func (s *Store) States() store.StateStore               { return &stateStore{s} }
func (s *Store) AuditLog() store.AuditStore             { return &auditStore{s} }

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// classify maps constraint violations onto store sentinels.
func classify(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) || se.Code != sqlite3.ErrConstraint {
		return err
	}
	if se.ExtendedCode == sqlite3.ErrConstraintForeignKey {
		return fmt.Errorf("%w: %w", store.ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", store.ErrConflict, err)
}

// formatTime serialises a time for storage.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func marshalNullable(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intFromNull(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
