// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package store

import "context"

// Store groups every persistence concern of a conversation.
type Store interface {
	Conversations() ConversationStore
	Messages() MessageStore
	Entities() EntityStore
	States() StateStore
	AuditLog() AuditStore
	Close() error
}

// ConversationStore manages conversation identity.
type ConversationStore interface {
	// FindOrCreate returns the conversation matching key, creating it when
	// none exists. A key without an external id always creates a fresh
	// conversation. The bool reports whether a row was created.
	FindOrCreate(ctx context.Context, key ConversationKey) (*Conversation, bool, error)
	Get(ctx context.Context, id string) (*Conversation, error)
	// Delete removes the conversation and cascades to its messages, PHI
	// entities and state snapshots.
	Delete(ctx context.Context, id string) error
}

// MessageStore manages the conversation transcript.
type MessageStore interface {
	// Append inserts msg, assigning ID, Seq and CreatedAt when unset.
	Append(ctx context.Context, msg *Message) error
	Get(ctx context.Context, id string) (*Message, error)
	// SetRedactedContent stores redacted only if the message has none yet
	// and returns whichever value is stored afterwards.
	SetRedactedContent(ctx context.Context, id, redacted string) (string, error)
	// Recent returns up to limit most recent messages in chronological order.
	Recent(ctx context.Context, conversationID string, limit int) ([]*Message, error)
}

// EntityStore manages detected PHI spans.
type EntityStore interface {
	// CreateForMessage inserts entities for messageID unless rows already
	// exist for it. It reports whether rows were inserted.
	CreateForMessage(ctx context.Context, messageID string, entities []*PHIEntity) (bool, error)
	// ListByConversation returns entities in insertion order.
	ListByConversation(ctx context.Context, conversationID string) ([]*PHIEntity, error)
}

// StateStore is an append-only log of session state snapshots.
type StateStore interface {
	// Latest returns the highest version, or ErrNotFound.
	Latest(ctx context.Context, conversationID string) (*StateSnapshot, error)
	// Append writes data as version latest+1.
	Append(ctx context.Context, conversationID string, data []byte) (*StateSnapshot, error)
	List(ctx context.Context, conversationID string) ([]*StateSnapshot, error)
}

// AuditStore manages the audit log.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
}
