// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package store

import (
	"time"

	"github.com/google/uuid"
)

// --- Conversation types ---

// ConversationKey identifies a conversation from the caller's perspective.
type ConversationKey struct {
	ExternalID string
	UserID     string
	Channel    string
}

// Conversation is one chat thread between a user and an agent.
type Conversation struct {
	ID         string
	ExternalID string
	UserID     string
	Channel    string
	CreatedAt  time.Time
}

// PublicID is the id reported back to callers: the external id when the
// caller supplied one, otherwise the internal id.
func (c *Conversation) PublicID() string {
	if c.ExternalID != "" {
		return c.ExternalID
	}
	return c.ID
}

// --- Message types ---

// MessageRole identifies the sender of a message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
	MessageRoleTool      MessageRole = "tool"
)

// ToolCallsMarker is the ToolName of assistant messages that announce the
// tool calls requested by the model.
const ToolCallsMarker = "__tool_calls__"

// Message is one transcript row. Content holds the raw text; only
// RedactedContent is ever sent to a model provider.
type Message struct {
	ID              string
	ConversationID  string
	Seq             int64
	Role            MessageRole
	Content         string
	RedactedContent *string
	ToolName        string
	ToolCallID      string
	ToolArgs        map[string]any
	ToolResult      any
	CreatedAt       time.Time
}

// IsToolCallAnnouncement reports whether m only announces tool calls.
func (m *Message) IsToolCallAnnouncement() bool {
	return m.Role == MessageRoleAssistant && m.ToolName == ToolCallsMarker
}

// --- PHI types ---

// PHIEntity is one detected sensitive span of a message.
type PHIEntity struct {
	ID             string
	ConversationID string
	MessageID      string
	Seq            int64
	EntityType     string
	Placeholder    string
	OriginalText   string
	Start          *int
	End            *int
	CreatedAt      time.Time
}

// --- State types ---

// StateSnapshot is one immutable version of a conversation's session state.
type StateSnapshot struct {
	ConversationID string
	Version        int
	Data           []byte
	CreatedAt      time.Time
}

// --- Audit types ---

// AuditEntry records one agent turn. Details never carry cleartext PHI.
type AuditEntry struct {
	ID             string
	Timestamp      time.Time
	Action         string
	Actor          string
	ConversationID string
	Details        map[string]any
	Result         string
}

// AuditFilter specifies criteria for querying audit entries.
type AuditFilter struct {
	Action         string
	Actor          string
	ConversationID string
	From           time.Time
	To             time.Time
	Limit          int
	Offset         int
}

// NewID returns a fresh random identifier for store rows.
func NewID() string {
	return uuid.NewString()
}
