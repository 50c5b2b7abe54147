// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

// Package memory is an in-process store backend for development and tests.
// Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/bayleaf-health/bayleaf-agents/internal/store"
)

func init() {
	store.RegisterBackend("memory", func(context.Context, store.Config) (store.Store, error) {
		return New(), nil
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

// Store holds every table in maps guarded by one mutex.
type Store struct {
	mu  sync.RWMutex
	seq int64
	now func() time.Time

	conversations map[string]*store.Conversation
	messages      map[string]*store.Message
	entities      []*store.PHIEntity
	states        map[string][]*store.StateSnapshot
	audit         []*store.AuditEntry
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		now:           time.Now,
		conversations: make(map[string]*store.Conversation),
		messages:      make(map[string]*store.Message),
		states:        make(map[string][]*store.StateSnapshot),
	}
}

func (s *Store) Conversations() store.ConversationStore { return &conversationStore{s} }
func (s *Store) Messages() store.MessageStore           { return &messageStore{s} }
func (s *Store) Entities() store.EntityStore            { return &entityStore{s} }
func (s *Store) States() store.StateStore               { return &stateStore{s} }
func (s *Store) AuditLog() store.AuditStore             { return &auditStore{s} }
func (s *Store) Close() error                           { return nil }

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

// ---------- conversations ----------

type conversationStore struct{ s *Store }

func (c *conversationStore) FindOrCreate(_ context.Context, key store.ConversationKey) (*store.Conversation, bool, error) {
	if key.UserID == "" {
		return nil, false, fmt.Errorf("conversation user id is empty: %w", store.ErrInvalidInput)
	}

	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	if key.ExternalID != "" {
		for _, conv := range c.s.conversations {
			if conv.ExternalID == key.ExternalID && conv.UserID == key.UserID && conv.Channel == key.Channel {
				cp := *conv
				return &cp, false, nil
			}
		}
	}

	conv := &store.Conversation{
		ID:         store.NewID(),
		ExternalID: key.ExternalID,
		UserID:     key.UserID,
		Channel:    key.Channel,
		CreatedAt:  c.s.now().UTC(),
	}
	c.s.conversations[conv.ID] = conv
	cp := *conv
	return &cp, true, nil
}

func (c *conversationStore) Get(_ context.Context, id string) (*store.Conversation, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	conv, ok := c.s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
	}
	cp := *conv
	return &cp, nil
}

func (c *conversationStore) Delete(_ context.Context, id string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	if _, ok := c.s.conversations[id]; !ok {
		return fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
	}
	delete(c.s.conversations, id)
	maps.DeleteFunc(c.s.messages, func(_ string, m *store.Message) bool { return m.ConversationID == id })
	c.s.entities = slices.DeleteFunc(c.s.entities, func(e *store.PHIEntity) bool { return e.ConversationID == id })
	delete(c.s.states, id)
	return nil
}

// ---------- messages ----------

type messageStore struct{ s *Store }

func (m *messageStore) Append(_ context.Context, msg *store.Message) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if err := store.PrepareMessage(msg, m.s.now()); err != nil {
		return err
	}
	if _, ok := m.s.conversations[msg.ConversationID]; !ok {
		return fmt.Errorf("conversation %s: %w", msg.ConversationID, store.ErrNotFound)
	}
	if _, ok := m.s.messages[msg.ID]; ok {
		return fmt.Errorf("message %s: %w", msg.ID, store.ErrConflict)
	}
	msg.Seq = m.s.nextSeq()
	m.s.messages[msg.ID] = cloneMessage(msg)
	return nil
}

func (m *messageStore) Get(_ context.Context, id string) (*store.Message, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	msg, ok := m.s.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}
	return cloneMessage(msg), nil
}

func (m *messageStore) SetRedactedContent(_ context.Context, id, redacted string) (string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	msg, ok := m.s.messages[id]
	if !ok {
		return "", fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}
	if msg.RedactedContent == nil {
		msg.RedactedContent = &redacted
	}
	return *msg.RedactedContent, nil
}

func (m *messageStore) Recent(_ context.Context, conversationID string, limit int) ([]*store.Message, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	var out []*store.Message
	for _, msg := range m.s.messages {
		if msg.ConversationID == conversationID {
			out = append(out, cloneMessage(msg))
		}
	}
	slices.SortFunc(out, func(a, b *store.Message) int { return int(a.Seq - b.Seq) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func cloneMessage(m *store.Message) *store.Message {
	cp := *m
	if m.RedactedContent != nil {
		r := *m.RedactedContent
		cp.RedactedContent = &r
	}
	if m.ToolArgs != nil {
		cp.ToolArgs = maps.Clone(m.ToolArgs)
	}
	return &cp
}

// ---------- entities ----------

type entityStore struct{ s *Store }

func (e *entityStore) CreateForMessage(_ context.Context, messageID string, entities []*store.PHIEntity) (bool, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	msg, ok := e.s.messages[messageID]
	if !ok {
		return false, fmt.Errorf("message %s: %w", messageID, store.ErrNotFound)
	}
	for _, existing := range e.s.entities {
		if existing.MessageID == messageID {
			return false, nil
		}
	}
	if len(entities) == 0 {
		return false, nil
	}
	if err := store.PrepareEntities(msg, entities, e.s.now()); err != nil {
		return false, err
	}
	for _, ent := range entities {
		ent.Seq = e.s.nextSeq()
		cp := *ent
		e.s.entities = append(e.s.entities, &cp)
	}
	return true, nil
}

func (e *entityStore) ListByConversation(_ context.Context, conversationID string) ([]*store.PHIEntity, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()

	var out []*store.PHIEntity
	for _, ent := range e.s.entities {
		if ent.ConversationID == conversationID {
			cp := *ent
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---------- state snapshots ----------

type stateStore struct{ s *Store }

func (st *stateStore) Latest(_ context.Context, conversationID string) (*store.StateSnapshot, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()

	versions := st.s.states[conversationID]
	if len(versions) == 0 {
		return nil, fmt.Errorf("state for conversation %s: %w", conversationID, store.ErrNotFound)
	}
	cp := *versions[len(versions)-1]
	return &cp, nil
}

func (st *stateStore) Append(_ context.Context, conversationID string, data []byte) (*store.StateSnapshot, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	if _, ok := st.s.conversations[conversationID]; !ok {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, store.ErrNotFound)
	}
	snap := &store.StateSnapshot{
		ConversationID: conversationID,
		Version:        len(st.s.states[conversationID]) + 1,
		Data:           slices.Clone(data),
		CreatedAt:      st.s.now().UTC(),
	}
	st.s.states[conversationID] = append(st.s.states[conversationID], snap)
	cp := *snap
	return &cp, nil
}

func (st *stateStore) List(_ context.Context, conversationID string) ([]*store.StateSnapshot, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()

	out := make([]*store.StateSnapshot, 0, len(st.s.states[conversationID]))
	for _, snap := range st.s.states[conversationID] {
		cp := *snap
		out = append(out, &cp)
	}
	return out, nil
}

// ---------- audit ----------

type auditStore struct{ s *Store }

func (a *auditStore) Append(_ context.Context, entry *store.AuditEntry) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	cp := *entry
	if cp.ID == "" {
		cp.ID = store.NewID()
	}
	a.s.audit = append(a.s.audit, &cp)
	return nil
}

func (a *auditStore) Query(_ context.Context, filter store.AuditFilter) ([]*store.AuditEntry, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	var out []*store.AuditEntry
	for _, e := range a.s.audit {
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.Actor != "" && e.Actor != filter.Actor {
			continue
		}
		if filter.ConversationID != "" && e.ConversationID != filter.ConversationID {
			continue
		}
		if !filter.From.IsZero() && e.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !e.Timestamp.Before(filter.To) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
