// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

// Package storetest holds the behavioural contract every store backend must
// satisfy. Backend test files call Run with a constructor for a fresh store.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bayleaf-health/bayleaf-agents/internal/store"
)

// Run executes the contract suite. open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("FindOrCreateReusesExternalID", func(t *testing.T) { testFindOrCreate(t, open(t)) })
	t.Run("FindOrCreateWithoutExternalIDAlwaysCreates", func(t *testing.T) { testFindOrCreateNoExternal(t, open(t)) })
	t.Run("FindOrCreateConcurrent", func(t *testing.T) { testFindOrCreateConcurrent(t, open(t)) })
	t.Run("MessagesRecentChronological", func(t *testing.T) { testRecent(t, open(t)) })
	t.Run("SetRedactedContentFirstWriterWins", func(t *testing.T) { testSetRedacted(t, open(t)) })
	t.Run("EntitiesGuardedPerMessage", func(t *testing.T) { testEntities(t, open(t)) })
	t.Run("StateSnapshotsAppendOnly", func(t *testing.T) { testStates(t, open(t)) })
	t.Run("DeleteCascades", func(t *testing.T) { testDelete(t, open(t)) })
	t.Run("AuditAppendQuery", func(t *testing.T) { testAudit(t, open(t)) })
}

func newConversation(t *testing.T, s store.Store, external string) *store.Conversation {
	t.Helper()
	conv, _, err := s.Conversations().FindOrCreate(context.Background(), store.ConversationKey{
		ExternalID: external,
		UserID:     "user-1",
		Channel:    "bayleaf_app",
	})
	require.NoError(t, err)
	return conv
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func testFindOrCreate(t *testing.T, s store.Store) {
	ctx := context.Background()
	key := store.ConversationKey{ExternalID: "ext-1", UserID: "user-1", Channel: "whatsapp"}

	first, created, err := s.Conversations().FindOrCreate(ctx, key)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "ext-1", first.PublicID())

	second, created, err := s.Conversations().FindOrCreate(ctx, key)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	other, created, err := s.Conversations().FindOrCreate(ctx, store.ConversationKey{ExternalID: "ext-1", UserID: "user-2", Channel: "whatsapp"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)

	got, err := s.Conversations().Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)

	_, err = s.Conversations().Get(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func testFindOrCreateNoExternal(t *testing.T, s store.Store) {
	a := newConversation(t, s, "")
	b := newConversation(t, s, "")
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.ID, a.PublicID())
}

func testFindOrCreateConcurrent(t *testing.T, s store.Store) {
	key := store.ConversationKey{ExternalID: "race", UserID: "user-1", Channel: "partner"}
	ids := make([]string, 8)

	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, _, err := s.Conversations().FindOrCreate(context.Background(), key)
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
}

func testRecent(t *testing.T, s store.Store) {
	ctx := context.Background()
	conv := newConversation(t, s, "recent")

	for i, content := range []string{"one", "two", "three", "four"} {
		role := store.MessageRoleUser
		if i%2 == 1 {
			role = store.MessageRoleAssistant
		}
		msg := &store.Message{ConversationID: conv.ID, Role: role, Content: content, RedactedContent: strPtr(content)}
		require.NoError(t, s.Messages().Append(ctx, msg))
		assert.NotEmpty(t, msg.ID)
	}

	recent, err := s.Messages().Recent(ctx, conv.ID, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "two", recent[0].Content)
	assert.Equal(t, "four", recent[2].Content)

	err = s.Messages().Append(ctx, &store.Message{ConversationID: conv.ID, Role: "robot"})
	assert.True(t, errors.Is(err, store.ErrInvalidInput))
}

func testSetRedacted(t *testing.T, s store.Store) {
	ctx := context.Background()
	conv := newConversation(t, s, "redact")

	msg := &store.Message{
		ConversationID: conv.ID,
		Role:           store.MessageRoleTool,
		Content:        `{"name":"Ana"}`,
		ToolName:       "patient_summary",
		ToolArgs:       map[string]any{"q": "<person>"},
		ToolResult:     map[string]any{"name": "Ana"},
	}
	require.NoError(t, s.Messages().Append(ctx, msg))

	got, err := s.Messages().SetRedactedContent(ctx, msg.ID, `{"name":"<person>"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"<person>"}`, got)

	got, err = s.Messages().SetRedactedContent(ctx, msg.ID, "something else")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"<person>"}`, got)

	stored, err := s.Messages().Get(ctx, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.RedactedContent)
	assert.Equal(t, `{"name":"<person>"}`, *stored.RedactedContent)
	assert.Equal(t, "patient_summary", stored.ToolName)
	assert.Equal(t, map[string]any{"q": "<person>"}, stored.ToolArgs)
	assert.Equal(t, map[string]any{"name": "Ana"}, stored.ToolResult)
}

func testEntities(t *testing.T, s store.Store) {
	ctx := context.Background()
	conv := newConversation(t, s, "entities")

	msg := &store.Message{ConversationID: conv.ID, Role: store.MessageRoleUser, Content: "Ana Ana"}
	require.NoError(t, s.Messages().Append(ctx, msg))

	first := []*store.PHIEntity{
		{EntityType: "PERSON", Placeholder: "<person>", OriginalText: "Ana", Start: intPtr(0), End: intPtr(3)},
		{EntityType: "PERSON", Placeholder: "<person>", OriginalText: "Bia"},
	}
	created, err := s.Entities().CreateForMessage(ctx, msg.ID, first)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Entities().CreateForMessage(ctx, msg.ID, []*store.PHIEntity{
		{EntityType: "PERSON", Placeholder: "<person>", OriginalText: "Duplicate"},
	})
	require.NoError(t, err)
	assert.False(t, created)

	listed, err := s.Entities().ListByConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "Ana", listed[0].OriginalText)
	assert.Equal(t, "Bia", listed[1].OriginalText)
	assert.Equal(t, msg.ID, listed[0].MessageID)
	require.NotNil(t, listed[0].Start)
	assert.Equal(t, 3, *listed[0].End)
	assert.Nil(t, listed[1].Start)
	assert.Less(t, listed[0].Seq, listed[1].Seq)
}

func testStates(t *testing.T, s store.Store) {
	ctx := context.Background()
	conv := newConversation(t, s, "state")

	_, err := s.States().Latest(ctx, conv.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	v1, err := s.States().Append(ctx, conv.ID, []byte(`{"access_token":"a"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)

	v2, err := s.States().Append(ctx, conv.ID, []byte(`{"access_token":"b"}`))
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	latest, err := s.States().Latest(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.JSONEq(t, `{"access_token":"b"}`, string(latest.Data))

	all, err := s.States().List(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.JSONEq(t, `{"access_token":"a"}`, string(all[0].Data))
}

func testDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	conv := newConversation(t, s, "delete")

	msg := &store.Message{ConversationID: conv.ID, Role: store.MessageRoleUser, Content: "x"}
	require.NoError(t, s.Messages().Append(ctx, msg))
	_, err := s.Entities().CreateForMessage(ctx, msg.ID, []*store.PHIEntity{{EntityType: "PERSON", Placeholder: "<person>", OriginalText: "x"}})
	require.NoError(t, err)
	_, err = s.States().Append(ctx, conv.ID, []byte(`{}`))
	require.NoError(t, err)

	require.NoError(t, s.Conversations().Delete(ctx, conv.ID))

	_, err = s.Messages().Get(ctx, msg.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	ents, err := s.Entities().ListByConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, ents)
	_, err = s.States().Latest(ctx, conv.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	err = s.Conversations().Delete(ctx, conv.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func testAudit(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, actor := range []string{"user-1", "user-2", "user-1"} {
		require.NoError(t, s.AuditLog().Append(ctx, &store.AuditEntry{
			ID:             store.NewID(),
			Timestamp:      base.Add(time.Duration(i) * time.Minute),
			Action:         "chat.turn",
			Actor:          actor,
			ConversationID: "conv",
			Details:        map[string]any{"tools": []any{"chat_token"}},
			Result:         "ok",
		}))
	}

	got, err := s.AuditLog().Query(ctx, store.AuditFilter{Actor: "user-1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []any{"chat_token"}, got[0].Details["tools"])

	got, err = s.AuditLog().Query(ctx, store.AuditFilter{From: base.Add(time.Minute), Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "user-2", got[0].Actor)
}
