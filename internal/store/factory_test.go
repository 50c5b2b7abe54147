// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bayleaf-health/bayleaf-agents/internal/store"
	_ "github.com/bayleaf-health/bayleaf-agents/internal/store/memory" // register memory backend
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := store.Open(context.Background(), store.Config{Backend: "unknown"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown")
	assert.True(t, bayerr.HasCode(err, bayerr.CodeStoreBackendUnsupported))
}

func TestBackendsListsRegistered(t *testing.T) {
	assert.Contains(t, store.Backends(), "memory")
}

func TestPrepareMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     *store.Message
		wantErr bool
	}{
		{name: "nil", msg: nil, wantErr: true},
		{name: "no conversation", msg: &store.Message{Role: store.MessageRoleUser}, wantErr: true},
		{name: "bad role", msg: &store.Message{ConversationID: "c", Role: "bot"}, wantErr: true},
		{name: "valid", msg: &store.Message{ConversationID: "c", Role: store.MessageRoleTool}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.PrepareMessage(tt.msg, fixedNow)
			if tt.wantErr {
				assert.ErrorIs(t, err, store.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, tt.msg.ID)
			assert.Equal(t, fixedNow, tt.msg.CreatedAt)
		})
	}
}

func TestToolCallAnnouncement(t *testing.T) {
	msg := &store.Message{Role: store.MessageRoleAssistant, ToolName: store.ToolCallsMarker}
	assert.True(t, msg.IsToolCallAnnouncement())

	msg.Role = store.MessageRoleTool
	assert.False(t, msg.IsToolCallAnnouncement())
}
