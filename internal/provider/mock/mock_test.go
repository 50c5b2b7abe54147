// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package mock_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bayleaf-health/bayleaf-agents/internal/provider"
	"github.com/bayleaf-health/bayleaf-agents/internal/provider/mock"
)

var _ provider.Provider = (*mock.Provider)(nil)

func TestChat(t *testing.T) {
	medsTool := []provider.ToolDefinition{{Name: "list_medications"}}

	tests := []struct {
		name      string
		messages  []provider.Message
		tools     []provider.ToolDefinition
		wantReply string
		wantCalls int
	}{
		{
			name:      "medication keyword with tool offered",
			messages:  []provider.Message{{Role: provider.MessageRoleUser, Content: "Quais são meus REMÉDIOS?"}},
			tools:     medsTool,
			wantReply: "Certo, vou verificar seus medicamentos.",
			wantCalls: 1,
		},
		{
			name:      "medication keyword without tools",
			messages:  []provider.Message{{Role: provider.MessageRoleUser, Content: "my meds please"}},
			wantReply: "Certo, vou verificar seus medicamentos.",
		},
		{
			name:      "no keyword",
			messages:  []provider.Message{{Role: provider.MessageRoleUser, Content: "estou com dor de cabeça"}},
			tools:     medsTool,
			wantReply: "Conte mais sobre seus sintomas (início, intensidade, gatilhos).",
		},
		{
			name: "only the last user message counts",
			messages: []provider.Message{
				{Role: provider.MessageRoleUser, Content: "medication"},
				{Role: provider.MessageRoleAssistant, Content: "ok"},
				{Role: provider.MessageRoleUser, Content: "thanks"},
			},
			tools:     medsTool,
			wantReply: "Conte mais sobre seus sintomas (início, intensidade, gatilhos).",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := mock.New().Chat(context.Background(), provider.ChatRequest{Messages: tt.messages, Tools: tt.tools})
			require.NoError(t, err)
			assert.Equal(t, tt.wantReply, resp.Content)
			require.Len(t, resp.ToolCalls, tt.wantCalls)
			if tt.wantCalls > 0 {
				assert.Equal(t, provider.ToolCall{ID: "call_1", Name: "list_medications", Arguments: "{}"}, resp.ToolCalls[0])
			}
		})
	}
}
