// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/bayleaf-health/bayleaf-agents/internal/store"
)

// auditEscalationThreshold is the number of consecutive audit failures after
// which they are logged at Error instead of Warn.
const auditEscalationThreshold = 3

// AuditActionChat is the audit action written for every completed turn.
const AuditActionChat = "agent.chat"

// logAuditFailure logs an audit append failure at Warn for the first few
// consecutive failures and at Error after that.
func logAuditFailure(ctx context.Context, log *slog.Logger, consecutive int64, msg string, attrs ...slog.Attr) {
	level := slog.LevelWarn
	if consecutive >= auditEscalationThreshold {
		level = slog.LevelError
	}
	log.LogAttrs(ctx, level, msg, attrs...)
}

// audit records the turn. It never fails the turn: the reply has already
// been persisted by the time it runs. Details carry counts and names only,
// never message text.
func (l *Loop) audit(ctx context.Context, req TurnRequest, conv *store.Conversation, res *TurnResult) {
	entry := &store.AuditEntry{
		ID:             store.NewID(),
		Timestamp:      l.now().UTC(),
		Action:         AuditActionChat,
		Actor:          req.Principal.UserID,
		ConversationID: conv.ID,
		Details: map[string]any{
			"agent":      req.Agent.Slug,
			"channel":    string(req.Channel),
			"trace_id":   res.TraceID,
			"used_tools": res.UsedTools,
			"reply_len":  len(res.Reply),
		},
		Result: "ok",
	}

	if err := l.store.AuditLog().Append(ctx, entry); err != nil {
		n := l.auditFailures.Add(1)
		logAuditFailure(ctx, l.log, n, "audit_failed",
			slog.String("trace_id", res.TraceID),
			slog.Int64("consecutive", n),
			slog.Any("error", err),
		)
		return
	}
	l.auditFailures.Store(0)
}

func (l *Loop) now() time.Time {
	if l.clock == nil {
		return time.Now()
	}
	return l.clock()
}
