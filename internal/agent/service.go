// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package agent

import (
	"context"
	"log/slog"

	"github.com/bayleaf-health/bayleaf-agents/internal/lock"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

// Turner runs one turn. *Loop implements it.
type Turner interface {
	ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResult, error)
}

// ServiceConfig holds dependencies for the Service.
type ServiceConfig struct {
	Catalog *Catalog
	Loop    Turner
	// Locker serializes turns on the same conversation. Nil means an
	// in-process lock.
	Locker lock.Locker
	Logger *slog.Logger
}

// Service is the entry point the API calls: it resolves the agent and runs
// the turn while holding the conversation lock.
type Service struct {
	catalog *Catalog
	loop    Turner
	locker  lock.Locker
	log     *slog.Logger
}

// NewService validates cfg and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Catalog == nil {
		return nil, bayerr.New(bayerr.CodeAgentLoopInvalidInput, "service catalog is required")
	}
	if cfg.Loop == nil {
		return nil, bayerr.New(bayerr.CodeAgentLoopInvalidInput, "service loop is required")
	}
	locker := cfg.Locker
	if locker == nil {
		locker = lock.NewLocal()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{catalog: cfg.Catalog, loop: cfg.Loop, locker: locker, log: logger.With("component", "service")}, nil
}

// Catalog returns the agents the service can run.
func (s *Service) Catalog() *Catalog { return s.catalog }

// Chat runs req against the agent named by slug. req.Agent is set from the
// catalog.
func (s *Service) Chat(ctx context.Context, slug string, req TurnRequest) (*TurnResult, error) {
	a, err := s.catalog.Get(slug)
	if err != nil {
		return nil, err
	}
	req.Agent = a

	// Without an external id every turn starts a new conversation, so
	// there is nothing to serialize against.
	if req.ConversationID == "" {
		return s.loop.ProcessTurn(ctx, req)
	}

	key := lock.Key(req.Principal.UserID, string(req.Channel), req.ConversationID)
	release, err := s.locker.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			s.log.LogAttrs(ctx, slog.LevelWarn, "lock_release_failed",
				slog.String("agent", slug),
				slog.Any("error", rerr),
			)
		}
	}()

	return s.loop.ProcessTurn(ctx, req)
}
