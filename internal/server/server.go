// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

// Package server exposes the agents over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bayleaf-health/bayleaf-agents/internal/agent"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

// Version is reported in the OpenAPI document.
var Version = "0.1.0"

// ChatService runs turns. *agent.Service implements it.
type ChatService interface {
	Chat(ctx context.Context, slug string, req agent.TurnRequest) (*agent.TurnResult, error)
	Catalog() *agent.Catalog
}

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr   string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Env and Provider are echoed by /health.
	Env      string
	Provider string
	// RequiredScopes must all be granted to the caller's token.
	RequiredScopes []string
	RateLimit      RateLimitConfig
	Logger         *slog.Logger
}

// Server wraps a chi router with the huma API.
type Server struct {
	router chi.Router
	api    huma.API
	cfg    Config
	chat   ChatService
	log    *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// New builds the router and registers every route.
func New(cfg Config, chat ChatService) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, bayerr.New(bayerr.CodeServerConfigInvalid, "listen address is required")
	}
	if chat == nil {
		return nil, bayerr.New(bayerr.CodeServerConfigInvalid, "chat service is required")
	}
	if err := cfg.RateLimit.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 120 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server")

	s := &Server{
		cfg:  cfg,
		chat: chat,
		log:  logger,
		done: make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(rateLimitMiddleware(cfg.RateLimit, logger, s.done))
	r.Use(protect(principalMiddleware(cfg.RequiredScopes, logger)))

	humaConfig := huma.DefaultConfig("Bayleaf Agents", Version)
	humaConfig.Info.Description = "PHI-safe conversational agents for Bayleaf patients"
	s.router = r
	s.api = humachi.New(r, humaConfig)
	s.registerRoutes()

	return s, nil
}

// protect applies mw to the /api/ tree only; /health and the OpenAPI
// documents stay public.
func protect(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		guarded := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api/") {
				guarded.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API.
func (s *Server) API() huma.API {
	return s.api
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	defer s.Close()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return bayerr.Wrap(err, bayerr.CodeServerStartFailure, fmt.Sprintf("listening on %s", s.cfg.ListenAddr))
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("app_started", slog.String("addr", ln.Addr().String()), slog.String("env", s.cfg.Env))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return bayerr.Wrap(err, bayerr.CodeServerStartFailure, "serving http")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return bayerr.Wrap(err, bayerr.CodeServerShutdownFailure, "shutting down")
	}
	return <-errCh
}

// Close stops background work. Start calls it on return.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           300,
	})
}
