// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bayleaf-health/bayleaf-agents/internal/agent"
	"github.com/bayleaf-health/bayleaf-agents/internal/clinical"
	"github.com/bayleaf-health/bayleaf-agents/internal/config"
	"github.com/bayleaf-health/bayleaf-agents/internal/lock"
	"github.com/bayleaf-health/bayleaf-agents/internal/phi"
	"github.com/bayleaf-health/bayleaf-agents/internal/provider"
	anthropicprov "github.com/bayleaf-health/bayleaf-agents/internal/provider/anthropic"
	googleprov "github.com/bayleaf-health/bayleaf-agents/internal/provider/google"
	mockprov "github.com/bayleaf-health/bayleaf-agents/internal/provider/mock"
	openaiprov "github.com/bayleaf-health/bayleaf-agents/internal/provider/openai"
	openrouterprov "github.com/bayleaf-health/bayleaf-agents/internal/provider/openrouter"
	"github.com/bayleaf-health/bayleaf-agents/internal/server"
	"github.com/bayleaf-health/bayleaf-agents/internal/store"
	_ "github.com/bayleaf-health/bayleaf-agents/internal/store/memory"   // register memory backend
	_ "github.com/bayleaf-health/bayleaf-agents/internal/store/postgres" // register postgres backend
	_ "github.com/bayleaf-health/bayleaf-agents/internal/store/sqlite"   // register sqlite backend
	"github.com/bayleaf-health/bayleaf-agents/internal/tools"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

// App holds every wired subsystem and manages their lifecycle.
type App struct {
	Server    *server.Server
	Service   *agent.Service
	Store     store.Store
	Locker    lock.Locker
	Providers *provider.Registry
}

// WireApp builds the subsystems from cfg. On error everything already
// opened is closed.
func WireApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (app *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	app = &App{}
	defer func() {
		if err != nil {
			_ = app.Close()
			app = nil
		}
	}()

	if cfg.Storage.Backend == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o750); err != nil {
			return app, bayerr.Errorf(bayerr.CodeCLISetupFailure, "creating data directory: %w", err)
		}
	}
	app.Store, err = store.Open(ctx, store.Config{
		Backend:     cfg.Storage.Backend,
		Path:        cfg.Storage.Path,
		DatabaseURL: cfg.Storage.DatabaseURL,
	})
	if err != nil {
		return app, bayerr.Wrapf(err, bayerr.CodeCLISetupFailure, "opening %s store", cfg.Storage.Backend)
	}

	app.Providers = provider.NewRegistry()
	registerBuiltinProviders(cfg, app.Providers, logger)
	if err := app.Providers.SetDefault(cfg.Models.Default); err != nil {
		return app, bayerr.Wrapf(err, bayerr.CodeCLISetupFailure, "setting default model %s", cfg.Models.Default)
	}
	if len(cfg.Models.Failover) > 0 {
		if err := app.Providers.SetFailover(cfg.Models.Failover); err != nil {
			return app, bayerr.Wrapf(err, bayerr.CodeCLISetupFailure, "setting failover chain")
		}
	}

	engine, err := phi.NewEngine(phi.EngineConfig{
		URL:      cfg.PHIFilter.URL,
		Timeout:  cfg.PHIFilter.Timeout,
		Entities: cfg.PHIFilter.Entities,
		Logger:   logger,
	})
	if err != nil {
		return app, bayerr.Wrapf(err, bayerr.CodeCLISetupFailure, "configuring phi filter")
	}

	backend, err := clinical.New(clinical.Config{
		BaseURL:            cfg.Clinical.BaseURL,
		Timeout:            cfg.Clinical.Timeout,
		OnboardingPassword: cfg.Clinical.OnboardingPassword,
		Logger:             logger,
	})
	if err != nil {
		return app, bayerr.Wrapf(err, bayerr.CodeCLISetupFailure, "configuring clinical client")
	}
	dispatcher, err := tools.NewDispatcher(backend, logger)
	if err != nil {
		return app, bayerr.Wrapf(err, bayerr.CodeCLISetupFailure, "creating tool dispatcher")
	}

	loop, err := agent.NewLoop(agent.LoopConfig{
		Store:           app.Store,
		Redactor:        engine,
		Router:          app.Providers,
		Tools:           dispatcher,
		Temperature:     float32(cfg.Models.Temperature),
		MaxTokens:       cfg.Models.MaxTokens,
		HistoryLimit:    cfg.Agent.HistoryLimit,
		DefaultLanguage: cfg.Agent.DefaultLanguage,
		Logger:          logger,
	})
	if err != nil {
		return app, bayerr.Wrapf(err, bayerr.CodeCLISetupFailure, "creating agent loop")
	}

	app.Locker, err = openLocker(ctx, cfg.Lock)
	if err != nil {
		return app, err
	}

	app.Service, err = agent.NewService(agent.ServiceConfig{
		Catalog: agent.BuiltinCatalog(logger),
		Loop:    loop,
		Locker:  app.Locker,
		Logger:  logger,
	})
	if err != nil {
		return app, bayerr.Wrapf(err, bayerr.CodeCLISetupFailure, "creating agent service")
	}

	app.Server, err = server.New(server.Config{
		ListenAddr:     cfg.Networking.Listen,
		CORSOrigins:    cfg.Networking.CORSOrigins,
		Env:            cfg.Env,
		Provider:       cfg.Models.Default,
		RequiredScopes: cfg.Auth.RequiredScopes,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Networking.RateLimitRPS,
			Burst:             cfg.Networking.RateLimitBurst,
		},
		Logger: logger,
	}, app.Service)
	if err != nil {
		return app, bayerr.Wrapf(err, bayerr.CodeCLISetupFailure, "creating server")
	}

	return app, nil
}

func openLocker(ctx context.Context, cfg config.LockConfig) (lock.Locker, error) {
	switch cfg.Backend {
	case "redis":
		r, err := lock.OpenRedis(ctx, cfg.RedisURL, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "", "local":
		return lock.NewLocal(), nil
	default:
		return nil, bayerr.Errorf(bayerr.CodeCLISetupFailure, "unsupported lock backend %q", cfg.Backend)
	}
}

// Start runs the HTTP server and blocks until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	return a.Server.Start(ctx)
}

// Close releases every resource the app holds.
func (a *App) Close() error {
	var errs []error
	if a.Server != nil {
		a.Server.Close()
	}
	if a.Locker != nil {
		errs = append(errs, a.Locker.Close())
	}
	if a.Providers != nil {
		errs = append(errs, a.Providers.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

// providerFactory builds a provider from its config block.
type providerFactory func(config.ProviderConfig) (provider.Provider, error)

// builtinProviderFactories maps provider names to their constructors.
// Declared as a variable so tests can inject failing factories.
var builtinProviderFactories = map[string]providerFactory{
	"anthropic": func(pc config.ProviderConfig) (provider.Provider, error) {
		return anthropicprov.New(anthropicprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"google": func(pc config.ProviderConfig) (provider.Provider, error) {
		return googleprov.New(googleprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"openai": func(pc config.ProviderConfig) (provider.Provider, error) {
		return openaiprov.New(openaiprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"openrouter": func(pc config.ProviderConfig) (provider.Provider, error) {
		return openrouterprov.New(openrouterprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
}

// registerBuiltinProviders registers the mock provider and every configured
// provider that has a key. Failures are logged and skipped; SetDefault
// reports a default that ended up unregistered.
func registerBuiltinProviders(cfg *config.Config, reg *provider.Registry, logger *slog.Logger) {
	reg.Register("mock", mockprov.New())

	for _, name := range cfg.ProviderNames() {
		pc := cfg.Providers[name]
		if pc.APIKey == "" {
			logger.Warn("provider_skipped", slog.String("provider", name), slog.String("reason", "empty api key"))
			continue
		}
		factory, ok := builtinProviderFactories[name]
		if !ok {
			logger.Warn("provider_skipped", slog.String("provider", name), slog.String("reason", "unknown provider"))
			continue
		}
		p, err := factory(pc)
		if err != nil {
			logger.Warn("provider_skipped", slog.String("provider", name), slog.Any("error", err))
			continue
		}
		reg.Register(name, p)
		logger.Info("provider_registered", slog.String("provider", name))
	}
}
