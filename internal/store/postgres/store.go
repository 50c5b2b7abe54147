// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

// Package postgres is the production store backend: pgx connection pooling
// with schema managed by golang-migrate from embedded SQL files.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // postgres:// migration driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bayleaf-health/bayleaf-agents/internal/store"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func init() {
	store.RegisterBackend("postgres", func(ctx context.Context, cfg store.Config) (store.Store, error) {
		if cfg.DatabaseURL == "" {
			return nil, bayerr.New(bayerr.CodeStoreInvalidInput, "postgres backend requires a database url")
		}
		if err := Migrate(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		return Open(ctx, cfg.DatabaseURL)
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

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Open connects to databaseURL. The schema must already be migrated.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, bayerr.Wrap(err, bayerr.CodeStoreDatabaseFailure, "parse database config")
	}

	config.MaxConns = 20
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, bayerr.Wrap(err, bayerr.CodeStoreDatabaseFailure, "create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, bayerr.Wrap(err, bayerr.CodeStoreDatabaseFailure, "ping database")
	}

	return &Store{pool: pool, now: time.Now}, nil
}

// Migrate applies every pending up migration.
func Migrate(databaseURL string) error {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close() //nolint:errcheck // source and database close errors are not actionable

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return bayerr.Wrap(err, bayerr.CodeStoreMigrationFailure, "run migrations")
	}

	version, dirty, _ := m.Version()
	slog.Info("migrations applied", "version", version, "dirty", dirty)
	return nil
}

// MigrateDown rolls back steps migrations.
func MigrateDown(databaseURL string, steps int) error {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close() //nolint:errcheck // source and database close errors are not actionable

	err = m.Steps(-steps)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) && !errors.Is(err, migrate.ErrNilVersion) {
		return bayerr.Wrap(err, bayerr.CodeStoreMigrationFailure, "roll back migrations")
	}
	return nil
}

func newMigrator(databaseURL string) (*migrate.Migrate, error) {
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, bayerr.Wrap(err, bayerr.CodeStoreMigrationFailure, "create migration source")
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, databaseURL)
	if err != nil {
		return nil, bayerr.Wrap(err, bayerr.CodeStoreMigrationFailure, "create migrate instance")
	}
	return m, nil
}

func (s *Store) Conversations() store.ConversationStore { return &conversationStore{s} }
func (s *Store) Messages() store.MessageStore           { return &messageStore{s} }
func (s *Store) Entities() store.EntityStore            { return &entityStore{s} }
func (s *Store) States() store.StateStore               { return &stateStore{s} }
func (s *Store) AuditLog() store.AuditStore             { return &auditStore{s} }

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// classify maps constraint violations onto store sentinels.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23503":
		return fmt.Errorf("%w: %w", store.ErrNotFound, err)
	case "23505":
		return fmt.Errorf("%w: %w", store.ErrConflict, err)
	default:
		return err
	}
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
