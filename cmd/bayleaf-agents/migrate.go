// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bayleaf-health/bayleaf-agents/internal/config"
	"github.com/bayleaf-health/bayleaf-agents/internal/store/postgres"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres schema",
		Long:  "Apply or roll back the embedded postgres migrations. The sqlite backend creates its schema when opened.",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := requirePostgres(cfg); err != nil {
				return err
			}
			if err := migrateUp(cfg); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return err
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			if steps < 1 {
				return bayerr.Errorf(bayerr.CodeCLIInputInvalid, "--steps must be at least 1, got %d", steps)
			}
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := requirePostgres(cfg); err != nil {
				return err
			}
			if err := postgres.MigrateDown(cfg.Storage.DatabaseURL, steps); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return err
		},
	}
	down.Flags().Int("steps", 1, "number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}

func requirePostgres(cfg *config.Config) error {
	if cfg.Storage.Backend != "postgres" {
		return bayerr.Errorf(bayerr.CodeCLIInputInvalid,
			"migrations apply to the postgres backend only (storage.backend is %q)", cfg.Storage.Backend)
	}
	return nil
}

func migrateUp(cfg *config.Config) error {
	return postgres.Migrate(cfg.Storage.DatabaseURL)
}
