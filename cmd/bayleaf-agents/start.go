// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the HTTP server",
		Long:  "Load configuration, wire the store, providers, PHI filter and clinical client, and serve the agent API until interrupted.",
		RunE:  runStart,
	}
	cmd.Flags().String("listen", "", "override networking.listen (host:port)")
	cmd.Flags().Bool("migrate", false, "apply postgres migrations before serving")
	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Networking.Listen = listen
	}
	if doMigrate, _ := cmd.Flags().GetBool("migrate"); doMigrate && cfg.Storage.Backend == "postgres" {
		if err := migrateUp(cfg); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := WireApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	return app.Start(ctx)
}

// contextOrBackground guards commands executed without a context.
func contextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
