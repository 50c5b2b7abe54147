// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package main

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bayleaf-health/bayleaf-agents/internal/config"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

// NewRootCmd creates the root command with every subcommand registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bayleaf-agents",
		Short:         "Bayleaf Agents, PHI-safe conversational agents for patients",
		Long:          "Bayleaf Agents serves the appointment and treatment agents over HTTP. Patient messages are redacted before they reach a model provider.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnvFile(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file (default ~/.config/bayleaf-agents/config.yaml when present)")
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before the environment is read; a missing file is ignored")
	root.PersistentFlags().String("log-level", "", "override log.level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "override log.format (json, text)")

	root.AddCommand(
		newStartCmd(),
		newMigrateCmd(),
		newAgentsCmd(),
		newProvidersCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)

	return root
}

// loadEnvFile loads the dotenv file without overriding variables that are
// already set.
func loadEnvFile(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("env-file")
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return bayerr.Errorf(bayerr.CodeCLISetupFailure, "loading %s: %w", path, err)
	}
	return nil
}

// loadConfig reads configuration, applies the logging flags and installs the
// resulting logger as the slog default.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	explicit, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(config.Resolve(explicit))
	if err != nil {
		return nil, nil, err
	}

	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}

	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, bayerr.Errorf(bayerr.CodeCLIInputInvalid, "invalid log level %q", cfg.Level)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, bayerr.Errorf(bayerr.CodeCLIInputInvalid, "invalid log format %q", cfg.Format)
	}
}
