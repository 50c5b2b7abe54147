// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bayleaf-health/bayleaf-agents/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				var err error
				if path, err = config.DefaultConfigPath(); err != nil {
					return err
				}
			}
			force, _ := cmd.Flags().GetBool("force")
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return err
		},
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing file")

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "config ok (env=%s, storage=%s, lock=%s, model=%s)\n",
				cfg.Env, cfg.Storage.Backend, cfg.Lock.Backend, cfg.Models.Default)
			return err
		},
	}

	cmd.AddCommand(initCmd, validate)
	return cmd
}
