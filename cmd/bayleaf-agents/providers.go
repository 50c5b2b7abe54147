// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/bayleaf-health/bayleaf-agents/internal/provider"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

// keyCheckClient is replaced in tests.
var keyCheckClient = &http.Client{Timeout: 10 * time.Second}

func newProvidersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Inspect configured model providers",
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Verify every configured provider API key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			names := cfg.ProviderNames()
			if len(names) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "no providers configured; the mock provider needs no key")
				return err
			}

			failed := 0
			for _, name := range names {
				pc := cfg.Providers[name]
				ctx, cancel := context.WithTimeout(contextOrBackground(cmd), 15*time.Second)
				err := provider.CheckKey(ctx, keyCheckClient, name, pc.APIKey, pc.Endpoint)
				cancel()

				status := "ok"
				if err != nil {
					failed++
					status = "FAIL: " + err.Error()
				}
				if _, werr := fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", name, status); werr != nil {
					return werr
				}
			}
			if failed > 0 {
				return bayerr.Errorf(bayerr.CodeProviderKeyCheckFailed, "%d of %d provider key checks failed", failed, len(names))
			}
			return nil
		},
	}

	cmd.AddCommand(check)
	return cmd
}
