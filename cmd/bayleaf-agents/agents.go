// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bayleaf-health/bayleaf-agents/internal/agent"
)

type agentListing struct {
	Slug       string            `yaml:"slug"`
	Name       string            `yaml:"name"`
	Languages  []string          `yaml:"languages"`
	Objectives map[string]string `yaml:"objectives,omitempty"`
}

func newAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents [slug]",
		Short: "List the agent catalog as YAML",
		Long:  "Print every built-in agent, or one agent by slug. With --objectives the full objective text is included per language.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			withObjectives, _ := cmd.Flags().GetBool("objectives")
			catalog := agent.BuiltinCatalog(slog.New(slog.DiscardHandler))

			agents := catalog.List()
			if len(args) == 1 {
				a, err := catalog.Get(args[0])
				if err != nil {
					return err
				}
				agents = []*agent.Agent{a}
			}

			out := make([]agentListing, 0, len(agents))
			for _, a := range agents {
				l := agentListing{Slug: a.Slug, Name: a.Name, Languages: a.Languages()}
				if withObjectives {
					l.Objectives = make(map[string]string, len(l.Languages))
					for _, lang := range l.Languages {
						l.Objectives[lang] = a.Objective(lang)
					}
				}
				out = append(out, l)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(out); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().Bool("objectives", false, "include objective texts")
	return cmd
}
