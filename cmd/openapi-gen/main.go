// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

// Command openapi-gen writes the OpenAPI document of the agent API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bayleaf-health/bayleaf-agents/internal/agent"
	"github.com/bayleaf-health/bayleaf-agents/internal/server"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/openapi.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI document written to %s\n", outPath)
}

// generateSpec registers every route against a service whose loop is never
// invoked and returns the document huma derives from the handler types.
func generateSpec() ([]byte, error) {
	logger := slog.New(slog.DiscardHandler)
	svc, err := agent.NewService(agent.ServiceConfig{
		Catalog: agent.BuiltinCatalog(logger),
		Loop:    idleTurner{},
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0", Logger: logger}, svc)
	if err != nil {
		return nil, bayerr.Errorf(bayerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	defer srv.Close()

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

type idleTurner struct{}

func (idleTurner) ProcessTurn(context.Context, agent.TurnRequest) (*agent.TurnResult, error) {
	return nil, bayerr.New(bayerr.CodeAgentLoopFailure, "spec generation does not run turns")
}
