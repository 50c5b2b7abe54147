// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package main

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

// isolateEnv points HOME at a temp dir and blanks every variable config
// loading reads, so neither host config nor host keys leak into a test.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "BAYLEAF_") {
			t.Setenv(name, "")
		}
	}
	for _, name := range []string{
		"APP_ENV", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "OPENROUTER_API_KEY",
		"DATABASE_URL", "PHI_FILTER_URL", "PHI_FILTER_ENTITIES", "REDIS_URL",
	} {
		t.Setenv(name, "")
	}
}

// run executes the root command with args and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err := root.Execute()
	return out.String(), errOut.String(), err
}
