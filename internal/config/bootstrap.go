// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package config

import (
	_ "embed"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

//go:embed bayleaf-agents.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/bayleaf-agents/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", bayerr.Errorf(bayerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "bayleaf-agents", "config.yaml"), nil
}

// Resolve picks the config file to load. An explicit path always wins;
// otherwise the default path is used when it exists, and "" means defaults
// and environment only.
func Resolve(explicit string) string {
	if explicit != "" {
		return explicit
	}
	p, err := DefaultConfigPath()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// WriteDefault writes the commented default config to path with 0600
// permissions. It refuses to overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return bayerr.Errorf(bayerr.CodeCLIInputInvalid, "config file %s already exists", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return bayerr.Errorf(bayerr.CodeConfigLoadReadFailure, "checking %s: %w", path, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return bayerr.Errorf(bayerr.CodeConfigLoadReadFailure, "creating config directory: %w", err)
	}
	if err := os.WriteFile(path, DefaultConfigYAML, 0o600); err != nil {
		return bayerr.Errorf(bayerr.CodeConfigLoadReadFailure, "writing config %s: %w", path, err)
	}
	return nil
}
