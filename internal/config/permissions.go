// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// WarnInsecurePermissions logs a warning when the config file at path is
// readable by group or others. Provider keys and the onboarding password
// live in this file. It never fails startup.
func WarnInsecurePermissions(path string) {
	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("config_permission_check_skipped", "path", path, "error", err)
		return
	}

	const groupOrOtherRead fs.FileMode = 0o044
	if perm := info.Mode().Perm(); perm&groupOrOtherRead != 0 {
		slog.Warn("config file has insecure permissions; credentials may be readable by other users",
			"path", path,
			"mode", perm,
			"recommended", "0600",
		)
	}
}
