// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// WarnInsecurePermissions logs a warning when the config file is group- or
// world-readable. It never fails startup; the knowledge base can hold
// confidential project text, so the operator should know when other users
// on the machine can read where it lives.
func WarnInsecurePermissions(path string) {
	if path == "" {
		// No config file loaded (defaults only). Nothing to check.
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("could not stat config file for permission check", "path", path, "error", err)
		return
	}

	mode := info.Mode()
	perm := mode.Perm()

	const groupRead fs.FileMode = 0o040
	const otherRead fs.FileMode = 0o004

	if perm&(groupRead|otherRead) != 0 {
		slog.Warn(
			"config file has insecure permissions",
			"path", path,
			"mode", mode,
			"recommended", "0600",
		)
	}
}
