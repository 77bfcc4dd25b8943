// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"
)

// DefaultConfigYAML is the commented starter config written by
// BootstrapConfig and reported by `verdigris init`.
//
//go:embed verdigris.yaml.default
var DefaultConfigYAML []byte

// BootstrapConfig materializes the starter config at
// ~/.config/verdigris/verdigris.yaml when no config file exists anywhere on
// the search path. It returns the written path, or "" when the file was
// already present or could not be written. Failures never stop startup;
// the built-in defaults cover a missing file.
func BootstrapConfig() string {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Debug("config bootstrap skipped: no home directory", "error", err)
		return ""
	}
	cfgPath := filepath.Join(home, ".config", "verdigris", "verdigris.yaml")

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o700); err != nil {
		slog.Debug("config bootstrap skipped", "path", cfgPath, "error", err)
		return ""
	}

	// O_EXCL keeps an existing config untouched.
	f, err := os.OpenFile(cfgPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if !errors.Is(err, fs.ErrExist) {
			slog.Debug("config bootstrap skipped", "path", cfgPath, "error", err)
		}
		return ""
	}

	if _, err := f.Write(DefaultConfigYAML); err != nil {
		_ = f.Close()
		_ = os.Remove(cfgPath)
		slog.Debug("config bootstrap skipped: write failed", "path", cfgPath, "error", err)
		return ""
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(cfgPath)
		slog.Debug("config bootstrap skipped: close failed", "path", cfgPath, "error", err)
		return ""
	}

	slog.Info("created default config", "path", cfgPath)
	return cfgPath
}
