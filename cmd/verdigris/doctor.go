// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	"github.com/verdigris-dev/verdigris/internal/evidence"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check binary health, the base directory, knowledge base artifacts, the model cache, the rules file, and disk space.",
		RunE:  runDoctor,
	}
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	baseDir := resolveBaseDir()

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", checkConfig},
		{"Base Directory", func() string { return checkBaseDir(baseDir) }},
		{"Records", func() string { return checkRecords(baseDir) }},
		{"Vector Index", func() string { return checkVectorIndex(baseDir) }},
		{"Model Cache", func() string { return checkModelCache(baseDir) }},
		{"Rules", func() string { return checkRules(baseDir) }},
		{"Disk Space", func() string { return checkDiskSpace(baseDir) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

// resolveBaseDir returns the base directory from viper or the default.
func resolveBaseDir() string {
	dir := viper.GetString("base_dir")
	if dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".verdigris")
}

func checkBinary() string {
	return fmt.Sprintf("verdigris %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig() string {
	cfgFile := viper.ConfigFileUsed()
	if cfgFile != "" {
		return fmt.Sprintf("loaded from %s", cfgFile)
	}
	return "using defaults (no config file found)"
}

func checkBaseDir(baseDir string) string {
	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		return fmt.Sprintf("missing %s (run 'verdigris init')", baseDir)
	}
	return baseDir
}

func checkRecords(baseDir string) string {
	path := filepath.Join(baseDir, "knowledge", "records.db")
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "not initialized (run 'verdigris init')"
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s (%s)", path, formatBytes(uint64(info.Size())))
}

func checkVectorIndex(baseDir string) string {
	backend := viper.GetString("store.backend")
	knowledgeDir := filepath.Join(baseDir, "knowledge")

	var path string
	switch backend {
	case "chromem":
		path = filepath.Join(knowledgeDir, "index")
	default:
		path = filepath.Join(knowledgeDir, "vectors.db")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("no %s artifact yet (run 'verdigris init')", backend)
		}
		return fmt.Sprintf("error: %s", err)
	}
	if info.IsDir() {
		return fmt.Sprintf("%s (%s)", path, backend)
	}
	return fmt.Sprintf("%s (%s, %s)", path, backend, formatBytes(uint64(info.Size())))
}

func checkModelCache(baseDir string) string {
	cacheDir := viper.GetString("embedding.cache_dir")
	if cacheDir == "" {
		cacheDir = filepath.Join(baseDir, "models")
	}

	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("empty (models download to %s on first use)", cacheDir)
		}
		return fmt.Sprintf("error reading cache: %s", err)
	}

	count := 0
	for _, e := range entries {
		if e.Name()[0] != '.' {
			count++
		}
	}
	if count == 0 {
		return "empty (models download on first use)"
	}
	return fmt.Sprintf("%d entries in %s", count, cacheDir)
}

func checkRules(baseDir string) string {
	path := viper.GetString("rules.path")
	if path == "" {
		path = filepath.Join(baseDir, "rules.yaml")
	}

	rules, err := evidence.LoadRules(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Sprintf("no rules file at %s (run 'verdigris init')", path)
		}
		return fmt.Sprintf("error: %s", err)
	}
	if len(rules) == 0 {
		return fmt.Sprintf("no active rules in %s (validation scores stay 0)", path)
	}
	return fmt.Sprintf("%d rule(s) loaded from %s", len(rules), path)
}

func checkDiskSpace(baseDir string) string {
	path := baseDir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Fall back to home directory if the base dir doesn't exist yet.
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
