// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/verdigris-dev/verdigris/internal/config"
	"github.com/verdigris-dev/verdigris/internal/store"
)

// sampleRulesYAML seeds a fresh base directory. It documents the rule
// schema and ships with no active rules so validation scores stay at
// zero until the operator declares what counts as evidence.
const sampleRulesYAML = `# Validation rules for verdigris.
#
# A rule fires when at least min_count stored facts each contain every
# term (case-insensitive). Fired rules add their contribution to the
# belief's score, capped at 1.0.
#
# Example:
#
# rules:
#   - name: structured-errors
#     terms: ["Result", "error"]
#     min_count: 3
#     contribution: 0.8
#   - name: documented-behavior
#     terms: ["documented"]
#     min_count: 1
#     contribution: 0.2

rules: []
`

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the base directory and knowledge base",
		Long: `Creates the base directory tree, writes a starter rules file, and
materializes an empty knowledge base with the configured backend and
embedding model. Running init on an existing installation is safe; it
only fills in whatever is missing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ok := successStyle.Render("✓")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			baseDir, err := cfg.ResolveBaseDir()
			if err != nil {
				return err
			}

			for _, dir := range []string{baseDir, config.KnowledgeDir(baseDir), cfg.ModelCacheDir(baseDir)} {
				if err := os.MkdirAll(dir, 0o700); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "%s %-18s %s\n", ok, "base directory", baseDir)

			rulesPath := cfg.RulesPath(baseDir)
			rulesNote := "already present"
			if _, err := os.Stat(rulesPath); os.IsNotExist(err) || force {
				if err := os.WriteFile(rulesPath, []byte(sampleRulesYAML), 0o600); err != nil {
					return err
				}
				rulesNote = "created"
			}
			fmt.Fprintf(out, "%s %-18s %s (%s)\n", ok, "rules file", rulesPath, rulesNote)

			// Opening for writing creates the record database and the
			// vector artifact, and fetches the embedding model into the
			// cache on first use.
			env, err := openEnv(cmd.Context(), store.ModeWrite)
			if err != nil {
				return err
			}
			status, err := env.store.Status(cmd.Context())
			if cerr := env.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %-18s backend %s, model %s (%d dimensions)\n",
				ok, "knowledge base", status.Backend, status.ModelID, status.Dimensions)

			if file := viper.ConfigFileUsed(); file != "" {
				fmt.Fprintf(out, "%s %-18s %s\n", ok, "config file", file)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite the rules file with the starter template")

	return cmd
}
