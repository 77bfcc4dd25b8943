// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/verdigris-dev/verdigris/internal/embeddings"
	"github.com/verdigris-dev/verdigris/internal/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <model>",
		Short: "Switch the knowledge base to a different embedding model",
		Long: `Records the new model and re-embeds every observation with it. Old
and new vectors are never mixed; if the migration is interrupted, run
it again (or rebuild) to finish. Pass the same model id in the config
afterwards so later opens agree with the records.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := embeddings.LookupModel(args[0]); err != nil {
				return err
			}

			env, err := openEnv(cmd.Context(), store.ModeWrite)
			if err != nil {
				return friendlyOpenError(err)
			}
			defer env.Close()

			n, err := env.store.MigrateModel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s migrated to %s, re-embedded %d observations\n",
				successStyle.Render("✓"), args[0], n)
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("set embedding.model in the config so future opens use the new model"))
			return nil
		},
	}
}
