// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/verdigris-dev/verdigris/internal/store"
)

func newPruneCmd() *cobra.Command {
	var sourceType string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove every observation of one provenance class",
		Long: `Drops all observations whose source type matches from the records and
the vector index. Typical use is evicting low-quality commit-derived
text after a bulk import.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context(), store.ModeWrite)
			if err != nil {
				return friendlyOpenError(err)
			}
			defer env.Close()

			n, err := env.store.PruneSourceType(cmd.Context(), store.SourceType(sourceType))
			if err != nil {
				if n > 0 {
					fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render(
						fmt.Sprintf("%d records pruned but the index was not fully updated; run 'verdigris rebuild'", n)))
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s pruned %d observation(s) (%s)\n",
				successStyle.Render("✓"), n, sourceType)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceType, "source-type", "", "provenance class to remove (required)")
	_ = cmd.MarkFlagRequired("source-type")

	return cmd
}
