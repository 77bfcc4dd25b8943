// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/verdigris-dev/verdigris/internal/store"
)

func newRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Re-derive the vector index from the stored records",
		Long: `Re-embeds every stored observation and replaces the vector index
wholesale. Run it after an interrupted submission or migration left the
index behind the records. Rebuilding an already-consistent base is
harmless.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context(), store.ModeWrite)
			if err != nil {
				return friendlyOpenError(err)
			}
			defer env.Close()

			n, err := env.store.RebuildIndex(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s indexed %d observations\n", successStyle.Render("✓"), n)
			return nil
		},
	}
}
