// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/verdigris-dev/verdigris/internal/store"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show record counts, index size, and model lineage",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context(), store.ModeSearch)
			if err != nil {
				return friendlyOpenError(err)
			}
			defer env.Close()

			status, err := env.store.Status(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-20s %s\n", "Base directory:", env.baseDir)
			fmt.Fprintf(out, "%-20s %s\n", "Backend:", status.Backend)
			fmt.Fprintf(out, "%-20s %s (%d dimensions)\n", "Model:", status.ModelID, status.Dimensions)
			fmt.Fprintf(out, "%-20s %d\n", "Observations:", status.Observations)
			fmt.Fprintf(out, "%-20s %d\n", "Beliefs:", status.Beliefs)
			fmt.Fprintf(out, "%-20s %d\n", "Indexed vectors:", status.IndexedVectors)

			if len(status.ByKind) > 0 {
				kinds := make([]string, 0, len(status.ByKind))
				for k := range status.ByKind {
					kinds = append(kinds, string(k))
				}
				sort.Strings(kinds)
				fmt.Fprintf(out, "%-20s\n", "By kind:")
				for _, k := range kinds {
					fmt.Fprintf(out, "  %-18s %d\n", k+":", status.ByKind[store.Kind(k)])
				}
			}

			if status.IndexedVectors < status.Observations {
				fmt.Fprintln(out, warnStyle.Render("index is behind the records; run 'verdigris rebuild'"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")

	return cmd
}
