// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/verdigris-dev/verdigris/internal/store"
)

func newExplainCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "explain <belief>",
		Short: "Score a belief and show the supporting evidence",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context(), store.ModeSearch)
			if err != nil {
				return friendlyOpenError(err)
			}
			defer env.Close()

			v, err := env.validator()
			if err != nil {
				return err
			}

			belief := strings.Join(args, " ")
			expl, err := v.Explain(cmd.Context(), belief)
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(cmd, expl)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render(expl.Belief))
			fmt.Fprintf(out, "score: %.2f\n\n", expl.Score)

			if len(expl.Evidence) == 0 {
				fmt.Fprintln(out, dimStyle.Render("no rule fired"))
			} else {
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "OBSERVATION\tRULE\tCONTRIBUTION")
				for _, e := range expl.Evidence {
					fmt.Fprintf(w, "%s\t%s\t%.2f\n", e.ObservationID, e.Rule, e.Contribution)
				}
				w.Flush()
			}

			s := expl.Stats
			fmt.Fprintf(out, "\nfacts loaded: %d\n", s.FactCount)
			fmt.Fprintf(out, "strong evidence: %d\n", s.StrongEvidence)
			fmt.Fprintf(out, "distinct sources: %d\n", s.DistinctSources)
			fmt.Fprintf(out, "avg reliability: %.2f\n", s.AvgReliability)
			fmt.Fprintf(out, "avg similarity: %.2f\n", s.AvgSimilarity)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")

	return cmd
}
