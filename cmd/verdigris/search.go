// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verdigris-dev/verdigris/internal/knowledge"
	"github.com/verdigris-dev/verdigris/internal/store"
)

func newSearchCmd() *cobra.Command {
	var (
		limit          int
		minReliability float64
		sourceTypes    []string
		allSources     bool
		asJSON         bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve the observations closest to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context(), store.ModeSearch)
			if err != nil {
				return friendlyOpenError(err)
			}
			defer env.Close()

			opts := env.store.DefaultSearchOptions()
			if cmd.Flags().Changed("limit") {
				opts.Limit = limit
			}
			if cmd.Flags().Changed("min-reliability") {
				opts.MinReliability = minReliability
			}
			if cmd.Flags().Changed("source-types") {
				opts.AllowedSourceTypes = make([]store.SourceType, 0, len(sourceTypes))
				for _, st := range sourceTypes {
					opts.AllowedSourceTypes = append(opts.AllowedSourceTypes, store.SourceType(st))
				}
			}
			if allSources {
				opts.AllowedSourceTypes = nil
			}

			query := strings.Join(args, " ")
			results, err := env.store.Search(cmd.Context(), query, opts)
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(cmd, results)
			}
			printResults(cmd, results)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results")
	cmd.Flags().Float64Var(&minReliability, "min-reliability", 0, "drop observations below this trust weight")
	cmd.Flags().StringSliceVar(&sourceTypes, "source-types", nil, "restrict results to these provenance classes")
	cmd.Flags().BoolVar(&allSources, "all-sources", false, "admit every provenance class")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")

	return cmd
}

func printResults(cmd *cobra.Command, results []knowledge.SearchResult) {
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, dimStyle.Render("no matching observations"))
		return
	}

	for i, r := range results {
		fmt.Fprintf(out, "%2d. %s %.3f  %s\n", i+1, strengthBadge(r.Strength), r.Similarity, r.Content)
		meta := fmt.Sprintf("    %s  %s/%s  reliability %.2f", r.ID, r.SourceType, r.SourceID, r.Reliability)
		if len(r.Domains) > 0 {
			meta += "  [" + strings.Join(r.Domains, ", ") + "]"
		}
		fmt.Fprintln(out, dimStyle.Render(meta))
	}
}

func strengthBadge(s knowledge.Strength) string {
	switch s {
	case knowledge.StrengthStrong:
		return strongStyle.Render("strong")
	case knowledge.StrengthMedium:
		return mediumStyle.Render("medium")
	default:
		return weakStyle.Render("weak  ")
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
