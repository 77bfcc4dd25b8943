// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verdigris-dev/verdigris/internal/store"
)

func newValidateCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate <belief>",
		Short: "Score a belief against the stored evidence",
		Long: `Loads the facts most relevant to the belief, applies the validation
rules, and prints the resulting confidence score in [0, 1]. A score of
zero means no rule found enough support, not that the belief is false.`,
		Args: cobra.MinimumNArgs(1),
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
			score, err := v.Validate(cmd.Context(), belief)
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(cmd, struct {
					Belief string  `json:"belief"`
					Score  float64 `json:"score"`
				}{belief, score})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "score: %.2f\n", score)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")

	return cmd
}
