// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verdigris-dev/verdigris/internal/knowledge"
	"github.com/verdigris-dev/verdigris/internal/store"
	vderr "github.com/verdigris-dev/verdigris/pkg/errors"
)

func newSubmitCmd() *cobra.Command {
	var (
		kind        string
		sourceType  string
		sourceID    string
		reliability float64
		domains     []string
		belief      bool
		negated     bool
		file        string
	)

	cmd := &cobra.Command{
		Use:   "submit [content]",
		Short: "Store an observation or belief",
		Long: `Stores a unit of knowledge. Content comes from the arguments, from
stdin when no arguments are given, or line by line from --file for
batch submission. Resubmitting the same content from the same source
is a no-op that reports the existing record.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				if len(args) > 0 {
					return vderr.New(vderr.CodeCLIInputInvalid, "pass content or --file, not both")
				}
				if belief {
					return vderr.New(vderr.CodeCLIInputInvalid, "--belief submits a single statement, not a batch")
				}
			}

			env, err := openEnv(cmd.Context(), store.ModeWrite)
			if err != nil {
				return friendlyOpenError(err)
			}
			defer env.Close()

			input := knowledge.ObservationInput{
				Kind:        store.Kind(kind),
				SourceType:  store.SourceType(sourceType),
				SourceID:    sourceID,
				Reliability: reliability,
				Domains:     domains,
			}

			if file != "" {
				return submitFile(cmd, env, input, file)
			}

			content, err := readContent(cmd, args)
			if err != nil {
				return err
			}
			input.Content = content

			if belief {
				polarity := store.PolarityAffirmed
				if negated {
					polarity = store.PolarityNegated
				}
				res, err := env.store.SubmitBelief(cmd.Context(), input, polarity)
				if err != nil {
					return err
				}
				if res.Duplicate {
					fmt.Fprintf(cmd.OutOrStdout(), "belief already recorded as %s\n", res.ID)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored belief %s (%s)\n", res.ID, polarity)
				return nil
			}

			res, err := env.store.SubmitObservation(cmd.Context(), input)
			return reportSubmit(cmd.OutOrStdout(), res, err)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(store.KindPattern), "observation kind (pattern, decision, challenge, technology)")
	cmd.Flags().StringVar(&sourceType, "source-type", string(store.SourceSession), "provenance class (session, distillation, documentation, commit, unknown)")
	cmd.Flags().StringVar(&sourceID, "source-id", "cli", "identifier of the producing source")
	cmd.Flags().Float64Var(&reliability, "reliability", store.DefaultReliability, "trust weight in [0,1]")
	cmd.Flags().StringSliceVar(&domains, "domains", nil, "domain tags")
	cmd.Flags().BoolVar(&belief, "belief", false, "store as a belief to validate instead of an observation")
	cmd.Flags().BoolVar(&negated, "negated", false, "mark the belief as denying its statement")
	cmd.Flags().StringVarP(&file, "file", "f", "", "submit each non-empty line of this file")

	return cmd
}

// readContent takes the statement from the arguments, falling back to
// stdin so content can be piped in.
func readContent(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", vderr.Wrap(err, vderr.CodeCLIInputInvalid, "reading content from stdin")
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return "", vderr.New(vderr.CodeCLIInputInvalid, "no content given (pass it as an argument or on stdin)")
	}
	return content, nil
}

// reportSubmit prints the outcome of one observation submission. A result
// alongside an error means the record persisted but indexing did not; the
// id is reported with the repair hint and the error still fails the
// command.
func reportSubmit(out io.Writer, res *knowledge.SubmitResult, err error) error {
	if err != nil {
		if res != nil && res.ID != "" {
			fmt.Fprintln(out, warnStyle.Render(
				fmt.Sprintf("record stored as %s but indexing failed; run 'verdigris rebuild'", res.ID)))
		}
		return err
	}
	if res.Duplicate {
		fmt.Fprintf(out, "observation already recorded as %s\n", res.ID)
		return nil
	}
	fmt.Fprintf(out, "stored observation %s\n", res.ID)
	return nil
}

// submitFile submits every non-empty line of path as its own observation.
// The batch never aborts early; failed lines are reported and the command
// exits non-zero when any line failed.
func submitFile(cmd *cobra.Command, env *env, input knowledge.ObservationInput, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return vderr.Wrapf(err, vderr.CodeCLIInputInvalid, "opening batch file %s", path)
	}
	defer f.Close()

	var inputs []knowledge.ObservationInput
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		in := input
		in.Content = line
		inputs = append(inputs, in)
	}
	if err := scanner.Err(); err != nil {
		return vderr.Wrapf(err, vderr.CodeCLIInputInvalid, "reading batch file %s", path)
	}

	outcomes, err := env.store.SubmitBatch(cmd.Context(), inputs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var stored, duplicates, failed int
	var firstErr error
	for i, outcome := range outcomes {
		switch {
		case outcome.Err != nil:
			failed++
			if firstErr == nil {
				firstErr = outcome.Err
			}
			fmt.Fprintf(out, "item %d: %v\n", i+1, outcome.Err)
		case outcome.Duplicate:
			duplicates++
		default:
			stored++
		}
	}
	fmt.Fprintf(out, "stored %d observations (%d duplicates, %d failures)\n", stored, duplicates, failed)

	if failed > 0 {
		return vderr.Wrapf(firstErr, vderr.CodeOf(firstErr), "%d of %d submissions failed", failed, len(outcomes))
	}
	return nil
}
