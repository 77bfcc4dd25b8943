// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

// Package evidence scores beliefs against stored observations using
// declarative validation rules. An evaluation loads a fact snapshot for
// the belief, applies every rule to it, and either completes with a score
// and its supporting evidence or fails as a whole; partial results are
// never returned.
package evidence

import (
	"context"
	"log/slog"
	"strings"

	vderr "github.com/verdigris-dev/verdigris/pkg/errors"
)

const (
	// DefaultFactLimit caps how many facts are loaded per belief.
	DefaultFactLimit = 50

	// DefaultStrongThreshold is the similarity at or above which a matched
	// fact counts as strong evidence in explanation stats.
	DefaultStrongThreshold = 0.70
)

// Fact is one piece of stored evidence considered during an evaluation.
// Facts carry plain values rather than store types so rule evaluation
// stays a pure function over an immutable snapshot.
type Fact struct {
	ObservationID string
	Content       string
	SourceID      string
	SourceType    string
	Reliability   float64
	Similarity    float64
}

// FactSource supplies the candidate fact set for a belief under test. The
// returned facts must be deterministic for a given store state.
type FactSource interface {
	Facts(ctx context.Context, beliefContent string, limit int) ([]Fact, error)
}

// Evidence records one matched fact under one fired rule. Contribution is
// the fired rule's contribution; it is counted once per rule in the score,
// not once per entry.
type Evidence struct {
	ObservationID string  `json:"observation_id"`
	Rule          string  `json:"rule"`
	Contribution  float64 `json:"contribution"`
}

// Stats summarizes the facts behind an explanation. FactCount is the size
// of the loaded candidate set; the remaining fields are computed over the
// distinct facts that appear in the evidence list.
type Stats struct {
	FactCount       int     `json:"fact_count"`
	StrongEvidence  int     `json:"strong_evidence"`
	DistinctSources int     `json:"distinct_sources"`
	AvgReliability  float64 `json:"avg_reliability"`
	AvgSimilarity   float64 `json:"avg_similarity"`
}

// Explanation is the full reasoning behind a belief's score. Evidence is
// ordered by rule definition order, then by fact rank within each rule.
type Explanation struct {
	Belief   string     `json:"belief"`
	Score    float64    `json:"score"`
	Evidence []Evidence `json:"evidence"`
	Stats    Stats      `json:"stats"`
}

// ValidatorConfig tunes fact loading and explanation stats. Zero values
// fall back to the package defaults.
type ValidatorConfig struct {
	FactLimit       int
	StrongThreshold float64
}

// Validator scores beliefs against stored observations.
type Validator struct {
	rules  []Rule
	source FactSource
	cfg    ValidatorConfig
	logger *slog.Logger
}

// NewValidator builds a validator over an already-loaded rule set. The
// rules are revalidated so a hand-built set cannot bypass the load-time
// checks.
func NewValidator(rules []Rule, source FactSource, cfg ValidatorConfig, logger *slog.Logger) (*Validator, error) {
	if source == nil {
		return nil, vderr.New(vderr.CodeInternalFailure, "fact source is required")
	}
	if problems := validateRules(rules); len(problems) > 0 {
		return nil, vderr.Errorf(vderr.CodeRulesDefinitionInvalid,
			"rules validation: %s", strings.Join(problems, "; "))
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Validator{rules: rules, source: source, cfg: cfg, logger: logger}, nil
}

// Validate scores the belief and reports only the aggregate confidence.
// Zero fired rules yield 0.0, not an error.
func (v *Validator) Validate(ctx context.Context, belief string) (float64, error) {
	expl, err := v.run(ctx, belief)
	if err != nil {
		return 0, err
	}
	return expl.Score, nil
}

// Explain scores the belief and retains every matched fact and fired rule.
// It is the same computation as Validate and always yields the same score
// for the same store state.
func (v *Validator) Explain(ctx context.Context, belief string) (*Explanation, error) {
	return v.run(ctx, belief)
}

func (v *Validator) run(ctx context.Context, belief string) (*Explanation, error) {
	if strings.TrimSpace(belief) == "" {
		return nil, vderr.New(vderr.CodeQueryInvalid, "belief text is empty")
	}

	limit := v.factLimit()
	v.logger.Debug("loading facts", "limit", limit)

	facts, err := v.source.Facts(ctx, belief, limit)
	if err != nil {
		// Discard partials; the whole evaluation fails as one.
		return nil, vderr.Errorf(vderr.CodeValidationFailure, "loading facts: %v", err)
	}

	score, evidence := evaluate(v.rules, facts)
	v.logger.Debug("rules evaluated",
		"facts", len(facts), "evidence", len(evidence), "score", score)

	return &Explanation{
		Belief:   belief,
		Score:    score,
		Evidence: evidence,
		Stats:    computeStats(facts, evidence, v.strongThreshold()),
	}, nil
}

func (v *Validator) factLimit() int {
	if v.cfg.FactLimit > 0 {
		return v.cfg.FactLimit
	}
	return DefaultFactLimit
}

func (v *Validator) strongThreshold() float64 {
	if v.cfg.StrongThreshold > 0 {
		return v.cfg.StrongThreshold
	}
	return DefaultStrongThreshold
}

// evaluate applies the rules to an immutable fact snapshot. Each rule is
// matched against every fact; a rule whose match count reaches MinCount
// fires, adding its contribution once and one evidence entry per matched
// fact. The score is capped at 1.0.
func evaluate(rules []Rule, facts []Fact) (float64, []Evidence) {
	lowered := make([]string, len(facts))
	for i, f := range facts {
		lowered[i] = strings.ToLower(f.Content)
	}

	var score float64
	var evidence []Evidence
	for _, rule := range rules {
		terms := make([]string, len(rule.Terms))
		for i, t := range rule.Terms {
			terms[i] = strings.ToLower(t)
		}

		var matched []int
		for i := range facts {
			if containsAll(lowered[i], terms) {
				matched = append(matched, i)
			}
		}
		if len(matched) < rule.MinCount {
			continue
		}

		score += rule.Contribution
		for _, i := range matched {
			evidence = append(evidence, Evidence{
				ObservationID: facts[i].ObservationID,
				Rule:          rule.Name,
				Contribution:  rule.Contribution,
			})
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score, evidence
}

// containsAll reports whether content contains every term. Both sides must
// already be lowercased.
func containsAll(content string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(content, term) {
			return false
		}
	}
	return true
}

func computeStats(facts []Fact, evidence []Evidence, strongThreshold float64) Stats {
	stats := Stats{FactCount: len(facts)}

	byID := make(map[string]Fact, len(facts))
	for _, f := range facts {
		byID[f.ObservationID] = f
	}

	// A fact matched by several fired rules counts once.
	seen := make(map[string]bool, len(evidence))
	sources := make(map[string]bool)
	var sumReliability, sumSimilarity float64
	var counted int
	for _, ev := range evidence {
		if seen[ev.ObservationID] {
			continue
		}
		seen[ev.ObservationID] = true

		f := byID[ev.ObservationID]
		counted++
		sources[f.SourceID] = true
		sumReliability += f.Reliability
		sumSimilarity += f.Similarity
		if f.Similarity >= strongThreshold {
			stats.StrongEvidence++
		}
	}

	stats.DistinctSources = len(sources)
	if counted > 0 {
		stats.AvgReliability = sumReliability / float64(counted)
		stats.AvgSimilarity = sumSimilarity / float64(counted)
	}
	return stats
}
