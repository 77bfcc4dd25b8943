// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package knowledge

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/verdigris-dev/verdigris/internal/embeddings"
	"github.com/verdigris-dev/verdigris/internal/store"
	vderr "github.com/verdigris-dev/verdigris/pkg/errors"
)

// Strength is the human-facing similarity band of a search result.
type Strength string

const (
	StrengthStrong Strength = "strong"
	StrengthMedium Strength = "medium"
	StrengthWeak   Strength = "weak"
)

// SearchOptions control one retrieval. Build them with
// DefaultSearchOptions and override fields; the zero value is not usable.
type SearchOptions struct {
	// AllowedSourceTypes is the provenance allow-list. Empty allows every
	// class.
	AllowedSourceTypes []store.SourceType
	// MinReliability drops observations below this trust weight.
	MinReliability float64
	// Limit is the maximum number of results.
	Limit int
	// Oversample multiplies Limit for the candidate fetch, so filtering
	// rarely starves the result list.
	Oversample int
}

// DefaultSearchOptions returns the store's configured retrieval defaults.
func (s *Store) DefaultSearchOptions() SearchOptions {
	r := s.cfg.Retrieval
	return SearchOptions{
		AllowedSourceTypes: append([]store.SourceType(nil), r.AllowedSourceTypes...),
		MinReliability:     r.MinReliability,
		Limit:              r.Limit,
		Oversample:         r.Oversample,
	}
}

func (o SearchOptions) validate() error {
	if o.Limit < 1 {
		return vderr.Errorf(vderr.CodeStoreInvalidInput, "search limit must be >= 1, got %d", o.Limit)
	}
	if o.Oversample < 1 {
		return vderr.Errorf(vderr.CodeStoreInvalidInput, "search oversample must be >= 1, got %d", o.Oversample)
	}
	if o.MinReliability < 0 || o.MinReliability > 1 {
		return vderr.Errorf(vderr.CodeStoreInvalidInput, "min reliability must be in [0,1], got %g", o.MinReliability)
	}
	return nil
}

// SearchResult is one retrieved observation with its similarity to the
// query.
type SearchResult struct {
	ID          string           `json:"id"`
	Content     string           `json:"content"`
	Similarity  float64          `json:"similarity"`
	Strength    Strength         `json:"strength"`
	Kind        store.Kind       `json:"kind"`
	SourceType  store.SourceType `json:"source_type"`
	SourceID    string           `json:"source_id"`
	Reliability float64          `json:"reliability"`
	Domains     []string         `json:"domains,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Search retrieves the observations semantically closest to the query:
// embed the query in query mode, fetch Limit x Oversample candidates from
// the index, hydrate and quality-filter them, deduplicate identical content
// keeping the highest-similarity instance, and truncate to Limit in
// descending similarity. Fewer than Limit survivors is a normal outcome.
func (s *Store) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, vderr.New(vderr.CodeQueryInvalid, "query text is empty")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	qvec, err := s.engine.Embed(ctx, query, embeddings.ModeQuery)
	if err != nil {
		return nil, err
	}

	matches, err := s.index.Search(ctx, qvec, opts.Limit*opts.Oversample)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	rows, err := s.records.GetObservations(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*store.Observation, len(rows))
	for _, obs := range rows {
		byID[obs.ID] = obs
	}

	allowed := make(map[store.SourceType]bool, len(opts.AllowedSourceTypes))
	for _, st := range opts.AllowedSourceTypes {
		allowed[st] = true
	}

	results := make([]SearchResult, 0, len(matches))
	bestByHash := make(map[string]int) // content hash -> index into results
	for _, m := range matches {
		obs, ok := byID[m.ID]
		if !ok {
			// The index can briefly point at pruned records; skip them.
			continue
		}
		if len(allowed) > 0 && !allowed[obs.SourceType] {
			continue
		}
		if obs.Reliability < opts.MinReliability {
			continue
		}

		similarity := 1.0 - float64(m.Distance)
		if prev, seen := bestByHash[obs.ContentHash]; seen {
			if similarity > results[prev].Similarity {
				results[prev].Similarity = similarity
				results[prev].Strength = s.strengthOf(similarity)
			}
			continue
		}

		results = append(results, SearchResult{
			ID:          obs.ID,
			Content:     obs.Content,
			Similarity:  similarity,
			Strength:    s.strengthOf(similarity),
			Kind:        obs.Kind,
			SourceType:  obs.SourceType,
			SourceID:    obs.SourceID,
			Reliability: obs.Reliability,
			Domains:     obs.Domains,
			CreatedAt:   obs.CreatedAt,
		})
		bestByHash[obs.ContentHash] = len(results) - 1
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	s.logger.Debug("search completed",
		slog.Int("candidates", len(matches)),
		slog.Int("results", len(results)))
	return results, nil
}

// strengthOf maps a similarity score onto its band.
func (s *Store) strengthOf(similarity float64) Strength {
	switch {
	case similarity >= s.cfg.Retrieval.StrongThreshold:
		return StrengthStrong
	case similarity >= s.cfg.Retrieval.MediumThreshold:
		return StrengthMedium
	default:
		return StrengthWeak
	}
}
