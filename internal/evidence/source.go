// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package evidence

import (
	"context"

	"github.com/verdigris-dev/verdigris/internal/knowledge"
)

// RetrieverSource feeds the validator from the semantic retriever: the
// fact set for a belief is the top-N quality-filtered observations for
// the belief's content.
type RetrieverSource struct {
	store *knowledge.Store
}

var _ FactSource = (*RetrieverSource)(nil)

// NewRetrieverSource adapts a knowledge store opened for search.
func NewRetrieverSource(store *knowledge.Store) *RetrieverSource {
	return &RetrieverSource{store: store}
}

func (r *RetrieverSource) Facts(ctx context.Context, beliefContent string, limit int) ([]Fact, error) {
	opts := r.store.DefaultSearchOptions()
	opts.Limit = limit

	results, err := r.store.Search(ctx, beliefContent, opts)
	if err != nil {
		return nil, err
	}

	facts := make([]Fact, 0, len(results))
	for _, res := range results {
		facts = append(facts, Fact{
			ObservationID: res.ID,
			Content:       res.Content,
			SourceID:      res.SourceID,
			SourceType:    string(res.SourceType),
			Reliability:   res.Reliability,
			Similarity:    res.Similarity,
		})
	}
	return facts, nil
}
