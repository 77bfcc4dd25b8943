// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package store

import "context"

// VectorIndex is the approximate-nearest-neighbor side of a knowledge base,
// keyed by the same row ids as the RecordStore. Distance metric is cosine.
//
// A handle is opened in exactly one Mode. Mutations (Add, Rebuild, Delete)
// on a ModeSearch handle fail with an index.mode.read_only error; Search on
// a ModeWrite handle fails with index.mode.write_only. The check happens
// before any storage is touched, so a wrong-mode call can never corrupt the
// artifact.
type VectorIndex interface {
	Add(ctx context.Context, id string, vector []float32) error
	Search(ctx context.Context, vector []float32, k int) ([]VectorMatch, error)

	// Rebuild replaces the index contents entirely with the supplied
	// entries. It is idempotent: running it twice with the same entries
	// yields the same count and the same search results. A rebuild may
	// change the index dimension (model migration).
	Rebuild(ctx context.Context, modelID string, dimensions int, entries []VectorEntry) error

	Delete(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int, error)

	// Dimensions and ModelID report what the artifact was built with, as
	// persisted in its metadata, so mismatches are detectable at open time.
	Dimensions() int
	ModelID() string
	Mode() Mode

	Close() error
}
