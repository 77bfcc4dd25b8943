// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package store

// VectorConfig controls which vector backend the factory opens and how.
type VectorConfig struct {
	Backend    string // "sqlitevec" (default) or "chromem".
	Dir        string // Knowledge base directory; the backend derives its artifact path.
	ModelID    string // Embedding model the index is expected to hold.
	Dimensions int    // Embedding dimensions; must match an existing artifact.
	Mode       Mode   // ModeSearch or ModeWrite.
}
