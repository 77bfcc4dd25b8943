// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package knowledge

import (
	"github.com/verdigris-dev/verdigris/internal/embeddings"
	"github.com/verdigris-dev/verdigris/internal/store"
	vderr "github.com/verdigris-dev/verdigris/pkg/errors"
)

// Retrieval defaults. These are the literals the retriever was tuned with;
// all of them are overridable through Config.
const (
	DefaultMinReliability  = 0.85
	DefaultLimit           = 10
	DefaultOversample      = 4
	DefaultStrongThreshold = 0.70
	DefaultMediumThreshold = 0.50
)

// DefaultAllowedSourceTypes is the provenance allow-list applied when the
// caller does not name one. Commit-derived and unknown-provenance text is
// excluded by default.
func DefaultAllowedSourceTypes() []store.SourceType {
	return []store.SourceType{store.SourceSession, store.SourceDistillation, store.SourceDocumentation}
}

// EngineFactory constructs an embedding engine for a model id. The factory
// runs once at open and again on model migration.
type EngineFactory func(modelID string) (embeddings.Engine, error)

// RetrievalConfig carries the retriever's quality-filter defaults.
type RetrievalConfig struct {
	// AllowedSourceTypes is the provenance allow-list. Empty means no
	// source-type filtering.
	AllowedSourceTypes []store.SourceType
	// MinReliability drops observations below this trust weight.
	MinReliability float64
	// Limit is the maximum number of results returned.
	Limit int
	// Oversample is the candidate multiplier fetched from the index before
	// filtering, so that filtering rarely starves the result list.
	Oversample int
	// StrongThreshold and MediumThreshold are the similarity cut-offs for
	// the human-facing strength bands.
	StrongThreshold float64
	MediumThreshold float64
}

// Config describes one knowledge base. Everything is explicit; there are no
// ambient globals, and the active model is whatever the records and index
// artifacts say it is.
type Config struct {
	// Dir is the knowledge base directory holding records.db and the
	// vector index artifact.
	Dir string
	// Backend names the vector index backend; empty means the default.
	Backend string
	// ModelID is the embedding model the engine loads. It must match what
	// the records and index artifacts were built with.
	ModelID string
	// ModelCacheDir is where downloaded model files live.
	ModelCacheDir string
	// Mode is the vector index access mode for this session: ModeSearch
	// for retrieval and validation, ModeWrite for ingestion and
	// maintenance.
	Mode store.Mode
	// Retrieval overrides the retriever defaults; zero fields keep them.
	Retrieval RetrievalConfig
	// NewEngine overrides engine construction, mainly for tests. Nil uses
	// fastembed with ModelCacheDir.
	NewEngine EngineFactory
}

// normalize fills defaulted fields in place and validates the rest.
func (c *Config) normalize() error {
	if c.Dir == "" {
		return vderr.New(vderr.CodeStoreInvalidInput, "knowledge base directory is required")
	}
	if !c.Mode.Valid() {
		return vderr.Errorf(vderr.CodeStoreInvalidInput, "invalid index mode %q", c.Mode)
	}
	if c.Backend == "" {
		c.Backend = store.DefaultBackend
	}
	if c.ModelID == "" {
		c.ModelID = embeddings.DefaultModelID
	}

	r := &c.Retrieval
	if r.AllowedSourceTypes == nil {
		r.AllowedSourceTypes = DefaultAllowedSourceTypes()
	}
	if r.MinReliability == 0 {
		r.MinReliability = DefaultMinReliability
	}
	if r.Limit == 0 {
		r.Limit = DefaultLimit
	}
	if r.Oversample == 0 {
		r.Oversample = DefaultOversample
	}
	if r.StrongThreshold == 0 {
		r.StrongThreshold = DefaultStrongThreshold
	}
	if r.MediumThreshold == 0 {
		r.MediumThreshold = DefaultMediumThreshold
	}

	if r.MinReliability < 0 || r.MinReliability > 1 {
		return vderr.Errorf(vderr.CodeStoreInvalidInput, "min reliability must be in [0,1], got %g", r.MinReliability)
	}
	if r.Limit < 0 || r.Oversample < 1 {
		return vderr.New(vderr.CodeStoreInvalidInput, "retrieval limit must be >= 0 and oversample >= 1")
	}
	return nil
}

func (c *Config) engineFactory() EngineFactory {
	if c.NewEngine != nil {
		return c.NewEngine
	}
	cacheDir := c.ModelCacheDir
	return func(modelID string) (embeddings.Engine, error) {
		return embeddings.NewFastEmbed(modelID, cacheDir)
	}
}
