// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

// Package embeddings turns observation text into vectors. Engines are
// deterministic: the same text, mode, and model always produce the same
// vector, so the vector index can be rebuilt from records at any time.
package embeddings

import (
	"context"
	"strings"

	vderr "github.com/verdigris-dev/verdigris/pkg/errors"
)

// Mode selects the embedding flavour. Retrieval models are asymmetric:
// queries and stored passages are prepared differently, and mixing them up
// silently degrades every similarity score. Callers state the mode at every
// call site.
type Mode string

const (
	// ModeQuery embeds text that searches the knowledge base.
	ModeQuery Mode = "query"
	// ModePassage embeds text that is stored in the knowledge base.
	ModePassage Mode = "passage"
)

// Valid reports whether m is a known embedding mode.
func (m Mode) Valid() bool {
	return m == ModeQuery || m == ModePassage
}

// Engine produces embedding vectors.
type Engine interface {
	// Embed returns the vector for a single text in the given mode.
	Embed(ctx context.Context, text string, mode Mode) ([]float32, error)

	// EmbedBatch returns one vector per text, in input order. Any empty
	// text fails the whole batch.
	EmbedBatch(ctx context.Context, texts []string, mode Mode) ([][]float32, error)

	// Dimension returns the vector width the engine produces.
	Dimension() int

	// ModelID returns the model identifier vectors are tagged with.
	ModelID() string

	// Close releases model resources.
	Close() error
}

// validateText rejects input that cannot be embedded. Empty or
// whitespace-only text never reaches the model.
func validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return vderr.New(vderr.CodeEmbedInputEmpty, "cannot embed empty text")
	}
	return nil
}

func validateBatch(texts []string) error {
	if len(texts) == 0 {
		return vderr.New(vderr.CodeEmbedInputEmpty, "cannot embed an empty batch")
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return vderr.Errorf(vderr.CodeEmbedInputEmpty, "text %d of %d in batch is empty", i+1, len(texts))
		}
	}
	return nil
}
