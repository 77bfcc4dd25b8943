// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package embeddings

import (
	"context"

	"github.com/anush008/fastembed-go"

	vderr "github.com/verdigris-dev/verdigris/pkg/errors"
)

const (
	// maxSequenceLength caps tokens per text. Observations are short-form;
	// anything longer is truncated by the tokenizer.
	maxSequenceLength = 512

	// passageBatchSize bounds how many texts go through the model at once.
	passageBatchSize = 256
)

// Compile-time interface check.
var _ Engine = (*FastEmbed)(nil)

// FastEmbed runs local ONNX embedding models via fastembed. The model file
// is downloaded into the cache directory on first use and loaded from there
// afterwards.
type FastEmbed struct {
	info ModelInfo
	flag *fastembed.FlagEmbedding
}

// NewFastEmbed loads the given model, downloading it into cacheDir if
// missing. Kept models resolve offline; a download or load failure surfaces
// as a model-unavailable error.
func NewFastEmbed(modelID, cacheDir string) (*FastEmbed, error) {
	info, err := LookupModel(modelID)
	if err != nil {
		return nil, err
	}

	showProgress := false
	flag, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                info.fastModel,
		CacheDir:             cacheDir,
		MaxLength:            maxSequenceLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, vderr.Wrapf(err, vderr.CodeEmbedModelUnavailable,
			"loading embedding model %s", modelID)
	}

	return &FastEmbed{info: info, flag: flag}, nil
}

// Embed returns the vector for a single text in the given mode.
func (f *FastEmbed) Embed(ctx context.Context, text string, mode Mode) ([]float32, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch mode {
	case ModeQuery:
		vec, err := f.flag.QueryEmbed(text)
		if err != nil {
			return nil, vderr.Wrapf(err, vderr.CodeEmbedModelUnavailable, "embedding query")
		}
		return vec, nil

	case ModePassage:
		vecs, err := f.flag.PassageEmbed([]string{text}, 1)
		if err != nil {
			return nil, vderr.Wrapf(err, vderr.CodeEmbedModelUnavailable, "embedding passage")
		}
		return vecs[0], nil

	default:
		return nil, vderr.Errorf(vderr.CodeInternalFailure, "unknown embedding mode %q", mode)
	}
}

// EmbedBatch returns one vector per text, in input order.
func (f *FastEmbed) EmbedBatch(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch mode {
	case ModeQuery:
		// Query batches are small; fastembed only batches passages.
		vecs := make([][]float32, 0, len(texts))
		for _, text := range texts {
			vec, err := f.flag.QueryEmbed(text)
			if err != nil {
				return nil, vderr.Wrapf(err, vderr.CodeEmbedModelUnavailable, "embedding query batch")
			}
			vecs = append(vecs, vec)
		}
		return vecs, nil

	case ModePassage:
		vecs, err := f.flag.PassageEmbed(texts, passageBatchSize)
		if err != nil {
			return nil, vderr.Wrapf(err, vderr.CodeEmbedModelUnavailable, "embedding passage batch")
		}
		return vecs, nil

	default:
		return nil, vderr.Errorf(vderr.CodeInternalFailure, "unknown embedding mode %q", mode)
	}
}

// Dimension returns the vector width the model produces.
func (f *FastEmbed) Dimension() int { return f.info.Dimensions }

// ModelID returns the stable model identifier.
func (f *FastEmbed) ModelID() string { return f.info.ID }

// Close releases the ONNX session.
func (f *FastEmbed) Close() error {
	f.flag.Destroy()
	return nil
}
