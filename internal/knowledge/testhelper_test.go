// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package knowledge_test

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verdigris-dev/verdigris/internal/embeddings"
	"github.com/verdigris-dev/verdigris/internal/knowledge"
	"github.com/verdigris-dev/verdigris/internal/store"
	vderr "github.com/verdigris-dev/verdigris/pkg/errors"

	_ "github.com/verdigris-dev/verdigris/internal/store/chromem"
	_ "github.com/verdigris-dev/verdigris/internal/store/sqlite"
)

const (
	testModel     = "fake-model"
	testWideModel = "fake-wide-model"
)

var testModelDims = map[string]int{
	testModel:     32,
	testWideModel: 64,
}

// fakeEngine is a deterministic embeddings.Engine for tests. Texts with a
// canned vector get exactly that vector; everything else gets a normalized
// bag-of-tokens vector, so texts sharing words land near each other. Both
// modes produce the same vector; the engine only records which mode was
// asked for.
type fakeEngine struct {
	modelID string
	dims    int
	canned  map[string][]float32
	// embedErr, when set, fails every embed after input validation.
	embedErr error

	queryCalls   int
	passageCalls int
}

var _ embeddings.Engine = (*fakeEngine)(nil)

func (f *fakeEngine) Embed(_ context.Context, text string, mode embeddings.Mode) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, vderr.New(vderr.CodeEmbedInputEmpty, "cannot embed empty text")
	}
	if f.embedErr != nil {
		return nil, f.embedErr
	}

	switch mode {
	case embeddings.ModeQuery:
		f.queryCalls++
	case embeddings.ModePassage:
		f.passageCalls++
	}

	if vec, ok := f.canned[text]; ok {
		out := make([]float32, f.dims)
		copy(out, vec)
		return out, nil
	}

	vec := make([]float32, f.dims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[int(h.Sum32())%f.dims]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1.0 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

func (f *fakeEngine) EmbedBatch(ctx context.Context, texts []string, mode embeddings.Mode) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, vderr.New(vderr.CodeEmbedInputEmpty, "cannot embed an empty batch")
	}
	vecs := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := f.Embed(ctx, text, mode)
		if err != nil {
			return nil, err
		}
		vecs = append(vecs, vec)
	}
	return vecs, nil
}

func (f *fakeEngine) Dimension() int  { return f.dims }
func (f *fakeEngine) ModelID() string { return f.modelID }
func (f *fakeEngine) Close() error    { return nil }

// fakeFactory serves testModel and testWideModel with hash-bag engines.
func fakeFactory(modelID string) (embeddings.Engine, error) {
	dims, ok := testModelDims[modelID]
	if !ok {
		return nil, vderr.New(vderr.CodeEmbedModelUnknown, "unknown embedding model "+modelID,
			vderr.FieldModelID(modelID))
	}
	return &fakeEngine{modelID: modelID, dims: dims}, nil
}

func testConfig(dir string, mode store.Mode) knowledge.Config {
	return knowledge.Config{
		Dir:       dir,
		ModelID:   testModel,
		Mode:      mode,
		NewEngine: fakeFactory,
	}
}

func openWrite(t *testing.T, dir string) *knowledge.Store {
	t.Helper()
	ks, err := knowledge.Open(context.Background(), testConfig(dir, store.ModeWrite), nil)
	require.NoError(t, err)
	return ks
}

func openSearch(t *testing.T, dir string) *knowledge.Store {
	t.Helper()
	ks, err := knowledge.Open(context.Background(), testConfig(dir, store.ModeSearch), nil)
	require.NoError(t, err)
	return ks
}

// obsInput builds a submission that passes the default retrieval filters.
func obsInput(content string) knowledge.ObservationInput {
	return knowledge.ObservationInput{
		Content:     content,
		Kind:        store.KindPattern,
		SourceType:  store.SourceSession,
		SourceID:    "session-1",
		Reliability: 0.9,
	}
}

// seedKnowledge creates a knowledge base in dir containing the given
// contents and closes it, ready for a search-mode open.
func seedKnowledge(t *testing.T, dir string, contents ...string) {
	t.Helper()
	ks := openWrite(t, dir)
	ctx := context.Background()
	for _, content := range contents {
		_, err := ks.SubmitObservation(ctx, obsInput(content))
		require.NoError(t, err)
	}
	require.NoError(t, ks.Close())
}
