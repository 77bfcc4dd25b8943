// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package knowledge_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdigris-dev/verdigris/internal/embeddings"
	"github.com/verdigris-dev/verdigris/internal/knowledge"
	"github.com/verdigris-dev/verdigris/internal/store"
	vderr "github.com/verdigris-dev/verdigris/pkg/errors"
)

func TestStore_SubmitAndRetrieve(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ks := openWrite(t, dir)
	res, err := ks.SubmitObservation(ctx, obsInput("sqlite busy timeout avoids writer starvation"))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.True(t, res.Indexed)
	assert.NotEmpty(t, res.ID)
	require.NoError(t, ks.Close())

	ks = openSearch(t, dir)
	defer func() { _ = ks.Close() }()

	results, err := ks.Search(ctx, "sqlite busy timeout", ks.DefaultSearchOptions())
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, res.ID, results[0].ID)
	assert.Equal(t, "sqlite busy timeout avoids writer starvation", results[0].Content)
	assert.Greater(t, results[0].Similarity, 0.5)
}

func TestStore_DuplicateSubmission(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ks := openWrite(t, dir)
	defer func() { _ = ks.Close() }()

	first, err := ks.SubmitObservation(ctx, obsInput("Use prepared statements for hot paths"))
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	// Same statement, reformatted, from the same source.
	second, err := ks.SubmitObservation(ctx, obsInput("  use PREPARED statements\tfor hot paths "))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.False(t, second.Indexed)
	assert.Equal(t, first.ID, second.ID)

	status, err := ks.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Observations)
	assert.Equal(t, 1, status.IndexedVectors)
}

func TestStore_SubmitRequiresWriteMode(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	seedKnowledge(t, dir, "existing content")

	ks := openSearch(t, dir)
	defer func() { _ = ks.Close() }()

	_, err := ks.SubmitObservation(ctx, obsInput("new content"))
	require.Error(t, err)
	assert.Equal(t, vderr.CodeIndexReadOnly, vderr.CodeOf(err))
	assert.True(t, vderr.IsIndexModeError(err))

	// The record store must be untouched as well.
	status, err := ks.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Observations)
}

func TestStore_IndexFailureKeepsRecord(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// An engine that opens fine but fails every embed.
	broken := &fakeEngine{
		modelID:  testModel,
		dims:     testModelDims[testModel],
		embedErr: vderr.New(vderr.CodeEmbedModelUnavailable, "onnx session lost"),
	}
	cfg := testConfig(dir, store.ModeWrite)
	cfg.NewEngine = func(string) (embeddings.Engine, error) { return broken, nil }

	ks, err := knowledge.Open(ctx, cfg, nil)
	require.NoError(t, err)

	res, err := ks.SubmitObservation(ctx, obsInput("record survives index failure"))
	require.Error(t, err)
	assert.True(t, vderr.IsEmbeddingError(err))
	require.NotNil(t, res)
	assert.NotEmpty(t, res.ID)
	assert.False(t, res.Indexed)

	status, err := ks.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Observations)
	assert.Equal(t, 0, status.IndexedVectors)
	require.NoError(t, ks.Close())

	// Rebuild with a healthy engine recovers the index from the records.
	ks = openWrite(t, dir)
	count, err := ks.RebuildIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.NoError(t, ks.Close())

	ks = openSearch(t, dir)
	defer func() { _ = ks.Close() }()
	results, err := ks.Search(ctx, "record survives index failure", ks.DefaultSearchOptions())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, res.ID, results[0].ID)
}

func TestStore_SubmitBatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ks := openWrite(t, dir)
	defer func() { _ = ks.Close() }()

	inputs := []knowledge.ObservationInput{
		obsInput("first statement"),
		obsInput("first statement"), // duplicate of the one above
		obsInput(""),                // invalid, must not abort the batch
		obsInput("second statement"),
	}

	outcomes, err := ks.SubmitBatch(ctx, inputs)
	require.NoError(t, err)
	require.Len(t, outcomes, 4)

	assert.NoError(t, outcomes[0].Err)
	assert.True(t, outcomes[0].Indexed)

	assert.NoError(t, outcomes[1].Err)
	assert.True(t, outcomes[1].Duplicate)
	assert.Equal(t, outcomes[0].ID, outcomes[1].ID)

	assert.Error(t, outcomes[2].Err)
	assert.True(t, vderr.IsInvalidInput(outcomes[2].Err))
	assert.Empty(t, outcomes[2].ID)

	assert.NoError(t, outcomes[3].Err)
	assert.True(t, outcomes[3].Indexed)

	status, err := ks.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Observations)
	assert.Equal(t, 2, status.IndexedVectors)
}

func TestStore_RebuildFromRecords(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	seedKnowledge(t, dir,
		"vector indexes trade recall for speed",
		"cosine distance suits normalized embeddings",
		"rebuilds are idempotent")

	// Lose the index artifact entirely; the records are authoritative.
	require.NoError(t, os.Remove(filepath.Join(dir, "vectors.db")))

	ks := openWrite(t, dir)
	count, err := ks.RebuildIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Rebuilding again changes nothing.
	count, err = ks.RebuildIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	status, err := ks.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Observations)
	assert.Equal(t, 3, status.IndexedVectors)
	require.NoError(t, ks.Close())

	ks = openSearch(t, dir)
	defer func() { _ = ks.Close() }()
	results, err := ks.Search(ctx, "idempotent rebuilds", ks.DefaultSearchOptions())
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestStore_RebuildEmptyStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ks := openWrite(t, dir)
	count, err := ks.RebuildIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	require.NoError(t, ks.Close())

	ks = openSearch(t, dir)
	defer func() { _ = ks.Close() }()
	results, err := ks.Search(ctx, "anything at all", ks.DefaultSearchOptions())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_MigrateModel(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	seedKnowledge(t, dir, "observation one", "observation two")

	ks := openWrite(t, dir)
	count, err := ks.MigrateModel(ctx, testWideModel)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	status, err := ks.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, testWideModel, status.ModelID)
	assert.Equal(t, testModelDims[testWideModel], status.Dimensions)
	assert.Equal(t, 2, status.IndexedVectors)
	require.NoError(t, ks.Close())

	// The old model id no longer opens this base.
	_, err = knowledge.Open(ctx, testConfig(dir, store.ModeSearch), nil)
	require.Error(t, err)
	assert.Equal(t, vderr.CodeEmbedModelMismatch, vderr.CodeOf(err))

	cfg := testConfig(dir, store.ModeSearch)
	cfg.ModelID = testWideModel
	ks, err = knowledge.Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer func() { _ = ks.Close() }()

	results, err := ks.Search(ctx, "observation one", ks.DefaultSearchOptions())
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestStore_MigrateUnknownModel(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	seedKnowledge(t, dir, "some observation")

	ks := openWrite(t, dir)
	defer func() { _ = ks.Close() }()

	_, err := ks.MigrateModel(ctx, "imaginary-model")
	require.Error(t, err)
	assert.Equal(t, vderr.CodeEmbedModelUnknown, vderr.CodeOf(err))

	// Nothing changed.
	status, err := ks.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, testModel, status.ModelID)
	assert.Equal(t, 1, status.IndexedVectors)
}

func TestStore_PruneSourceType(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ks := openWrite(t, dir)

	_, err := ks.SubmitObservation(ctx, obsInput("kept session observation"))
	require.NoError(t, err)

	commitObs := obsInput("commit message derived noise")
	commitObs.SourceType = store.SourceCommit
	commitObs.SourceID = "commit-deadbeef"
	_, err = ks.SubmitObservation(ctx, commitObs)
	require.NoError(t, err)

	removed, err := ks.PruneSourceType(ctx, store.SourceCommit)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	status, err := ks.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Observations)
	assert.Equal(t, 1, status.IndexedVectors)

	// Pruning an absent class removes nothing.
	removed, err = ks.PruneSourceType(ctx, store.SourceDistillation)
	require.NoError(t, err)
	assert.Zero(t, removed)
	require.NoError(t, ks.Close())

	ks = openSearch(t, dir)
	defer func() { _ = ks.Close() }()
	opts := ks.DefaultSearchOptions()
	opts.AllowedSourceTypes = nil // allow every class
	results, err := ks.Search(ctx, "commit message derived noise", opts)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, store.SourceCommit, r.SourceType)
	}
}

func TestStore_SubmitBelief(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ks := openWrite(t, dir)

	res, err := ks.SubmitBelief(ctx, obsInput("our cache layer is redundant"), store.PolarityAffirmed)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.False(t, res.Indexed)

	dup, err := ks.SubmitBelief(ctx, obsInput("our cache layer is redundant"), store.PolarityAffirmed)
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)
	assert.Equal(t, res.ID, dup.ID)

	status, err := ks.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Beliefs)
	assert.Equal(t, 0, status.Observations)
	assert.Equal(t, 0, status.IndexedVectors)
	require.NoError(t, ks.Close())

	// Beliefs are not retrievable.
	ks = openSearch(t, dir)
	defer func() { _ = ks.Close() }()
	results, err := ks.Search(ctx, "our cache layer is redundant", ks.DefaultSearchOptions())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_MetadataEdits(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ks := openWrite(t, dir)
	defer func() { _ = ks.Close() }()

	res, err := ks.SubmitObservation(ctx, obsInput("editable metadata"))
	require.NoError(t, err)

	require.NoError(t, ks.SetReliability(ctx, res.ID, 0.4))
	require.NoError(t, ks.SetDomains(ctx, res.ID, []string{"storage"}))

	obs, err := ks.GetObservation(ctx, res.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, obs.Reliability, 1e-9)
	assert.Equal(t, []string{"storage"}, obs.Domains)

	err = ks.SetReliability(ctx, "missing", 0.5)
	require.Error(t, err)
	assert.True(t, vderr.IsNotFound(err))
}

func TestStore_StatusByKind(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ks := openWrite(t, dir)
	defer func() { _ = ks.Close() }()

	pattern := obsInput("a pattern")
	decision := obsInput("a decision")
	decision.Kind = store.KindDecision

	_, err := ks.SubmitObservation(ctx, pattern)
	require.NoError(t, err)
	_, err = ks.SubmitObservation(ctx, decision)
	require.NoError(t, err)

	status, err := ks.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.ByKind[store.KindPattern])
	assert.Equal(t, 1, status.ByKind[store.KindDecision])
	assert.Equal(t, "sqlitevec", status.Backend)
	assert.Equal(t, store.ModeWrite, status.Mode)
}

func TestStore_OpenSearchWithoutBase(t *testing.T) {
	dir := t.TempDir()

	_, err := knowledge.Open(context.Background(), testConfig(dir, store.ModeSearch), nil)
	require.Error(t, err)
	assert.Equal(t, vderr.CodeIndexOpenFailure, vderr.CodeOf(err))
}

func TestStore_OpenModelMismatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	seedKnowledge(t, dir, "built with the default test model")

	cfg := testConfig(dir, store.ModeWrite)
	cfg.ModelID = testWideModel
	_, err := knowledge.Open(ctx, cfg, nil)
	require.Error(t, err)
	assert.Equal(t, vderr.CodeEmbedModelMismatch, vderr.CodeOf(err))
	assert.Contains(t, err.Error(), "migrate")
}

func TestStore_ChromemBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := testConfig(dir, store.ModeWrite)
	cfg.Backend = "chromem"
	ks, err := knowledge.Open(ctx, cfg, nil)
	require.NoError(t, err)

	_, err = ks.SubmitObservation(ctx, obsInput("chromem holds vectors in pure go"))
	require.NoError(t, err)

	status, err := ks.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "chromem", status.Backend)
	assert.Equal(t, 1, status.IndexedVectors)
	require.NoError(t, ks.Close())

	searchCfg := testConfig(dir, store.ModeSearch)
	searchCfg.Backend = "chromem"
	ks, err = knowledge.Open(ctx, searchCfg, nil)
	require.NoError(t, err)
	defer func() { _ = ks.Close() }()

	results, err := ks.Search(ctx, "chromem pure go vectors", ks.DefaultSearchOptions())
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "chromem holds vectors in pure go", results[0].Content)
}
