// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package chromem_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdigris-dev/verdigris/internal/store"
	"github.com/verdigris-dev/verdigris/internal/store/chromem"
	vderr "github.com/verdigris-dev/verdigris/pkg/errors"
)

func testDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "verdigris-chromem-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func writeConfig(dir string) store.VectorConfig {
	return store.VectorConfig{
		Backend:    "chromem",
		Dir:        dir,
		ModelID:    "test-model",
		Dimensions: 3,
		Mode:       store.ModeWrite,
	}
}

func searchConfig(dir string) store.VectorConfig {
	cfg := writeConfig(dir)
	cfg.Mode = store.ModeSearch
	return cfg
}

func TestVectorIndex_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	dir := testDir(t)

	idx, err := chromem.NewVectorIndex(writeConfig(dir))
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, "v1", []float32{1.0, 0.0, 0.0}))
	require.NoError(t, idx.Add(ctx, "v2", []float32{0.0, 1.0, 0.0}))
	require.NoError(t, idx.Add(ctx, "v3", []float32{0.9, 0.1, 0.0}))
	require.NoError(t, idx.Close())

	search, err := chromem.NewVectorIndex(searchConfig(dir))
	require.NoError(t, err)
	defer func() { _ = search.Close() }()

	matches, err := search.Search(ctx, []float32{1.0, 0.0, 0.0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "v1", matches[0].ID)
	assert.InDelta(t, 0.0, matches[0].Distance, 1e-5)
	assert.Equal(t, "v3", matches[1].ID)
}

func TestVectorIndex_ModeEnforcement(t *testing.T) {
	ctx := context.Background()
	dir := testDir(t)

	idx, err := chromem.NewVectorIndex(writeConfig(dir))
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, "v1", []float32{1.0, 0.0, 0.0}))

	_, err = idx.Search(ctx, []float32{1.0, 0.0, 0.0}, 1)
	require.Error(t, err)
	assert.Equal(t, vderr.CodeIndexWriteOnly, vderr.CodeOf(err))
	require.NoError(t, idx.Close())

	search, err := chromem.NewVectorIndex(searchConfig(dir))
	require.NoError(t, err)
	defer func() { _ = search.Close() }()

	err = search.Add(ctx, "v2", []float32{0.0, 1.0, 0.0})
	require.Error(t, err)
	assert.Equal(t, vderr.CodeIndexReadOnly, vderr.CodeOf(err))

	n, err := search.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVectorIndex_SearchCapsAtCount(t *testing.T) {
	ctx := context.Background()
	dir := testDir(t)

	idx, err := chromem.NewVectorIndex(writeConfig(dir))
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, "v1", []float32{1.0, 0.0, 0.0}))
	require.NoError(t, idx.Close())

	search, err := chromem.NewVectorIndex(searchConfig(dir))
	require.NoError(t, err)
	defer func() { _ = search.Close() }()

	matches, err := search.Search(ctx, []float32{1.0, 0.0, 0.0}, 25)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestVectorIndex_SearchEmptyIndex(t *testing.T) {
	ctx := context.Background()
	dir := testDir(t)

	idx, err := chromem.NewVectorIndex(writeConfig(dir))
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	search, err := chromem.NewVectorIndex(searchConfig(dir))
	require.NoError(t, err)
	defer func() { _ = search.Close() }()

	matches, err := search.Search(ctx, []float32{1.0, 0.0, 0.0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestVectorIndex_Rebuild(t *testing.T) {
	ctx := context.Background()
	dir := testDir(t)

	idx, err := chromem.NewVectorIndex(writeConfig(dir))
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(ctx, "old", []float32{1.0, 0.0, 0.0}))

	entries := []store.VectorEntry{
		{ID: "new1", Vector: []float32{0.0, 1.0, 0.0, 0.0}},
		{ID: "new2", Vector: []float32{0.0, 0.0, 1.0, 0.0}},
	}
	require.NoError(t, idx.Rebuild(ctx, "wider-model", 4, entries))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "wider-model", idx.ModelID())
	assert.Equal(t, 4, idx.Dimensions())
}

func TestVectorIndex_OpenSearchWithoutArtifact(t *testing.T) {
	dir := testDir(t)

	_, err := chromem.NewVectorIndex(searchConfig(dir))
	require.Error(t, err)
	assert.Equal(t, vderr.CodeIndexOpenFailure, vderr.CodeOf(err))
}

func TestVectorIndex_OpenModelMismatch(t *testing.T) {
	dir := testDir(t)

	idx, err := chromem.NewVectorIndex(writeConfig(dir))
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	cfg := searchConfig(dir)
	cfg.ModelID = "other-model"
	_, err = chromem.NewVectorIndex(cfg)
	require.Error(t, err)
	assert.Equal(t, vderr.CodeEmbedModelMismatch, vderr.CodeOf(err))
}

func TestVectorIndex_DeleteByID(t *testing.T) {
	ctx := context.Background()
	dir := testDir(t)

	idx, err := chromem.NewVectorIndex(writeConfig(dir))
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(ctx, "v1", []float32{1.0, 0.0, 0.0}))
	require.NoError(t, idx.Add(ctx, "v2", []float32{0.0, 1.0, 0.0}))

	require.NoError(t, idx.Delete(ctx, []string{"v1"}))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, idx.Delete(ctx, nil))
}
