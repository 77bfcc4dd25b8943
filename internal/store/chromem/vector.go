// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

// Package chromem provides a pure-Go vector index backend on top of
// chromem-go, for installs where cgo and the sqlite-vec extension are not
// available.
package chromem

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/verdigris-dev/verdigris/internal/store"
	vderr "github.com/verdigris-dev/verdigris/pkg/errors"
)

const (
	// indexDir is the chromem persistence directory under the knowledge
	// base directory.
	indexDir = "index"
	// metaFile sits next to indexDir; chromem collection metadata is not
	// readable back, so model and dimension bookkeeping lives here.
	metaFile = "index.meta.json"

	collectionName = "observations"
)

// Compile-time interface check.
var _ store.VectorIndex = (*VectorIndex)(nil)

// VectorIndex implements store.VectorIndex backed by chromem-go. chromem has
// no read-only open, so access modes are enforced at this boundary: every
// call checks the handle's mode before any document is touched.
type VectorIndex struct {
	db   *chromemgo.DB
	col  *chromemgo.Collection
	mode store.Mode

	metaPath   string
	modelID    string
	dimensions int
}

type indexMeta struct {
	ModelID    string `json:"model_id"`
	Dimensions int    `json:"dimensions"`
}

// noAutoEmbed rejects implicit embedding. Vectors always arrive precomputed.
func noAutoEmbed(_ context.Context, _ string) ([]float32, error) {
	return nil, vderr.New(vderr.CodeInternalFailure, "chromem backend only accepts precomputed embeddings")
}

// NewVectorIndex opens the chromem index under cfg.Dir. The same open-time
// contract as the sqlitevec backend applies: write mode creates a missing
// artifact from cfg, search mode requires one, and recorded model or
// dimension metadata that contradicts cfg fails the open.
func NewVectorIndex(cfg store.VectorConfig) (*VectorIndex, error) {
	if !cfg.Mode.Valid() {
		return nil, vderr.Errorf(vderr.CodeStoreInvalidInput, "invalid index mode %q", cfg.Mode)
	}

	dbDir := filepath.Join(cfg.Dir, indexDir)
	metaPath := filepath.Join(cfg.Dir, metaFile)

	meta, found, err := readMeta(metaPath)
	if err != nil {
		return nil, err
	}

	switch {
	case found:
		if cfg.ModelID != "" && cfg.ModelID != meta.ModelID {
			return nil, vderr.New(vderr.CodeEmbedModelMismatch,
				"index was built with model "+meta.ModelID+", engine uses "+cfg.ModelID+" (run migrate)",
				vderr.FieldModelID(meta.ModelID))
		}
		if cfg.Dimensions != 0 && cfg.Dimensions != meta.Dimensions {
			return nil, vderr.Errorf(vderr.CodeEmbedDimensionMismatch,
				"index stores %d-dimensional vectors, engine produces %d", meta.Dimensions, cfg.Dimensions)
		}

	case cfg.Mode == store.ModeWrite:
		if cfg.ModelID == "" || cfg.Dimensions <= 0 {
			return nil, vderr.New(vderr.CodeStoreInvalidInput, "model id and dimensions are required to create a vector index")
		}
		meta = indexMeta{ModelID: cfg.ModelID, Dimensions: cfg.Dimensions}
		if err := writeMeta(metaPath, meta); err != nil {
			return nil, err
		}

	default:
		return nil, vderr.Errorf(vderr.CodeIndexOpenFailure, "no vector index at %s (build one with rebuild)", cfg.Dir)
	}

	db, err := chromemgo.NewPersistentDB(dbDir, false)
	if err != nil {
		return nil, vderr.Wrapf(err, vderr.CodeIndexOpenFailure, "opening chromem index %s", dbDir)
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, noAutoEmbed)
	if err != nil {
		return nil, vderr.Wrapf(err, vderr.CodeIndexOpenFailure, "opening collection %s", collectionName)
	}

	return &VectorIndex{
		db:         db,
		col:        col,
		mode:       cfg.Mode,
		metaPath:   metaPath,
		modelID:    meta.ModelID,
		dimensions: meta.Dimensions,
	}, nil
}

func readMeta(path string) (indexMeta, bool, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return indexMeta{}, false, nil
	}
	if err != nil {
		return indexMeta{}, false, vderr.Wrapf(err, vderr.CodeIndexOpenFailure, "reading index metadata %s", path)
	}

	var meta indexMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return indexMeta{}, false, vderr.Wrapf(err, vderr.CodeIndexOpenFailure, "parsing index metadata %s", path)
	}
	if meta.ModelID == "" || meta.Dimensions <= 0 {
		return indexMeta{}, false, vderr.Errorf(vderr.CodeIndexOpenFailure, "index metadata %s is incomplete", path)
	}
	return meta, true, nil
}

func writeMeta(path string, meta indexMeta) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexOpenFailure, "creating index directory")
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexOpenFailure, "encoding index metadata")
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexOpenFailure, "writing index metadata %s", path)
	}
	return nil
}

// Add inserts or replaces a vector. Requires a write-mode handle.
func (v *VectorIndex) Add(ctx context.Context, id string, vector []float32) error {
	if v.mode != store.ModeWrite {
		return vderr.New(vderr.CodeIndexReadOnly, "cannot add to an index opened for search", vderr.FieldObservationID(id))
	}
	if len(vector) != v.dimensions {
		return vderr.Errorf(vderr.CodeEmbedDimensionMismatch,
			"vector has %d dimensions, index stores %d", len(vector), v.dimensions)
	}

	doc := chromemgo.Document{ID: id, Content: id, Embedding: vector}
	if err := v.col.AddDocuments(ctx, []chromemgo.Document{doc}, 1); err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexAddFailure, "adding vector %s", id)
	}
	return nil
}

// Search performs a k-nearest-neighbor search. Requires a search-mode
// handle. chromem reports cosine similarity; matches carry cosine distance
// (1 - similarity) so both backends speak the same unit.
func (v *VectorIndex) Search(ctx context.Context, query []float32, k int) ([]store.VectorMatch, error) {
	if v.mode != store.ModeSearch {
		return nil, vderr.New(vderr.CodeIndexWriteOnly, "cannot search an index opened for writing")
	}
	if len(query) != v.dimensions {
		return nil, vderr.Errorf(vderr.CodeEmbedDimensionMismatch,
			"query has %d dimensions, index stores %d", len(query), v.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}

	// chromem rejects nResults above the stored document count.
	if total := v.col.Count(); k > total {
		k = total
	}
	if k == 0 {
		return nil, nil
	}

	results, err := v.col.QueryEmbedding(ctx, query, k, nil, nil)
	if err != nil {
		return nil, vderr.Wrapf(err, vderr.CodeIndexSearchFailure, "searching vectors")
	}

	matches := make([]store.VectorMatch, 0, len(results))
	for _, r := range results {
		matches = append(matches, store.VectorMatch{ID: r.ID, Distance: 1.0 - r.Similarity})
	}
	return matches, nil
}

// Rebuild replaces the index contents entirely with the given entries,
// recording the model and dimension count they were produced with. Requires
// a write-mode handle.
func (v *VectorIndex) Rebuild(ctx context.Context, modelID string, dimensions int, entries []store.VectorEntry) error {
	if v.mode != store.ModeWrite {
		return vderr.New(vderr.CodeIndexReadOnly, "cannot rebuild an index opened for search")
	}
	if modelID == "" || dimensions <= 0 {
		return vderr.New(vderr.CodeStoreInvalidInput, "model id and dimensions are required to rebuild")
	}
	for _, e := range entries {
		if len(e.Vector) != dimensions {
			return vderr.Errorf(vderr.CodeEmbedDimensionMismatch,
				"vector %s has %d dimensions, rebuild expects %d", e.ID, len(e.Vector), dimensions)
		}
	}

	if err := v.db.DeleteCollection(collectionName); err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexRebuildFailure, "dropping collection")
	}

	col, err := v.db.GetOrCreateCollection(collectionName, nil, noAutoEmbed)
	if err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexRebuildFailure, "recreating collection")
	}
	v.col = col

	if len(entries) > 0 {
		docs := make([]chromemgo.Document, 0, len(entries))
		for _, e := range entries {
			docs = append(docs, chromemgo.Document{ID: e.ID, Content: e.ID, Embedding: e.Vector})
		}
		if err := v.col.AddDocuments(ctx, docs, 1); err != nil {
			return vderr.Wrapf(err, vderr.CodeIndexRebuildFailure, "adding rebuilt vectors")
		}
	}

	meta := indexMeta{ModelID: modelID, Dimensions: dimensions}
	if err := writeMeta(v.metaPath, meta); err != nil {
		return err
	}
	v.modelID = modelID
	v.dimensions = dimensions
	return nil
}

// Delete removes vectors by id. Unknown ids are ignored. Requires a
// write-mode handle.
func (v *VectorIndex) Delete(ctx context.Context, ids []string) error {
	if v.mode != store.ModeWrite {
		return vderr.New(vderr.CodeIndexReadOnly, "cannot delete from an index opened for search")
	}
	if len(ids) == 0 {
		return nil
	}

	if err := v.col.Delete(ctx, nil, nil, ids...); err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexDeleteFailure, "deleting vectors")
	}
	return nil
}

// Count returns the number of stored vectors.
func (v *VectorIndex) Count(_ context.Context) (int, error) {
	return v.col.Count(), nil
}

// Dimensions returns the dimension count the index stores.
func (v *VectorIndex) Dimensions() int { return v.dimensions }

// ModelID returns the embedding model the index was built with.
func (v *VectorIndex) ModelID() string { return v.modelID }

// Mode returns the access mode the handle was opened with.
func (v *VectorIndex) Mode() store.Mode { return v.mode }

// Close releases the handle. chromem persists on every mutation, so there
// is nothing to flush.
func (v *VectorIndex) Close() error {
	v.col = nil
	v.db = nil
	return nil
}
