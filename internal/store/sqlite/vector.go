// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/verdigris-dev/verdigris/internal/store"
	vderr "github.com/verdigris-dev/verdigris/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// vectorArtifact is the index file name under the knowledge base directory.
const vectorArtifact = "vectors.db"

// Compile-time interface check.
var _ store.VectorIndex = (*VectorIndex)(nil)

// VectorIndex implements store.VectorIndex backed by SQLite with sqlite-vec.
// Every handle is bound to a single access mode at open time: a search
// handle rejects mutation, a write handle rejects search, and both checks
// run before any statement reaches the database.
type VectorIndex struct {
	db         *sql.DB
	mode       store.Mode
	modelID    string
	dimensions int
}

// NewVectorIndex opens the index artifact under cfg.Dir. In write mode a
// missing artifact is created with cfg.ModelID and cfg.Dimensions; in search
// mode a missing or uninitialised artifact is an open failure. When the
// artifact already carries model metadata, a differing cfg.ModelID or
// cfg.Dimensions fails the open rather than silently mixing vector spaces.
func NewVectorIndex(cfg store.VectorConfig) (*VectorIndex, error) {
	if !cfg.Mode.Valid() {
		return nil, vderr.Errorf(vderr.CodeStoreInvalidInput, "invalid index mode %q", cfg.Mode)
	}

	dbPath := filepath.Join(cfg.Dir, vectorArtifact)

	var dsn string
	switch cfg.Mode {
	case store.ModeSearch:
		if _, err := os.Stat(dbPath); err != nil {
			return nil, vderr.Errorf(vderr.CodeIndexOpenFailure, "no vector index at %s (build one with rebuild)", dbPath)
		}
		dsn = "file:" + dbPath + "?mode=ro&_busy_timeout=5000"
	case store.ModeWrite:
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, vderr.Wrapf(err, vderr.CodeIndexOpenFailure, "opening vector index %s", dbPath)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, vderr.Wrapf(err, vderr.CodeIndexOpenFailure, "pinging vector index %s", dbPath)
	}

	idx := &VectorIndex{db: db, mode: cfg.Mode}

	modelID, dimensions, found, err := readIndexMeta(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	switch {
	case found:
		if cfg.ModelID != "" && cfg.ModelID != modelID {
			_ = db.Close()
			return nil, vderr.New(vderr.CodeEmbedModelMismatch,
				fmt.Sprintf("index was built with model %s, engine uses %s (run migrate)", modelID, cfg.ModelID),
				vderr.FieldModelID(modelID))
		}
		if cfg.Dimensions != 0 && cfg.Dimensions != dimensions {
			_ = db.Close()
			return nil, vderr.Errorf(vderr.CodeEmbedDimensionMismatch,
				"index stores %d-dimensional vectors, engine produces %d", dimensions, cfg.Dimensions)
		}
		idx.modelID = modelID
		idx.dimensions = dimensions

	case cfg.Mode == store.ModeWrite:
		if cfg.ModelID == "" || cfg.Dimensions <= 0 {
			_ = db.Close()
			return nil, vderr.New(vderr.CodeStoreInvalidInput, "model id and dimensions are required to create a vector index")
		}
		if err := migrateVectorIndex(db, cfg.ModelID, cfg.Dimensions); err != nil {
			_ = db.Close()
			return nil, err
		}
		idx.modelID = cfg.ModelID
		idx.dimensions = cfg.Dimensions

	default:
		_ = db.Close()
		return nil, vderr.Errorf(vderr.CodeIndexOpenFailure, "vector index at %s is uninitialised (build one with rebuild)", dbPath)
	}

	return idx, nil
}

// readIndexMeta loads the model id and dimension count recorded in the
// artifact, reporting found=false for a fresh database.
func readIndexMeta(db *sql.DB) (string, int, bool, error) {
	var exists int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'index_meta'`).Scan(&exists)
	if err != nil {
		return "", 0, false, vderr.Wrapf(err, vderr.CodeIndexOpenFailure, "inspecting index schema")
	}
	if exists == 0 {
		return "", 0, false, nil
	}

	var modelID, dims string
	if err := db.QueryRow(`SELECT value FROM index_meta WHERE key = 'model_id'`).Scan(&modelID); err != nil {
		return "", 0, false, vderr.Wrapf(err, vderr.CodeIndexOpenFailure, "loading index model id")
	}
	if err := db.QueryRow(`SELECT value FROM index_meta WHERE key = 'dimensions'`).Scan(&dims); err != nil {
		return "", 0, false, vderr.Wrapf(err, vderr.CodeIndexOpenFailure, "loading index dimensions")
	}

	dimensions, err := strconv.Atoi(dims)
	if err != nil || dimensions <= 0 {
		return "", 0, false, vderr.Errorf(vderr.CodeIndexOpenFailure, "index records invalid dimension count %q", dims)
	}
	return modelID, dimensions, true, nil
}

func migrateVectorIndex(db *sql.DB, modelID string, dimensions int) error {
	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vectors USING vec0(id TEXT PRIMARY KEY, embedding float[%d] distance_metric=cosine)`,
		dimensions,
	)
	if _, err := db.Exec(vecDDL); err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexOpenFailure, "creating vectors virtual table")
	}

	const metaDDL = `
CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`
	if _, err := db.Exec(metaDDL); err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexOpenFailure, "creating index_meta table")
	}

	return writeIndexMeta(db, modelID, dimensions)
}

func writeIndexMeta(db *sql.DB, modelID string, dimensions int) error {
	const q = `INSERT INTO index_meta (key, value) VALUES (?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value`
	if _, err := db.Exec(q, "model_id", modelID); err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexOpenFailure, "recording index model id")
	}
	if _, err := db.Exec(q, "dimensions", strconv.Itoa(dimensions)); err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexOpenFailure, "recording index dimensions")
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

	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexAddFailure, "serializing vector %s", id)
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexAddFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	// vec0 does not support ON CONFLICT; delete first for upsert.
	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, id); err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexAddFailure, "deleting existing vector %s", id)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO vectors(id, embedding) VALUES (?, ?)`, id, blob); err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexAddFailure, "inserting vector %s", id)
	}

	if err := tx.Commit(); err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexAddFailure, "committing vector add")
	}
	return nil
}

// Search performs a k-nearest-neighbor search. Requires a search-mode
// handle. Matches are ordered by ascending cosine distance; 0.0 is an exact
// match. k values above the index size return every stored vector.
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

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, vderr.Wrapf(err, vderr.CodeIndexSearchFailure, "serializing query vector")
	}

	const q = `SELECT id, distance FROM vectors WHERE embedding MATCH ? AND k = ? ORDER BY distance`

	rows, err := v.db.QueryContext(ctx, q, blob, k)
	if err != nil {
		return nil, vderr.Wrapf(err, vderr.CodeIndexSearchFailure, "searching vectors")
	}
	defer func() { _ = rows.Close() }()

	var matches []store.VectorMatch
	for rows.Next() {
		var m store.VectorMatch
		if err := rows.Scan(&m.ID, &m.Distance); err != nil {
			return nil, vderr.Wrapf(err, vderr.CodeIndexSearchFailure, "scanning vector match")
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, vderr.Wrapf(err, vderr.CodeIndexSearchFailure, "iterating vector matches")
	}

	return matches, nil
}

// Rebuild replaces the index contents entirely with the given entries,
// recording the model and dimension count they were produced with. The old
// vectors are dropped first, so rebuilding is idempotent and is also the
// recovery path when the artifact is corrupt or stale. Requires a
// write-mode handle.
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

	// Virtual table DDL cannot run inside a transaction, so a crash mid-way
	// leaves a partial index. Rebuild is rerunnable, which is the recovery.
	if _, err := v.db.ExecContext(ctx, `DROP TABLE IF EXISTS vectors`); err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexRebuildFailure, "dropping vectors table")
	}
	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE vectors USING vec0(id TEXT PRIMARY KEY, embedding float[%d] distance_metric=cosine)`,
		dimensions,
	)
	if _, err := v.db.ExecContext(ctx, vecDDL); err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexRebuildFailure, "recreating vectors table")
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexRebuildFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO vectors(id, embedding) VALUES (?, ?)`)
	if err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexRebuildFailure, "preparing vector insert")
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		blob, err := sqlite_vec.SerializeFloat32(e.Vector)
		if err != nil {
			return vderr.Wrapf(err, vderr.CodeIndexRebuildFailure, "serializing vector %s", e.ID)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, blob); err != nil {
			return vderr.Wrapf(err, vderr.CodeIndexRebuildFailure, "inserting vector %s", e.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexRebuildFailure, "committing rebuild")
	}

	if err := writeIndexMeta(v.db, modelID, dimensions); err != nil {
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

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := v.db.ExecContext(ctx, `DELETE FROM vectors WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return vderr.Wrapf(err, vderr.CodeIndexDeleteFailure, "deleting vectors")
	}
	return nil
}

// Count returns the number of stored vectors.
func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := v.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&n); err != nil {
		return 0, vderr.Wrapf(err, vderr.CodeIndexSearchFailure, "counting vectors")
	}
	return n, nil
}

// Dimensions returns the dimension count the index stores.
func (v *VectorIndex) Dimensions() int { return v.dimensions }

// ModelID returns the embedding model the index was built with.
func (v *VectorIndex) ModelID() string { return v.modelID }

// Mode returns the access mode the handle was opened with.
func (v *VectorIndex) Mode() store.Mode { return v.mode }

// Close closes the underlying database connection.
func (v *VectorIndex) Close() error {
	return v.db.Close()
}
