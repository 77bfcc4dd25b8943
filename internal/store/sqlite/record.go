// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/verdigris-dev/verdigris/internal/store"
	vderr "github.com/verdigris-dev/verdigris/pkg/errors"
)

// Compile-time interface check.
var _ store.RecordStore = (*RecordStore)(nil)

// RecordStore implements store.RecordStore backed by SQLite. It is the
// authoritative side of a knowledge base: the vector index can always be
// rebuilt from it, never the other way round.
type RecordStore struct {
	db *sql.DB
}

// NewRecordStore opens (or creates) a SQLite database at dbPath and runs
// schema migration.
func NewRecordStore(dbPath string) (*RecordStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, vderr.Wrapf(err, vderr.CodeStoreOpenFailure, "opening record db %s", dbPath)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, vderr.Wrapf(err, vderr.CodeStoreOpenFailure, "pinging record db %s", dbPath)
	}

	if err := migrateRecords(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &RecordStore{db: db}, nil
}

func migrateRecords(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS observations (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	content      TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	source_type  TEXT NOT NULL,
	source_id    TEXT NOT NULL,
	reliability  REAL NOT NULL CHECK (reliability >= 0.0 AND reliability <= 1.0),
	domains      TEXT NOT NULL DEFAULT '[]',
	created_at   TEXT NOT NULL,
	UNIQUE (content_hash, source_id)
);

CREATE INDEX IF NOT EXISTS idx_observations_source_type ON observations(source_type);
CREATE INDEX IF NOT EXISTS idx_observations_kind ON observations(kind);

CREATE TABLE IF NOT EXISTS beliefs (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	content      TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	source_type  TEXT NOT NULL,
	source_id    TEXT NOT NULL,
	reliability  REAL NOT NULL CHECK (reliability >= 0.0 AND reliability <= 1.0),
	domains      TEXT NOT NULL DEFAULT '[]',
	polarity     TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	UNIQUE (content_hash, source_id)
);

CREATE TABLE IF NOT EXISTS engine_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
	if _, err := db.Exec(ddl); err != nil {
		return vderr.Wrapf(err, vderr.CodeStoreOpenFailure, "migrating record tables")
	}
	return nil
}

// InsertObservation stores an observation, enforcing the
// (content_hash, source_id) uniqueness invariant. A duplicate insert returns
// the existing row's id with existed=true and leaves the table unchanged.
func (r *RecordStore) InsertObservation(ctx context.Context, obs *store.Observation) (string, bool, error) {
	if err := obs.Validate(); err != nil {
		return "", false, err
	}
	hash := store.HashContent(obs.Content)
	obs.ContentHash = hash

	domains, err := marshalDomains(obs.Domains)
	if err != nil {
		return "", false, err
	}

	const q = `INSERT INTO observations (id, kind, content, content_hash, source_type, source_id, reliability, domains, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (content_hash, source_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, q,
		obs.ID, string(obs.Kind), obs.Content, hash,
		string(obs.SourceType), obs.SourceID, obs.Reliability,
		domains, formatTime(obs.CreatedAt),
	)
	if err != nil {
		return "", false, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "inserting observation")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return "", false, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "reading insert outcome")
	}
	if affected > 0 {
		return obs.ID, false, nil
	}

	// Conflict: the same content from the same source already exists.
	var existing string
	err = r.db.QueryRowContext(ctx,
		`SELECT id FROM observations WHERE content_hash = ? AND source_id = ?`,
		hash, obs.SourceID,
	).Scan(&existing)
	if err != nil {
		return "", false, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "resolving duplicate observation")
	}
	return existing, true, nil
}

const observationColumns = `id, kind, content, content_hash, source_type, source_id, reliability, domains, created_at`

// GetObservation returns a single observation by id.
func (r *RecordStore) GetObservation(ctx context.Context, id string) (*store.Observation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+observationColumns+` FROM observations WHERE id = ?`, id)

	obs, err := scanObservation(row)
	if err == sql.ErrNoRows {
		return nil, vderr.New(vderr.CodeStoreObservationNotFound, "observation not found", vderr.FieldObservationID(id))
	}
	if err != nil {
		return nil, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "loading observation %s", id)
	}
	return obs, nil
}

// GetObservations returns the observations matching ids. Ids with no
// matching row are skipped rather than erroring; callers that need strict
// presence use GetObservation.
func (r *RecordStore) GetObservations(ctx context.Context, ids []string) ([]*store.Observation, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+observationColumns+` FROM observations WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "loading observations")
	}
	defer func() { _ = rows.Close() }()

	return collectObservations(rows)
}

// AllObservations returns every stored observation in insertion order. This
// is the input to the rebuild-from-store path.
func (r *RecordStore) AllObservations(ctx context.Context) ([]*store.Observation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+observationColumns+` FROM observations ORDER BY created_at, id`)
	if err != nil {
		return nil, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "loading all observations")
	}
	defer func() { _ = rows.Close() }()

	return collectObservations(rows)
}

// CountObservations returns the number of stored observations.
func (r *RecordStore) CountObservations(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM observations`).Scan(&n); err != nil {
		return 0, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "counting observations")
	}
	return n, nil
}

// CountByKind returns observation counts grouped by kind.
func (r *RecordStore) CountByKind(ctx context.Context) (map[store.Kind]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM observations GROUP BY kind`)
	if err != nil {
		return nil, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "counting observations by kind")
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[store.Kind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "scanning kind count")
		}
		counts[store.Kind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "iterating kind counts")
	}
	return counts, nil
}

// InsertBelief stores a belief under the same uniqueness invariant as
// observations. Beliefs live in their own table and never enter the
// retrieval fact set.
func (r *RecordStore) InsertBelief(ctx context.Context, belief *store.Belief) (string, bool, error) {
	if err := belief.Validate(); err != nil {
		return "", false, err
	}
	hash := store.HashContent(belief.Content)
	belief.ContentHash = hash

	domains, err := marshalDomains(belief.Domains)
	if err != nil {
		return "", false, err
	}

	const q = `INSERT INTO beliefs (id, kind, content, content_hash, source_type, source_id, reliability, domains, polarity, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (content_hash, source_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, q,
		belief.ID, string(belief.Kind), belief.Content, hash,
		string(belief.SourceType), belief.SourceID, belief.Reliability,
		domains, string(belief.Polarity), formatTime(belief.CreatedAt),
	)
	if err != nil {
		return "", false, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "inserting belief")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return "", false, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "reading insert outcome")
	}
	if affected > 0 {
		return belief.ID, false, nil
	}

	var existing string
	err = r.db.QueryRowContext(ctx,
		`SELECT id FROM beliefs WHERE content_hash = ? AND source_id = ?`,
		hash, belief.SourceID,
	).Scan(&existing)
	if err != nil {
		return "", false, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "resolving duplicate belief")
	}
	return existing, true, nil
}

// CountBeliefs returns the number of stored beliefs.
func (r *RecordStore) CountBeliefs(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM beliefs`).Scan(&n); err != nil {
		return 0, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "counting beliefs")
	}
	return n, nil
}

// UpdateReliability edits the trust weight of a stored observation. Content
// is untouched, so the vector index stays valid.
func (r *RecordStore) UpdateReliability(ctx context.Context, id string, reliability float64) error {
	if reliability < 0.0 || reliability > 1.0 {
		return vderr.Errorf(vderr.CodeStoreInvalidInput, "reliability must be in [0,1], got %g", reliability)
	}

	res, err := r.db.ExecContext(ctx, `UPDATE observations SET reliability = ? WHERE id = ?`, reliability, id)
	if err != nil {
		return vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "updating reliability for %s", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "reading update outcome")
	}
	if affected == 0 {
		return vderr.New(vderr.CodeStoreObservationNotFound, "observation not found", vderr.FieldObservationID(id))
	}
	return nil
}

// UpdateDomains replaces the domain tags of a stored observation.
func (r *RecordStore) UpdateDomains(ctx context.Context, id string, domains []string) error {
	blob, err := marshalDomains(domains)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `UPDATE observations SET domains = ? WHERE id = ?`, blob, id)
	if err != nil {
		return vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "updating domains for %s", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "reading update outcome")
	}
	if affected == 0 {
		return vderr.New(vderr.CodeStoreObservationNotFound, "observation not found", vderr.FieldObservationID(id))
	}
	return nil
}

// DeleteBySourceType removes every observation of the given provenance class
// and returns the removed ids so the caller can evict them from the vector
// index.
func (r *RecordStore) DeleteBySourceType(ctx context.Context, sourceType store.SourceType) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM observations WHERE source_type = ?`, string(sourceType))
	if err != nil {
		return nil, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "selecting observations to prune")
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "scanning pruned id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "iterating pruned ids")
	}
	_ = rows.Close()

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM observations WHERE source_type = ?`, string(sourceType)); err != nil {
		return nil, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "deleting observations by source type")
	}

	if err := tx.Commit(); err != nil {
		return nil, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "committing prune")
	}
	return ids, nil
}

// ActiveModel returns the embedding model id recorded for this knowledge
// base, or "" if none has been recorded yet.
func (r *RecordStore) ActiveModel(ctx context.Context) (string, error) {
	var modelID string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM engine_meta WHERE key = 'model_id'`).Scan(&modelID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "loading active model")
	}
	return modelID, nil
}

// SetActiveModel records the embedding model id for this knowledge base.
func (r *RecordStore) SetActiveModel(ctx context.Context, modelID string) error {
	const q = `INSERT INTO engine_meta (key, value) VALUES ('model_id', ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value`
	if _, err := r.db.ExecContext(ctx, q, modelID); err != nil {
		return vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "recording active model %s", modelID)
	}
	return nil
}

// Close closes the underlying database connection.
func (r *RecordStore) Close() error {
	return r.db.Close()
}

// --- Row scanning helpers ---

// rowScanner abstracts *sql.Row and *sql.Rows for scanObservation.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (*store.Observation, error) {
	var obs store.Observation
	var kind, sourceType, domains, createdAt string

	err := row.Scan(&obs.ID, &kind, &obs.Content, &obs.ContentHash,
		&sourceType, &obs.SourceID, &obs.Reliability, &domains, &createdAt)
	if err != nil {
		return nil, err
	}

	obs.Kind = store.Kind(kind)
	obs.SourceType = store.SourceType(sourceType)
	obs.CreatedAt = parseTime(createdAt)
	if err := json.Unmarshal([]byte(domains), &obs.Domains); err != nil {
		return nil, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "unmarshalling domains for %s", obs.ID)
	}
	return &obs, nil
}

func collectObservations(rows *sql.Rows) ([]*store.Observation, error) {
	var out []*store.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "scanning observation")
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, vderr.Wrapf(err, vderr.CodeStoreDatabaseFailure, "iterating observations")
	}
	return out, nil
}

func marshalDomains(domains []string) (string, error) {
	if len(domains) == 0 {
		return "[]", nil
	}
	blob, err := json.Marshal(domains)
	if err != nil {
		return "", vderr.Wrapf(err, vderr.CodeStoreInvalidInput, "marshalling domains")
	}
	return string(blob), nil
}

// formatTime serialises a time.Time to RFC3339 for storage.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
