// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

// Package knowledge composes the record store, the vector index, and the
// embedding engine into one knowledge base, and owns the consistency
// contract between them: records are authoritative, the index is derived
// and can always be rebuilt from them.
package knowledge

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/verdigris-dev/verdigris/internal/embeddings"
	"github.com/verdigris-dev/verdigris/internal/store"
	"github.com/verdigris-dev/verdigris/internal/store/sqlite"
	vderr "github.com/verdigris-dev/verdigris/pkg/errors"
)

// recordsArtifact is the record database file name under the knowledge base
// directory.
const recordsArtifact = "records.db"

// Store is one open knowledge base.
type Store struct {
	cfg       Config
	records   store.RecordStore
	index     store.VectorIndex
	engine    embeddings.Engine
	newEngine EngineFactory
	logger    *slog.Logger
}

// Open opens the knowledge base under cfg.Dir. Write mode creates a missing
// base; search mode requires one. The recorded model, the index artifact's
// model and dimensions, and the configured engine must agree, otherwise the
// open fails with the remedy in the message instead of serving garbage
// similarity scores later.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if cfg.Mode == store.ModeWrite {
		if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
			return nil, vderr.Wrapf(err, vderr.CodeStoreOpenFailure, "creating knowledge base directory %s", cfg.Dir)
		}
	}

	records, err := sqlite.NewRecordStore(filepath.Join(cfg.Dir, recordsArtifact))
	if err != nil {
		return nil, err
	}

	active, err := records.ActiveModel(ctx)
	if err != nil {
		_ = records.Close()
		return nil, err
	}
	switch {
	case active == "":
		if err := records.SetActiveModel(ctx, cfg.ModelID); err != nil {
			_ = records.Close()
			return nil, err
		}
	case active != cfg.ModelID:
		_ = records.Close()
		return nil, vderr.New(vderr.CodeEmbedModelMismatch,
			"knowledge base records model "+active+" but the engine is configured for "+cfg.ModelID+
				" (run migrate, or set the model back)",
			vderr.FieldModelID(active))
	}

	factory := cfg.engineFactory()
	engine, err := factory(cfg.ModelID)
	if err != nil {
		_ = records.Close()
		return nil, err
	}

	index, err := store.OpenVectorIndex(store.VectorConfig{
		Backend:    cfg.Backend,
		Dir:        cfg.Dir,
		ModelID:    engine.ModelID(),
		Dimensions: engine.Dimension(),
		Mode:       cfg.Mode,
	})
	if err != nil {
		_ = engine.Close()
		_ = records.Close()
		return nil, err
	}

	logger.Debug("knowledge base opened",
		slog.String("dir", cfg.Dir),
		slog.String("backend", cfg.Backend),
		slog.String("model", engine.ModelID()),
		slog.Int("dimensions", engine.Dimension()),
		slog.String("mode", string(cfg.Mode)))

	return &Store{
		cfg:       cfg,
		records:   records,
		index:     index,
		engine:    engine,
		newEngine: factory,
		logger:    logger,
	}, nil
}

// Close releases the index, the record store, and the engine.
func (s *Store) Close() error {
	var errs []error
	if s.index != nil {
		errs = append(errs, s.index.Close())
	}
	if s.records != nil {
		errs = append(errs, s.records.Close())
	}
	if s.engine != nil {
		errs = append(errs, s.engine.Close())
	}
	return vderr.Join(errs...)
}

// Mode returns the vector index access mode this base was opened with.
func (s *Store) Mode() store.Mode { return s.index.Mode() }

// requireWrite guards operations that mutate the vector index. The check
// happens before any record or vector is touched.
func (s *Store) requireWrite(op string) error {
	if s.index.Mode() != store.ModeWrite {
		return vderr.New(vderr.CodeIndexReadOnly, op+" requires a knowledge base opened for writing")
	}
	return nil
}

// --- Ingestion ---

// ObservationInput is one statement handed to the knowledge base. Zero
// Reliability means unspecified and is assigned DefaultReliability; empty
// SourceType becomes "unknown"; zero CreatedAt becomes the current time.
type ObservationInput struct {
	Content     string
	Kind        store.Kind
	SourceType  store.SourceType
	SourceID    string
	Reliability float64
	Domains     []string
	CreatedAt   time.Time
}

func (in ObservationInput) observation() *store.Observation {
	obs := &store.Observation{
		ID:          uuid.NewString(),
		Kind:        in.Kind,
		Content:     in.Content,
		SourceType:  in.SourceType,
		SourceID:    in.SourceID,
		Reliability: in.Reliability,
		Domains:     in.Domains,
		CreatedAt:   in.CreatedAt,
	}
	if obs.SourceType == "" {
		obs.SourceType = store.SourceUnknown
	}
	if obs.Reliability == 0 {
		obs.Reliability = store.DefaultReliability
	}
	if obs.CreatedAt.IsZero() {
		obs.CreatedAt = time.Now().UTC()
	}
	return obs
}

// SubmitResult reports what one submission did.
type SubmitResult struct {
	// ID is the stored row id: the new one, or the pre-existing one when
	// Duplicate is set.
	ID string
	// Duplicate means the same content from the same source was already
	// stored; nothing was written and no embedding was computed.
	Duplicate bool
	// Indexed means this call added the observation's vector to the index.
	// False with a non-nil error means the record persisted but the vector
	// write failed; rebuild recovers the index.
	Indexed bool
}

// SubmitObservation stores one observation and indexes its embedding.
// The record write is authoritative and is not rolled back when embedding
// or indexing fails: the returned result still carries the persisted id so
// the caller knows a rebuild can finish the job.
func (s *Store) SubmitObservation(ctx context.Context, in ObservationInput) (*SubmitResult, error) {
	if err := s.requireWrite("submit"); err != nil {
		return nil, err
	}

	obs := in.observation()
	id, existed, err := s.records.InsertObservation(ctx, obs)
	if err != nil {
		return nil, err
	}
	if existed {
		s.logger.Debug("duplicate observation ignored",
			slog.String("id", id), slog.String("source_id", obs.SourceID))
		return &SubmitResult{ID: id, Duplicate: true}, nil
	}

	vec, err := s.engine.Embed(ctx, obs.Content, embeddings.ModePassage)
	if err != nil {
		return &SubmitResult{ID: id}, err
	}

	if err := s.index.Add(ctx, id, vec); err != nil {
		return &SubmitResult{ID: id}, err
	}

	return &SubmitResult{ID: id, Indexed: true}, nil
}

// SubmitBelief stores one belief. Beliefs are validation targets, not
// retrieval targets: they are never embedded or indexed, so submitting one
// works on either open mode.
func (s *Store) SubmitBelief(ctx context.Context, in ObservationInput, polarity store.Polarity) (*SubmitResult, error) {
	belief := &store.Belief{Observation: *in.observation(), Polarity: polarity}

	id, existed, err := s.records.InsertBelief(ctx, belief)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{ID: id, Duplicate: existed}, nil
}

// BatchOutcome is the per-item result of a batch submission.
type BatchOutcome struct {
	ID        string
	Duplicate bool
	Indexed   bool
	Err       error
}

// SubmitBatch submits each input in order and never aborts early: every
// item gets an outcome, failed items carry their error, and the caller
// decides what a partial batch means.
func (s *Store) SubmitBatch(ctx context.Context, inputs []ObservationInput) ([]BatchOutcome, error) {
	if err := s.requireWrite("submit"); err != nil {
		return nil, err
	}

	outcomes := make([]BatchOutcome, 0, len(inputs))
	for _, in := range inputs {
		res, err := s.SubmitObservation(ctx, in)
		outcome := BatchOutcome{Err: err}
		if res != nil {
			outcome.ID = res.ID
			outcome.Duplicate = res.Duplicate
			outcome.Indexed = res.Indexed
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// --- Maintenance ---

// RebuildIndex re-derives the vector index from the record store: every
// observation is re-embedded in passage mode and the index contents are
// replaced wholesale. Records are never written. An empty store rebuilds to
// an empty index, which is not an error.
func (s *Store) RebuildIndex(ctx context.Context) (int, error) {
	if err := s.requireWrite("rebuild"); err != nil {
		return 0, err
	}
	return s.rebuildWith(ctx, s.engine)
}

func (s *Store) rebuildWith(ctx context.Context, engine embeddings.Engine) (int, error) {
	all, err := s.records.AllObservations(ctx)
	if err != nil {
		return 0, err
	}

	var entries []store.VectorEntry
	if len(all) > 0 {
		texts := make([]string, len(all))
		for i, obs := range all {
			texts[i] = obs.Content
		}

		vecs, err := engine.EmbedBatch(ctx, texts, embeddings.ModePassage)
		if err != nil {
			return 0, vderr.Wrap(err, vderr.CodeIndexRebuildFailure, "embedding observations for rebuild")
		}

		entries = make([]store.VectorEntry, len(all))
		for i, obs := range all {
			entries[i] = store.VectorEntry{ID: obs.ID, Vector: vecs[i]}
		}
	}

	if err := s.index.Rebuild(ctx, engine.ModelID(), engine.Dimension(), entries); err != nil {
		return 0, err
	}

	s.logger.Info("vector index rebuilt",
		slog.Int("vectors", len(entries)),
		slog.String("model", engine.ModelID()),
		slog.Int("dimensions", engine.Dimension()))
	return len(entries), nil
}

// MigrateModel switches the knowledge base to a new embedding model: the
// new model is recorded, every observation is re-embedded with it, and the
// old index contents are discarded by the rebuild. Old and new vectors are
// never mixed; a failed migration is finished by running it again.
func (s *Store) MigrateModel(ctx context.Context, newModelID string) (int, error) {
	if err := s.requireWrite("migrate"); err != nil {
		return 0, err
	}

	newEngine, err := s.newEngine(newModelID)
	if err != nil {
		return 0, err
	}

	if err := s.records.SetActiveModel(ctx, newModelID); err != nil {
		_ = newEngine.Close()
		return 0, err
	}

	count, err := s.rebuildWith(ctx, newEngine)
	if err != nil {
		_ = newEngine.Close()
		return 0, err
	}

	old := s.engine
	s.engine = newEngine
	s.cfg.ModelID = newModelID
	_ = old.Close()

	s.logger.Info("model migrated",
		slog.String("model", newModelID),
		slog.Int("reembedded", count))
	return count, nil
}

// PruneSourceType drops every observation of one provenance class from both
// the record store and the vector index. From the caller's perspective the
// removal is atomic; internally the records go first, and an index failure
// afterwards is repaired by rebuild.
func (s *Store) PruneSourceType(ctx context.Context, sourceType store.SourceType) (int, error) {
	if err := s.requireWrite("prune"); err != nil {
		return 0, err
	}

	ids, err := s.records.DeleteBySourceType(ctx, sourceType)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := s.index.Delete(ctx, ids); err != nil {
		return len(ids), vderr.Wrap(err, vderr.CodeIndexDeleteFailure,
			"records pruned but index eviction failed; run rebuild")
	}

	s.logger.Info("source type pruned",
		slog.String("source_type", string(sourceType)),
		slog.Int("removed", len(ids)))
	return len(ids), nil
}

// SetReliability edits an observation's trust weight. Content is immutable,
// so the index needs no update.
func (s *Store) SetReliability(ctx context.Context, id string, reliability float64) error {
	return s.records.UpdateReliability(ctx, id, reliability)
}

// SetDomains replaces an observation's domain tags. Content is immutable,
// so the index needs no update.
func (s *Store) SetDomains(ctx context.Context, id string, domains []string) error {
	return s.records.UpdateDomains(ctx, id, domains)
}

// GetObservation returns one stored observation.
func (s *Store) GetObservation(ctx context.Context, id string) (*store.Observation, error) {
	return s.records.GetObservation(ctx, id)
}

// --- Status ---

// Status is a point-in-time summary of a knowledge base.
type Status struct {
	Observations   int                `json:"observations"`
	Beliefs        int                `json:"beliefs"`
	ByKind         map[store.Kind]int `json:"by_kind,omitempty"`
	IndexedVectors int                `json:"indexed_vectors"`
	ModelID        string             `json:"model_id"`
	Dimensions     int                `json:"dimensions"`
	Backend        string             `json:"backend"`
	Mode           store.Mode         `json:"mode"`
}

// Status reports record counts, index size, and engine lineage.
func (s *Store) Status(ctx context.Context) (*Status, error) {
	observations, err := s.records.CountObservations(ctx)
	if err != nil {
		return nil, err
	}
	beliefs, err := s.records.CountBeliefs(ctx)
	if err != nil {
		return nil, err
	}
	byKind, err := s.records.CountByKind(ctx)
	if err != nil {
		return nil, err
	}
	vectors, err := s.index.Count(ctx)
	if err != nil {
		return nil, err
	}

	return &Status{
		Observations:   observations,
		Beliefs:        beliefs,
		ByKind:         byKind,
		IndexedVectors: vectors,
		ModelID:        s.index.ModelID(),
		Dimensions:     s.index.Dimensions(),
		Backend:        s.cfg.Backend,
		Mode:           s.index.Mode(),
	}, nil
}
