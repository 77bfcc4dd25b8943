// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package store

import "context"

// RecordStore is the durable, authoritative side of a knowledge base. It
// enforces the (content_hash, source_id) uniqueness invariant: inserting a
// duplicate is not an error, it returns the existing row's id with
// existed=true, because corroboration across sources is expected and
// desirable.
type RecordStore interface {
	InsertObservation(ctx context.Context, obs *Observation) (id string, existed bool, err error)
	GetObservation(ctx context.Context, id string) (*Observation, error)
	GetObservations(ctx context.Context, ids []string) ([]*Observation, error)
	AllObservations(ctx context.Context) ([]*Observation, error)
	CountObservations(ctx context.Context) (int, error)
	CountByKind(ctx context.Context) (map[Kind]int, error)

	InsertBelief(ctx context.Context, belief *Belief) (id string, existed bool, err error)
	CountBeliefs(ctx context.Context) (int, error)

	// Metadata edits. Content is immutable once stored, so neither touches
	// the vector index.
	UpdateReliability(ctx context.Context, id string, reliability float64) error
	UpdateDomains(ctx context.Context, id string, domains []string) error

	// DeleteBySourceType removes every observation of a provenance class and
	// returns the removed ids so the caller can evict them from the index.
	DeleteBySourceType(ctx context.Context, sourceType SourceType) ([]string, error)

	// Engine metadata: the active embedding model id, recorded so a model
	// swap is detectable before any search against a stale index.
	ActiveModel(ctx context.Context) (string, error)
	SetActiveModel(ctx context.Context, modelID string) error

	Close() error
}
