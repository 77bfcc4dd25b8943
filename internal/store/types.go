// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// --- Observation types ---

// Kind classifies what an observation describes. The set is open; these are
// the kinds the extraction tooling emits today.
type Kind string

const (
	KindPattern    Kind = "pattern"
	KindDecision   Kind = "decision"
	KindChallenge  Kind = "challenge"
	KindTechnology Kind = "technology"
)

// SourceType is the provenance class of an observation. It drives quality
// filtering at retrieval time: some classes are trusted by default, others
// (e.g. commit-message-derived text) are not.
type SourceType string

const (
	SourceSession       SourceType = "session"
	SourceDistillation  SourceType = "distillation"
	SourceDocumentation SourceType = "documentation"
	SourceCommit        SourceType = "commit"
	SourceUnknown       SourceType = "unknown"
)

// DefaultReliability is the a-priori trust weight assigned when the caller
// does not supply one.
const DefaultReliability = 0.70

// Observation is an atomic unit of textual knowledge: a short statement
// describing a decision, pattern, challenge, or technology, plus provenance
// metadata. Content is immutable once stored; reliability and domains may be
// edited afterwards.
type Observation struct {
	ID          string
	Kind        Kind
	Content     string
	ContentHash string
	SourceType  SourceType
	SourceID    string
	Reliability float64
	Domains     []string
	CreatedAt   time.Time
}

// Polarity marks whether a belief asserts or denies its statement.
type Polarity string

const (
	PolarityAffirmed Polarity = "affirmed"
	PolarityNegated  Polarity = "negated"
)

// Belief is a statement to be checked against accumulated evidence rather
// than a fact contributing evidence. Beliefs share the observation shape and
// uniqueness invariant but never enter the retrieval fact set.
type Belief struct {
	Observation
	Polarity Polarity
}

// --- Vector types ---

// VectorEntry pairs a record id with its embedding, as supplied to a full
// index rebuild.
type VectorEntry struct {
	ID     string
	Vector []float32
}

// VectorMatch is a single nearest-neighbor result. Distance is the cosine
// distance (lower is closer); similarity for human-facing scores is
// 1 - Distance.
type VectorMatch struct {
	ID       string
	Distance float32
}

// Mode says what a vector index handle may be used for. A handle opened for
// search must never be used to mutate, and vice versa; callers needing both
// in one session reopen rather than reuse.
type Mode string

const (
	ModeSearch Mode = "search"
	ModeWrite  Mode = "write"
)

// --- Content normalization ---

// NormalizeContent lowercases text and collapses runs of whitespace to a
// single space so that trivially reformatted copies of the same statement
// hash identically.
func NormalizeContent(content string) string {
	return strings.Join(strings.Fields(strings.ToLower(content)), " ")
}

// HashContent returns the hex sha-256 of the normalized content. Paired with
// source_id it forms the dedup key: the same content from the same source is
// stored once; the same content from a different source is corroboration.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(NormalizeContent(content)))
	return hex.EncodeToString(sum[:])
}
