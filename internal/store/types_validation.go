// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package store

import (
	vderr "github.com/verdigris-dev/verdigris/pkg/errors"
)

// Valid reports whether the polarity is a known belief polarity.
func (p Polarity) Valid() bool {
	switch p {
	case PolarityAffirmed, PolarityNegated:
		return true
	default:
		return false
	}
}

// Valid reports whether the mode is a known index open mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeSearch, ModeWrite:
		return true
	default:
		return false
	}
}

// Validate checks that the Observation has all required fields set correctly.
// ContentHash is derived by the store and intentionally not required here.
func (o Observation) Validate() error {
	if o.ID == "" {
		return vderr.New(vderr.CodeStoreInvalidInput, "observation: ID is required")
	}
	if o.Kind == "" {
		return vderr.New(vderr.CodeStoreInvalidInput, "observation: Kind is required")
	}
	if o.Content == "" {
		return vderr.New(vderr.CodeStoreInvalidInput, "observation: Content is required")
	}
	if o.SourceID == "" {
		return vderr.New(vderr.CodeStoreInvalidInput, "observation: SourceID is required")
	}
	if o.Reliability < 0.0 || o.Reliability > 1.0 {
		return vderr.Errorf(vderr.CodeStoreInvalidInput, "observation: Reliability must be in [0,1], got %g", o.Reliability)
	}
	if o.CreatedAt.IsZero() {
		return vderr.New(vderr.CodeStoreInvalidInput, "observation: CreatedAt is required")
	}
	return nil
}

// Validate checks that the Belief has all required fields set correctly.
func (b Belief) Validate() error {
	if err := b.Observation.Validate(); err != nil {
		return err
	}
	if !b.Polarity.Valid() {
		return vderr.Errorf(vderr.CodeStoreInvalidInput, "belief: invalid polarity %q", b.Polarity)
	}
	return nil
}
