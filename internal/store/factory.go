// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package store

import (
	"sync"

	vderr "github.com/verdigris-dev/verdigris/pkg/errors"
)

// DefaultBackend is the vector backend used when none is configured.
const DefaultBackend = "sqlitevec"

// VectorIndexFactory opens (or creates) a vector index artifact for a
// knowledge base directory.
type VectorIndexFactory func(cfg VectorConfig) (VectorIndex, error)

var (
	vectorFactories = map[string]VectorIndexFactory{}
	factoriesMu     sync.RWMutex
)

// RegisterVectorBackend registers a factory for a named vector backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterVectorBackend(name string, factory VectorIndexFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	vectorFactories[name] = factory
}

// resolveBackend returns the effective backend name.
func resolveBackend(cfg VectorConfig) string {
	if cfg.Backend == "" {
		return DefaultBackend
	}
	return cfg.Backend
}

// OpenVectorIndex opens the configured vector backend for a knowledge base.
func OpenVectorIndex(cfg VectorConfig) (VectorIndex, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := vectorFactories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, vderr.Errorf(vderr.CodeIndexBackendUnsupported, "unsupported vector backend: %q", backend)
	}

	return factory(cfg)
}

// VectorBackends lists the registered backend names, for diagnostics.
func VectorBackends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(vectorFactories))
	for name := range vectorFactories {
		names = append(names, name)
	}
	return names
}
