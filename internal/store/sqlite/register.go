// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package sqlite

import (
	"github.com/verdigris-dev/verdigris/internal/store"
)

func init() {
	store.RegisterVectorBackend("sqlitevec", func(cfg store.VectorConfig) (store.VectorIndex, error) {
		return NewVectorIndex(cfg)
	})
}
