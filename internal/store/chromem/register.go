// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package chromem

import (
	"github.com/verdigris-dev/verdigris/internal/store"
)

func init() {
	store.RegisterVectorBackend("chromem", func(cfg store.VectorConfig) (store.VectorIndex, error) {
		return NewVectorIndex(cfg)
	})
}
