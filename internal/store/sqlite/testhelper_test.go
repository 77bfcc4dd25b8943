// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package sqlite_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/verdigris-dev/verdigris/internal/store"
)

// testDir creates a temp directory for a test and returns cleanup func.
func testDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "verdigris-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// testDBPath returns a temp SQLite database path.
func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(testDir(t), name+".db")
}

// testObservation builds a valid observation with the given content.
func testObservation(content string) *store.Observation {
	return &store.Observation{
		ID:          uuid.NewString(),
		Kind:        store.KindPattern,
		Content:     content,
		SourceType:  store.SourceSession,
		SourceID:    "session-1",
		Reliability: 0.9,
		Domains:     []string{"testing"},
		CreatedAt:   time.Now().UTC(),
	}
}
