// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdigris-dev/verdigris/internal/embeddings"
)

// tokenEngine embeds text as a normalized bag-of-tokens vector so command
// tests run without downloading a real model.
type tokenEngine struct {
	modelID string
	dims    int
}

var _ embeddings.Engine = (*tokenEngine)(nil)

func (e *tokenEngine) Embed(_ context.Context, text string, _ embeddings.Mode) ([]float32, error) {
	vec := make([]float32, e.dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[int(h.Sum32())%e.dims]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

func (e *tokenEngine) EmbedBatch(ctx context.Context, texts []string, mode embeddings.Mode) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t, mode)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *tokenEngine) Dimension() int  { return e.dims }
func (e *tokenEngine) ModelID() string { return e.modelID }
func (e *tokenEngine) Close() error    { return nil }

// setupCLITest points HOME at a scratch dir so config discovery, the
// bootstrapped config, and the default base directory all stay inside the
// test, and swaps the embedding engine for the deterministic fake.
func setupCLITest(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)

	engineOverride = func(modelID string) (embeddings.Engine, error) {
		return &tokenEngine{modelID: modelID, dims: 16}, nil
	}
	t.Cleanup(func() {
		engineOverride = nil
		viper.Reset()
	})

	return home
}

// runCLI executes one command line against a fresh root command. The global
// Viper is reset first; command state must come from the config file, the
// environment, and the flags alone.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLIWithInput(t, nil, args...)
}

func runCLIWithInput(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()

	viper.Reset()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

func writeRules(t *testing.T, home, yaml string) {
	t.Helper()
	path := filepath.Join(home, ".verdigris", "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
}

func TestWorkflow_EndToEnd(t *testing.T) {
	home := setupCLITest(t)

	out, err := runCLI(t, "init")
	require.NoError(t, err, out)
	assert.Contains(t, out, "base directory")
	assert.Contains(t, out, "rules file")
	assert.Contains(t, out, "knowledge base")
	assert.Contains(t, out, "sqlitevec")

	_, err = os.Stat(filepath.Join(home, ".verdigris", "knowledge", "records.db"))
	require.NoError(t, err)

	writeRules(t, home, `rules:
  - name: retry-evidence
    terms: ["retry"]
    min_count: 2
    contribution: 0.6
`)

	out, err = runCLI(t, "submit", "the retry middleware caps backoff at thirty seconds", "--source-id", "session-1", "--reliability", "0.9")
	require.NoError(t, err, out)
	assert.Contains(t, out, "stored observation")

	out, err = runCLI(t, "submit", "the retry middleware caps backoff at thirty seconds", "--source-id", "session-1", "--reliability", "0.9")
	require.NoError(t, err, out)
	assert.Contains(t, out, "already recorded")

	out, err = runCLI(t, "submit", "retry attempts use exponential backoff with jitter", "--source-id", "session-2", "--kind", "decision", "--reliability", "0.9")
	require.NoError(t, err, out)
	out, err = runCLI(t, "submit", "the cache layer evicts entries with an lru policy", "--source-id", "session-3", "--reliability", "0.9")
	require.NoError(t, err, out)
	out, err = runCLI(t, "submit", "imported commit text about retry logic", "--source-type", "commit", "--source-id", "importer", "--reliability", "0.9")
	require.NoError(t, err, out)

	out, err = runCLI(t, "submit", "retries are always bounded", "--belief", "--negated")
	require.NoError(t, err, out)
	assert.Contains(t, out, "stored belief")
	assert.Contains(t, out, "negated")

	// Default reliability (0.70) sits below the default retrieval floor
	// (0.85), so an unlabeled submission is stored but not surfaced.
	out, err = runCLI(t, "submit", "an untrusted retry note nobody vetted", "--source-id", "session-4")
	require.NoError(t, err, out)

	out, err = runCLI(t, "search", "retry middleware backoff")
	require.NoError(t, err, out)
	assert.Contains(t, out, "retry middleware")
	// Commit-derived text is outside the default source allow-list.
	assert.NotContains(t, out, "imported commit text")
	assert.NotContains(t, out, "untrusted retry note")

	out, err = runCLI(t, "search", "untrusted retry note", "--min-reliability", "0.5")
	require.NoError(t, err, out)
	assert.Contains(t, out, "untrusted retry note")

	out, err = runCLI(t, "search", "retry middleware backoff", "--all-sources", "--limit", "10")
	require.NoError(t, err, out)
	assert.Contains(t, out, "imported commit text")

	out, err = runCLI(t, "validate", "retries are bounded with exponential backoff")
	require.NoError(t, err, out)
	assert.Contains(t, out, "score: 0.60")

	out, err = runCLI(t, "explain", "retries are bounded with exponential backoff")
	require.NoError(t, err, out)
	assert.Contains(t, out, "retry-evidence")
	assert.Contains(t, out, "facts loaded: 3")
	assert.Contains(t, out, "distinct sources:")

	out, err = runCLI(t, "status")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Observations:")
	assert.Contains(t, out, "Beliefs:")
	assert.Contains(t, out, "sqlitevec")

	out, err = runCLI(t, "rebuild")
	require.NoError(t, err, out)
	assert.Contains(t, out, "indexed 5 observations")

	out, err = runCLI(t, "prune", "--source-type", "commit")
	require.NoError(t, err, out)
	assert.Contains(t, out, "pruned 1 observation(s)")

	// An unregistered model is rejected before anything is touched.
	_, err = runCLI(t, "migrate", "word2vec")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown embedding model")

	out, err = runCLI(t, "migrate", "all-minilm-l6-v2")
	require.NoError(t, err, out)
	assert.Contains(t, out, "migrated to all-minilm-l6-v2")
	assert.Contains(t, out, "re-embedded 4")

	// The records now expect the new model; opening with the stale
	// configured model must fail with the remedy.
	out, err = runCLI(t, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "records model all-minilm-l6-v2")
	assert.NotContains(t, out, "Observations:")

	t.Setenv("VERDIGRIS_EMBEDDING_MODEL", "all-minilm-l6-v2")
	out, err = runCLI(t, "status")
	require.NoError(t, err, out)
	assert.Contains(t, out, "all-minilm-l6-v2")
}

func TestWorkflow_ChromemBackend(t *testing.T) {
	setupCLITest(t)
	t.Setenv("VERDIGRIS_STORE_BACKEND", "chromem")

	out, err := runCLI(t, "init")
	require.NoError(t, err, out)
	assert.Contains(t, out, "chromem")

	out, err = runCLI(t, "submit", "the scheduler drains workers before shutdown", "--source-id", "session-1", "--reliability", "0.9")
	require.NoError(t, err, out)
	assert.Contains(t, out, "stored observation")

	out, err = runCLI(t, "search", "worker shutdown draining")
	require.NoError(t, err, out)
	assert.Contains(t, out, "scheduler drains workers")
}

func TestSubmit_BatchFile(t *testing.T) {
	home := setupCLITest(t)

	out, err := runCLI(t, "init")
	require.NoError(t, err, out)

	batch := filepath.Join(home, "batch.txt")
	require.NoError(t, os.WriteFile(batch, []byte(
		"connection pools are sized per database\n"+
			"\n"+
			"migrations run inside a transaction\n"), 0o600))

	out, err = runCLI(t, "submit", "--file", batch, "--source-id", "import-1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "stored 2 observations (0 duplicates, 0 failures)")

	// Resubmitting the same file reports duplicates, not new rows.
	out, err = runCLI(t, "submit", "--file", batch, "--source-id", "import-1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "stored 0 observations (2 duplicates, 0 failures)")
}

func TestSubmit_FromStdin(t *testing.T) {
	setupCLITest(t)

	out, err := runCLI(t, "init")
	require.NoError(t, err, out)

	out, err = runCLIWithInput(t, strings.NewReader("stdin submitted content\n"), "submit")
	require.NoError(t, err, out)
	assert.Contains(t, out, "stored observation")
}

func TestSubmit_RejectsContentAndFile(t *testing.T) {
	setupCLITest(t)

	out, err := runCLI(t, "init")
	require.NoError(t, err, out)

	_, err = runCLI(t, "submit", "some content", "--file", "batch.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not both")
}

func TestSearch_WithoutKnowledgeBase(t *testing.T) {
	setupCLITest(t)

	_, err := runCLI(t, "search", "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no knowledge base found")
}

func TestSearch_EmptyQuery(t *testing.T) {
	setupCLITest(t)

	out, err := runCLI(t, "init")
	require.NoError(t, err, out)

	_, err = runCLI(t, "search", "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query text is empty")
}

func TestSearch_JSONOutput(t *testing.T) {
	setupCLITest(t)

	out, err := runCLI(t, "init")
	require.NoError(t, err, out)

	out, err = runCLI(t, "submit", "goroutine leaks show up in the handler pool", "--source-id", "session-1", "--reliability", "0.9")
	require.NoError(t, err, out)

	out, err = runCLI(t, "search", "goroutine leak", "--json")
	require.NoError(t, err, out)

	var results []map[string]any
	start := strings.Index(out, "[")
	require.GreaterOrEqual(t, start, 0, out)
	require.NoError(t, json.Unmarshal([]byte(out[start:]), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "goroutine leaks show up in the handler pool", results[0]["content"])
	assert.Equal(t, "session", results[0]["source_type"])
}

func TestValidate_NoRuleFired(t *testing.T) {
	home := setupCLITest(t)

	out, err := runCLI(t, "init")
	require.NoError(t, err, out)

	writeRules(t, home, `rules:
  - name: never-fires
    terms: ["nonexistent-term"]
    min_count: 1
    contribution: 0.5
`)

	out, err = runCLI(t, "submit", "an unrelated statement", "--source-id", "session-1")
	require.NoError(t, err, out)

	out, err = runCLI(t, "validate", "something unsupported")
	require.NoError(t, err, out)
	assert.Contains(t, out, "score: 0.00")
}

func TestValidate_JSONOutput(t *testing.T) {
	home := setupCLITest(t)

	out, err := runCLI(t, "init")
	require.NoError(t, err, out)

	writeRules(t, home, `rules:
  - name: single-hit
    terms: ["deadlock"]
    min_count: 1
    contribution: 0.3
`)

	out, err = runCLI(t, "submit", "a deadlock appears when two locks are taken in opposite order", "--source-id", "session-1", "--reliability", "0.9")
	require.NoError(t, err, out)

	out, err = runCLI(t, "validate", "lock ordering matters", "--json")
	require.NoError(t, err, out)

	var payload struct {
		Belief string  `json:"belief"`
		Score  float64 `json:"score"`
	}
	start := strings.Index(out, "{")
	require.GreaterOrEqual(t, start, 0, out)
	require.NoError(t, json.Unmarshal([]byte(out[start:]), &payload))
	assert.Equal(t, "lock ordering matters", payload.Belief)
	assert.InDelta(t, 0.3, payload.Score, 1e-9)
}

func TestValidate_BadRulesFile(t *testing.T) {
	home := setupCLITest(t)

	out, err := runCLI(t, "init")
	require.NoError(t, err, out)

	writeRules(t, home, `rules:
  - name: broken
    terms: []
    min_count: 0
    contribution: 2.0
`)

	_, err = runCLI(t, "validate", "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rules validation")
}

func TestStatus_JSON(t *testing.T) {
	setupCLITest(t)

	out, err := runCLI(t, "init")
	require.NoError(t, err, out)

	out, err = runCLI(t, "submit", "one stored statement", "--source-id", "session-1")
	require.NoError(t, err, out)

	out, err = runCLI(t, "status", "--json")
	require.NoError(t, err, out)

	var status struct {
		Observations   int    `json:"observations"`
		IndexedVectors int    `json:"indexed_vectors"`
		Backend        string `json:"backend"`
	}
	start := strings.Index(out, "{")
	require.GreaterOrEqual(t, start, 0, out)
	require.NoError(t, json.Unmarshal([]byte(out[start:]), &status))
	assert.Equal(t, 1, status.Observations)
	assert.Equal(t, 1, status.IndexedVectors)
	assert.Equal(t, "sqlitevec", status.Backend)
}

func TestInit_Idempotent(t *testing.T) {
	home := setupCLITest(t)

	out, err := runCLI(t, "init")
	require.NoError(t, err, out)
	assert.Contains(t, out, "created")

	writeRules(t, home, "rules: []\n# custom marker\n")

	out, err = runCLI(t, "init")
	require.NoError(t, err, out)
	assert.Contains(t, out, "already present")

	data, err := os.ReadFile(filepath.Join(home, ".verdigris", "rules.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "custom marker")

	out, err = runCLI(t, "init", "--force")
	require.NoError(t, err, out)
	data, err = os.ReadFile(filepath.Join(home, ".verdigris", "rules.yaml"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "custom marker")
}

func TestDoctor_RunsAllChecks(t *testing.T) {
	setupCLITest(t)

	out, err := runCLI(t, "doctor")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Binary:")
	assert.Contains(t, out, "Platform:")
	assert.Contains(t, out, "Config:")
	assert.Contains(t, out, "Base Directory:")
	assert.Contains(t, out, "Records:")
	assert.Contains(t, out, "Vector Index:")
	assert.Contains(t, out, "Model Cache:")
	assert.Contains(t, out, "Rules:")
	assert.Contains(t, out, "Disk Space:")
	assert.Contains(t, out, "run 'verdigris init'")
}

func TestDoctor_AfterInit(t *testing.T) {
	setupCLITest(t)

	out, err := runCLI(t, "init")
	require.NoError(t, err, out)

	out, err = runCLI(t, "doctor")
	require.NoError(t, err, out)
	assert.Contains(t, out, "records.db")
	assert.Contains(t, out, "no active rules")
}

func TestVersionCommand(t *testing.T) {
	setupCLITest(t)

	out, err := runCLI(t, "version")
	require.NoError(t, err, out)
	assert.Contains(t, out, "verdigris")
	assert.Contains(t, out, "commit:")
}
