// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/verdigris-dev/verdigris/internal/config"
	"github.com/verdigris-dev/verdigris/internal/evidence"
	"github.com/verdigris-dev/verdigris/internal/knowledge"
	"github.com/verdigris-dev/verdigris/internal/store"
	_ "github.com/verdigris-dev/verdigris/internal/store/chromem" // register chromem backend
	_ "github.com/verdigris-dev/verdigris/internal/store/sqlite"  // register sqlitevec backend
	vderr "github.com/verdigris-dev/verdigris/pkg/errors"
)

// engineOverride replaces the embedding engine factory when set.
// Tests use it to avoid downloading real models.
var engineOverride knowledge.EngineFactory

// env bundles the wired pieces a command works with: the validated
// configuration, its resolved base directory, and an open knowledge store.
type env struct {
	cfg     *config.Config
	baseDir string
	store   *knowledge.Store
}

// openEnv loads the configuration resolved by initViper and opens the
// knowledge base in the given index access mode. Commands that mutate
// (submit, rebuild, migrate, prune) open for writing; everything else
// opens for search.
func openEnv(ctx context.Context, mode store.Mode) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	baseDir, err := cfg.ResolveBaseDir()
	if err != nil {
		return nil, err
	}

	kc, err := cfg.KnowledgeConfig(mode)
	if err != nil {
		return nil, err
	}
	if engineOverride != nil {
		kc.NewEngine = engineOverride
	}

	ks, err := knowledge.Open(ctx, kc, slog.Default())
	if err != nil {
		return nil, err
	}

	return &env{cfg: cfg, baseDir: baseDir, store: ks}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}

// validator loads the rules file and wires the evidence validator over
// this environment's knowledge store.
func (e *env) validator() (*evidence.Validator, error) {
	rules, err := evidence.LoadRules(e.cfg.RulesPath(e.baseDir))
	if err != nil {
		return nil, err
	}

	return evidence.NewValidator(
		rules,
		evidence.NewRetrieverSource(e.store),
		evidence.ValidatorConfig{FactLimit: e.cfg.Rules.FactLimit},
		slog.Default(),
	)
}

// loadConfig decodes the globally-initialized Viper into a validated
// Config.
func loadConfig() (*config.Config, error) {
	return config.Unmarshal(viper.GetViper())
}

// friendlyOpenError rewrites the most common open failure, a missing
// knowledge base, into a hint pointing at init.
func friendlyOpenError(err error) error {
	if vderr.HasCode(err, vderr.CodeIndexOpenFailure) || vderr.HasCode(err, vderr.CodeStoreOpenFailure) {
		return vderr.Wrapf(err, vderr.CodeOf(err), "no knowledge base found (run 'verdigris init' first)")
	}
	return err
}
