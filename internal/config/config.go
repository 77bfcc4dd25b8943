// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/verdigris-dev/verdigris/internal/embeddings"
	"github.com/verdigris-dev/verdigris/internal/evidence"
	"github.com/verdigris-dev/verdigris/internal/knowledge"
	"github.com/verdigris-dev/verdigris/internal/store"
	vderr "github.com/verdigris-dev/verdigris/pkg/errors"
)

// Config is the top-level Verdigris configuration.
type Config struct {
	BaseDir   string          `mapstructure:"base_dir"`
	LogLevel  string          `mapstructure:"log_level"`
	Store     StoreConfig     `mapstructure:"store"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Rules     RulesConfig     `mapstructure:"rules"`
}

// StoreConfig selects the vector index backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

// EmbeddingConfig selects the embedding model and its download cache.
type EmbeddingConfig struct {
	Model    string `mapstructure:"model"`
	CacheDir string `mapstructure:"cache_dir"`
}

// RetrievalConfig tunes the retriever's quality filter and strength bands.
type RetrievalConfig struct {
	MinReliability     float64  `mapstructure:"min_reliability"`
	Limit              int      `mapstructure:"limit"`
	Oversample         int      `mapstructure:"oversample"`
	StrongThreshold    float64  `mapstructure:"strong_threshold"`
	MediumThreshold    float64  `mapstructure:"medium_threshold"`
	AllowedSourceTypes []string `mapstructure:"allowed_source_types"`
}

// RulesConfig locates the validation rules file and caps the fact set.
type RulesConfig struct {
	Path      string `mapstructure:"path"`
	FactLimit int    `mapstructure:"fact_limit"`
}

// validLogLevels enumerates recognized log levels.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validBackends enumerates recognized vector index backends.
var validBackends = map[string]bool{
	"sqlitevec": true,
	"chromem":   true,
}

// validSourceTypes enumerates recognized provenance classes.
var validSourceTypes = map[string]bool{
	string(store.SourceSession):       true,
	string(store.SourceDistillation):  true,
	string(store.SourceDocumentation): true,
	string(store.SourceCommit):        true,
	string(store.SourceUnknown):       true,
}

// SetDefaults registers every configuration default on v. base_dir,
// embedding.cache_dir, and rules.path stay empty here; they resolve
// relative to the base directory at use time.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("store.backend", store.DefaultBackend)
	v.SetDefault("embedding.model", embeddings.DefaultModelID)
	v.SetDefault("retrieval.min_reliability", knowledge.DefaultMinReliability)
	v.SetDefault("retrieval.limit", knowledge.DefaultLimit)
	v.SetDefault("retrieval.oversample", knowledge.DefaultOversample)
	v.SetDefault("retrieval.strong_threshold", knowledge.DefaultStrongThreshold)
	v.SetDefault("retrieval.medium_threshold", knowledge.DefaultMediumThreshold)
	v.SetDefault("retrieval.allowed_source_types", defaultSourceTypeStrings())
	v.SetDefault("rules.fact_limit", evidence.DefaultFactLimit)
}

// SetupEnv binds VERDIGRIS_* environment variables, with dots in config
// keys mapped to underscores (e.g. VERDIGRIS_STORE_BACKEND).
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("VERDIGRIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func defaultSourceTypeStrings() []string {
	defaults := knowledge.DefaultAllowedSourceTypes()
	out := make([]string, len(defaults))
	for i, s := range defaults {
		out[i] = string(s)
	}
	return out
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix VERDIGRIS_).
func Load(path string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, vderr.Errorf(vderr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return Unmarshal(v)
}

// Unmarshal decodes an already-populated Viper into a validated Config.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, vderr.Errorf(vderr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, vderr.Errorf(vderr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns all
// validation errors found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, vderr.Errorf(vderr.CodeConfigValidateInvalidValue,
			"config: log_level must be one of [debug, info, warn, error], got %q", c.LogLevel))
	}

	if !validBackends[c.Store.Backend] {
		errs = append(errs, vderr.Errorf(vderr.CodeConfigValidateInvalidValue,
			"config: store.backend must be one of [sqlitevec, chromem], got %q", c.Store.Backend))
	}

	if _, err := embeddings.LookupModel(c.Embedding.Model); err != nil {
		errs = append(errs, vderr.Errorf(vderr.CodeConfigValidateInvalidValue,
			"config: embedding.model: %w", err))
	}

	errs = append(errs, c.validateRetrieval()...)

	if c.Rules.FactLimit < 1 {
		errs = append(errs, vderr.Errorf(vderr.CodeConfigValidateInvalidValue,
			"config: rules.fact_limit must be greater than 0, got %d", c.Rules.FactLimit))
	}

	return errs
}

func (c *Config) validateRetrieval() []error {
	var errs []error
	r := c.Retrieval

	if r.MinReliability < 0 || r.MinReliability > 1 {
		errs = append(errs, vderr.Errorf(vderr.CodeConfigValidateInvalidValue,
			"config: retrieval.min_reliability must be in [0, 1], got %g", r.MinReliability))
	}
	if r.Limit < 1 {
		errs = append(errs, vderr.Errorf(vderr.CodeConfigValidateInvalidValue,
			"config: retrieval.limit must be greater than 0, got %d", r.Limit))
	}
	if r.Oversample < 1 {
		errs = append(errs, vderr.Errorf(vderr.CodeConfigValidateInvalidValue,
			"config: retrieval.oversample must be greater than 0, got %d", r.Oversample))
	}
	if r.StrongThreshold < 0 || r.StrongThreshold > 1 {
		errs = append(errs, vderr.Errorf(vderr.CodeConfigValidateInvalidValue,
			"config: retrieval.strong_threshold must be in [0, 1], got %g", r.StrongThreshold))
	}
	if r.MediumThreshold < 0 || r.MediumThreshold > 1 {
		errs = append(errs, vderr.Errorf(vderr.CodeConfigValidateInvalidValue,
			"config: retrieval.medium_threshold must be in [0, 1], got %g", r.MediumThreshold))
	} else if r.StrongThreshold >= 0 && r.StrongThreshold <= 1 && r.MediumThreshold > r.StrongThreshold {
		errs = append(errs, vderr.Errorf(vderr.CodeConfigValidateInvalidValue,
			"config: retrieval.medium_threshold (%g) must not exceed strong_threshold (%g)",
			r.MediumThreshold, r.StrongThreshold))
	}

	for i, st := range r.AllowedSourceTypes {
		if !validSourceTypes[st] {
			errs = append(errs, vderr.Errorf(vderr.CodeConfigValidateInvalidValue,
				"config: retrieval.allowed_source_types[%d] must be one of [session, distillation, documentation, commit, unknown], got %q",
				i, st))
		}
	}

	return errs
}

// ParseLogLevel maps a log level name onto slog's levels. Unknown values
// fall back to info; Validate rejects them before this matters.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SlogLevel maps the configured log level onto slog's levels.
func (c *Config) SlogLevel() slog.Level {
	return ParseLogLevel(c.LogLevel)
}

// ResolveBaseDir expands the configured base directory, defaulting to
// ~/.verdigris when unset.
func (c *Config) ResolveBaseDir() (string, error) {
	if c.BaseDir != "" {
		return c.BaseDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", vderr.Errorf(vderr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".verdigris"), nil
}

// KnowledgeDir is the knowledge base directory under the base directory.
func KnowledgeDir(baseDir string) string {
	return filepath.Join(baseDir, "knowledge")
}

// RulesPath resolves the validation rules file, defaulting to
// <base>/rules.yaml.
func (c *Config) RulesPath(baseDir string) string {
	if c.Rules.Path != "" {
		return c.Rules.Path
	}
	return filepath.Join(baseDir, "rules.yaml")
}

// ModelCacheDir resolves the embedding model cache, defaulting to
// <base>/models.
func (c *Config) ModelCacheDir(baseDir string) string {
	if c.Embedding.CacheDir != "" {
		return c.Embedding.CacheDir
	}
	return filepath.Join(baseDir, "models")
}

// KnowledgeConfig assembles the knowledge store configuration for the
// given index access mode.
func (c *Config) KnowledgeConfig(mode store.Mode) (knowledge.Config, error) {
	baseDir, err := c.ResolveBaseDir()
	if err != nil {
		return knowledge.Config{}, err
	}

	// An explicitly empty allow-list admits every provenance class.
	allowed := make([]store.SourceType, 0, len(c.Retrieval.AllowedSourceTypes))
	for _, st := range c.Retrieval.AllowedSourceTypes {
		allowed = append(allowed, store.SourceType(st))
	}

	return knowledge.Config{
		Dir:           KnowledgeDir(baseDir),
		Backend:       c.Store.Backend,
		ModelID:       c.Embedding.Model,
		ModelCacheDir: c.ModelCacheDir(baseDir),
		Mode:          mode,
		Retrieval: knowledge.RetrievalConfig{
			AllowedSourceTypes: allowed,
			MinReliability:     c.Retrieval.MinReliability,
			Limit:              c.Retrieval.Limit,
			Oversample:         c.Retrieval.Oversample,
			StrongThreshold:    c.Retrieval.StrongThreshold,
			MediumThreshold:    c.Retrieval.MediumThreshold,
		},
	}, nil
}
