// Package config loads mindgraph settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "mindgraph.yaml"

// Environment variables that override file values.
const (
	EnvDataDir      = "MINDGRAPH_DATA_DIR"
	EnvLogMode      = "MINDGRAPH_LOG_MODE"
	EnvEmbeddingDim = "MINDGRAPH_EMBEDDING_DIM"
)

// LogConfig selects the logger mode and level.
type LogConfig struct {
	Mode  string `yaml:"mode"`
	Level string `yaml:"level"`
}

// EmbeddingConfig configures the in-process embedder.
type EmbeddingConfig struct {
	Dim int `yaml:"dim"`
}

// Config is the root configuration.
type Config struct {
	DataDir   string          `yaml:"data_dir"`
	Log       LogConfig       `yaml:"log"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:   "data",
		Log:       LogConfig{Mode: "dev", Level: "info"},
		Embedding: EmbeddingConfig{Dim: 384},
	}
}

// Load reads the config at path. A missing file yields defaults. A .env file
// in the working directory is loaded first so env overrides can live there.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvLogMode); v != "" {
		c.Log.Mode = v
	}
	if v := os.Getenv(EnvEmbeddingDim); v != "" {
		dim, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvEmbeddingDim, err)
		}
		c.Embedding.Dim = dim
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.Log.Mode == "" {
		c.Log.Mode = def.Log.Mode
	}
	if c.Embedding.Dim == 0 {
		c.Embedding.Dim = def.Embedding.Dim
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	if c.Embedding.Dim < 0 {
		return fmt.Errorf("embedding.dim must be positive, got %d", c.Embedding.Dim)
	}
	return nil
}

// RawDir holds original uploaded resources.
func (c *Config) RawDir() string { return filepath.Join(c.DataDir, "raw") }

// LabeledDir holds labeled chunk batches (*.jsonl).
func (c *Config) LabeledDir() string { return filepath.Join(c.DataDir, "labeled") }

// ProcessedDir holds exported graphs.
func (c *Config) ProcessedDir() string { return filepath.Join(c.DataDir, "processed") }

// IndexDir holds the persisted semantic index.
func (c *Config) IndexDir() string { return filepath.Join(c.DataDir, "index") }

// FlatGraphPath is the single file the incremental merge maintains.
func (c *Config) FlatGraphPath() string {
	return filepath.Join(c.ProcessedDir(), "mindmap_graph.json")
}

// EnsureDirs creates every data directory.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.RawDir(), c.LabeledDir(), c.ProcessedDir(), c.IndexDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
