package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("MissingFileUsesDefaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "data", cfg.DataDir)
		assert.Equal(t, 384, cfg.Embedding.Dim)
		assert.Equal(t, "dev", cfg.Log.Mode)
	})

	t.Run("FileValues", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mindgraph.yaml")
		content := "data_dir: /srv/mindgraph\nlog:\n  mode: prod\nembedding:\n  dim: 64\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/srv/mindgraph", cfg.DataDir)
		assert.Equal(t, "prod", cfg.Log.Mode)
		assert.Equal(t, 64, cfg.Embedding.Dim)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv(EnvDataDir, "/tmp/env-data")
		t.Setenv(EnvEmbeddingDim, "16")

		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "/tmp/env-data", cfg.DataDir)
		assert.Equal(t, 16, cfg.Embedding.Dim)
	})

	t.Run("BadEnvDim", func(t *testing.T) {
		t.Setenv(EnvEmbeddingDim, "many")
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("InvalidYAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("data_dir: [unclosed"), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "mindgraph.yaml")
	cfg := Default()
	cfg.DataDir = "elsewhere"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "elsewhere", loaded.DataDir)
}

func TestDerivedPaths(t *testing.T) {
	cfg := &Config{DataDir: "root"}
	assert.Equal(t, filepath.Join("root", "raw"), cfg.RawDir())
	assert.Equal(t, filepath.Join("root", "labeled"), cfg.LabeledDir())
	assert.Equal(t, filepath.Join("root", "processed", "mindmap_graph.json"), cfg.FlatGraphPath())

	cfg.DataDir = t.TempDir()
	require.NoError(t, cfg.EnsureDirs())
	for _, dir := range []string{cfg.RawDir(), cfg.LabeledDir(), cfg.ProcessedDir(), cfg.IndexDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
