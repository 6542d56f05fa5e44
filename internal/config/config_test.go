package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("CONFIG_FILE", filepath.Join(dir, "missing.toml"))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, int64(10<<20), cfg.Ingest.MaxUploadBytes)
	assert.Equal(t, 1000, cfg.Ingest.ChunkSize)
	assert.Equal(t, 200, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr())
}

func TestLoadTOMLFileThenEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[app]
port = 9090

[ingest]
mode = "sync"
chunk_size = 600
chunk_overlap = 100

[retrieval]
vector_store = "memory"
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("APP_PORT", "9191")
	t.Setenv("RETRIEVAL_MIN_SIMILARITY", "0.6")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.App.Port)
	assert.Equal(t, IngestModeSync, cfg.Ingest.Mode)
	assert.Equal(t, 600, cfg.Ingest.ChunkSize)
	assert.Equal(t, "memory", cfg.Retrieval.VectorStore)
	assert.InDelta(t, 0.6, cfg.Retrieval.MinSimilarity, 1e-9)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedding:\n  provider: local\n  dimension: 128\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 128, cfg.Embedding.Dimension)
}

func TestLoadEnvFile(t *testing.T) {
	dir := isolate(t)
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("DOCINTELL_TEST_UNSET_MODEL=from-dotenv\n"), 0o600))
	t.Setenv("ENV_FILE", envPath)
	t.Cleanup(func() { os.Unsetenv("DOCINTELL_TEST_UNSET_MODEL") })

	_, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", os.Getenv("DOCINTELL_TEST_UNSET_MODEL"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }},
		{"unknown llm provider", func(c *Config) { c.LLM.Provider = "nope" }},
		{"unknown embedding provider", func(c *Config) { c.Embedding.Provider = "nope" }},
		{"queue without rabbitmq", func(c *Config) { c.Ingest.Mode = IngestModeQueue }},
		{"overlap too large", func(c *Config) { c.Ingest.ChunkOverlap = 500 }},
		{"threshold out of range", func(c *Config) { c.Retrieval.MinSimilarity = 1.5 }},
		{"unknown vector store", func(c *Config) { c.Retrieval.VectorStore = "qdrant" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}
