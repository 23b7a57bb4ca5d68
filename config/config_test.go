package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://localhost:11434/v1", cfg.Embedding.Host)
	assert.Equal(t, "embeddinggemma", cfg.Embedding.Model)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, 60, cfg.RateLimit.ShortWindowSeconds)
	assert.Equal(t, 10, cfg.RateLimit.ShortQuota)
	assert.Equal(t, 3600, cfg.RateLimit.LongWindowSeconds)
	assert.Equal(t, 100, cfg.RateLimit.LongQuota)
	assert.Equal(t, 60, cfg.Indexing.LockTTLSeconds)
	assert.Equal(t, 50, cfg.Indexing.DefaultBatchSize)
	assert.Equal(t, 200, cfg.Indexing.MaxBatchSize)
	assert.Equal(t, 300, cfg.Cache.TTLSeconds)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Empty(t, cfg.VectorIndex.Endpoint)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
embedding:
  model: nomic-embed-text
  dimension: 384
rate_limit:
  short_quota: 3
  burst: 1
vector_index:
  endpoint: http://vectors.internal:6333
server:
  addr: ":9090"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, 3, cfg.RateLimit.ShortQuota)
	assert.Equal(t, 1, cfg.RateLimit.Burst)
	assert.Equal(t, "http://vectors.internal:6333", cfg.VectorIndex.Endpoint)
	assert.Equal(t, ":9090", cfg.Server.Addr)

	// Untouched sections keep their defaults.
	assert.Equal(t, "http://localhost:11434/v1", cfg.Embedding.Host)
	assert.Equal(t, 100, cfg.RateLimit.LongQuota)
	assert.Equal(t, 50, cfg.Indexing.DefaultBatchSize)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [not a mapping"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
