package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader("").Load()
	require.NoError(t, err)

	assert.Equal(t, 300.0, cfg.Chunking.MaxChunkDuration)
	assert.Equal(t, 10.0, cfg.Chunking.OverlapDuration)
	assert.Equal(t, 15.0, cfg.Chunking.CoverageGapThreshold)
	assert.Equal(t, 0.8, cfg.Chunking.SimilarityThreshold)
	assert.Equal(t, 3, cfg.Chunking.ContextSegments)
	assert.Equal(t, 120*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Worker.StaleJobAfter)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 60*time.Second, cfg.Retry.MaxDelay)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scribepipe.yaml")
	data := []byte(`
chunking:
  max_chunk_duration: 600
  overlap_duration: 3
provider:
  name: whisper
storage:
  backend: s3
  s3:
    bucket: my-audio
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 600.0, cfg.Chunking.MaxChunkDuration)
	assert.Equal(t, 3.0, cfg.Chunking.OverlapDuration)
	assert.Equal(t, "whisper", cfg.Provider.Name)
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, "my-audio", cfg.Storage.S3.Bucket)
}

func TestLegacyEnvKnobs(t *testing.T) {
	t.Setenv("MAX_CHUNK_DURATION", "450")
	t.Setenv("OVERLAP_DURATION", "5")
	t.Setenv("PROVIDER_TIMEOUT", "90")
	t.Setenv("STALE_JOB_MINUTES", "45")
	t.Setenv("OVERLAP_SIMILARITY_THRESHOLD", "0.9")

	cfg, err := NewLoader("").Load()
	require.NoError(t, err)

	assert.Equal(t, 450.0, cfg.Chunking.MaxChunkDuration)
	assert.Equal(t, 5.0, cfg.Chunking.OverlapDuration)
	assert.Equal(t, 90*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, 45*time.Minute, cfg.Worker.StaleJobAfter)
	assert.Equal(t, 0.9, cfg.Chunking.SimilarityThreshold)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk duration", func(c *Config) { c.Chunking.MaxChunkDuration = 0 }},
		{"overlap exceeds chunk", func(c *Config) { c.Chunking.OverlapDuration = 400 }},
		{"similarity out of range", func(c *Config) { c.Chunking.SimilarityThreshold = 1.5 }},
		{"no attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"no workers", func(c *Config) { c.Worker.Workers = 0 }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "ftp" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, validate(cfg))
		})
	}
}
