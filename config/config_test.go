package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
adapter:
  type: file
  path: /data/incoming
ingestion:
  format: json
chunker:
  chunk_size: 512
  chunk_overlap: 64
embedding:
  enabled: true
  model: embeddinggemma
  batch_size: 20
vectorstore:
  engine: badger
  in_memory: true
audit:
  enabled: false
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.True(t, cfg.Has("adapter"))
	assert.True(t, cfg.Has("chunker"))
	assert.False(t, cfg.Has("deid"))

	adapter := cfg.Sub("adapter")
	require.NotNil(t, adapter)
	assert.Equal(t, "file", String(adapter, "type", ""))
	assert.Equal(t, "/data/incoming", String(adapter, "path", ""))
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte("adapter: [unclosed"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 512, Int(cfg.Sub("chunker"), "chunk_size", 0))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSubNonMapping(t *testing.T) {
	cfg, err := Parse([]byte("flag: true"))
	require.NoError(t, err)
	assert.Nil(t, cfg.Sub("flag"))
	assert.Nil(t, cfg.Sub("absent"))
}

func TestAccessorDefaults(t *testing.T) {
	m := map[string]any{
		"name":    "x",
		"count":   3,
		"ratio":   2.5,
		"flag":    true,
		"timeout": "45s",
		"poll":    10,
	}

	assert.Equal(t, "x", String(m, "name", "def"))
	assert.Equal(t, "def", String(m, "missing", "def"))
	assert.Equal(t, "def", String(m, "count", "def"), "wrong type falls back to default")

	assert.Equal(t, 3, Int(m, "count", 0))
	assert.Equal(t, 2, Int(m, "ratio", 0), "float64 values are accepted")
	assert.Equal(t, 7, Int(m, "missing", 7))

	assert.True(t, Bool(m, "flag", false))
	assert.False(t, Bool(m, "missing", false))

	assert.Equal(t, 45*time.Second, Duration(m, "timeout", time.Minute))
	assert.Equal(t, 10*time.Second, Duration(m, "poll", time.Minute), "bare numbers are seconds")
	assert.Equal(t, time.Minute, Duration(m, "missing", time.Minute))
	assert.Equal(t, time.Minute, Duration(m, "name", time.Minute), "unparseable string falls back")
}
