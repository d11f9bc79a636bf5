package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ".ecovet/ecovet.db", cfg.DatabasePath)
	assert.Equal(t, 5, cfg.Pipeline.MaxConcurrent)
	assert.Equal(t, "1h", cfg.Pipeline.StaleAfter)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database_path: /data/ecovet.db
pipeline:
  max_concurrent: 10
analyzer:
  model: claude-sonnet-4-5-20250929
  requests_per_second: 1
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/ecovet.db", cfg.DatabasePath)
	assert.Equal(t, 10, cfg.Pipeline.MaxConcurrent)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Analyzer.Model)
	assert.Equal(t, 1.0, cfg.Analyzer.RequestsPerSecond)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database_path: /data/ecovet.db\n"), 0644))

	t.Setenv("ECOVET_DB", "/env/ecovet.db")
	t.Setenv("ECOVET_MAX_CONCURRENT", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/env/ecovet.db", cfg.DatabasePath)
	assert.Equal(t, 3, cfg.Pipeline.MaxConcurrent)
}

func TestLoadRejectsBadConcurrency(t *testing.T) {
	t.Setenv("ECOVET_MAX_CONCURRENT", "zero")
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.DatabasePath = "/tmp/db.sqlite"
	require.NoError(t, Save(cfg, path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/db.sqlite", got.DatabasePath)
}
