package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "default", cfg.Swing.DefaultPreset)
	assert.Equal(t, 5, cfg.Swing.Presets["default"].Lookback)
	assert.Equal(t, 3, cfg.Clustering.NClusters)
	assert.False(t, cfg.Clustering.Enabled)
	assert.Equal(t, 0.05, cfg.Statistics.Alpha)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bquant.yaml")
	content := []byte("clustering:\n  enabled: true\n  n_clusters: 5\nstatistics:\n  alpha: 0.01\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Clustering.Enabled)
	assert.Equal(t, 5, cfg.Clustering.NClusters)
	assert.Equal(t, 0.01, cfg.Statistics.Alpha)
	assert.Equal(t, "default", cfg.Swing.DefaultPreset, "unset keys keep their defaults")
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("BQUANT_LOG_LEVEL", "debug")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}
