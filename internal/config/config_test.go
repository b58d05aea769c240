package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/zerocopy/internal/config"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	configDir := filepath.Join(dir, "zerocopy")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o644))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.Defaults.Chunk)
	assert.Nil(t, cfg.Defaults.Emulate)
	assert.Nil(t, cfg.Bench.Size)
}

func TestLoad_FullConfig(t *testing.T) {
	writeConfig(t, `
[defaults]
chunk = "1M"
emulate = true
bwlimit = "100M"
addr = "127.0.0.1:9000"

[bench]
size = "64M"
duration = "2s"
`)

	cfg, err := config.Load()
	require.NoError(t, err)

	require.NotNil(t, cfg.Defaults.Chunk)
	assert.Equal(t, "1M", *cfg.Defaults.Chunk)

	require.NotNil(t, cfg.Defaults.Emulate)
	assert.True(t, *cfg.Defaults.Emulate)

	require.NotNil(t, cfg.Defaults.BWLimit)
	assert.Equal(t, "100M", *cfg.Defaults.BWLimit)

	require.NotNil(t, cfg.Defaults.Addr)
	assert.Equal(t, "127.0.0.1:9000", *cfg.Defaults.Addr)

	require.NotNil(t, cfg.Bench.Size)
	assert.Equal(t, "64M", *cfg.Bench.Size)

	require.NotNil(t, cfg.Bench.Duration)
	assert.Equal(t, "2s", *cfg.Bench.Duration)
}

func TestLoad_PartialConfig(t *testing.T) {
	writeConfig(t, `
[bench]
size = "8M"
`)

	cfg, err := config.Load()
	require.NoError(t, err)

	// Defaults section entirely absent.
	assert.Nil(t, cfg.Defaults.Chunk)
	assert.Nil(t, cfg.Defaults.Addr)
	assert.Nil(t, cfg.Bench.Duration)

	require.NotNil(t, cfg.Bench.Size)
	assert.Equal(t, "8M", *cfg.Bench.Size)
}

func TestLoad_InvalidTOML(t *testing.T) {
	writeConfig(t, "invalid [[[")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_UnknownKeys(t *testing.T) {
	writeConfig(t, `
[defaults]
chunk = "4K"
workers = 16
`)

	cfg, err := config.Load()
	var unknown *config.UnknownKeysError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"defaults.workers"}, unknown.Keys)

	// Known keys are still decoded.
	require.NotNil(t, cfg.Defaults.Chunk)
	assert.Equal(t, "4K", *cfg.Defaults.Chunk)
}

func TestConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, "/custom/config/zerocopy/config.toml", config.Path())
}
