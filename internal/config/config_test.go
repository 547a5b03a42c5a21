package config_test

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shodh/memory-engine/internal/config"
)

func clearEnv(t *testing.T, keys ...string) {
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		require.NoError(t, os.Unsetenv(k))
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			} else {
				os.Unsetenv(k)
			}
		})
	}
}

func TestLoadUsesDefaultsWhenEnvUnset(t *testing.T) {
	clearEnv(t, "SHODH_CONFIG_FILE", "PORT", "STORAGE_PATH", "LOG_LEVEL", "EMBED_DIM", "ANN_R", "ANN_L", "ANN_ALPHA")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.Default().Port, cfg.Port)
	assert.Equal(t, config.Default().EmbedDim, cfg.EmbedDim)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	clearEnv(t, "SHODH_CONFIG_FILE", "PORT", "STORAGE_PATH", "LOG_LEVEL", "EMBED_DIM", "ANN_R", "ANN_L", "ANN_ALPHA")
	t.Setenv("PORT", "9090")
	t.Setenv("EMBED_DIM", "128")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 128, cfg.EmbedDim)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadRejectsNonPositiveEmbedDim(t *testing.T) {
	clearEnv(t, "SHODH_CONFIG_FILE", "EMBED_DIM")
	t.Setenv("EMBED_DIM", "0")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadAppliesYAMLOverlayBeforeEnv(t *testing.T) {
	clearEnv(t, "SHODH_CONFIG_FILE", "PORT", "EMBED_DIM")
	dir := t.TempDir()
	path := dir + "/overlay.yaml"
	require.NoError(t, os.WriteFile(path, []byte("port: 4040\nembed_dim: 256\n"), 0o644))
	t.Setenv("SHODH_CONFIG_FILE", path)
	t.Setenv("PORT", "5050")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 5050, cfg.Port, "env var should win over yaml overlay")
	assert.Equal(t, 256, cfg.EmbedDim, "yaml overlay applies when no env var is set")
}
