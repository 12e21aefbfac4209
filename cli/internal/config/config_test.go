package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSave(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	t.Run("missing file yields empty config", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		assert.Empty(t, cfg.Server)
		assert.Empty(t, cfg.Token)
	})

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, Save(&Config{
			Server: "https://example.com",
			Token:  "tb_secret",
		}))

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "https://example.com", cfg.Server)
		assert.Equal(t, "tb_secret", cfg.Token)
	})

	t.Run("config file is private", func(t *testing.T) {
		home, err := os.UserHomeDir()
		require.NoError(t, err)
		info, err := os.Stat(filepath.Join(home, ".tokenboard.yaml"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})
}
