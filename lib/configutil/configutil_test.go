package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	OutputRoot string `json:"output_root"`
	MaxHeight  int    `json:"max_height"`
}

func TestLoadMergesLocalOverrides(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "config.json5")

	err := os.WriteFile(base, []byte(`{
		// default settings
		output_root: "/srv/mirror",
		max_height: 1080,
	}`), 0600)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{
		max_height: 720,
	}`), 0600)
	require.NoError(t, err)

	cfg, err := Load[testConfig](base)
	require.NoError(t, err)
	require.Equal(t, "/srv/mirror", cfg.OutputRoot)
	require.Equal(t, 720, cfg.MaxHeight)
}

func TestLoadMissingFiles(t *testing.T) {
	_, err := Load[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadLocalOnly(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{output_root: "/tmp/x"}`), 0600)
	require.NoError(t, err)

	cfg, err := Load[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "/tmp/x", cfg.OutputRoot)
}
