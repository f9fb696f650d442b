package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTuning_EmbeddedDefault(t *testing.T) {
	cfg, err := LoadTuning("")
	require.NoError(t, err)

	assert.Equal(t, 6.0, cfg.Speed.Start)
	assert.Equal(t, 24.0, cfg.Speed.Max)
	assert.Equal(t, 100.0, cfg.Booster.MaxFill)
	assert.Equal(t, 1, cfg.Combo.Base)
}

func TestLoadTuning_CustomPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("speed:\n  start: 2.5\n  max: 10\n"), 0o644))

	cfg, err := LoadTuning(path)
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.Speed.Start)
	assert.Equal(t, 10.0, cfg.Speed.Max)
}

func TestLoadTuning_MissingCustomPathFails(t *testing.T) {
	_, err := LoadTuning(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnv_ParsesAndValidates(t *testing.T) {
	t.Setenv("SKYRUSH_BACKEND_URL", "https://api.example.test")
	t.Setenv("SKYRUSH_REQUEST_TIMEOUT", "3s")

	cfg, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.test", cfg.BackendURL)
	assert.Equal(t, "3s", cfg.RequestTimeout.String())
	assert.Equal(t, "~/.skyrush/local.db", cfg.DBPath)
}

func TestEnv_ValidateRejectsZeroTimeout(t *testing.T) {
	e := &Env{BackendURL: "http://x", RequestTimeout: 0, PurchaseInitTimeout: 1}
	assert.Error(t, e.Validate())
}
