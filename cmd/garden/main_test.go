package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/garden/config"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestConfigCommand_PrintsOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garden.yaml")
	require.NoError(t, os.WriteFile(path, []byte("garden:\n  max_blooms: 77\n"), 0644))

	out := execute(t, "config", "--config", path, "--log-level", "error")

	loaded := filepath.Join(t.TempDir(), "printed.yaml")
	require.NoError(t, os.WriteFile(loaded, []byte(out), 0644))
	cfg, err := config.Load(loaded)
	require.NoError(t, err)
	assert.Equal(t, 77, cfg.Garden.MaxBlooms)
	assert.Equal(t, config.Default().Nutrients, cfg.Nutrients)
}

func TestRunThenSealed(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "garden.db")

	execute(t, "run", "--config", "", "--log-level", "error",
		"--seed", "3", "--ticks", "120", "--output-dir", filepath.Join(dir, "out"), "--archive", db)

	_, err := os.Stat(filepath.Join(dir, "out", "telemetry.csv"))
	require.NoError(t, err)

	out := execute(t, "sealed", "--archive", db, "--limit", "5", "--json")
	assert.Contains(t, out, "[")
}

func TestTune_WritesBestConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "garden.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("garden:\n  max_blooms: 30\n  initial_blooms: 10\nworld:\n  bounds: 20\n"), 0644))

	out := execute(t, "tune", "--config", cfgPath, "--log-level", "error",
		"--output-dir", filepath.Join(dir, "tune"), "--ticks", "60", "--seeds", "1", "--max-evals", "4", "--population", "4")
	assert.Contains(t, out, "spawn_rate")

	best, err := config.Load(filepath.Join(dir, "tune", "best_config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 30, best.Garden.MaxBlooms)
}
