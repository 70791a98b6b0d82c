package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	require.Equal(t, 3, c.WorkerCount)
	require.Equal(t, 2, c.BenchCount)
	require.Equal(t, 0.6, c.AutoSuccessChance)
	require.Equal(t, 64, c.CommandQueueSize)
	require.Equal(t, 256, c.LogCapacity)
}

func TestPresets(t *testing.T) {
	easy, err := Preset("Easy")
	require.NoError(t, err)
	require.Equal(t, 1, easy.WorkerCount)
	require.Equal(t, 45, easy.ModuleTimeoutSec)
	require.Equal(t, 2400, easy.ModuleSpawnIntervalMs)

	insane, err := Preset("insane")
	require.NoError(t, err)
	require.Equal(t, 3, insane.WorkerCount)
	require.Equal(t, 2, insane.BenchCount)
	require.Equal(t, 18, insane.ModuleTimeoutSec)
	require.Equal(t, 135, insane.RoundDurationSec)

	for _, name := range PresetNames() {
		c, err := Preset(name)
		require.NoError(t, err)
		require.NoError(t, c.Validate(), name)
	}

	_, err = Preset("nightmare")
	require.Error(t, err)
}

func TestParseOverridesPreset(t *testing.T) {
	doc := strings.TrimSpace(`
difficulty: hard
bench_count: 1
currency_per_module: 25
`)
	c, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, DifficultyHard, c.Difficulty)
	require.Equal(t, 3, c.WorkerCount)
	require.Equal(t, 1, c.BenchCount)
	require.Equal(t, 25, c.CurrencyPerModule)
	require.Equal(t, 24, c.ModuleTimeoutSec)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "round.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker_count: 5\nauto_success_chance: 0\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DifficultyStandard, c.Difficulty)
	require.Equal(t, 5, c.WorkerCount)
	require.Zero(t, c.AutoSuccessChance)
}

func TestLoadValidation(t *testing.T) {
	_, err := Parse([]byte("worker_count: 0\ntick_ms: -1\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "worker_count")
	require.Contains(t, err.Error(), "tick_ms")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
