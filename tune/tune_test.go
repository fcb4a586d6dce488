package tune

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/garden/config"
	"github.com/pthm-cable/garden/telemetry"
)

func small() *config.Config {
	cfg := config.Default()
	cfg.Garden.MaxBlooms = 30
	cfg.Garden.InitialBlooms = 15
	cfg.World.Bounds = 20
	cfg.Telemetry.StatsWindow = 20
	return cfg
}

func TestParamVector_DefaultsMatchEmbeddedConfig(t *testing.T) {
	pv := NewParamVector()
	assert.Equal(t, pv.DefaultVector(), pv.ExtractFromConfig(config.Default()))
}

func TestParamVector_NormalizeRoundTrip(t *testing.T) {
	pv := NewParamVector()
	raw := pv.DefaultVector()
	norm := pv.Normalize(raw)
	for i, n := range norm {
		assert.GreaterOrEqual(t, n, 0.0, pv.Specs[i].Name)
		assert.LessOrEqual(t, n, 1.0, pv.Specs[i].Name)
	}
	assert.InDeltaSlice(t, raw, pv.Denormalize(norm), 1e-12)
}

func TestParamVector_ApplyClamps(t *testing.T) {
	pv := NewParamVector()
	values := make([]float64, pv.Dim())
	for i := range values {
		values[i] = 1e6
	}

	cfg := config.Default()
	pv.ApplyToConfig(cfg, values)

	got := pv.ExtractFromConfig(cfg)
	for i, spec := range pv.Specs {
		assert.Equal(t, spec.Max, got[i], spec.Name)
	}
	require.NoError(t, cfg.Refresh())
}

func TestEvaluator_DoesNotTouchBase(t *testing.T) {
	base := small()
	pv := NewParamVector()
	x := pv.DefaultVector()
	x[0] = 0.9

	NewEvaluator(pv, 60, []int64{1}, base).Evaluate(context.Background(), x)
	assert.Equal(t, 0.1, base.Garden.SpawnRate)
}

func TestEvaluator_Deterministic(t *testing.T) {
	pv := NewParamVector()
	fe := NewEvaluator(pv, 200, []int64{1, 2}, small())

	a := fe.Evaluate(context.Background(), pv.DefaultVector())
	b := fe.Evaluate(context.Background(), pv.DefaultVector())
	assert.Equal(t, a, b)
	assert.LessOrEqual(t, a, 0.0)
}

func TestComputeQuality(t *testing.T) {
	steady := func(n int) []telemetry.WindowStats {
		ws := make([]telemetry.WindowStats, n)
		for i := range ws {
			ws[i] = telemetry.WindowStats{Blooms: 20, Sealed: 2, Composted: 2, HealthMean: 0.5, SimTimeSec: float64(i+1) * 60}
		}
		return ws
	}

	assert.Zero(t, computeQuality(steady(qualityWarmupWindows)), "warmup only")

	q := computeQuality(steady(6))
	// seal ratio 0.5, perfectly stable, health 0.5, no insights
	assert.InDelta(t, 0.35*0.5+0.25+0.20*0.5, q, 1e-9)

	empty := steady(6)
	for i := range empty {
		empty[i].Blooms = 1
	}
	assert.Zero(t, computeQuality(empty))
}

func TestComputeFitness(t *testing.T) {
	assert.Zero(t, computeFitness(nil))

	ws := []telemetry.WindowStats{
		{Blooms: 10, Sealed: 3, SimTimeSec: 1800},
		{Blooms: 10, Sealed: 3, SimTimeSec: 3600},
	}
	// 6 sealed in one hour; too few windows for a quality bonus
	assert.Equal(t, -6.0, computeFitness(ws))
}

func TestRun_WritesLogAndBestConfig(t *testing.T) {
	dir := t.TempDir()
	res, err := Run(context.Background(), Options{
		Base:       small(),
		Ticks:      100,
		Seeds:      2,
		MaxEvals:   6,
		Population: 4,
		OutputDir:  dir,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	require.Positive(t, res.Evaluations)
	assert.Len(t, res.Best, NewParamVector().Dim())

	f, err := os.Open(filepath.Join(dir, "optimize_log.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, res.Evaluations+1)
	assert.Equal(t, []string{"eval", "fitness", "quality", "spawn_rate"}, rows[0][:4])

	best, err := config.Load(filepath.Join(dir, "best_config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, res.Best["spawn_rate"], best.Garden.SpawnRate)
	assert.Equal(t, 30, best.Garden.MaxBlooms, "base values carried over")
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := t.TempDir()
	_, err := Run(ctx, Options{Base: small(), Ticks: 50, MaxEvals: 20, OutputDir: dir,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	assert.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(filepath.Join(dir, "best_config.yaml"))
	assert.NoError(t, statErr)
}

func TestRun_RequiresOutputDir(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	assert.Error(t, err)
}
