package tune

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/garden/config"
	"github.com/pthm-cable/garden/engine"
	"github.com/pthm-cable/garden/telemetry"
)

// Quality component weights.
const (
	qualityWeightSealRatio = 0.35
	qualityWeightStability = 0.25
	qualityWeightHealth    = 0.20
	qualityWeightInsight   = 0.20

	qualityWarmupWindows = 2 // skip first N windows (warmup)
	qualityMinPop        = 3 // exclude windows with fewer blooms than this
)

// Evaluator runs headless gardens and computes fitness.
type Evaluator struct {
	params     *ParamVector
	ticks      int64
	seeds      []int64
	baseConfig *config.Config

	mu          sync.Mutex
	lastQuality float64
}

// NewEvaluator creates an evaluator that runs each seed for ticks ticks.
func NewEvaluator(params *ParamVector, ticks int64, seeds []int64, base *config.Config) *Evaluator {
	return &Evaluator{
		params:     params,
		ticks:      ticks,
		seeds:      seeds,
		baseConfig: base,
	}
}

// LastQuality returns the mean quality from the most recent Evaluate call.
func (fe *Evaluator) LastQuality() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastQuality
}

type seedResult struct {
	fitness float64
	quality float64
}

// Evaluate computes fitness for raw parameter values (lower = better).
// Seeds run in parallel and their fitness is averaged. A cancelled ctx
// ends the runs early and scores whatever windows were collected.
func (fe *Evaluator) Evaluate(ctx context.Context, x []float64) float64 {
	results := make([]seedResult, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			windows := fe.runGarden(ctx, x, s)
			results[idx] = seedResult{
				fitness: computeFitness(windows),
				quality: computeQuality(windows),
			}
		}(i, seed)
	}
	wg.Wait()

	var totalFitness, totalQuality float64
	for _, r := range results {
		totalFitness += r.fitness
		totalQuality += r.quality
	}
	n := float64(max(len(fe.seeds), 1))

	fe.mu.Lock()
	fe.lastQuality = totalQuality / n
	fe.mu.Unlock()

	return totalFitness / n
}

// runGarden runs one seed and returns the window stats it produced.
func (fe *Evaluator) runGarden(ctx context.Context, x []float64, seed int64) []telemetry.WindowStats {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)
	if err := cfg.Refresh(); err != nil {
		return nil
	}

	var windows []telemetry.WindowStats
	e, err := engine.New(cfg, engine.Options{
		Seed:          seed,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		StatsCallback: func(s telemetry.WindowStats) { windows = append(windows, s) },
	})
	if err != nil {
		return nil
	}
	defer e.Close()

	_ = e.Run(ctx, fe.ticks)
	return windows
}

// copyConfig returns a copy of the base config that shares no maps with it.
func (fe *Evaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	cfg.Nutrients.Ambient = maps.Clone(fe.baseConfig.Nutrients.Ambient)
	cfg.Resonance.Frequencies = maps.Clone(fe.baseConfig.Resonance.Frequencies)
	cfg.Derived = config.DerivedConfig{}
	return &cfg
}

// computeFitness calculates the scalar fitness (lower = better).
// Formula: -(sealedPerHour × (1.0 + 0.2 × quality))
// Sealing rate dominates; quality adds up to 20% bonus to separate
// configs that seal at similar rates.
func computeFitness(windows []telemetry.WindowStats) float64 {
	if len(windows) == 0 {
		return 0
	}
	var sealed int
	for _, w := range windows {
		sealed += w.Sealed
	}
	hours := windows[len(windows)-1].SimTimeSec / 3600
	if hours <= 0 {
		return 0
	}
	return -(float64(sealed) / hours * (1.0 + 0.2*computeQuality(windows)))
}

// computeQuality computes garden quality ∈ [0, 1] from window stats.
func computeQuality(windows []telemetry.WindowStats) float64 {
	if len(windows) <= qualityWarmupWindows {
		return 0
	}

	var sealed, retired, insights int
	var healthSum float64
	counts := make([]float64, 0, len(windows))
	for _, w := range windows[qualityWarmupWindows:] {
		if w.Blooms < qualityMinPop {
			continue
		}
		counts = append(counts, float64(w.Blooms))
		sealed += w.Sealed
		retired += w.Sealed + w.Composted + w.Evicted
		insights += w.Insights
		healthSum += w.HealthMean
	}
	if len(counts) == 0 {
		return 0
	}

	// 1. Share of retirements that were seals
	sealScore := 0.0
	if retired > 0 {
		sealScore = float64(sealed) / float64(retired)
	}

	// 2. Population stability (CV across valid windows)
	stabilityScore := 0.0
	if len(counts) >= 2 {
		mean, std := stat.PopMeanStdDev(counts, nil)
		if mean > 0 {
			cv := std / mean
			stabilityScore = math.Exp(-cv * cv)
		}
	}

	// 3. Mean health
	healthScore := healthSum / float64(len(counts))

	// 4. Insights per bloom per window, saturating
	perBloom := float64(insights) / stat.Mean(counts, nil) / float64(len(counts))
	insightScore := 1 - math.Exp(-perBloom)

	quality := qualityWeightSealRatio*sealScore +
		qualityWeightStability*stabilityScore +
		qualityWeightHealth*healthScore +
		qualityWeightInsight*insightScore

	return min(max(quality, 0), 1)
}
