package telemetry

import (
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartTick int64   `csv:"-"`
	WindowEndTick   int64   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Population at window end
	Blooms      int `csv:"blooms"`
	Seeds       int `csv:"seed"`
	Germinating int `csv:"germinating"`
	Budding     int `csv:"budding"`
	Flowering   int `csv:"flowering"`
	Fruiting    int `csv:"fruiting"`
	Wilting     int `csv:"wilting"`

	// Events during window
	Created   int `csv:"created"`
	Sealed    int `csv:"sealed"`
	Composted int `csv:"composted"`
	Evicted   int `csv:"evicted"`
	Insights  int `csv:"insights"`
	Bursts    int `csv:"bursts"`

	// Distributions sampled at window end
	HealthMean float64 `csv:"health_mean"`
	HealthP10  float64 `csv:"health_p10"`
	HealthP50  float64 `csv:"health_p50"`
	HealthP90  float64 `csv:"health_p90"`

	InsightMean float64 `csv:"insight_mean"`
	InsightP10  float64 `csv:"insight_p10"`
	InsightP50  float64 `csv:"insight_p50"`
	InsightP90  float64 `csv:"insight_p90"`

	CoherenceMean   float64 `csv:"coherence_mean"`
	ConnectionsMean float64 `csv:"connections_mean"`
	AmbientMean     float64 `csv:"ambient_mean"`
}

// Distribution returns the mean and 10th, 50th and 90th percentiles of values.
// Percentiles use the empirical CDF. Empty input yields zeros.
func Distribution(values []float64) (mean, p10, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	mean = stat.Mean(sorted, nil)
	p10 = stat.Quantile(0.10, stat.Empirical, sorted, nil)
	p50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	p90 = stat.Quantile(0.90, stat.Empirical, sorted, nil)
	return mean, p10, p50, p90
}

// Mean returns the arithmetic mean of values, or 0 when empty.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("window_start", s.WindowStartTick),
		slog.Int64("window_end", s.WindowEndTick),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("blooms", s.Blooms),
		slog.Int("seed", s.Seeds),
		slog.Int("germinating", s.Germinating),
		slog.Int("budding", s.Budding),
		slog.Int("flowering", s.Flowering),
		slog.Int("fruiting", s.Fruiting),
		slog.Int("wilting", s.Wilting),
		slog.Int("created", s.Created),
		slog.Int("sealed", s.Sealed),
		slog.Int("composted", s.Composted),
		slog.Int("evicted", s.Evicted),
		slog.Int("insights", s.Insights),
		slog.Int("bursts", s.Bursts),
		slog.Float64("health_mean", s.HealthMean),
		slog.Float64("health_p10", s.HealthP10),
		slog.Float64("health_p50", s.HealthP50),
		slog.Float64("health_p90", s.HealthP90),
		slog.Float64("insight_mean", s.InsightMean),
		slog.Float64("insight_p10", s.InsightP10),
		slog.Float64("insight_p50", s.InsightP50),
		slog.Float64("insight_p90", s.InsightP90),
		slog.Float64("coherence_mean", s.CoherenceMean),
		slog.Float64("connections_mean", s.ConnectionsMean),
		slog.Float64("ambient_mean", s.AmbientMean),
	)
}

// LogStats logs the window stats using logger.
func (s WindowStats) LogStats(logger *slog.Logger) {
	logger.Info("stats", "window", s)
}
