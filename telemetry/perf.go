package telemetry

import (
	"log/slog"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Phase names for a garden tick.
const (
	PhaseBlooms    = "blooms"
	PhaseRetire    = "retire"
	PhaseSpawn     = "spawn"
	PhaseAmbient   = "ambient"
	PhaseTelemetry = "telemetry"
)

// Phases lists every tick phase in execution order.
var Phases = []string{PhaseBlooms, PhaseRetire, PhaseSpawn, PhaseAmbient, PhaseTelemetry}

// tickSample is the timing of one garden tick.
type tickSample struct {
	total  time.Duration
	phases map[string]time.Duration
	blooms int // live blooms when the tick ended
}

// PerfCollector times garden ticks and their phases over a rolling window of
// ticks. The garden drives phases through StartPhase; the host brackets each
// tick with StartTick and EndTick.
type PerfCollector struct {
	window []tickSample
	next   int
	filled int

	current    map[string]time.Duration
	tickStart  time.Time
	phaseStart time.Time
	phase      string
}

// NewPerfCollector creates a collector over the last windowSize ticks.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		window:  make([]tickSample, windowSize),
		current: make(map[string]time.Duration),
	}
}

// StartTick begins timing a new tick.
func (p *PerfCollector) StartTick() {
	p.tickStart = time.Now()
	p.current = make(map[string]time.Duration, len(Phases))
	p.phase = ""
}

// StartPhase ends the running phase, if any, and starts timing phase.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	p.closePhase(now)
	p.phaseStart = now
	p.phase = phase
}

// EndTick closes the tick and records it with the live bloom count.
func (p *PerfCollector) EndTick(blooms int) {
	now := time.Now()
	p.closePhase(now)

	p.window[p.next] = tickSample{
		total:  now.Sub(p.tickStart),
		phases: p.current,
		blooms: blooms,
	}
	p.next = (p.next + 1) % len(p.window)
	p.filled = min(p.filled+1, len(p.window))
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.phase != "" {
		p.current[p.phase] += now.Sub(p.phaseStart)
	}
}

// PerfStats summarizes tick timing over the window.
type PerfStats struct {
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration
	P95TickDuration time.Duration

	PhaseAvg map[string]time.Duration
	PhasePct map[string]float64 // share of the average tick, in percent

	TicksPerSecond float64

	// AvgBlooms is the mean live population at tick end. BloomCost is the
	// average blooms phase divided by it: the price of updating one bloom.
	AvgBlooms float64
	BloomCost time.Duration
}

// Stats aggregates the ticks currently in the window.
func (p *PerfCollector) Stats() PerfStats {
	s := PerfStats{
		PhaseAvg: make(map[string]time.Duration),
		PhasePct: make(map[string]float64),
	}
	if p.filled == 0 {
		return s
	}

	totals := make([]float64, p.filled)
	blooms := make([]float64, p.filled)
	phaseSum := make(map[string]time.Duration)
	for i, t := range p.window[:p.filled] {
		totals[i] = float64(t.total)
		blooms[i] = float64(t.blooms)
		for phase, d := range t.phases {
			phaseSum[phase] += d
		}
	}

	n := time.Duration(p.filled)
	s.AvgTickDuration = time.Duration(stat.Mean(totals, nil))
	s.MinTickDuration = time.Duration(slices.Min(totals))
	s.MaxTickDuration = time.Duration(slices.Max(totals))
	slices.Sort(totals)
	s.P95TickDuration = time.Duration(stat.Quantile(0.95, stat.Empirical, totals, nil))
	s.AvgBlooms = stat.Mean(blooms, nil)

	for phase, sum := range phaseSum {
		avg := sum / n
		s.PhaseAvg[phase] = avg
		if s.AvgTickDuration > 0 {
			s.PhasePct[phase] = float64(avg) / float64(s.AvgTickDuration) * 100
		}
	}
	if s.AvgTickDuration > 0 {
		s.TicksPerSecond = float64(time.Second) / float64(s.AvgTickDuration)
	}
	if s.AvgBlooms > 0 {
		s.BloomCost = time.Duration(float64(s.PhaseAvg[PhaseBlooms]) / s.AvgBlooms)
	}
	return s
}

// LogStats logs the summary at Info, omitting phases under 0.1%.
func (s PerfStats) LogStats(logger *slog.Logger) {
	attrs := []any{
		"avg_tick_us", s.AvgTickDuration.Microseconds(),
		"p95_tick_us", s.P95TickDuration.Microseconds(),
		"ticks_per_sec", int(s.TicksPerSecond),
		"avg_blooms", s.AvgBlooms,
		"bloom_cost_ns", s.BloomCost.Nanoseconds(),
	}
	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", float64(int(pct*10))/10.0)
		}
	}
	logger.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("min_tick_us", s.MinTickDuration.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTickDuration.Microseconds()),
		slog.Int64("p95_tick_us", s.P95TickDuration.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
		slog.Float64("avg_blooms", s.AvgBlooms),
		slog.Int64("bloom_cost_ns", s.BloomCost.Nanoseconds()),
	}
	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok {
			attrs = append(attrs, slog.Float64(phase+"_pct", pct))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is one perf.csv row.
type PerfStatsCSV struct {
	WindowEnd    int64   `csv:"window_end"`
	AvgTickUS    int64   `csv:"avg_tick_us"`
	MinTickUS    int64   `csv:"min_tick_us"`
	MaxTickUS    int64   `csv:"max_tick_us"`
	P95TickUS    int64   `csv:"p95_tick_us"`
	TicksPerSec  float64 `csv:"ticks_per_sec"`
	AvgBlooms    float64 `csv:"avg_blooms"`
	BloomCostNS  int64   `csv:"bloom_cost_ns"`
	BloomsPct    float64 `csv:"blooms_pct"`
	RetirePct    float64 `csv:"retire_pct"`
	SpawnPct     float64 `csv:"spawn_pct"`
	AmbientPct   float64 `csv:"ambient_pct"`
	TelemetryPct float64 `csv:"telemetry_pct"`
}

// ToCSV flattens the summary for the window ending at windowEnd.
func (s PerfStats) ToCSV(windowEnd int64) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:    windowEnd,
		AvgTickUS:    s.AvgTickDuration.Microseconds(),
		MinTickUS:    s.MinTickDuration.Microseconds(),
		MaxTickUS:    s.MaxTickDuration.Microseconds(),
		P95TickUS:    s.P95TickDuration.Microseconds(),
		TicksPerSec:  s.TicksPerSecond,
		AvgBlooms:    s.AvgBlooms,
		BloomCostNS:  s.BloomCost.Nanoseconds(),
		BloomsPct:    s.PhasePct[PhaseBlooms],
		RetirePct:    s.PhasePct[PhaseRetire],
		SpawnPct:     s.PhasePct[PhaseSpawn],
		AmbientPct:   s.PhasePct[PhaseAmbient],
		TelemetryPct: s.PhasePct[PhaseTelemetry],
	}
}
