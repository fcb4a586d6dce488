package garden

import (
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/garden/components"
	"github.com/pthm-cable/garden/telemetry"
)

// Stats is a point-in-time summary of the garden.
type Stats struct {
	Tick   int64
	Time   float64
	Blooms int

	ByStage map[string]int // every stage, including zero counts
	ByKind  map[string]int // every kind, including zero counts

	Created   int
	Sealed    int
	Composted int
	Evicted   int
	Insights  int
	Bursts    int

	Ambient map[string]float64

	AverageHealth  float64
	AverageInsight float64
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("tick", s.Tick),
		slog.Float64("time", s.Time),
		slog.Int("blooms", s.Blooms),
		slog.Int("created", s.Created),
		slog.Int("sealed", s.Sealed),
		slog.Int("composted", s.Composted),
		slog.Int("evicted", s.Evicted),
		slog.Int("insights", s.Insights),
		slog.Int("bursts", s.Bursts),
		slog.Float64("avg_health", s.AverageHealth),
		slog.Float64("avg_insight", s.AverageInsight),
	)
}

// Stats returns a summary of the garden. It does not modify state.
func (g *Garden) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Stats{
		Tick:      g.tick,
		Time:      g.now,
		Blooms:    len(g.byID),
		ByStage:   make(map[string]int, components.NumStages),
		ByKind:    make(map[string]int, components.NumKinds),
		Created:   g.created,
		Sealed:    g.sealed,
		Composted: g.composted,
		Evicted:   g.evicted,
		Insights:  g.insights,
		Bursts:    g.bursts,
		Ambient:   make(map[string]float64, len(g.ambient)),
	}
	for _, st := range components.AllStages() {
		s.ByStage[st.String()] = len(g.byStage[st])
	}
	for _, k := range components.AllKinds() {
		s.ByKind[k.String()] = len(g.byKind[k])
	}
	for name, level := range g.ambient {
		s.Ambient[string(name)] = level
	}

	health, insight := g.vitalsColumns()
	if len(health) > 0 {
		s.AverageHealth = stat.Mean(health, nil)
		s.AverageInsight = stat.Mean(insight, nil)
	}
	return s
}

// vitalsColumns returns health and insight for every live bloom in storage order.
func (g *Garden) vitalsColumns() (health, insight []float64) {
	health = make([]float64, 0, len(g.byID))
	insight = make([]float64, 0, len(g.byID))
	query := g.bloomFilter.Query()
	for query.Next() {
		_, _, _, vitals, _, _, _ := query.Get()
		health = append(health, vitals.Health)
		insight = append(insight, vitals.Insight)
	}
	return health, insight
}

// Sample measures the live population for a telemetry window.
func (g *Garden) Sample() telemetry.PopulationSample {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.byID)
	pop := telemetry.PopulationSample{
		Health:      make([]float64, 0, n),
		Insight:     make([]float64, 0, n),
		Coherence:   make([]float64, 0, n),
		Connections: make([]float64, 0, n),
		Ambient:     make(map[components.Nutrient]float64, len(g.ambient)),
	}
	for st := range g.byStage {
		pop.ByStage[st] = len(g.byStage[st])
	}
	for name, level := range g.ambient {
		pop.Ambient[name] = level
	}

	query := g.bloomFilter.Query()
	for query.Next() {
		_, _, _, vitals, _, res, links := query.Get()
		pop.Health = append(pop.Health, vitals.Health)
		pop.Insight = append(pop.Insight, vitals.Insight)
		pop.Coherence = append(pop.Coherence, res.Coherence)
		pop.Connections = append(pop.Connections, float64(links.Len()))
	}
	return pop
}

// Snapshot captures every live bloom, ordered by id, for offline inspection.
func (g *Garden) Snapshot(seed int64) *telemetry.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := &telemetry.Snapshot{
		Version: telemetry.SnapshotVersion,
		RNGSeed: seed,
		Tick:    g.tick,
		SimTime: g.now,
		Ambient: make(map[string]float64, len(g.ambient)),
		Blooms:  make([]telemetry.BloomState, 0, len(g.byID)),
	}
	for name, level := range g.ambient {
		snap.Ambient[string(name)] = level
	}

	for _, e := range g.byID {
		v := g.view(e)
		state := telemetry.BloomState{
			ID:           v.ID,
			Kind:         v.Kind.String(),
			Stage:        v.Stage.String(),
			X:            v.Position.X,
			Y:            v.Position.Y,
			Z:            v.Position.Z,
			BirthTime:    v.BirthTime,
			StageSince:   v.StageSince,
			Health:       v.Health,
			Maturity:     v.Maturity,
			Insight:      v.Insight,
			Interactions: v.Interactions,
			Frequency:    v.Resonance.Frequency,
			Amplitude:    v.Resonance.Amplitude,
			Phase:        v.Resonance.Phase,
			Coherence:    v.Resonance.Coherence,
			Nutrients:    telemetry.SnapshotNutrients(&v.Nutrients),
			Links:        v.Links,
		}
		if v.Patterned {
			state.Pattern = v.Pattern[:]
		}
		snap.Blooms = append(snap.Blooms, state)
	}
	slices.SortFunc(snap.Blooms, func(a, b telemetry.BloomState) int {
		return compareIDs(a.ID, b.ID)
	})
	return snap
}
