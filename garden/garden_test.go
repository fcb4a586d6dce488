package garden

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/garden/components"
	"github.com/pthm-cable/garden/config"
	"github.com/pthm-cable/garden/telemetry"
)

// ---------- helpers ----------

// quietConfig returns defaults with spawning turned off.
func quietConfig() *config.Config {
	cfg := config.Default()
	cfg.Garden.SpawnRate = 0
	return cfg
}

type recorder struct {
	events []telemetry.Event
}

func (r *recorder) Emit(e telemetry.Event) {
	r.events = append(r.events, e)
}

func (r *recorder) ofKind(kind telemetry.EventKind) []telemetry.Event {
	var out []telemetry.Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func mustPlant(t *testing.T, g *Garden, s Seedling) uuid.UUID {
	t.Helper()
	id, ok := g.Plant(s)
	require.True(t, ok)
	return id
}

// mutate edits a live bloom's components in place.
func mutate(t *testing.T, g *Garden, id uuid.UUID, fn func(ident *components.Identity, v *components.Vitals, n *components.Nutrients, r *components.Resonance)) {
	t.Helper()
	e, ok := g.byID[id]
	require.True(t, ok, "bloom %s not live", id)
	_, ident, _, vitals, nut, res, _ := g.bloomMapper.Get(e)
	fn(ident, vitals, nut, res)
}

func force(t *testing.T, g *Garden, id uuid.UUID, stage components.Stage) {
	t.Helper()
	e, ok := g.byID[id]
	require.True(t, ok)
	g.enter(e, stage)
}

func mustBloom(t *testing.T, g *Garden, id uuid.UUID) BloomView {
	t.Helper()
	v, ok := g.Bloom(id)
	require.True(t, ok, "bloom %s not live", id)
	return v
}

// ---------- construction ----------

func TestNew_Defaults(t *testing.T) {
	g := New(nil, nil)

	assert.Equal(t, 0, g.Len())
	assert.Equal(t, int64(0), g.TickCount())
	assert.Equal(t, 0.0, g.Now())
	assert.Equal(t, map[string]float64{
		"consciousness": 0.5,
		"memory":        0.3,
		"emotion":       0.4,
		"logic":         0.6,
		"creativity":    0.7,
	}, g.Ambient())
}

func TestNew_InitialBlooms(t *testing.T) {
	cfg := quietConfig()
	cfg.Garden.InitialBlooms = 12
	rec := &recorder{}

	g := New(cfg, rand.New(rand.NewSource(3)), WithSink(rec))

	assert.Equal(t, 12, g.Len())
	assert.Len(t, rec.ofKind(telemetry.EventCreated), 12)
	for _, id := range g.IDs() {
		v := mustBloom(t, g, id)
		assert.Equal(t, components.StageSeed, v.Stage)
		assert.LessOrEqual(t, math.Abs(v.Position.X), cfg.World.Bounds)
		assert.LessOrEqual(t, math.Abs(v.Position.Y), cfg.World.Bounds)
		assert.LessOrEqual(t, math.Abs(v.Position.Z), cfg.World.Bounds)
	}
}

// ---------- plant ----------

func TestPlant_DrawsFromConfig(t *testing.T) {
	cfg := quietConfig()
	g := New(cfg, rand.New(rand.NewSource(1)))

	id := mustPlant(t, g, Seedling{Kind: components.KindQuantum})
	v := mustBloom(t, g, id)

	assert.Equal(t, components.KindQuantum, v.Kind)
	assert.Equal(t, 1.0, v.Health)
	assert.Equal(t, 0.5, v.Resonance.Coherence)
	assert.InDelta(t, 4.0, v.Resonance.Frequency, 4.0*cfg.Resonance.FrequencyJitter)
	assert.GreaterOrEqual(t, v.Resonance.Amplitude, cfg.Resonance.AmplitudeMin)
	assert.LessOrEqual(t, v.Resonance.Amplitude, cfg.Resonance.AmplitudeMax)
	assert.Len(t, v.Nutrients.Primary, 5)
	for name, amount := range v.Nutrients.Primary {
		level := cfg.Nutrients.Ambient[string(name)]
		assert.GreaterOrEqual(t, amount, level*0.5, name)
		assert.LessOrEqual(t, amount, math.Min(1, level*1.5), name)
	}
	assert.Equal(t, []components.Transition{{Stage: components.StageSeed, At: 0}}, v.Transitions)
}

func TestPlant_NonFiniteFrequencyDrawsDefault(t *testing.T) {
	cfg := quietConfig()
	g := New(cfg, rand.New(rand.NewSource(1)))

	for _, f := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		id := mustPlant(t, g, Seedling{Kind: components.KindMemory, Frequency: f})
		v := mustBloom(t, g, id)
		assert.InDelta(t, 0.5, v.Resonance.Frequency, 0.5*cfg.Resonance.FrequencyJitter, "frequency %v", f)
	}
}

func TestPlant_InvalidKind(t *testing.T) {
	g := New(quietConfig(), nil)
	id, ok := g.Plant(Seedling{Kind: components.Kind(200)})
	assert.False(t, ok)
	assert.Equal(t, uuid.Nil, id)
	assert.Equal(t, 0, g.Len())
}

func TestPlant_FullWithoutWilting(t *testing.T) {
	cfg := quietConfig()
	cfg.Garden.MaxBlooms = 2
	g := New(cfg, nil)

	mustPlant(t, g, Seedling{Kind: components.KindMemory})
	mustPlant(t, g, Seedling{Kind: components.KindMemory})

	id, ok := g.Plant(Seedling{Kind: components.KindMemory})
	assert.False(t, ok)
	assert.Equal(t, uuid.Nil, id)
	assert.Equal(t, 2, g.Len())
}

// ---------- scenarios ----------

func TestTick_HarmonicPairCouplesOnFirstTick(t *testing.T) {
	g := New(quietConfig(), rand.New(rand.NewSource(7)))

	a := mustPlant(t, g, Seedling{Kind: components.KindInsight, Frequency: 2.0})
	b := mustPlant(t, g, Seedling{Kind: components.KindQuantum, Frequency: 4.0, Position: components.Position{X: 1}})
	far := mustPlant(t, g, Seedling{Kind: components.KindInsight, Frequency: 2.0, Position: components.Position{X: 500}})
	// 2/1.45 and 4/1.45 sit between harmonics and below the threshold
	off := mustPlant(t, g, Seedling{Kind: components.KindLogical, Frequency: 1.45, Position: components.Position{Y: 1}})

	g.Tick(1)

	va, vb := mustBloom(t, g, a), mustBloom(t, g, b)
	assert.Contains(t, va.Links, b)
	assert.Contains(t, vb.Links, a)
	assert.Equal(t, 1, va.Interactions)
	assert.Equal(t, 1, vb.Interactions)
	assert.InDelta(t, 0.52, va.Resonance.Coherence, 1e-12)

	assert.Empty(t, mustBloom(t, g, far).Links)
	assert.Empty(t, mustBloom(t, g, off).Links)

	g.Tick(1)
	assert.Equal(t, 1, mustBloom(t, g, a).Interactions, "existing link is not a new interaction")
}

func TestTick_SeedGerminatesOnceAfterNominal(t *testing.T) {
	g := New(quietConfig(), rand.New(rand.NewSource(1)))
	id := mustPlant(t, g, Seedling{
		Kind:      components.KindLogical,
		Nutrients: &components.Nutrients{Primary: map[components.Nutrient]float64{"logic": 0.5}},
	})
	mutate(t, g, id, func(_ *components.Identity, v *components.Vitals, n *components.Nutrients, _ *components.Resonance) {
		v.AbsorptionRate = 0
		assert.Equal(t, 0.5, n.TotalEnergy())
	})

	for g.Now() < 6 {
		g.Tick(0.5)
		v := mustBloom(t, g, id)
		if g.Now() < 5 {
			assert.Equal(t, components.StageSeed, v.Stage, "t=%v", g.Now())
		} else {
			assert.Equal(t, components.StageGerminating, v.Stage, "t=%v", g.Now())
		}
	}

	v := mustBloom(t, g, id)
	assert.Equal(t, []components.Transition{
		{Stage: components.StageSeed, At: 0},
		{Stage: components.StageGerminating, At: 5},
	}, v.Transitions)
}

func TestTick_WiltingFate(t *testing.T) {
	cfg := quietConfig()
	rec := &recorder{}
	g := New(cfg, rand.New(rand.NewSource(2)), WithSink(rec))

	sealed := mustPlant(t, g, Seedling{Kind: components.KindInsight, Position: components.Position{X: -400}})
	composted := mustPlant(t, g, Seedling{
		Kind:     components.KindMemory,
		Position: components.Position{X: 400},
		Nutrients: &components.Nutrients{Primary: map[components.Nutrient]float64{
			"logic":      0.4,
			"creativity": 1.0,
		}},
	})
	force(t, g, sealed, components.StageWilting)
	force(t, g, composted, components.StageWilting)
	mutate(t, g, sealed, func(_ *components.Identity, v *components.Vitals, _ *components.Nutrients, _ *components.Resonance) {
		v.Insight, v.Interactions, v.Health = 0.6, 6, 0.05
	})
	mutate(t, g, composted, func(_ *components.Identity, v *components.Vitals, _ *components.Nutrients, _ *components.Resonance) {
		v.Insight, v.Interactions, v.Health = 0.2, 1, 0.05
		v.AbsorptionRate = 0
	})

	g.Tick(1)

	assert.Equal(t, 0, g.Len())
	s := g.Stats()
	assert.Equal(t, 1, s.Sealed)
	assert.Equal(t, 1, s.Composted)
	assert.Equal(t, 0, s.Evicted)
	assert.Equal(t, 0, s.ByStage["sealed"])
	assert.Equal(t, 0, s.ByStage["composted"])

	seals := rec.ofKind(telemetry.EventSealed)
	require.Len(t, seals, 1)
	assert.Equal(t, sealed, seals[0].BloomID)
	assert.Equal(t, 0.6, seals[0].Seal.Insight)
	assert.Equal(t, 6, seals[0].Seal.Interactions)
	assert.Equal(t, components.StageSealed, seals[0].Seal.Transitions[len(seals[0].Seal.Transitions)-1].Stage)

	composts := rec.ofKind(telemetry.EventComposted)
	require.Len(t, composts, 1)
	assert.Equal(t, composted, composts[0].BloomID)
	assert.False(t, composts[0].Compost.Evicted)
	assert.InDelta(t, 0.2, composts[0].Compost.Returned["logic"], 1e-12)
	assert.InDelta(t, 0.3, composts[0].Compost.Returned["creativity"], 1e-12, "capped at 1.0")

	// Credited, then relaxed toward equilibrium for one second
	ambient := g.Ambient()
	assert.InDelta(t, 0.8+(0.5-0.8)*0.01, ambient["logic"], 1e-12)
	assert.InDelta(t, 1.0+(0.5-1.0)*0.01, ambient["creativity"], 1e-12)
	assert.InDelta(t, 0.3+(0.5-0.3)*0.01, ambient["memory"], 1e-12)
}

func TestTick_SpawnEvictsOldestWilting(t *testing.T) {
	cfg := quietConfig()
	cfg.Garden.MaxBlooms = 3
	cfg.Garden.SpawnRate = 1
	rec := &recorder{}
	g := New(cfg, rand.New(rand.NewSource(4)), WithSink(rec))

	younger := mustPlant(t, g, Seedling{Kind: components.KindEmotional})
	older := mustPlant(t, g, Seedling{Kind: components.KindEmotional})
	other := mustPlant(t, g, Seedling{Kind: components.KindEmotional})
	force(t, g, younger, components.StageWilting)
	force(t, g, older, components.StageWilting)
	mutate(t, g, younger, func(ident *components.Identity, _ *components.Vitals, _ *components.Nutrients, _ *components.Resonance) {
		ident.BirthTime = -5
	})
	mutate(t, g, older, func(ident *components.Identity, _ *components.Vitals, _ *components.Nutrients, _ *components.Resonance) {
		ident.BirthTime = -10
	})

	g.Tick(1)

	assert.Equal(t, 3, g.Len())
	_, ok := g.Bloom(older)
	assert.False(t, ok, "oldest wilting bloom is evicted")
	mustBloom(t, g, younger)
	mustBloom(t, g, other)

	s := g.Stats()
	assert.Equal(t, 4, s.Created)
	assert.Equal(t, 1, s.Evicted)
	assert.Equal(t, 1, s.Composted)

	composts := rec.ofKind(telemetry.EventComposted)
	require.Len(t, composts, 1)
	assert.Equal(t, older, composts[0].BloomID)
	assert.True(t, composts[0].Compost.Evicted)
}

func TestTick_SpawnSkippedWhenFull(t *testing.T) {
	cfg := quietConfig()
	cfg.Garden.MaxBlooms = 2
	cfg.Garden.SpawnRate = 1
	g := New(cfg, nil)
	mustPlant(t, g, Seedling{Kind: components.KindSynthetic})
	mustPlant(t, g, Seedling{Kind: components.KindSynthetic})

	g.Tick(1)

	assert.Equal(t, 2, g.Len())
	assert.Equal(t, 2, g.Stats().Created)
}

// ---------- events ----------

func TestTick_InsightEvent(t *testing.T) {
	cfg := quietConfig()
	cfg.Events.InsightChance = 1
	rec := &recorder{}
	g := New(cfg, rand.New(rand.NewSource(9)), WithSink(rec))

	id := mustPlant(t, g, Seedling{Kind: components.KindInsight})
	force(t, g, id, components.StageFruiting)
	mutate(t, g, id, func(_ *components.Identity, v *components.Vitals, _ *components.Nutrients, _ *components.Resonance) {
		v.Insight = 0.85
	})

	g.Tick(1)

	insights := rec.ofKind(telemetry.EventInsight)
	require.Len(t, insights, 1)
	e := insights[0]
	assert.Equal(t, id, e.BloomID)
	assert.Equal(t, EventSource, e.Source)
	assert.Equal(t, int64(1), e.Tick)
	assert.GreaterOrEqual(t, e.Insight.Score, 0.85)
	assert.Empty(t, e.Insight.Connections)
	assert.NotZero(t, e.Insight.Pattern)
	assert.NotEmpty(t, e.Insight.Nutrients.Primary)
	assert.Equal(t, 1, g.Stats().Insights)
}

func TestTick_ResonanceBurst(t *testing.T) {
	cfg := quietConfig()
	cfg.Events.BurstChance = 1
	cfg.Resonance.InitialCoherence = 0.95
	rec := &recorder{}
	g := New(cfg, rand.New(rand.NewSource(5)), WithSink(rec))

	for i := range 5 {
		mustPlant(t, g, Seedling{Kind: components.KindInsight, Frequency: 2.0, Position: components.Position{X: float64(i)}})
	}

	g.Tick(1)

	bursts := rec.ofKind(telemetry.EventBurst)
	require.Len(t, bursts, 5)
	for _, e := range bursts {
		require.Len(t, e.Burst.Cluster, 5)
		assert.Equal(t, e.BloomID, e.Burst.Cluster[0])
	}
	for _, id := range g.IDs() {
		v := mustBloom(t, g, id)
		assert.Equal(t, 1.0, v.Resonance.Coherence)
		assert.Equal(t, 1.0, v.Health)
	}
	assert.Equal(t, 5, g.Stats().Bursts)
}

func TestChance_Cadence(t *testing.T) {
	cfg := quietConfig()
	g := New(cfg, nil)

	assert.Equal(t, 0.01, g.chance(0.01, 2))

	cfg.Events.Cadence = config.CadenceTime
	assert.InDelta(t, 1-0.99*0.99, g.chance(0.01, 2), 1e-12)
	assert.InDelta(t, 0.01, g.chance(0.01, 1), 1e-12)
}

// ---------- collaborators ----------

type climateFunc func(subject, kind string) (float64, error)

func (f climateFunc) Modifier(subject, kind string) (float64, error) { return f(subject, kind) }

func TestTick_ClimateScalesAbsorption(t *testing.T) {
	var calls []string
	dry := climateFunc(func(subject, kind string) (float64, error) {
		calls = append(calls, subject+"/"+kind)
		return 0, nil
	})
	g := New(quietConfig(), nil, WithClimate(dry))
	id := mustPlant(t, g, Seedling{Kind: components.KindCreative, Nutrients: &components.Nutrients{}})

	g.Tick(1)

	assert.Equal(t, []string{"creative/growth"}, calls)
	assert.Equal(t, 0.0, mustBloom(t, g, id).TotalEnergy())
}

func TestTick_FaultyClimateFallsBack(t *testing.T) {
	faults := map[string]Climate{
		"error":    climateFunc(func(string, string) (float64, error) { return 0, errors.New("offline") }),
		"nan":      climateFunc(func(string, string) (float64, error) { return math.NaN(), nil }),
		"negative": climateFunc(func(string, string) (float64, error) { return -1, nil }),
		"panic":    climateFunc(func(string, string) (float64, error) { panic("boom") }),
	}

	run := func(opts ...Option) Stats {
		cfg := quietConfig()
		cfg.Garden.InitialBlooms = 8
		g := New(cfg, rand.New(rand.NewSource(11)), opts...)
		for range 30 {
			g.Tick(1)
		}
		return g.Stats()
	}
	want := run()

	for name, c := range faults {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

			assert.Equal(t, want, run(WithClimate(c), WithLogger(logger)))
			assert.Equal(t, 1, strings.Count(buf.String(), "level=WARN"), "warn once per outage")
		})
	}
}

func TestTick_PanickingSink(t *testing.T) {
	cfg := quietConfig()
	cfg.Garden.InitialBlooms = 5
	cfg.Garden.SpawnRate = 0.5
	sink := telemetry.SinkFunc(func(telemetry.Event) { panic("sink down") })
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	g := New(cfg, rand.New(rand.NewSource(6)), WithSink(sink), WithLogger(logger))
	for range 20 {
		g.Tick(1)
	}

	assert.Equal(t, int64(20), g.TickCount())
	assert.GreaterOrEqual(t, g.Stats().Created, 5)
}

type phaseLog []string

func (p *phaseLog) StartPhase(phase string) { *p = append(*p, phase) }

func TestTick_PhaseOrder(t *testing.T) {
	var phases phaseLog
	g := New(quietConfig(), nil, WithPhaseTimer(&phases))
	g.Tick(1)
	assert.Equal(t, phaseLog{
		telemetry.PhaseBlooms,
		telemetry.PhaseRetire,
		telemetry.PhaseSpawn,
		telemetry.PhaseAmbient,
	}, phases)
}

func TestTick_IgnoresBadDT(t *testing.T) {
	g := New(quietConfig(), nil)
	for _, dt := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		g.Tick(dt)
	}
	assert.Equal(t, int64(0), g.TickCount())
	assert.Equal(t, 0.0, g.Now())
}

// ---------- accessors ----------

func TestNeighbors(t *testing.T) {
	g := New(quietConfig(), nil)
	a := mustPlant(t, g, Seedling{Kind: components.KindMemory})
	b := mustPlant(t, g, Seedling{Kind: components.KindMemory, Position: components.Position{X: 3}})
	mustPlant(t, g, Seedling{Kind: components.KindMemory, Position: components.Position{X: 30}})

	got, ok := g.Neighbors(a, 5)
	require.True(t, ok)
	assert.Equal(t, []uuid.UUID{b}, got)

	_, ok = g.Neighbors(uuid.New(), 5)
	assert.False(t, ok)
}

func TestStats_IncludesEveryStageAndKind(t *testing.T) {
	g := New(quietConfig(), nil)
	mustPlant(t, g, Seedling{Kind: components.KindMemory})

	s := g.Stats()
	assert.Len(t, s.ByStage, components.NumStages)
	assert.Len(t, s.ByKind, components.NumKinds)
	assert.Equal(t, 1, s.ByStage["seed"])
	assert.Equal(t, 1, s.ByKind["memory"])
	assert.Equal(t, 0, s.ByKind["quantum"])
	assert.Equal(t, 1.0, s.AverageHealth)
	assert.Equal(t, 0.0, s.AverageInsight)

	empty := New(quietConfig(), nil).Stats()
	assert.Equal(t, 0.0, empty.AverageHealth)
}

func TestSnapshot_SortedByID(t *testing.T) {
	cfg := quietConfig()
	cfg.Garden.InitialBlooms = 10
	g := New(cfg, rand.New(rand.NewSource(8)))

	snap := g.Snapshot(8)
	assert.Equal(t, int64(8), snap.RNGSeed)
	require.Len(t, snap.Blooms, 10)
	for i := 1; i < len(snap.Blooms); i++ {
		assert.Negative(t, compareIDs(snap.Blooms[i-1].ID, snap.Blooms[i].ID))
	}
	assert.Equal(t, "seed", snap.Blooms[0].Stage)
	assert.Nil(t, snap.Blooms[0].Pattern)
}

func TestGarden_ConcurrentReads(t *testing.T) {
	cfg := quietConfig()
	cfg.Garden.InitialBlooms = 20
	g := New(cfg, rand.New(rand.NewSource(12)))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 50 {
			g.Tick(1)
		}
	}()
	go func() {
		defer wg.Done()
		for range 50 {
			_ = g.Stats()
			_ = g.Sample()
			for _, id := range g.IDs() {
				g.Bloom(id)
			}
		}
	}()
	wg.Wait()

	assert.Equal(t, int64(50), g.TickCount())
}
