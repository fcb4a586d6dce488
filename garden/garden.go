// Package garden runs the bloom simulation: planting, ticking, coupling and
// retiring blooms held in an ECS world.
package garden

import (
	"log/slog"
	"maps"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/garden/components"
	"github.com/pthm-cable/garden/config"
	"github.com/pthm-cable/garden/systems"
	"github.com/pthm-cable/garden/telemetry"
)

// EventSource is stamped on every event the garden emits.
const EventSource = "garden"

// ModifierGrowth is the climate modifier kind queried during absorption.
const ModifierGrowth = "growth"

// Climate supplies environmental multipliers. subject is the bloom kind name.
type Climate interface {
	Modifier(subject, kind string) (float64, error)
}

// PhaseTimer receives phase boundaries during a tick.
// *telemetry.PerfCollector satisfies it.
type PhaseTimer interface {
	StartPhase(phase string)
}

// Option configures a Garden.
type Option func(*Garden)

// WithClimate sets the climate collaborator. Without one every modifier is 1.0.
func WithClimate(c Climate) Option {
	return func(g *Garden) { g.climate = c }
}

// WithSink sets the event sink. Without one events are dropped.
func WithSink(s telemetry.Sink) Option {
	return func(g *Garden) { g.sink = s }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Garden) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithPhaseTimer reports tick phases to t.
func WithPhaseTimer(t PhaseTimer) Option {
	return func(g *Garden) { g.timer = t }
}

// Garden holds the complete simulation state. All methods are safe for
// concurrent use; each call holds the garden's lock for its duration.
type Garden struct {
	mu  sync.Mutex
	cfg *config.Config
	rng *rand.Rand

	world *ecs.World

	// Entity mapper for the 7 bloom components
	bloomMapper *ecs.Map7[
		components.Position,
		components.Identity,
		components.Lifecycle,
		components.Vitals,
		components.Nutrients,
		components.Resonance,
		components.Links,
	]
	bloomFilter *ecs.Filter7[
		components.Position,
		components.Identity,
		components.Lifecycle,
		components.Vitals,
		components.Nutrients,
		components.Resonance,
		components.Links,
	]

	// Single-component mapper for peer lookups during unlink
	linksMap *ecs.Map1[components.Links]

	// Derived indices
	byID    map[uuid.UUID]ecs.Entity
	byStage [components.NumStages]map[uuid.UUID]struct{}
	byKind  [components.NumKinds]map[uuid.UUID]struct{}
	spatial *systems.SpatialIndex

	ambient map[components.Nutrient]float64

	// State
	now     float64
	tick    int64
	pending []uuid.UUID // blooms that reached a terminal stage this tick

	// Totals
	created   int
	sealed    int
	composted int
	evicted   int
	insights  int
	bursts    int

	// Collaborators
	climate     Climate
	climateDown bool
	sink        telemetry.Sink
	logger      *slog.Logger
	timer       PhaseTimer

	// Scratch buffers reused across ticks
	handles   []ecs.Entity
	neighbors []uuid.UUID
}

// New creates a garden from cfg, drawing all randomness from rng.
// A nil cfg uses the embedded defaults. A nil rng is seeded with 1.
func New(cfg *config.Config, rng *rand.Rand, opts ...Option) *Garden {
	if cfg == nil {
		cfg = config.Default()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	world := ecs.NewWorld()
	g := &Garden{
		cfg:   cfg,
		rng:   rng,
		world: world,
		bloomMapper: ecs.NewMap7[
			components.Position,
			components.Identity,
			components.Lifecycle,
			components.Vitals,
			components.Nutrients,
			components.Resonance,
			components.Links,
		](world),
		bloomFilter: ecs.NewFilter7[
			components.Position,
			components.Identity,
			components.Lifecycle,
			components.Vitals,
			components.Nutrients,
			components.Resonance,
			components.Links,
		](world),
		linksMap: ecs.NewMap1[components.Links](world),
		byID:     make(map[uuid.UUID]ecs.Entity, cfg.Garden.MaxBlooms),
		spatial:  systems.NewSpatialIndex(cfg.World.GridCellSize),
		ambient:  maps.Clone(cfg.Derived.Ambient),
		logger:   slog.Default(),
	}
	for i := range g.byStage {
		g.byStage[i] = make(map[uuid.UUID]struct{})
	}
	for i := range g.byKind {
		g.byKind[i] = make(map[uuid.UUID]struct{})
	}
	if g.ambient == nil {
		g.ambient = make(map[components.Nutrient]float64)
	}

	for _, opt := range opts {
		opt(g)
	}

	for range cfg.Garden.InitialBlooms {
		g.plant(g.randomSeedling())
	}

	return g
}

// Now returns the simulated time in seconds.
func (g *Garden) Now() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now
}

// TickCount returns the number of completed ticks.
func (g *Garden) TickCount() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tick
}

// Len returns the number of live blooms.
func (g *Garden) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.byID)
}

// IDs returns the ids of every live bloom in storage order.
func (g *Garden) IDs() []uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(g.byID))
	query := g.bloomFilter.Query()
	for query.Next() {
		_, ident, _, _, _, _, _ := query.Get()
		ids = append(ids, ident.ID)
	}
	return ids
}

// Ambient returns a copy of the ambient nutrient levels.
func (g *Garden) Ambient() map[string]float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]float64, len(g.ambient))
	for k, v := range g.ambient {
		out[string(k)] = v
	}
	return out
}

// Neighbors returns the ids of other live blooms within radius of id, sorted by id.
// ok is false if id is not a live bloom.
func (g *Garden) Neighbors(id uuid.UUID, radius float64) ([]uuid.UUID, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.byID[id]
	if !ok {
		return nil, false
	}
	pos, _, _, _, _, _, _ := g.bloomMapper.Get(e)

	var out []uuid.UUID
	for _, other := range g.spatial.Query(*pos, radius) {
		if other != id {
			out = append(out, other)
		}
	}
	return out, true
}

// Bloom returns a copy of the bloom's state. ok is false if id is not live.
func (g *Garden) Bloom(id uuid.UUID) (BloomView, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.byID[id]
	if !ok {
		return BloomView{}, false
	}
	return g.view(e), true
}

// startPhase forwards a phase boundary to the timer, if any.
func (g *Garden) startPhase(phase string) {
	if g.timer != nil {
		g.timer.StartPhase(phase)
	}
}

// emit stamps and delivers e. A panicking sink is logged and the tick continues.
func (g *Garden) emit(e telemetry.Event) {
	if g.sink == nil {
		return
	}
	e.Source = EventSource
	e.Tick = g.tick
	e.Time = g.now

	defer func() {
		if r := recover(); r != nil {
			g.logger.Warn("event sink panicked", "event", e.Kind.String(), "bloom", e.BloomID, "panic", r)
		}
	}()
	g.sink.Emit(e)
}
