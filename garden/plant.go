package garden

import (
	"bytes"
	"math"

	"github.com/google/uuid"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/garden/components"
	"github.com/pthm-cable/garden/systems"
	"github.com/pthm-cable/garden/telemetry"
)

// Seedling describes a bloom to plant. Zero-valued optional fields are drawn
// from the garden's random source and config.
type Seedling struct {
	Kind     components.Kind
	Position components.Position

	Frequency float64               // 0 draws the kind's base frequency with jitter
	Amplitude float64               // 0 draws from the configured range
	Phase     float64               // radians
	Nutrients *components.Nutrients // nil draws primary stores around the ambient levels
}

// Plant adds a bloom in the SEED stage and returns its id. At capacity the
// oldest WILTING bloom is composted to make room. ok is false if the kind is
// invalid or the garden is full with nothing to evict.
func (g *Garden) Plant(s Seedling) (id uuid.UUID, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.plant(s)
}

func (g *Garden) plant(s Seedling) (uuid.UUID, bool) {
	if !s.Kind.Valid() {
		return uuid.Nil, false
	}
	if len(g.byID) >= g.cfg.Garden.MaxBlooms && !g.evictOldestWilting() {
		g.logger.Debug("garden full, planting skipped", "blooms", len(g.byID))
		return uuid.Nil, false
	}

	id, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		g.logger.Warn("drawing bloom id", "error", err)
		return uuid.Nil, false
	}

	rc := g.cfg.Resonance
	pos := s.Position
	ident := components.Identity{
		ID:        id,
		Kind:      s.Kind,
		BirthTime: g.now,
		BirthTick: g.tick,
	}
	var life components.Lifecycle
	life.Enter(components.StageSeed, g.now)

	vitals := components.Vitals{
		Health:               1,
		AbsorptionRate:       g.cfg.Nutrients.AbsorptionRate,
		ConversionEfficiency: g.cfg.Nutrients.ConversionEfficiency,
	}

	res := components.Resonance{
		Frequency: s.Frequency,
		Amplitude: systems.Clamp01(s.Amplitude),
		Phase:     s.Phase,
		Coherence: systems.Clamp01(rc.InitialCoherence),
	}
	if res.Frequency <= 0 || math.IsNaN(res.Frequency) || math.IsInf(res.Frequency, 0) {
		jitter := 1 + (g.rng.Float64()*2-1)*rc.FrequencyJitter
		res.Frequency = g.cfg.Derived.Frequencies[s.Kind] * jitter
	}
	if s.Amplitude <= 0 {
		res.Amplitude = systems.Clamp01(rc.AmplitudeMin + g.rng.Float64()*(rc.AmplitudeMax-rc.AmplitudeMin))
	}

	nut := components.NewNutrients()
	if s.Nutrients != nil {
		copyStore(nut.Primary, s.Nutrients.Primary)
		copyStore(nut.Catalyst, s.Nutrients.Catalyst)
		copyStore(nut.Trace, s.Nutrients.Trace)
	} else {
		for _, name := range components.SortedNutrients(g.ambient) {
			nut.Primary[name] = systems.Clamp01(g.ambient[name] * (0.5 + g.rng.Float64()))
		}
	}

	links := components.Links{Peers: make(map[uuid.UUID]struct{})}

	e := g.bloomMapper.NewEntity(&pos, &ident, &life, &vitals, &nut, &res, &links)
	g.byID[id] = e
	g.byStage[components.StageSeed][id] = struct{}{}
	g.byKind[s.Kind][id] = struct{}{}
	g.spatial.Insert(id, pos)
	g.created++

	g.emit(telemetry.Event{
		Kind:      telemetry.EventCreated,
		BloomID:   id,
		BloomKind: s.Kind,
		Position:  pos,
	})
	return id, true
}

// copyStore copies src into dst, clamping every value to [0, 1].
func copyStore(dst, src map[components.Nutrient]float64) {
	for k, v := range src {
		dst[k] = systems.Clamp01(v)
	}
}

// randomSeedling draws a bloom of a random kind at a uniform position within bounds.
func (g *Garden) randomSeedling() Seedling {
	b := g.cfg.World.Bounds
	kind := components.Kind(g.rng.Intn(components.NumKinds))
	return Seedling{
		Kind: kind,
		Position: components.Position{
			X: (g.rng.Float64()*2 - 1) * b,
			Y: (g.rng.Float64()*2 - 1) * b,
			Z: (g.rng.Float64()*2 - 1) * b,
		},
		Phase: g.rng.Float64() * 2 * math.Pi,
	}
}

// evictOldestWilting composts the WILTING bloom with the earliest birth time,
// ties broken by id. It reports whether a bloom was evicted.
func (g *Garden) evictOldestWilting() bool {
	var (
		victim uuid.UUID
		born   float64
		found  bool
	)
	for id := range g.byStage[components.StageWilting] {
		_, ident, _, _, _, _, _ := g.bloomMapper.Get(g.byID[id])
		if !found || ident.BirthTime < born ||
			(ident.BirthTime == born && bytes.Compare(id[:], victim[:]) < 0) {
			victim, born, found = id, ident.BirthTime, true
		}
	}
	if !found {
		return false
	}

	e := g.byID[victim]
	g.enter(e, components.StageComposted)
	g.retire(victim, true)
	return true
}

// enter moves the bloom into stage, keeping the stage index in step.
func (g *Garden) enter(e ecs.Entity, stage components.Stage) {
	_, ident, life, _, _, _, _ := g.bloomMapper.Get(e)
	if life.Stage == stage {
		return
	}
	delete(g.byStage[life.Stage], ident.ID)
	g.byStage[stage][ident.ID] = struct{}{}

	g.logger.Debug("stage transition",
		"bloom", ident.ID,
		"kind", ident.Kind.String(),
		"from", life.Stage.String(),
		"to", stage.String(),
		"t", g.now,
	)
	life.Enter(stage, g.now)
}

// retire removes a terminal bloom from every index. Composted blooms return
// nutrients to the ambient pool. Sealed blooms emit their preserved state.
func (g *Garden) retire(id uuid.UUID, evicted bool) {
	e, ok := g.byID[id]
	if !ok {
		return
	}
	pos, ident, life, vitals, nut, _, links := g.bloomMapper.Get(e)
	lifetime := g.now - ident.BirthTime

	event := telemetry.Event{
		BloomID:   id,
		BloomKind: ident.Kind,
		Position:  *pos,
	}
	switch life.Stage {
	case components.StageSealed:
		event.Kind = telemetry.EventSealed
		event.Seal = &telemetry.SealRecord{
			Pattern:      vitals.Pattern,
			Insight:      vitals.Insight,
			Lifetime:     lifetime,
			Interactions: vitals.Interactions,
			Nutrients:    telemetry.SnapshotNutrients(nut),
			Transitions:  append([]components.Transition(nil), life.Transitions...),
		}
		g.sealed++
	case components.StageComposted:
		returned := systems.Compost(nut, g.ambient, g.cfg.Nutrients.CompostReturn)
		event.Kind = telemetry.EventComposted
		event.Compost = telemetry.NewCompostRecord(returned, lifetime, evicted)
		g.composted++
		if evicted {
			g.evicted++
		}
	default:
		g.logger.Warn("retiring non-terminal bloom", "bloom", id, "stage", life.Stage.String())
		return
	}

	systems.Unlink(id, links, func(peer uuid.UUID) *components.Links {
		pe, ok := g.byID[peer]
		if !ok {
			return nil
		}
		return g.linksMap.Get(pe)
	})
	g.spatial.Remove(id, *pos)
	delete(g.byStage[life.Stage], id)
	delete(g.byKind[ident.Kind], id)
	delete(g.byID, id)

	g.emit(event)
	g.world.RemoveEntity(e)
}
