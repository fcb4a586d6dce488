package garden

import (
	"math"

	"github.com/google/uuid"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/garden/components"
	"github.com/pthm-cable/garden/config"
	"github.com/pthm-cable/garden/systems"
	"github.com/pthm-cable/garden/telemetry"
)

// Tick advances the garden by dt simulated seconds. A tick always runs to
// completion. Non-positive or non-finite dt is ignored.
func (g *Garden) Tick(dt float64) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.tick++
	g.now += dt

	// Snapshot handles first: retirement and spawning change storage
	g.startPhase(telemetry.PhaseBlooms)
	g.handles = g.handles[:0]
	query := g.bloomFilter.Query()
	for query.Next() {
		g.handles = append(g.handles, query.Entity())
	}
	for _, e := range g.handles {
		if g.world.Alive(e) {
			g.updateBloom(e, dt)
		}
	}

	g.startPhase(telemetry.PhaseRetire)
	for _, id := range g.pending {
		g.retire(id, false)
	}
	g.pending = g.pending[:0]

	g.startPhase(telemetry.PhaseSpawn)
	if g.rng.Float64() < g.cfg.Garden.SpawnRate*dt {
		g.plant(g.randomSeedling())
	}

	g.startPhase(telemetry.PhaseAmbient)
	systems.RegenerateAmbient(g.ambient, g.cfg.Nutrients.Equilibrium, g.cfg.Nutrients.RegenRate, dt)
}

// updateBloom runs one tick of growth, lifecycle, coupling and events for e.
func (g *Garden) updateBloom(e ecs.Entity, dt float64) {
	_, ident, life, vitals, nut, res, _ := g.bloomMapper.Get(e)
	if life.Stage.Terminal() {
		return
	}

	systems.Mature(vitals, dt)
	systems.Absorb(nut, g.ambient, vitals.AbsorptionRate, g.modifier(ident.Kind), dt)
	systems.Convert(life.Stage, vitals, nut, g.rng)
	systems.UpdateHealth(vitals, life.Stage, nut.TotalEnergy(), res.Coherence, dt)
	life.LastUpdate = g.now

	next, moved := systems.NextStage(life.Stage, life.TimeInStage(g.now), vitals, nut.TotalEnergy(), &g.cfg.Derived.StageDurations)
	if moved {
		g.enter(e, next)
		if next.Terminal() {
			g.pending = append(g.pending, ident.ID)
			return
		}
	}

	g.couple(e)
	g.checkInsight(e, dt)
	g.checkBurst(e, dt)
}

// couple links e with every resonant live neighbor in range and exchanges nutrients.
func (g *Garden) couple(e ecs.Entity) {
	pos, ident, _, vitals, nut, res, links := g.bloomMapper.Get(e)
	threshold := g.cfg.Garden.ResonanceThreshold

	g.neighbors = g.spatial.QueryInto(g.neighbors[:0], *pos, g.cfg.Garden.CrossPollinationRange)
	for _, peerID := range g.neighbors {
		if peerID == ident.ID {
			continue
		}
		pe, ok := g.byID[peerID]
		if !ok {
			continue
		}
		_, _, peerLife, peerVitals, peerNut, peerRes, peerLinks := g.bloomMapper.Get(pe)
		if peerLife.Stage.Terminal() {
			continue
		}

		strength := systems.Match(res.Frequency, peerRes.Frequency)
		if strength <= threshold {
			continue
		}
		if systems.Link(ident.ID, links, peerID, peerLinks) {
			vitals.Interactions++
			peerVitals.Interactions++
		}
		systems.Exchange(nut, peerNut, strength)
		systems.Attune(res, peerRes, g.cfg.Resonance.CoherenceBoost)
	}
}

// checkInsight may emit insight_generated for a ripe fruiting bloom.
func (g *Garden) checkInsight(e ecs.Entity, dt float64) {
	pos, ident, life, vitals, nut, _, links := g.bloomMapper.Get(e)
	ev := g.cfg.Events
	if life.Stage != components.StageFruiting || vitals.Insight <= ev.InsightThreshold {
		return
	}
	if g.rng.Float64() >= g.chance(ev.InsightChance, dt) {
		return
	}

	g.insights++
	g.emit(telemetry.Event{
		Kind:      telemetry.EventInsight,
		BloomID:   ident.ID,
		BloomKind: ident.Kind,
		Position:  *pos,
		Insight: &telemetry.InsightPayload{
			Score:       vitals.Insight,
			Pattern:     vitals.Pattern,
			Nutrients:   telemetry.SnapshotNutrients(nut),
			Connections: sortedLinks(links),
		},
	})
}

// checkBurst may fire a resonance burst across e and its connections.
func (g *Garden) checkBurst(e ecs.Entity, dt float64) {
	pos, ident, _, vitals, nut, res, links := g.bloomMapper.Get(e)
	ev := g.cfg.Events
	if res.Coherence <= ev.BurstCoherence || links.Len() <= ev.BurstMinConnections {
		return
	}
	if g.rng.Float64() >= g.chance(ev.BurstChance, dt) {
		return
	}

	cluster := append([]uuid.UUID{ident.ID}, sortedLinks(links)...)
	systems.Burst(nut, res, vitals)
	for _, peerID := range cluster[1:] {
		pe, ok := g.byID[peerID]
		if !ok {
			continue
		}
		_, _, peerLife, peerVitals, peerNut, peerRes, _ := g.bloomMapper.Get(pe)
		if peerLife.Stage.Terminal() {
			continue
		}
		systems.Burst(peerNut, peerRes, peerVitals)
	}

	g.bursts++
	g.emit(telemetry.Event{
		Kind:      telemetry.EventBurst,
		BloomID:   ident.ID,
		BloomKind: ident.Kind,
		Position:  *pos,
		Burst: &telemetry.BurstPayload{
			Coherence: res.Coherence,
			Cluster:   cluster,
		},
	})
}

// chance converts a configured event probability into this tick's probability.
func (g *Garden) chance(p, dt float64) float64 {
	if g.cfg.Events.Cadence == config.CadenceTime {
		return 1 - math.Pow(1-systems.Clamp01(p), dt)
	}
	return p
}

// modifier returns the climate growth modifier for kind, or 1.0 when the
// climate is missing, failing or returns an unusable value.
func (g *Garden) modifier(kind components.Kind) (m float64) {
	if g.climate == nil {
		return 1
	}
	defer func() {
		if r := recover(); r != nil {
			g.climateFault("climate panicked", "panic", r)
			m = 1
		}
	}()

	m, err := g.climate.Modifier(kind.String(), ModifierGrowth)
	switch {
	case err != nil:
		g.climateFault("climate unavailable", "error", err)
		return 1
	case math.IsNaN(m) || math.IsInf(m, 0) || m < 0:
		g.climateFault("climate returned unusable modifier", "value", m)
		return 1
	}
	if g.climateDown {
		g.climateDown = false
		g.logger.Info("climate recovered")
	}
	return m
}

// climateFault logs the first fault of a run of failures.
func (g *Garden) climateFault(msg string, args ...any) {
	if g.climateDown {
		return
	}
	g.climateDown = true
	g.logger.Warn(msg, args...)
}
