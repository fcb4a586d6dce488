package garden

import (
	"bytes"
	"maps"
	"slices"

	"github.com/google/uuid"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/garden/components"
)

// BloomView is a detached copy of one bloom's state.
type BloomView struct {
	ID        uuid.UUID
	Kind      components.Kind
	Stage     components.Stage
	Position  components.Position
	BirthTime float64
	BirthTick int64

	StageSince  float64
	Transitions []components.Transition

	Health       float64
	Maturity     float64
	Insight      float64
	Interactions int
	Pattern      components.Pattern
	Patterned    bool

	Resonance components.Resonance
	Nutrients components.Nutrients
	Links     []uuid.UUID // sorted
}

// TotalEnergy returns the weighted nutrient energy at the time of the copy.
func (v BloomView) TotalEnergy() float64 {
	return v.Nutrients.TotalEnergy()
}

// view copies the components of e.
func (g *Garden) view(e ecs.Entity) BloomView {
	pos, ident, life, vitals, nut, res, links := g.bloomMapper.Get(e)
	return BloomView{
		ID:           ident.ID,
		Kind:         ident.Kind,
		Stage:        life.Stage,
		Position:     *pos,
		BirthTime:    ident.BirthTime,
		BirthTick:    ident.BirthTick,
		StageSince:   life.StageSince,
		Transitions:  slices.Clone(life.Transitions),
		Health:       vitals.Health,
		Maturity:     vitals.Maturity,
		Insight:      vitals.Insight,
		Interactions: vitals.Interactions,
		Pattern:      vitals.Pattern,
		Patterned:    vitals.Patterned,
		Resonance:    *res,
		Nutrients: components.Nutrients{
			Primary:  maps.Clone(nut.Primary),
			Catalyst: maps.Clone(nut.Catalyst),
			Trace:    maps.Clone(nut.Trace),
		},
		Links: sortedLinks(links),
	}
}

// sortedLinks returns the peers of l ordered by id.
func sortedLinks(l *components.Links) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(l.Peers))
	for id := range l.Peers {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareIDs)
	return ids
}

func compareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}
