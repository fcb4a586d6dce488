// Package components defines ECS components for the garden.
package components

import "github.com/google/uuid"

// PatternSize is the length of a bloom's pattern vector.
const PatternSize = 64

// Pattern is the fixed-length vector a bloom distills from its nutrients.
type Pattern [PatternSize]float64

// Identity holds the immutable facts about a bloom.
type Identity struct {
	ID        uuid.UUID
	Kind      Kind
	BirthTime float64 // simulated seconds
	BirthTick int64
}

// Transition records entry into a stage.
type Transition struct {
	Stage Stage
	At    float64 // simulated seconds
}

// Lifecycle tracks the bloom's position in the stage machine.
// Stage is only written by the lifecycle controller.
type Lifecycle struct {
	Stage       Stage
	StageSince  float64
	LastUpdate  float64
	Transitions []Transition
}

// TimeInStage returns how long the bloom has been in its current stage.
func (l *Lifecycle) TimeInStage(now float64) float64 {
	return now - l.StageSince
}

// Enter moves the lifecycle into stage at time now and appends to the log.
func (l *Lifecycle) Enter(stage Stage, now float64) {
	l.Stage = stage
	l.StageSince = now
	l.LastUpdate = now
	l.Transitions = append(l.Transitions, Transition{Stage: stage, At: now})
}

// Vitals holds the bloom's health and what it has produced.
type Vitals struct {
	Health       float64 // [0, 1]
	Maturity     float64 // non-decreasing
	Insight      float64 // [0, 1], non-decreasing
	Interactions int     // resonance couplings ever formed

	AbsorptionRate       float64
	ConversionEfficiency float64

	Pattern   Pattern
	Patterned bool // Pattern has been initialized
}

// Resonance is a bloom's oscillation signature.
type Resonance struct {
	Frequency float64 // > 0
	Amplitude float64 // [0, 1]
	Phase     float64 // radians
	Coherence float64 // [0, 1]
}

// Links holds the ids of blooms currently coupled to this one.
// The relation is kept symmetric by the garden.
type Links struct {
	Peers map[uuid.UUID]struct{}
}

// Has reports whether id is linked.
func (l *Links) Has(id uuid.UUID) bool {
	_, ok := l.Peers[id]
	return ok
}

// Len returns the number of links.
func (l *Links) Len() int {
	return len(l.Peers)
}
