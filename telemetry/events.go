// Package telemetry provides garden event delivery, window statistics and run output.
package telemetry

import (
	"github.com/google/uuid"

	"github.com/pthm-cable/garden/components"
)

// EventKind identifies telemetry events.
type EventKind uint8

const (
	EventCreated EventKind = iota
	EventInsight
	EventBurst
	EventSealed
	EventComposted
)

var eventNames = [...]string{
	EventCreated:   "entity_created",
	EventInsight:   "insight_generated",
	EventBurst:     "resonance_burst",
	EventSealed:    "entity_sealed",
	EventComposted: "entity_composted",
}

// String returns the wire name of the event kind.
func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "unknown"
}

// Event is a single notification from the garden. Exactly one payload pointer is
// set for insight, burst, seal and compost events. Created events carry no payload.
type Event struct {
	Kind      EventKind
	Source    string
	Tick      int64
	Time      float64 // simulated seconds
	BloomID   uuid.UUID
	BloomKind components.Kind
	Position  components.Position

	Insight *InsightPayload
	Burst   *BurstPayload
	Seal    *SealRecord
	Compost *CompostRecord
}

// NutrientSnapshot is a copy of a bloom's nutrient stores keyed by name.
type NutrientSnapshot struct {
	Primary  map[string]float64 `json:"primary"`
	Catalyst map[string]float64 `json:"catalyst,omitempty"`
	Trace    map[string]float64 `json:"trace,omitempty"`
}

// SnapshotNutrients copies n so the snapshot outlives later mutation.
func SnapshotNutrients(n *components.Nutrients) NutrientSnapshot {
	return NutrientSnapshot{
		Primary:  byName(n.Primary),
		Catalyst: byName(n.Catalyst),
		Trace:    byName(n.Trace),
	}
}

func byName(m map[components.Nutrient]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

// InsightPayload accompanies insight_generated.
type InsightPayload struct {
	Score       float64
	Pattern     components.Pattern
	Nutrients   NutrientSnapshot
	Connections []uuid.UUID
}

// BurstPayload accompanies resonance_burst. Cluster holds the source and its peers.
type BurstPayload struct {
	Coherence float64
	Cluster   []uuid.UUID
}

// SealRecord is the preserved state of a sealed bloom.
type SealRecord struct {
	Pattern      components.Pattern
	Insight      float64
	Lifetime     float64
	Interactions int
	Nutrients    NutrientSnapshot
	Transitions  []components.Transition
}

// CompostRecord describes what a composted bloom returned to the ambient pool.
type CompostRecord struct {
	Returned map[string]float64
	Lifetime float64
	Evicted  bool // removed early to make room for a spawn
}

// NewCompostRecord converts the credited amounts to a record.
func NewCompostRecord(returned map[components.Nutrient]float64, lifetime float64, evicted bool) *CompostRecord {
	return &CompostRecord{
		Returned: byName(returned),
		Lifetime: lifetime,
		Evicted:  evicted,
	}
}

// Sink receives events. Implementations are called synchronously inside a tick
// and must not block or call back into the garden.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// MultiSink fans an event out to every non-nil sink in order.
type MultiSink []Sink

// Emit delivers e to each sink.
func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}
