package telemetry

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/pthm-cable/garden/components"
)

func TestCollector_CountsEvents(t *testing.T) {
	c := NewCollector(10)

	for _, kind := range []EventKind{EventCreated, EventCreated, EventInsight, EventBurst, EventSealed} {
		c.Emit(Event{Kind: kind})
	}
	c.Emit(Event{Kind: EventComposted, Compost: &CompostRecord{}})
	c.Emit(Event{Kind: EventComposted, Compost: &CompostRecord{Evicted: true}})

	pop := PopulationSample{
		Health:      []float64{0.2, 0.4, 0.6, 0.8},
		Insight:     []float64{0, 0, 0.5, 1},
		Coherence:   []float64{0.5, 0.5, 0.5, 0.5},
		Connections: []float64{0, 2, 2, 4},
		Ambient:     map[components.Nutrient]float64{"logic": 0.6, "memory": 0.4},
	}
	pop.ByStage[components.StageSeed] = 3
	pop.ByStage[components.StageWilting] = 1

	s := c.Flush(42, 12.5, pop)

	assert.Equal(t, int64(0), s.WindowStartTick)
	assert.Equal(t, int64(42), s.WindowEndTick)
	assert.Equal(t, 12.5, s.SimTimeSec)
	assert.Equal(t, 4, s.Blooms)
	assert.Equal(t, 3, s.Seeds)
	assert.Equal(t, 1, s.Wilting)

	assert.Equal(t, 2, s.Created)
	assert.Equal(t, 1, s.Insights)
	assert.Equal(t, 1, s.Bursts)
	assert.Equal(t, 1, s.Sealed)
	assert.Equal(t, 2, s.Composted)
	assert.Equal(t, 1, s.Evicted)

	assert.InDelta(t, 0.5, s.HealthMean, 1e-12)
	assert.InDelta(t, 0.375, s.InsightMean, 1e-12)
	assert.InDelta(t, 0.5, s.CoherenceMean, 1e-12)
	assert.InDelta(t, 2.0, s.ConnectionsMean, 1e-12)
	assert.InDelta(t, 0.5, s.AmbientMean, 1e-12)
}

func TestCollector_FlushResetsWindow(t *testing.T) {
	c := NewCollector(10)
	c.Emit(Event{Kind: EventCreated})

	assert.False(t, c.ShouldFlush(9.99))
	assert.True(t, c.ShouldFlush(10))

	c.Flush(10, 10, PopulationSample{})
	assert.False(t, c.ShouldFlush(15))
	assert.True(t, c.ShouldFlush(20))

	s := c.Flush(20, 20, PopulationSample{})
	assert.Equal(t, int64(10), s.WindowStartTick)
	assert.Zero(t, s.Created)
	assert.Zero(t, s.Blooms)
}

func TestMultiSink(t *testing.T) {
	var got []string
	record := func(tag string) Sink {
		return SinkFunc(func(e Event) { got = append(got, tag+":"+e.Kind.String()) })
	}

	m := MultiSink{record("a"), nil, record("b")}
	m.Emit(Event{Kind: EventSealed, BloomID: uuid.New()})

	assert.Equal(t, []string{"a:entity_sealed", "b:entity_sealed"}, got)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "entity_created", EventCreated.String())
	assert.Equal(t, "insight_generated", EventInsight.String())
	assert.Equal(t, "resonance_burst", EventBurst.String())
	assert.Equal(t, "entity_composted", EventComposted.String())
	assert.Equal(t, "unknown", EventKind(200).String())
}

func TestSnapshotNutrientsCopies(t *testing.T) {
	n := components.NewNutrients()
	n.Primary[components.NutrientLogic] = 0.3

	snap := SnapshotNutrients(&n)
	n.Primary[components.NutrientLogic] = 0.9

	assert.Equal(t, 0.3, snap.Primary["logic"])
	assert.Empty(t, snap.Catalyst)
}
