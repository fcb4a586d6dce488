package telemetry

import "github.com/pthm-cable/garden/components"

// PopulationSample is the live population measured at the end of a window.
type PopulationSample struct {
	ByStage     [components.NumStages]int
	Health      []float64
	Insight     []float64
	Coherence   []float64
	Connections []float64
	Ambient     map[components.Nutrient]float64
}

// Blooms returns the number of sampled blooms.
func (p PopulationSample) Blooms() int {
	return len(p.Health)
}

// Collector accumulates events within time windows and produces WindowStats.
// It is a Sink, so it can be handed to the garden directly or behind a MultiSink.
type Collector struct {
	windowDurationSec float64

	// Current window tracking
	windowStartTick int64
	windowStartTime float64

	// Event counters for current window
	created   int
	sealed    int
	composted int
	evicted   int
	insights  int
	bursts    int
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulated seconds.
func NewCollector(windowDurationSec float64) *Collector {
	if windowDurationSec <= 0 {
		windowDurationSec = 60
	}
	return &Collector{windowDurationSec: windowDurationSec}
}

// Emit records e against the current window.
func (c *Collector) Emit(e Event) {
	switch e.Kind {
	case EventCreated:
		c.created++
	case EventInsight:
		c.insights++
	case EventBurst:
		c.bursts++
	case EventSealed:
		c.sealed++
	case EventComposted:
		c.composted++
		if e.Compost != nil && e.Compost.Evicted {
			c.evicted++
		}
	}
}

// ShouldFlush returns true if a full window of simulated time has passed.
func (c *Collector) ShouldFlush(simTime float64) bool {
	return simTime-c.windowStartTime >= c.windowDurationSec
}

// Flush produces a WindowStats and resets counters for the next window.
func (c *Collector) Flush(currentTick int64, simTime float64, pop PopulationSample) WindowStats {
	healthMean, healthP10, healthP50, healthP90 := Distribution(pop.Health)
	insightMean, insightP10, insightP50, insightP90 := Distribution(pop.Insight)

	ambient := make([]float64, 0, len(pop.Ambient))
	for _, name := range components.SortedNutrients(pop.Ambient) {
		ambient = append(ambient, pop.Ambient[name])
	}

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      simTime,

		Blooms:      pop.Blooms(),
		Seeds:       pop.ByStage[components.StageSeed],
		Germinating: pop.ByStage[components.StageGerminating],
		Budding:     pop.ByStage[components.StageBudding],
		Flowering:   pop.ByStage[components.StageFlowering],
		Fruiting:    pop.ByStage[components.StageFruiting],
		Wilting:     pop.ByStage[components.StageWilting],

		Created:   c.created,
		Sealed:    c.sealed,
		Composted: c.composted,
		Evicted:   c.evicted,
		Insights:  c.insights,
		Bursts:    c.bursts,

		HealthMean: healthMean,
		HealthP10:  healthP10,
		HealthP50:  healthP50,
		HealthP90:  healthP90,

		InsightMean: insightMean,
		InsightP10:  insightP10,
		InsightP50:  insightP50,
		InsightP90:  insightP90,

		CoherenceMean:   Mean(pop.Coherence),
		ConnectionsMean: Mean(pop.Connections),
		AmbientMean:     Mean(ambient),
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.windowStartTime = simTime
	c.created = 0
	c.sealed = 0
	c.composted = 0
	c.evicted = 0
	c.insights = 0
	c.bursts = 0

	return stats
}

// WindowDuration returns the window length in simulated seconds.
func (c *Collector) WindowDuration() float64 {
	return c.windowDurationSec
}
