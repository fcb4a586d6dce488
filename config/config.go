// Package config provides configuration loading for the garden.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/garden/components"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all garden configuration parameters.
type Config struct {
	Physics   PhysicsConfig   `yaml:"physics"`
	World     WorldConfig     `yaml:"world"`
	Garden    GardenConfig    `yaml:"garden"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Nutrients NutrientsConfig `yaml:"nutrients"`
	Resonance ResonanceConfig `yaml:"resonance"`
	Events    EventsConfig    `yaml:"events"`
	Climate   ClimateConfig   `yaml:"climate"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// PhysicsConfig holds the tick length used by the host.
type PhysicsConfig struct {
	DT float64 `yaml:"dt"`
}

// WorldConfig holds garden space parameters.
type WorldConfig struct {
	Bounds       float64 `yaml:"bounds"`         // Spawn cube half-extent
	GridCellSize float64 `yaml:"grid_cell_size"` // Spatial index cell edge
}

// GardenConfig holds population parameters.
type GardenConfig struct {
	MaxBlooms             int     `yaml:"max_blooms"`
	InitialBlooms         int     `yaml:"initial_blooms"`
	SpawnRate             float64 `yaml:"spawn_rate"` // Spawn probability per simulated second
	ResonanceThreshold    float64 `yaml:"resonance_threshold"`
	CrossPollinationRange float64 `yaml:"cross_pollination_range"`
}

// LifecycleConfig holds nominal stage durations in simulated seconds.
type LifecycleConfig struct {
	Seed        float64 `yaml:"seed"`
	Germinating float64 `yaml:"germinating"`
	Budding     float64 `yaml:"budding"`
	Flowering   float64 `yaml:"flowering"`
	Fruiting    float64 `yaml:"fruiting"`
	Wilting     float64 `yaml:"wilting"`
}

// NutrientsConfig holds nutrient field parameters.
type NutrientsConfig struct {
	AbsorptionRate       float64            `yaml:"absorption_rate"`
	ConversionEfficiency float64            `yaml:"conversion_efficiency"`
	CompostReturn        float64            `yaml:"compost_return"` // Fraction of primary returned on compost
	Equilibrium          float64            `yaml:"equilibrium"`
	RegenRate            float64            `yaml:"regen_rate"` // Relaxation per simulated second
	Ambient              map[string]float64 `yaml:"ambient"`
}

// ResonanceConfig holds resonance parameters.
type ResonanceConfig struct {
	CoherenceBoost   float64            `yaml:"coherence_boost"`
	InitialCoherence float64            `yaml:"initial_coherence"`
	FrequencyJitter  float64            `yaml:"frequency_jitter"` // Base frequency is scaled by U(1-j, 1+j)
	AmplitudeMin     float64            `yaml:"amplitude_min"`
	AmplitudeMax     float64            `yaml:"amplitude_max"`
	Frequencies      map[string]float64 `yaml:"frequencies"` // Base frequency per bloom kind
}

// EventsConfig holds probabilistic event parameters.
type EventsConfig struct {
	Cadence             string  `yaml:"cadence"` // "tick" or "time"
	InsightChance       float64 `yaml:"insight_chance"`
	InsightThreshold    float64 `yaml:"insight_threshold"`
	BurstChance         float64 `yaml:"burst_chance"`
	BurstCoherence      float64 `yaml:"burst_coherence"`
	BurstMinConnections int     `yaml:"burst_min_connections"`
}

// ClimateConfig selects and tunes the host's climate collaborator.
type ClimateConfig struct {
	Kind      string  `yaml:"kind"` // "fixed" or "seasonal"
	Base      float64 `yaml:"base"`
	Amplitude float64 `yaml:"amplitude"`
	Period    float64 `yaml:"period"`
	Min       float64 `yaml:"min"`
	Max       float64 `yaml:"max"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         float64 `yaml:"stats_window"`
	PerfCollectorWindow int     `yaml:"perf_collector_window"`
}

// Event cadences.
const (
	CadenceTick = "tick"
	CadenceTime = "time"
)

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	StageDurations [components.NumStages]float64   // Nominal seconds per stage
	Nutrients      []components.Nutrient           // Ambient nutrient names, sorted
	Ambient        map[components.Nutrient]float64 // Typed copy of Nutrients.Ambient
	Frequencies    [components.NumKinds]float64    // Base frequency per kind
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// Validate reports the first invalid parameter.
func (c *Config) Validate() error {
	switch {
	case c.Physics.DT <= 0:
		return fmt.Errorf("%w: physics.dt must be positive", ErrInvalid)
	case c.World.GridCellSize <= 0:
		return fmt.Errorf("%w: world.grid_cell_size must be positive", ErrInvalid)
	case c.World.Bounds < 0:
		return fmt.Errorf("%w: world.bounds must not be negative", ErrInvalid)
	case c.Garden.MaxBlooms < 1:
		return fmt.Errorf("%w: garden.max_blooms must be at least 1", ErrInvalid)
	case c.Garden.InitialBlooms < 0 || c.Garden.InitialBlooms > c.Garden.MaxBlooms:
		return fmt.Errorf("%w: garden.initial_blooms must be in [0, max_blooms]", ErrInvalid)
	case c.Garden.SpawnRate < 0:
		return fmt.Errorf("%w: garden.spawn_rate must not be negative", ErrInvalid)
	case c.Garden.CrossPollinationRange < 0:
		return fmt.Errorf("%w: garden.cross_pollination_range must not be negative", ErrInvalid)
	case c.Nutrients.CompostReturn < 0 || c.Nutrients.CompostReturn > 1:
		return fmt.Errorf("%w: nutrients.compost_return must be in [0, 1]", ErrInvalid)
	case c.Resonance.AmplitudeMin > c.Resonance.AmplitudeMax:
		return fmt.Errorf("%w: resonance.amplitude_min exceeds amplitude_max", ErrInvalid)
	case c.Events.Cadence != CadenceTick && c.Events.Cadence != CadenceTime:
		return fmt.Errorf("%w: events.cadence must be %q or %q", ErrInvalid, CadenceTick, CadenceTime)
	case c.Climate.Min > c.Climate.Max:
		return fmt.Errorf("%w: climate.min exceeds climate.max", ErrInvalid)
	}
	for name, level := range c.Nutrients.Ambient {
		if level < 0 || level > 1 {
			return fmt.Errorf("%w: nutrients.ambient.%s must be in [0, 1]", ErrInvalid, name)
		}
	}
	for name, freq := range c.Resonance.Frequencies {
		if _, err := components.ParseKind(name); err != nil {
			return fmt.Errorf("%w: resonance.frequencies: %v", ErrInvalid, err)
		}
		if freq <= 0 {
			return fmt.Errorf("%w: resonance.frequencies.%s must be positive", ErrInvalid, name)
		}
	}
	return nil
}

// Refresh re-validates and recomputes derived values after fields are edited in code.
func (c *Config) Refresh() error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.computeDerived()
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	l := c.Lifecycle
	c.Derived.StageDurations = [components.NumStages]float64{
		components.StageSeed:        l.Seed,
		components.StageGerminating: l.Germinating,
		components.StageBudding:     l.Budding,
		components.StageFlowering:   l.Flowering,
		components.StageFruiting:    l.Fruiting,
		components.StageWilting:     l.Wilting,
	}

	c.Derived.Ambient = make(map[components.Nutrient]float64, len(c.Nutrients.Ambient))
	c.Derived.Nutrients = c.Derived.Nutrients[:0]
	for name, level := range c.Nutrients.Ambient {
		c.Derived.Ambient[components.Nutrient(name)] = level
		c.Derived.Nutrients = append(c.Derived.Nutrients, components.Nutrient(name))
	}
	sort.Slice(c.Derived.Nutrients, func(i, j int) bool {
		return c.Derived.Nutrients[i] < c.Derived.Nutrients[j]
	})

	// Kinds without a configured frequency resonate at 1.0
	for _, k := range components.AllKinds() {
		c.Derived.Frequencies[k] = 1.0
		if f, ok := c.Resonance.Frequencies[k.String()]; ok {
			c.Derived.Frequencies[k] = f
		}
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := c.EncodeYAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// EncodeYAML returns the configuration encoded as YAML.
func (c *Config) EncodeYAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}
