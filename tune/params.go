// Package tune searches garden parameters with CMA-ES for configurations
// that keep a steady population and seal many blooms.
package tune

import (
	"github.com/pthm-cable/garden/config"
)

// ParamSpec defines a single tunable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all tunable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of tunable parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			// Population
			{Name: "spawn_rate", Path: "garden.spawn_rate", Min: 0.01, Max: 1.0, Default: 0.1},
			{Name: "resonance_threshold", Path: "garden.resonance_threshold", Min: 0.5, Max: 0.95, Default: 0.7},
			{Name: "pollination_range", Path: "garden.cross_pollination_range", Min: 5, Max: 100, Default: 50},
			// Nutrients
			{Name: "absorption_rate", Path: "nutrients.absorption_rate", Min: 0.01, Max: 0.5, Default: 0.1},
			{Name: "regen_rate", Path: "nutrients.regen_rate", Min: 0.001, Max: 0.1, Default: 0.01},
			{Name: "compost_return", Path: "nutrients.compost_return", Min: 0.1, Max: 1.0, Default: 0.5},
			// Resonance
			{Name: "coherence_boost", Path: "resonance.coherence_boost", Min: 0.001, Max: 0.05, Default: 0.01},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig writes clamped values into cfg. Order must match Specs.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	c := pv.Clamp(values)
	cfg.Garden.SpawnRate = c[0]
	cfg.Garden.ResonanceThreshold = c[1]
	cfg.Garden.CrossPollinationRange = c[2]
	cfg.Nutrients.AbsorptionRate = c[3]
	cfg.Nutrients.RegenRate = c[4]
	cfg.Nutrients.CompostReturn = c[5]
	cfg.Resonance.CoherenceBoost = c[6]
}

// ExtractFromConfig extracts current parameter values from cfg.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return []float64{
		cfg.Garden.SpawnRate,
		cfg.Garden.ResonanceThreshold,
		cfg.Garden.CrossPollinationRange,
		cfg.Nutrients.AbsorptionRate,
		cfg.Nutrients.RegenRate,
		cfg.Nutrients.CompostReturn,
		cfg.Resonance.CoherenceBoost,
	}
}
