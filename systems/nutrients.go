package systems

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/garden/components"
)

// Nutrient field constants.
const (
	ConversionThreshold = 0.5 // Minimum total energy before a bloom distills a pattern
	InsightYield        = 0.1 // Insight gained per unit energy·efficiency
	ExchangeScale       = 0.1 // Fraction of the gap moved per unit resonance strength
	CreativeNoise       = 0.1 // Std-dev of noise added by a creativity-dominated bloom
)

// RNG is the interface for random number generation.
type RNG interface {
	Float64() float64
	NormFloat64() float64
}

// sineRamp is one full sine period sampled across the pattern.
var sineRamp = func() (r components.Pattern) {
	for i := range r {
		r[i] = math.Sin(2 * math.Pi * float64(i) / float64(components.PatternSize-1))
	}
	return r
}()

// Absorb draws every ambient nutrient into the bloom's primary store.
// modifier is the climate multiplier for this bloom.
func Absorb(n *components.Nutrients, ambient map[components.Nutrient]float64, rate, modifier, dt float64) {
	if n.Primary == nil {
		n.Primary = make(map[components.Nutrient]float64, len(ambient))
	}
	for name, level := range ambient {
		gain := level * rate * modifier * dt
		n.Primary[name] = Clamp01(n.Primary[name] + gain)
	}
}

// Convert distills nutrients into the bloom's pattern and raises its insight.
// It only acts while flowering or fruiting with more than ConversionThreshold energy,
// and reports whether it did.
func Convert(stage components.Stage, v *components.Vitals, n *components.Nutrients, rng RNG) bool {
	if stage != components.StageFlowering && stage != components.StageFruiting {
		return false
	}
	energy := n.TotalEnergy()
	if energy <= ConversionThreshold {
		return false
	}

	if !v.Patterned {
		for i := range v.Pattern {
			v.Pattern[i] = rng.NormFloat64()
		}
		v.Patterned = true
	}

	if dominant, _, ok := n.Dominant(); ok {
		TransformPattern(&v.Pattern, dominant.Affinity(), rng)
	}
	NormalizePattern(&v.Pattern)

	gain := energy * v.ConversionEfficiency * InsightYield
	v.Insight = Clamp01(math.Max(v.Insight, v.Insight+gain))
	return true
}

// TransformPattern reshapes p according to the dominant nutrient's affinity.
func TransformPattern(p *components.Pattern, a components.Affinity, rng RNG) {
	switch a {
	case components.AffinityCreative:
		for i := range p {
			p[i] += rng.NormFloat64() * CreativeNoise
		}
	case components.AffinityLogical:
		slices.Sort(p[:])
	case components.AffinityEmotional:
		floats.Mul(p[:], sineRamp[:])
	case components.AffinityNone:
	}
}

// NormalizePattern scales p to unit L2 norm. A zero vector is left as is.
func NormalizePattern(p *components.Pattern) {
	norm := floats.Norm(p[:], 2)
	if norm > 0 {
		floats.Scale(1/norm, p[:])
	}
}

// Exchange moves primary nutrients between two coupled blooms toward equilibrium.
// For each nutrient the pair's sum is unchanged.
func Exchange(a, b *components.Nutrients, strength float64) {
	if a.Primary == nil {
		a.Primary = make(map[components.Nutrient]float64)
	}
	if b.Primary == nil {
		b.Primary = make(map[components.Nutrient]float64)
	}

	rate := strength * ExchangeScale
	keys := components.SortedNutrients(a.Primary)
	for _, k := range components.SortedNutrients(b.Primary) {
		if _, ok := a.Primary[k]; !ok {
			keys = append(keys, k)
		}
	}

	for _, k := range keys {
		va, vb := a.Primary[k], b.Primary[k]
		diff := (vb - va) * rate
		a.Primary[k] = Clamp01(va + diff)
		b.Primary[k] = Clamp01(vb - diff)
	}
}

// RegenerateAmbient relaxes every ambient level toward equilibrium.
func RegenerateAmbient(ambient map[components.Nutrient]float64, equilibrium, rate, dt float64) {
	for name, level := range ambient {
		ambient[name] = Clamp01(level + (equilibrium-level)*rate*dt)
	}
}

// Compost credits fraction of the bloom's primary store back to the ambient pool.
// Only nutrients already present in the pool are credited. The returned map holds
// the amount each ambient level actually rose after capping.
func Compost(n *components.Nutrients, ambient map[components.Nutrient]float64, fraction float64) map[components.Nutrient]float64 {
	returned := make(map[components.Nutrient]float64, len(n.Primary))
	for name, amount := range n.Primary {
		level, ok := ambient[name]
		if !ok {
			continue
		}
		next := math.Min(1, level+amount*fraction)
		ambient[name] = next
		returned[name] = next - level
	}
	return returned
}
