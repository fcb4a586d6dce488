package systems

import (
	"math"

	"github.com/google/uuid"

	"github.com/pthm-cable/garden/components"
)

// Resonance constants.
const (
	MaxHarmonic        = 5
	HarmonicTolerance  = 0.1
	BurstNutrientBoost = 1.2 // Primary store multiplier during a burst
	BurstCoherenceGain = 0.1
	BurstHealthGain    = 0.2
)

// Match returns the resonance strength in [0, 1] between two frequencies.
// The ratio is taken larger over smaller, so Match(a, b) == Match(b, a). Ratios
// within HarmonicTolerance of n or 1/n for n up to MaxHarmonic score 0.9 + 0.1/n.
// Anything else falls off with the log distance of the ratio. Frequencies that
// are not positive and finite score 0.
func Match(fa, fb float64) float64 {
	if !positiveFinite(fa) || !positiveFinite(fb) {
		return 0
	}
	hi, lo := math.Max(fa, fb), math.Min(fa, fb)
	ratio := hi / lo

	for n := 1; n <= MaxHarmonic; n++ {
		h := float64(n)
		if math.Abs(ratio-h) < HarmonicTolerance || math.Abs(ratio-1/h) < HarmonicTolerance {
			return 0.9 + 0.1/h
		}
	}
	return math.Max(0, 1-math.Abs(math.Log(ratio)))
}

// Link records a coupling between two blooms in both link sets.
// It reports whether the link is new.
func Link(aID uuid.UUID, a *components.Links, bID uuid.UUID, b *components.Links) bool {
	if aID == bID {
		return false
	}
	if a.Peers == nil {
		a.Peers = make(map[uuid.UUID]struct{})
	}
	if b.Peers == nil {
		b.Peers = make(map[uuid.UUID]struct{})
	}
	_, hadA := a.Peers[bID]
	_, hadB := b.Peers[aID]
	a.Peers[bID] = struct{}{}
	b.Peers[aID] = struct{}{}
	return !hadA || !hadB
}

// Unlink removes id from every peer's link set. peers resolves a linked id to its
// link set, returning nil when the peer is already gone.
func Unlink(id uuid.UUID, own *components.Links, peers func(uuid.UUID) *components.Links) {
	for peer := range own.Peers {
		if l := peers(peer); l != nil {
			delete(l.Peers, id)
		}
	}
	clear(own.Peers)
}

// Attune raises both blooms' coherence after they couple.
func Attune(a, b *components.Resonance, boost float64) {
	a.Coherence = Clamp01(a.Coherence + boost)
	b.Coherence = Clamp01(b.Coherence + boost)
}

// Burst applies a resonance burst to one member of a connected cluster.
func Burst(n *components.Nutrients, r *components.Resonance, v *components.Vitals) {
	for name, level := range n.Primary {
		n.Primary[name] = Clamp01(level * BurstNutrientBoost)
	}
	r.Coherence = Clamp01(r.Coherence + BurstCoherenceGain)
	v.Health = Clamp01(v.Health + BurstHealthGain)
}
