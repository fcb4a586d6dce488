// Package climate provides environmental modifiers for the garden.
package climate

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/garden/config"
)

// Climate kinds accepted in config.
const (
	KindFixed    = "fixed"
	KindSeasonal = "seasonal"
)

// ErrUnknownKind is returned by New for an unrecognized climate.kind.
var ErrUnknownKind = errors.New("unknown climate kind")

// Climate is a modifier source the host advances once per tick.
type Climate interface {
	Modifier(subject, kind string) (float64, error)
	Advance(dt float64)
}

// New builds the climate selected by c. seed drives the seasonal noise.
func New(c config.ClimateConfig, seed int64) (Climate, error) {
	switch c.Kind {
	case KindFixed:
		return Fixed(c.Base), nil
	case KindSeasonal:
		if c.Period <= 0 {
			return nil, fmt.Errorf("climate: period must be positive, got %v", c.Period)
		}
		return NewSeasonal(seed, c), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, c.Kind)
	}
}

// Fixed returns the same modifier for every subject.
type Fixed float64

// Modifier implements garden.Climate.
func (f Fixed) Modifier(string, string) (float64, error) {
	return float64(f), nil
}

// Advance is a no-op.
func (Fixed) Advance(float64) {}

// Seasonal drifts smoothly over simulated time. Each (subject, kind) pair
// follows its own lane through a 2D simplex field. It is not safe for
// concurrent use.
type Seasonal struct {
	noise opensimplex.Noise

	base      float64
	amplitude float64
	period    float64
	min, max  float64

	now   float64
	lanes map[string]float64
}

// NewSeasonal creates a seasonal climate. c.Period is the simulated time
// covered by one unit of noise.
func NewSeasonal(seed int64, c config.ClimateConfig) *Seasonal {
	return &Seasonal{
		noise:     opensimplex.New(seed),
		base:      c.Base,
		amplitude: c.Amplitude,
		period:    c.Period,
		min:       c.Min,
		max:       c.Max,
		lanes:     make(map[string]float64),
	}
}

// Advance moves the season forward by dt simulated seconds.
func (s *Seasonal) Advance(dt float64) {
	if dt > 0 {
		s.now += dt
	}
}

// Now returns the simulated time the season has reached.
func (s *Seasonal) Now() float64 {
	return s.now
}

// Modifier returns base + amplitude·noise clamped to [min, max].
func (s *Seasonal) Modifier(subject, kind string) (float64, error) {
	v := s.base + s.amplitude*s.noise.Eval2(s.now/s.period, s.lane(subject, kind))
	return math.Max(s.min, math.Min(s.max, v)), nil
}

// lane maps a (subject, kind) pair to a stable noise row.
func (s *Seasonal) lane(subject, kind string) float64 {
	key := subject + "/" + kind
	if y, ok := s.lanes[key]; ok {
		return y
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	y := float64(h.Sum32()%10007) * 7.31
	s.lanes[key] = y
	return y
}
