package components

import "math"

// Position represents a bloom's location in garden space.
// Positions are fixed at creation.
type Position struct {
	X, Y, Z float64
}

// DistanceSq returns the squared Euclidean distance to o.
func (p Position) DistanceSq(o Position) float64 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	dz := p.Z - o.Z
	return dx*dx + dy*dy + dz*dz
}

// Distance returns the Euclidean distance to o.
func (p Position) Distance(o Position) float64 {
	return math.Sqrt(p.DistanceSq(o))
}
