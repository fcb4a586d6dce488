// Package systems provides the garden's per-bloom models: spatial partitioning,
// nutrient flow, resonance and lifecycle.
package systems

import (
	"bytes"
	"math"
	"slices"

	"github.com/google/uuid"

	"github.com/pthm-cable/garden/components"
)

// cellKey addresses one cube of the grid.
type cellKey struct {
	X, Y, Z int
}

// SpatialIndex provides O(1) neighbor lookups using a uniform 3D grid.
// Cells are allocated lazily, so the indexed space is unbounded.
type SpatialIndex struct {
	cellSize float64
	cells    map[cellKey]map[uuid.UUID]components.Position
	count    int
}

// NewSpatialIndex creates an empty index with the given cell edge length.
func NewSpatialIndex(cellSize float64) *SpatialIndex {
	return &SpatialIndex{
		cellSize: cellSize,
		cells:    make(map[cellKey]map[uuid.UUID]components.Position),
	}
}

// CellSize returns the grid cell edge length.
func (s *SpatialIndex) CellSize() float64 {
	return s.cellSize
}

// Len returns the number of indexed ids.
func (s *SpatialIndex) Len() int {
	return s.count
}

// Insert adds id at pos. Re-inserting an id into the same cell updates its position.
func (s *SpatialIndex) Insert(id uuid.UUID, pos components.Position) {
	key := s.cellOf(pos)
	cell, ok := s.cells[key]
	if !ok {
		cell = make(map[uuid.UUID]components.Position, 4)
		s.cells[key] = cell
	}
	if _, exists := cell[id]; !exists {
		s.count++
	}
	cell[id] = pos
}

// Remove deletes id from the cell containing pos. It reports whether id was there.
func (s *SpatialIndex) Remove(id uuid.UUID, pos components.Position) bool {
	key := s.cellOf(pos)
	cell, ok := s.cells[key]
	if !ok {
		return false
	}
	if _, exists := cell[id]; !exists {
		return false
	}
	delete(cell, id)
	s.count--
	if len(cell) == 0 {
		delete(s.cells, key)
	}
	return true
}

// Move relocates id from one position to another.
func (s *SpatialIndex) Move(id uuid.UUID, from, to components.Position) {
	s.Remove(id, from)
	s.Insert(id, to)
}

// Query returns every id within radius of center, sorted by id.
func (s *SpatialIndex) Query(center components.Position, radius float64) []uuid.UUID {
	return s.QueryInto(nil, center, radius)
}

// QueryInto appends every id within radius of center to dst and returns the result.
// The appended ids are sorted so that callers iterate neighbors in a stable order.
// Reuse dst across calls to avoid allocations.
func (s *SpatialIndex) QueryInto(dst []uuid.UUID, center components.Position, radius float64) []uuid.UUID {
	if radius < 0 || math.IsNaN(radius) {
		return dst
	}
	start := len(dst)
	span := math.Ceil(radius / s.cellSize)
	origin := s.cellOf(center)
	radiusSq := radius * radius

	collect := func(cell map[uuid.UUID]components.Position) {
		for id, pos := range cell {
			if center.DistanceSq(pos) <= radiusSq {
				dst = append(dst, id)
			}
		}
	}

	// Walk whichever is smaller: the cube of cells around center or the
	// occupied cells. Large radii stay bounded by the population.
	if side := 2*span + 1; side*side*side > float64(len(s.cells)) {
		for key, cell := range s.cells {
			if offset(key.X, origin.X) <= span && offset(key.Y, origin.Y) <= span && offset(key.Z, origin.Z) <= span {
				collect(cell)
			}
		}
	} else {
		r := int(span)
		for dx := -r; dx <= r; dx++ {
			for dy := -r; dy <= r; dy++ {
				for dz := -r; dz <= r; dz++ {
					if cell, ok := s.cells[cellKey{origin.X + dx, origin.Y + dy, origin.Z + dz}]; ok {
						collect(cell)
					}
				}
			}
		}
	}

	slices.SortFunc(dst[start:], func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return dst
}

// offset is the distance in cells between two cell coordinates.
func offset(a, b int) float64 {
	return math.Abs(float64(a - b))
}

// cellOf returns the grid cell containing pos.
func (s *SpatialIndex) cellOf(pos components.Position) cellKey {
	return cellKey{
		X: int(math.Floor(pos.X / s.cellSize)),
		Y: int(math.Floor(pos.Y / s.cellSize)),
		Z: int(math.Floor(pos.Z / s.cellSize)),
	}
}
