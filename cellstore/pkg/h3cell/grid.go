// Package h3cell describes the hierarchy operations the cell store needs from a hierarchical
// hexagonal grid, and provides an implementation backed by the H3 library.
package h3cell

import (
	"errors"

	"github.com/paulmach/orb"
)

// MaxResolution is the finest resolution of the H3 grid.
const MaxResolution uint8 = 15

// ChildrenPerLevel is the number of children of a hexagon at the next finer resolution.
const ChildrenPerLevel = 7

var ErrInvalidResolution = errors.New("invalid h3 resolution")

// Grid is the set of hierarchy operations used by compaction and the insert pipeline.
type Grid interface {
	// Parent returns the ancestor of cell at the given (coarser or equal) resolution.
	Parent(cell uint64, resolution uint8) (uint64, error)
	// Children returns the descendants of cell at the given (finer or equal) resolution.
	Children(cell uint64, resolution uint8) ([]uint64, error)
	// Resolution returns the resolution of cell.
	Resolution(cell uint64) uint8
	// IsValid reports whether cell is a valid cell index.
	IsValid(cell uint64) bool
}

// Polyfiller is the set of geometric operations used by the traversal engine.
type Polyfiller interface {
	Grid
	// PolygonToCells returns the cells at resolution whose centers are contained in the polygon.
	PolygonToCells(polygon orb.Polygon, resolution uint8) ([]uint64, error)
	// GridDisk returns all cells within k grid steps of cell, including cell itself.
	GridDisk(cell uint64, k int) ([]uint64, error)
	// CellCenter returns the center point of cell as lon/lat.
	CellCenter(cell uint64) (orb.Point, error)
	// PointToCell returns the cell at resolution containing the lon/lat point.
	PointToCell(point orb.Point, resolution uint8) (uint64, error)
}

// ChildCount returns the number of descendants a hexagon at resolution from has at resolution to.
// Pentagons have fewer, so this is an upper bound.
func ChildCount(from, to uint8) uint64 {
	if to <= from {
		return 1
	}
	n := uint64(1)
	for i := from; i < to; i++ {
		n *= ChildrenPerLevel
	}
	return n
}

// ValidateResolution returns ErrInvalidResolution when resolution is above MaxResolution.
func ValidateResolution(resolution uint8) error {
	if resolution > MaxResolution {
		return ErrInvalidResolution
	}
	return nil
}
