package traversal

import (
	"errors"
	"fmt"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/h3cell"
)

var (
	ErrUnsupportedResolution = errors.New("resolution is not a base resolution of the tableset")
	ErrEmptyArea             = errors.New("area has neither a polygon nor cells")
)

// Area is the region to traverse, given either as a lon/lat polygon or as a list of cells of any
// resolution. The polygon takes precedence when both are set.
type Area struct {
	Polygon orb.Polygon
	Cells   []uint64
}

func (a Area) isPolygon() bool {
	return len(a.Polygon) > 0 && len(a.Polygon[0]) > 0
}

func (a Area) validate() error {
	if !a.isPolygon() && len(a.Cells) == 0 {
		return ErrEmptyArea
	}
	return nil
}

// TraversalCells returns the cells at resolution covering the area in ascending order.
//
// For polygons the polyfill is extended by the cells containing the polygon's vertices and a
// ring of neighbours, so cells intersecting the boundary with their centers outside are kept.
// Cell lists are normalized to resolution.
func (a Area) TraversalCells(grid h3cell.Polyfiller, resolution uint8) ([]uint64, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}
	if !a.isPolygon() {
		return normalizeCells(grid, a.Cells, resolution)
	}

	filled, err := grid.PolygonToCells(a.Polygon, resolution)
	if err != nil {
		return nil, err
	}
	for _, ring := range a.Polygon {
		for _, p := range ring {
			cell, err := grid.PointToCell(p, resolution)
			if err != nil {
				return nil, err
			}
			filled = append(filled, cell)
		}
	}

	seen := make(map[uint64]struct{}, len(filled)*7)
	for _, cell := range filled {
		disk, err := grid.GridDisk(cell, 1)
		if err != nil {
			return nil, err
		}
		for _, c := range disk {
			seen[c] = struct{}{}
		}
	}
	return sortedCells(seen), nil
}

// contains reports whether a cell at the target resolution is part of the area. For polygons this
// is the case when the cell's center lies inside the polygon.
func (a Area) contains(grid h3cell.Polyfiller, allowed map[uint64]struct{}, cell uint64) (bool, error) {
	if !a.isPolygon() {
		_, ok := allowed[cell]
		return ok, nil
	}
	center, err := grid.CellCenter(cell)
	if err != nil {
		return false, err
	}
	return planar.PolygonContains(a.Polygon, center), nil
}

// normalizeCells maps cells to resolution: finer cells are replaced by their ancestor, coarser
// cells by their descendants.
func normalizeCells(grid h3cell.Grid, cells []uint64, resolution uint8) ([]uint64, error) {
	seen := make(map[uint64]struct{}, len(cells))
	for _, cell := range cells {
		if !grid.IsValid(cell) {
			return nil, fmt.Errorf("invalid h3 cell %x", cell)
		}
		if grid.Resolution(cell) >= resolution {
			parent, err := grid.Parent(cell, resolution)
			if err != nil {
				return nil, err
			}
			seen[parent] = struct{}{}
			continue
		}
		children, err := grid.Children(cell, resolution)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			seen[c] = struct{}{}
		}
	}
	return sortedCells(seen), nil
}

func sortedCells(set map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

func cellSet(cells []uint64) map[uint64]struct{} {
	out := make(map[uint64]struct{}, len(cells))
	for _, c := range cells {
		out[c] = struct{}{}
	}
	return out
}
