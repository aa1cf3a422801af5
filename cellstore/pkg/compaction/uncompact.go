package compaction

import (
	"fmt"
	"slices"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/frame"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/h3cell"
)

// Uncompact expands every row whose cell is coarser than target into one row per descendant at
// target, copying the row's other values. Rows at target pass through unchanged. Rows finer than
// target are dropped: they cannot be represented at target without inventing values.
func Uncompact(grid h3cell.Grid, f *frame.Frame, h3Column string, target uint8) (*frame.Frame, error) {
	return uncompact(grid, f, h3Column, target, nil)
}

// UncompactRestricted returns the same rows as filtering the output of Uncompact by allowed,
// without materializing the descendants that would be filtered out. allowed holds cells at target.
func UncompactRestricted(grid h3cell.Grid, f *frame.Frame, h3Column string, target uint8, allowed map[uint64]struct{}) (*frame.Frame, error) {
	if allowed == nil {
		allowed = map[uint64]struct{}{}
	}
	return uncompact(grid, f, h3Column, target, newRestriction(grid, allowed))
}

// FilterCells keeps the rows whose cell is contained in allowed.
func FilterCells(f *frame.Frame, h3Column string, allowed map[uint64]struct{}) (*frame.Frame, error) {
	cells, err := f.Uint64Column(h3Column)
	if err != nil {
		return nil, err
	}
	return f.Filter(func(i int) bool {
		_, ok := allowed[cells[i]]
		return ok
	}), nil
}

func uncompact(grid h3cell.Grid, f *frame.Frame, h3Column string, target uint8, restrict *restriction) (*frame.Frame, error) {
	if err := h3cell.ValidateResolution(target); err != nil {
		return nil, err
	}
	cells, err := f.Uint64Column(h3Column)
	if err != nil {
		return nil, err
	}

	indices := make([]int, 0, len(cells))
	outCells := make([]uint64, 0, len(cells))
	for i, c := range cells {
		if !grid.IsValid(c) {
			return nil, fmt.Errorf("%w: %x in row %d", ErrInvalidCell, c, i)
		}
		r := grid.Resolution(c)
		var expanded []uint64
		switch {
		case r > target:
			continue
		case restrict != nil:
			expanded, err = restrict.descendants(c, r, target)
		case r == target:
			expanded = []uint64{c}
		default:
			expanded, err = grid.Children(c, target)
			slices.Sort(expanded)
		}
		if err != nil {
			return nil, err
		}
		for _, e := range expanded {
			indices = append(indices, i)
			outCells = append(outCells, e)
		}
	}
	return withCells(f, h3Column, indices, outCells), nil
}

// restriction indexes the allowed cells by their ancestors so that descendants of a coarse cell
// can be looked up instead of generated.
type restriction struct {
	grid    h3cell.Grid
	allowed map[uint64]struct{}
	sorted  []uint64
	byRes   map[uint8]map[uint64][]uint64
}

func newRestriction(grid h3cell.Grid, allowed map[uint64]struct{}) *restriction {
	sorted := make([]uint64, 0, len(allowed))
	for c := range allowed {
		sorted = append(sorted, c)
	}
	slices.Sort(sorted)
	return &restriction{
		grid:    grid,
		allowed: allowed,
		sorted:  sorted,
		byRes:   make(map[uint8]map[uint64][]uint64),
	}
}

func (r *restriction) descendants(cell uint64, resolution, target uint8) ([]uint64, error) {
	if resolution == target {
		if _, ok := r.allowed[cell]; ok {
			return []uint64{cell}, nil
		}
		return nil, nil
	}
	index, ok := r.byRes[resolution]
	if !ok {
		index = make(map[uint64][]uint64)
		for _, c := range r.sorted {
			if r.grid.Resolution(c) != target {
				continue
			}
			p, err := r.grid.Parent(c, resolution)
			if err != nil {
				return nil, err
			}
			index[p] = append(index[p], c)
		}
		r.byRes[resolution] = index
	}
	return index[cell], nil
}
