// Package compaction replaces sets of sibling cells carrying identical values by their common
// parent, and reverses that replacement.
package compaction

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/frame"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/h3cell"
)

var ErrInvalidCell = errors.New("invalid h3 cell")

// group is one set of rows sharing all non-spatial values. row is the index of the first row of
// the group in the input frame and supplies the values of every output row.
type group struct {
	row   int
	cells []uint64
}

// Compact groups the rows of f by all columns except h3Column and compacts the cells of each
// group. The output contains one row per remaining cell. Groups keep the order of their first
// appearance, cells within a group are sorted ascending.
func Compact(grid h3cell.Grid, f *frame.Frame, h3Column string) (*frame.Frame, error) {
	cells, err := f.Uint64Column(h3Column)
	if err != nil {
		return nil, err
	}
	groups, err := groupRows(grid, f, h3Column, cells)
	if err != nil {
		return nil, err
	}

	var indices []int
	var outCells []uint64
	for _, g := range groups {
		compacted, err := CompactCells(grid, g.cells)
		if err != nil {
			return nil, err
		}
		for _, c := range compacted {
			indices = append(indices, g.row)
			outCells = append(outCells, c)
		}
	}
	return withCells(f, h3Column, indices, outCells), nil
}

// CompactCells compacts a set of cells of possibly mixed resolutions. Duplicates and cells
// already covered by one of their ancestors are removed first, then complete sets of siblings
// are replaced by their parent, finest resolution first, until nothing changes.
func CompactCells(grid h3cell.Grid, cells []uint64) ([]uint64, error) {
	if len(cells) == 0 {
		return nil, nil
	}
	byRes := make(map[uint8]map[uint64]struct{})
	for _, c := range cells {
		if !grid.IsValid(c) {
			return nil, fmt.Errorf("%w: %x", ErrInvalidCell, c)
		}
		r := grid.Resolution(c)
		if byRes[r] == nil {
			byRes[r] = make(map[uint64]struct{})
		}
		byRes[r][c] = struct{}{}
	}

	if err := dropCovered(grid, byRes); err != nil {
		return nil, err
	}

	for r := h3cell.MaxResolution; r > 0; r-- {
		set := byRes[r]
		if len(set) == 0 {
			continue
		}
		siblings := make(map[uint64][]uint64)
		for c := range set {
			p, err := grid.Parent(c, r-1)
			if err != nil {
				return nil, err
			}
			siblings[p] = append(siblings[p], c)
		}
		for p, present := range siblings {
			children, err := grid.Children(p, r)
			if err != nil {
				return nil, err
			}
			if len(present) != len(children) {
				continue
			}
			for _, c := range present {
				delete(set, c)
			}
			if byRes[r-1] == nil {
				byRes[r-1] = make(map[uint64]struct{})
			}
			byRes[r-1][p] = struct{}{}
		}
	}

	out := make([]uint64, 0, len(cells))
	for _, set := range byRes {
		for c := range set {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return out, nil
}

// dropCovered removes every cell that has an ancestor in the set.
func dropCovered(grid h3cell.Grid, byRes map[uint8]map[uint64]struct{}) error {
	for r, set := range byRes {
		for c := range set {
			for ar := uint8(0); ar < r; ar++ {
				if len(byRes[ar]) == 0 {
					continue
				}
				a, err := grid.Parent(c, ar)
				if err != nil {
					return err
				}
				if _, ok := byRes[ar][a]; ok {
					delete(set, c)
					break
				}
			}
		}
	}
	return nil
}

// groupRows splits the rows of f by their non-spatial values.
func groupRows(grid h3cell.Grid, f *frame.Frame, h3Column string, cells []uint64) ([]*group, error) {
	valueColumns := slices.DeleteFunc(f.ColumnNames(), func(n string) bool { return n == h3Column })

	var groups []*group
	byKey := make(map[frame.RowKey]*group)
	for i, c := range cells {
		if !grid.IsValid(c) {
			return nil, fmt.Errorf("%w: %x in row %d", ErrInvalidCell, c, i)
		}
		key := f.KeyOf(i, valueColumns)
		g, ok := byKey[key]
		if !ok {
			g = &group{row: i}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.cells = append(g.cells, c)
	}
	return groups, nil
}

// withCells takes the rows at indices from f and replaces their h3Column by cells.
func withCells(f *frame.Frame, h3Column string, indices []int, cells []uint64) *frame.Frame {
	taken := f.Take(indices)
	values := frame.Uint64Values(cells)
	out := frame.New()
	for _, name := range taken.ColumnNames() {
		if name == h3Column {
			_ = out.AddColumn(name, values)
			continue
		}
		col, _ := taken.Column(name)
		_ = out.AddColumn(name, col)
	}
	return out
}

// SplitByResolution partitions the rows of f by the resolution of their cell.
func SplitByResolution(grid h3cell.Grid, f *frame.Frame, h3Column string) (map[uint8]*frame.Frame, error) {
	cells, err := f.Uint64Column(h3Column)
	if err != nil {
		return nil, err
	}
	rows := make(map[uint8][]int)
	for i, c := range cells {
		if !grid.IsValid(c) {
			return nil, fmt.Errorf("%w: %x in row %d", ErrInvalidCell, c, i)
		}
		r := grid.Resolution(c)
		rows[r] = append(rows[r], i)
	}
	out := make(map[uint8]*frame.Frame, len(rows))
	for r, indices := range rows {
		out[r] = f.Take(indices)
	}
	return out, nil
}

// Resolutions returns the sorted distinct resolutions of cells.
func Resolutions(grid h3cell.Grid, cells []uint64) []uint8 {
	seen := make(map[uint8]struct{})
	for _, c := range cells {
		seen[grid.Resolution(c)] = struct{}{}
	}
	out := make([]uint8, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}
