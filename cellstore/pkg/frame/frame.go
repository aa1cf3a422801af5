// Package frame implements the named-columns batch exchanged between callers, the compaction
// engine and the database.
package frame

import (
	"fmt"
	"slices"
)

// Frame is a set of equally long, named columns. Column order is preserved.
type Frame struct {
	names []string
	cols  map[string][]any
	rows  int
}

// New returns an empty frame without columns.
func New() *Frame {
	return &Frame{cols: make(map[string][]any)}
}

// FromColumns builds a frame from columns given in order. All columns must have the same length.
func FromColumns(names []string, columns [][]any) (*Frame, error) {
	if len(names) != len(columns) {
		return nil, fmt.Errorf("got %d column names for %d columns", len(names), len(columns))
	}
	f := New()
	for i, name := range names {
		if err := f.AddColumn(name, columns[i]); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// AddColumn appends a column. The first column fixes the row count of the frame.
func (f *Frame) AddColumn(name string, values []any) error {
	if name == "" {
		return fmt.Errorf("column name must not be empty")
	}
	if _, ok := f.cols[name]; ok {
		return fmt.Errorf("column %q already exists", name)
	}
	if len(f.names) > 0 && len(values) != f.rows {
		return fmt.Errorf("column %q has %d rows, expected %d", name, len(values), f.rows)
	}
	if len(f.names) == 0 {
		f.rows = len(values)
	}
	f.names = append(f.names, name)
	f.cols[name] = values
	return nil
}

// RemoveColumn drops a column if present.
func (f *Frame) RemoveColumn(name string) {
	if _, ok := f.cols[name]; !ok {
		return
	}
	delete(f.cols, name)
	f.names = slices.DeleteFunc(f.names, func(n string) bool { return n == name })
	if len(f.names) == 0 {
		f.rows = 0
	}
}

// Column returns the values of a column.
func (f *Frame) Column(name string) ([]any, bool) {
	values, ok := f.cols[name]
	return values, ok
}

// HasColumn reports whether the frame contains the column.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.cols[name]
	return ok
}

// ColumnNames returns the column names in order.
func (f *Frame) ColumnNames() []string {
	return slices.Clone(f.names)
}

// NumRows returns the number of rows.
func (f *Frame) NumRows() int {
	return f.rows
}

// Row returns the values of row i in column order.
func (f *Frame) Row(i int) []any {
	row := make([]any, len(f.names))
	for j, name := range f.names {
		row[j] = f.cols[name][i]
	}
	return row
}

// Slice returns the rows [start, end) as a new frame sharing no column slices with f.
func (f *Frame) Slice(start, end int) *Frame {
	start = max(0, min(start, f.rows))
	end = max(start, min(end, f.rows))
	out := New()
	for _, name := range f.names {
		_ = out.AddColumn(name, slices.Clone(f.cols[name][start:end]))
	}
	return out
}

// Take returns a new frame with the rows at the given indices, in that order.
func (f *Frame) Take(indices []int) *Frame {
	out := New()
	for _, name := range f.names {
		src := f.cols[name]
		values := make([]any, len(indices))
		for i, idx := range indices {
			values[i] = src[idx]
		}
		_ = out.AddColumn(name, values)
	}
	return out
}

// Filter returns the rows for which keep returns true.
func (f *Frame) Filter(keep func(i int) bool) *Frame {
	indices := make([]int, 0, f.rows)
	for i := range f.rows {
		if keep(i) {
			indices = append(indices, i)
		}
	}
	return f.Take(indices)
}

// Concat appends frames with identical column names (in any order) into one frame.
func Concat(frames ...*Frame) (*Frame, error) {
	var first *Frame
	for _, fr := range frames {
		if fr != nil && len(fr.names) > 0 {
			first = fr
			break
		}
	}
	if first == nil {
		return New(), nil
	}
	out := New()
	for _, name := range first.names {
		var values []any
		for _, fr := range frames {
			if fr == nil || len(fr.names) == 0 {
				continue
			}
			col, ok := fr.cols[name]
			if !ok || len(fr.names) != len(first.names) {
				return nil, fmt.Errorf("frames have different columns: %v and %v", first.names, fr.names)
			}
			values = append(values, col...)
		}
		if err := out.AddColumn(name, values); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Values returns a column converted to a typed slice.
func Values[T any](f *Frame, name string) ([]T, error) {
	col, ok := f.cols[name]
	if !ok {
		return nil, fmt.Errorf("column %q not found", name)
	}
	out := make([]T, len(col))
	for i, v := range col {
		tv, ok := v.(T)
		if !ok {
			var zero T
			return nil, fmt.Errorf("column %q row %d: expected %T, got %T", name, i, zero, v)
		}
		out[i] = tv
	}
	return out, nil
}

// Uint64Column returns a column of cell indexes.
func (f *Frame) Uint64Column(name string) ([]uint64, error) {
	return Values[uint64](f, name)
}

// Uint64Values wraps cell indexes into a column.
func Uint64Values(cells []uint64) []any {
	out := make([]any, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}
