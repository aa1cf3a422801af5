package insert

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/compaction"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/frame"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/h3cell"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/schema"
)

// NewTemporaryKey returns a key unique to one insert run: the current unix time followed by
// random hex digits. It only contains characters allowed in table names.
func NewTemporaryKey(clock clockwork.Clock) string {
	random := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("%d%s", clock.Now().Unix(), random[:12])
}

// staged is the data written to one temporary table.
type staged struct {
	meta schema.ResolutionMetadata
	rows *frame.Frame
}

// compactAndSplit validates f against s and distributes its rows over the tables of s.
//
// With compaction enabled the rows are compacted first; rows at the maximum resolution go to its
// base table and coarser rows to the compacted table of their resolution. Without compaction all
// rows must share one base resolution.
func compactAndSplit(grid h3cell.Grid, s *schema.CompactedTableSchema, f *frame.Frame) ([]staged, error) {
	if f == nil || f.NumRows() == 0 {
		return nil, ErrEmptyInput
	}
	for _, name := range f.ColumnNames() {
		if _, ok := s.Column(name); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
		}
	}
	cells, err := f.Uint64Column(schema.H3IndexName)
	if err != nil {
		return nil, err
	}
	for i, c := range cells {
		if !grid.IsValid(c) {
			return nil, fmt.Errorf("%w: %x in row %d", compaction.ErrInvalidCell, c, i)
		}
	}

	resolutions := compaction.Resolutions(grid, cells)
	maxRes := s.MaxResolution()
	if observed := slices.Max(resolutions); observed > maxRes {
		return nil, fmt.Errorf("%w: %d > %d", ErrResolutionTooHigh, observed, maxRes)
	}

	if !s.UseCompaction() {
		if len(resolutions) > 1 {
			return nil, fmt.Errorf("%w: %v", ErrMixedResolutions, resolutions)
		}
		if !slices.Contains(s.BaseResolutions(), resolutions[0]) {
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedResolution, resolutions[0])
		}
		return []staged{{meta: schema.ResolutionMetadata{H3Resolution: resolutions[0]}, rows: f}}, nil
	}

	compacted, err := compaction.Compact(grid, f, schema.H3IndexName)
	if err != nil {
		return nil, err
	}
	byRes, err := compaction.SplitByResolution(grid, compacted, schema.H3IndexName)
	if err != nil {
		return nil, err
	}
	out := make([]staged, 0, len(byRes))
	for r, rows := range byRes {
		out = append(out, staged{
			meta: schema.ResolutionMetadata{H3Resolution: r, IsCompacted: r != maxRes},
			rows: rows,
		})
	}
	slices.SortFunc(out, func(a, b staged) int { return a.meta.Compare(b.meta) })
	return out, nil
}
