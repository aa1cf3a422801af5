package traversal

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/h3cell"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/tableset"
)

// TablePlaceholder is replaced by the rows of the traversed cells in query templates.
const TablePlaceholder = "<[table]>"

const DefaultQuery = "SELECT * FROM " + TablePlaceholder

// SelectTraversalResolution returns the coarsest base resolution r <= target with at most
// maxFetchCount descendants at target per cell. It falls back to target.
func SelectTraversalResolution(ts *tableset.TableSet, target uint8, maxFetchCount uint64) (uint8, error) {
	if !ts.HasBaseResolution(target) {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedResolution, target)
	}
	for _, r := range ts.BaseResolutions() {
		if r <= target && h3cell.ChildCount(r, target) <= maxFetchCount {
			return r, nil
		}
	}
	return target, nil
}

// condition renders the restriction applied to a table at the given resolution.
type condition func(resolution uint8) (string, error)

// sourceQuery renders the UNION ALL of all tables of ts holding data of resolution target,
// each restricted by where.
func sourceQuery(ts *tableset.TableSet, target uint8, where condition) (string, error) {
	if !ts.HasBaseResolution(target) {
		return "", fmt.Errorf("%w: %d", ErrUnsupportedResolution, target)
	}
	columns := strings.Join(ts.ColumnNames(), ", ")
	tables := ts.TablesFor(target)
	selects := make([]string, len(tables))
	for i, t := range tables {
		cond, err := where(t.Spec.H3Resolution)
		if err != nil {
			return "", err
		}
		selects[i] = fmt.Sprintf("SELECT %s FROM %s WHERE %s", columns, t.Name(), cond)
	}
	return "(" + strings.Join(selects, " UNION ALL ") + ")", nil
}

// RenderQuery replaces every table placeholder of template by source.
func RenderQuery(template, source string) (string, error) {
	if !strings.Contains(template, TablePlaceholder) {
		return "", fmt.Errorf("query does not contain the table placeholder %s", TablePlaceholder)
	}
	return strings.ReplaceAll(template, TablePlaceholder, source), nil
}

// ancestorsAt returns the distinct ancestors of cells at resolution in ascending order.
func ancestorsAt(grid h3cell.Grid, cells []uint64, resolution uint8) ([]uint64, error) {
	set := make(map[uint64]struct{}, len(cells))
	for _, c := range cells {
		p, err := grid.Parent(c, resolution)
		if err != nil {
			return nil, err
		}
		set[p] = struct{}{}
	}
	return sortedCells(set), nil
}

func inList(column string, cells []uint64) string {
	values := make([]string, len(cells))
	for i, c := range cells {
		values[i] = strconv.FormatUint(c, 10)
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(values, ", "))
}

// fetchCondition restricts every table to the rows covering cells, which are at the target
// resolution. Compacted tables are matched by the ancestors of cells at their resolution.
func fetchCondition(grid h3cell.Grid, cells []uint64, target uint8) condition {
	return func(resolution uint8) (string, error) {
		if resolution == target {
			return inList(tableset.H3IndexColumn, slices.Sorted(slices.Values(cells))), nil
		}
		ancestors, err := ancestorsAt(grid, cells, resolution)
		if err != nil {
			return "", err
		}
		return inList(tableset.H3IndexColumn, ancestors), nil
	}
}

// prefilterCondition restricts every table to the rows within or above the traversal cells.
func prefilterCondition(grid h3cell.Grid, cells []uint64, traversal uint8) condition {
	return func(resolution uint8) (string, error) {
		if resolution >= traversal {
			return inList(fmt.Sprintf("h3ToParent(%s, %d)", tableset.H3IndexColumn, traversal), cells), nil
		}
		ancestors, err := ancestorsAt(grid, cells, resolution)
		if err != nil {
			return "", err
		}
		return inList(tableset.H3IndexColumn, ancestors), nil
	}
}
