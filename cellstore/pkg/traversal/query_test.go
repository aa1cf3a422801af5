package traversal

import (
	"fmt"
	"slices"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
	"github.com/uber/h3-go/v4"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/h3cell"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/tableset"
)

var grid = h3cell.H3{}

func cellAt(t *testing.T, lat, lng float64, resolution int) uint64 {
	t.Helper()
	cell, err := h3.LatLngToCell(h3.NewLatLng(lat, lng), resolution)
	require.NoError(t, err)
	return uint64(cell)
}

func children(t *testing.T, cell uint64, resolution uint8) []uint64 {
	t.Helper()
	out, err := grid.Children(cell, resolution)
	require.NoError(t, err)
	slices.Sort(out)
	return out
}

func testTableSet(bases []uint8, compacted []uint8) *tableset.TableSet {
	ts := tableset.New("water")
	for _, r := range bases {
		ts.Add(tableset.TableSpec{H3Resolution: r, HasBaseSuffix: true})
	}
	for _, r := range compacted {
		ts.Add(tableset.TableSpec{H3Resolution: r, IsCompacted: true})
	}
	ts.Columns["h3index"] = "UInt64"
	ts.Columns["value"] = "UInt8"
	return ts
}

func TestCellstore_Traversal_SelectTraversalResolution(t *testing.T) {
	t.Parallel()

	ts := testTableSet([]uint8{0, 1, 2, 3, 4, 5, 6}, nil)

	r, err := SelectTraversalResolution(ts, 6, 1000)
	require.NoError(t, err)
	require.Equal(t, uint8(3), r)

	r, err = SelectTraversalResolution(ts, 6, 1)
	require.NoError(t, err)
	require.Equal(t, uint8(6), r)

	r, err = SelectTraversalResolution(ts, 6, 0)
	require.NoError(t, err)
	require.Equal(t, uint8(6), r)

	sparse := testTableSet([]uint8{4, 6, 8}, nil)
	r, err = SelectTraversalResolution(sparse, 8, 100)
	require.NoError(t, err)
	require.Equal(t, uint8(6), r)

	_, err = SelectTraversalResolution(ts, 7, 1000)
	require.ErrorIs(t, err, ErrUnsupportedResolution)
}

func TestCellstore_Traversal_TraversalCells(t *testing.T) {
	t.Parallel()

	t.Run("cell list is normalized", func(t *testing.T) {
		t.Parallel()
		munich := cellAt(t, 48.1351, 11.5820, 7)
		berlin := cellAt(t, 52.52, 13.405, 9)
		area := Area{Cells: []uint64{berlin, munich, munich}}

		coarse, err := area.TraversalCells(grid, 6)
		require.NoError(t, err)
		require.Len(t, coarse, 2)
		require.True(t, slices.IsSorted(coarse))
		require.Contains(t, coarse, cellAt(t, 48.1351, 11.5820, 6))
		require.Contains(t, coarse, cellAt(t, 52.52, 13.405, 6))

		fine, err := area.TraversalCells(grid, 8)
		require.NoError(t, err)
		require.Len(t, fine, 8)
		require.True(t, slices.IsSorted(fine))
		require.Contains(t, fine, cellAt(t, 52.52, 13.405, 8))
		for _, c := range children(t, munich, 8) {
			require.Contains(t, fine, c)
		}
	})

	t.Run("polygon includes boundary cells", func(t *testing.T) {
		t.Parallel()
		area := Area{Polygon: orb.Polygon{orb.Ring{
			{11.50, 48.10}, {11.65, 48.10}, {11.65, 48.18}, {11.50, 48.18}, {11.50, 48.10},
		}}}

		cells, err := area.TraversalCells(grid, 6)
		require.NoError(t, err)
		require.True(t, slices.IsSorted(cells))
		require.Equal(t, len(cells), len(cellSet(cells)))

		filled, err := grid.PolygonToCells(area.Polygon, 6)
		require.NoError(t, err)
		for _, c := range filled {
			require.Contains(t, cells, c)
		}
		for _, p := range area.Polygon[0] {
			require.Contains(t, cells, cellAt(t, p.Lat(), p.Lon(), 6))
		}

		again, err := area.TraversalCells(grid, 6)
		require.NoError(t, err)
		require.Equal(t, cells, again)
	})

	t.Run("empty area", func(t *testing.T) {
		t.Parallel()
		_, err := Area{}.TraversalCells(grid, 6)
		require.ErrorIs(t, err, ErrEmptyArea)
	})
}

func TestCellstore_Traversal_SourceQuery(t *testing.T) {
	t.Parallel()

	ts := testTableSet([]uint8{4, 6, 8}, []uint8{0, 1, 2, 3, 4, 5, 6, 7, 8})
	parent := cellAt(t, 48.1351, 11.5820, 7)
	cells := children(t, parent, 8)[:2]

	source, err := sourceQuery(ts, 8, fetchCondition(grid, cells, 8))
	require.NoError(t, err)
	require.Contains(t, source, fmt.Sprintf("SELECT h3index, value FROM water_08_base WHERE h3index IN (%d, %d)", cells[0], cells[1]))
	require.Contains(t, source, fmt.Sprintf("SELECT h3index, value FROM water_08_compacted WHERE h3index IN (%d, %d)", cells[0], cells[1]))
	require.Contains(t, source, fmt.Sprintf("SELECT h3index, value FROM water_07_compacted WHERE h3index IN (%d)", parent))
	require.Contains(t, source, " UNION ALL ")
	require.NotContains(t, source, "water_06_base")

	grandparent := cellAt(t, 48.1351, 11.5820, 6)
	filter, err := sourceQuery(ts, 8, prefilterCondition(grid, []uint64{grandparent}, 6))
	require.NoError(t, err)
	require.Contains(t, filter, fmt.Sprintf("FROM water_08_base WHERE h3ToParent(h3index, 6) IN (%d)", grandparent))
	require.Contains(t, filter, fmt.Sprintf("FROM water_06_compacted WHERE h3ToParent(h3index, 6) IN (%d)", grandparent))
	require.Contains(t, filter, fmt.Sprintf("FROM water_05_compacted WHERE h3index IN (%d)", cellAt(t, 48.1351, 11.5820, 5)))

	_, err = sourceQuery(ts, 9, fetchCondition(grid, cells, 9))
	require.ErrorIs(t, err, ErrUnsupportedResolution)
}

func TestCellstore_Traversal_RenderQuery(t *testing.T) {
	t.Parallel()

	query, err := RenderQuery("SELECT h3index, max(value) FROM <[table]> GROUP BY h3index", "(SELECT 1)")
	require.NoError(t, err)
	require.Equal(t, "SELECT h3index, max(value) FROM (SELECT 1) GROUP BY h3index", query)

	_, err = RenderQuery("SELECT * FROM water_08_base", "(SELECT 1)")
	require.Error(t, err)
}
