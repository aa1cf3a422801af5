package h3cell

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
	"github.com/uber/h3-go/v4"
)

func testCell(t *testing.T, resolution int) uint64 {
	t.Helper()
	cell, err := h3.LatLngToCell(h3.NewLatLng(48.1351, 11.5820), resolution)
	require.NoError(t, err)
	return uint64(cell)
}

func TestCellstore_H3Cell_Hierarchy(t *testing.T) {
	t.Parallel()

	grid := H3{}
	cell := testCell(t, 8)

	require.True(t, grid.IsValid(cell))
	require.False(t, grid.IsValid(0))
	require.Equal(t, uint8(8), grid.Resolution(cell))

	parent, err := grid.Parent(cell, 7)
	require.NoError(t, err)
	require.Equal(t, uint8(7), grid.Resolution(parent))

	children, err := grid.Children(parent, 8)
	require.NoError(t, err)
	require.Len(t, children, 7)
	require.Contains(t, children, cell)

	_, err = grid.Parent(cell, 16)
	require.ErrorIs(t, err, ErrInvalidResolution)
}

func TestCellstore_H3Cell_ChildCount(t *testing.T) {
	t.Parallel()

	require.Equal(t, uint64(1), ChildCount(5, 5))
	require.Equal(t, uint64(1), ChildCount(6, 5))
	require.Equal(t, uint64(7), ChildCount(5, 6))
	require.Equal(t, uint64(343), ChildCount(3, 6))
}

func TestCellstore_H3Cell_PolygonToCells(t *testing.T) {
	t.Parallel()

	grid := H3{}
	polygon := orb.Polygon{orb.Ring{
		{11.50, 48.10}, {11.65, 48.10}, {11.65, 48.18}, {11.50, 48.18}, {11.50, 48.10},
	}}

	cells, err := grid.PolygonToCells(polygon, 7)
	require.NoError(t, err)
	require.NotEmpty(t, cells)
	for _, c := range cells {
		require.Equal(t, uint8(7), grid.Resolution(c))
		center, err := grid.CellCenter(c)
		require.NoError(t, err)
		require.InDelta(t, 11.57, center.Lon(), 0.2)
		require.InDelta(t, 48.14, center.Lat(), 0.2)
	}

	disk, err := grid.GridDisk(cells[0], 1)
	require.NoError(t, err)
	require.Len(t, disk, 7)
	require.Contains(t, disk, cells[0])
}

func TestCellstore_H3Cell_PointToCell(t *testing.T) {
	t.Parallel()

	grid := H3{}
	cell, err := grid.PointToCell(orb.Point{11.5820, 48.1351}, 8)
	require.NoError(t, err)
	require.Equal(t, testCell(t, 8), cell)

	_, err = grid.PointToCell(orb.Point{11.5820, 48.1351}, 16)
	require.ErrorIs(t, err, ErrInvalidResolution)
}
