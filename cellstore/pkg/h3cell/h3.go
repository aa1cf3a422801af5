package h3cell

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/uber/h3-go/v4"
)

// H3 implements Grid and Polyfiller with the uber H3 library.
type H3 struct{}

var _ Polyfiller = H3{}

func (H3) Parent(cell uint64, resolution uint8) (uint64, error) {
	if err := ValidateResolution(resolution); err != nil {
		return 0, err
	}
	parent, err := h3.Cell(cell).Parent(int(resolution))
	if err != nil {
		return 0, fmt.Errorf("failed to get parent of %x at resolution %d: %w", cell, resolution, err)
	}
	return uint64(parent), nil
}

func (H3) Children(cell uint64, resolution uint8) ([]uint64, error) {
	if err := ValidateResolution(resolution); err != nil {
		return nil, err
	}
	children, err := h3.Cell(cell).Children(int(resolution))
	if err != nil {
		return nil, fmt.Errorf("failed to get children of %x at resolution %d: %w", cell, resolution, err)
	}
	return toUint64s(children), nil
}

func (H3) Resolution(cell uint64) uint8 {
	return uint8(h3.Cell(cell).Resolution())
}

func (H3) IsValid(cell uint64) bool {
	return h3.Cell(cell).IsValid()
}

func (H3) PolygonToCells(polygon orb.Polygon, resolution uint8) ([]uint64, error) {
	if err := ValidateResolution(resolution); err != nil {
		return nil, err
	}
	if len(polygon) == 0 {
		return nil, nil
	}
	geo := h3.GeoPolygon{GeoLoop: ringToLoop(polygon[0])}
	for _, hole := range polygon[1:] {
		geo.Holes = append(geo.Holes, ringToLoop(hole))
	}
	cells, err := h3.PolygonToCells(geo, int(resolution))
	if err != nil {
		return nil, fmt.Errorf("failed to polyfill at resolution %d: %w", resolution, err)
	}
	return toUint64s(cells), nil
}

func (H3) GridDisk(cell uint64, k int) ([]uint64, error) {
	cells, err := h3.GridDisk(h3.Cell(cell), k)
	if err != nil {
		return nil, fmt.Errorf("failed to get grid disk of %x: %w", cell, err)
	}
	return toUint64s(cells), nil
}

func (H3) CellCenter(cell uint64) (orb.Point, error) {
	ll, err := h3.Cell(cell).LatLng()
	if err != nil {
		return orb.Point{}, fmt.Errorf("failed to get center of %x: %w", cell, err)
	}
	return orb.Point{ll.Lng, ll.Lat}, nil
}

func (H3) PointToCell(point orb.Point, resolution uint8) (uint64, error) {
	if err := ValidateResolution(resolution); err != nil {
		return 0, err
	}
	cell, err := h3.LatLngToCell(h3.NewLatLng(point.Lat(), point.Lon()), int(resolution))
	if err != nil {
		return 0, fmt.Errorf("failed to get cell of %v at resolution %d: %w", point, resolution, err)
	}
	return uint64(cell), nil
}

// ringToLoop converts a closed orb ring (lon/lat) into an open H3 loop (lat/lng).
func ringToLoop(ring orb.Ring) h3.GeoLoop {
	points := ring
	if ring.Closed() && len(ring) > 1 {
		points = ring[:len(ring)-1]
	}
	loop := make(h3.GeoLoop, 0, len(points))
	for _, p := range points {
		loop = append(loop, h3.NewLatLng(p.Lat(), p.Lon()))
	}
	return loop
}

func toUint64s(cells []h3.Cell) []uint64 {
	out := make([]uint64, 0, len(cells))
	for _, c := range cells {
		// GridDisk pads with zero cells around pentagons.
		if c == 0 {
			continue
		}
		out = append(out, uint64(c))
	}
	return out
}
