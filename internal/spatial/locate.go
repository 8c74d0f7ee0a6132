package spatial

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// Locate classifies a coordinate against a polygonal geometry. Points inside a
// hole are exterior and points on a hole's ring are on the boundary. For a
// multipolygon the interior of any part wins over the boundary of another.
func Locate(g geom.T, x, y float64) location.Type {
	switch v := g.(type) {
	case *geom.Polygon:
		return locateInPolygon(v, geom.Coord{x, y})
	case *geom.MultiPolygon:
		result := location.Exterior
		for i := range v.NumPolygons() {
			switch locateInPolygon(v.Polygon(i), geom.Coord{x, y}) {
			case location.Interior:
				return location.Interior
			case location.Boundary:
				result = location.Boundary
			}
		}
		return result
	default:
		return location.Exterior
	}
}

func locateInPolygon(p *geom.Polygon, c geom.Coord) location.Type {
	if p.NumLinearRings() == 0 {
		return location.Exterior
	}
	layout := p.Layout()
	switch xy.LocatePointInRing(layout, c, p.LinearRing(0).FlatCoords()) {
	case location.Exterior:
		return location.Exterior
	case location.Boundary:
		return location.Boundary
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		switch xy.LocatePointInRing(layout, c, p.LinearRing(i).FlatCoords()) {
		case location.Interior:
			return location.Exterior
		case location.Boundary:
			return location.Boundary
		}
	}
	return location.Interior
}
