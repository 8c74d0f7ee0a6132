package crs

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// projection converts between a projected system and WGS84 lon/lat degrees.
type projection interface {
	FromGeographic(lon, lat float64) (x, y float64)
	ToGeographic(x, y float64) (lon, lat float64)
}

type geographic struct{}

func (geographic) FromGeographic(lon, lat float64) (float64, float64) { return lon, lat }
func (geographic) ToGeographic(x, y float64) (float64, float64)       { return x, y }

// webMercator delegates to orb's spherical mercator.
type webMercator struct{}

func (webMercator) FromGeographic(lon, lat float64) (float64, float64) {
	p := project.WGS84.ToMercator(orb.Point{lon, lat})
	return p[0], p[1]
}

func (webMercator) ToGeographic(x, y float64) (float64, float64) {
	p := project.Mercator.ToWGS84(orb.Point{x, y})
	return p[0], p[1]
}

// irishTM is EPSG:2157 (IRENET95 / Irish Transverse Mercator). IRENET95 is an
// ETRS89 realisation and is treated as coincident with WGS84.
var irishTM = newTransverseMercator(grs80A, grs80F, 53.5, -8, 0.99982, 600000, 750000)

func lookup(c Code) (projection, error) {
	switch {
	case c == WGS84:
		return geographic{}, nil
	case c == WebMercator:
		return webMercator{}, nil
	case c == IrishTM:
		return irishTM, nil
	case c >= utmNorthFirst && c <= utmNorthLast:
		zone := int(c - utmNorthFirst + 1)
		return newTransverseMercator(wgs84A, wgs84F, 0, utmCentralMeridian(zone), 0.9996, 500000, 0), nil
	case c >= utmSouthFirst && c <= utmSouthLast:
		zone := int(c - utmSouthFirst + 1)
		return newTransverseMercator(wgs84A, wgs84F, 0, utmCentralMeridian(zone), 0.9996, 500000, 10000000), nil
	case c == 0:
		return nil, ErrUndeclared
	}
	return nil, eris.Wrapf(ErrUnsupported, "crs: no transform for %s", c)
}

func utmCentralMeridian(zone int) float64 {
	return float64(zone*6 - 183)
}

// Supported reports whether a transform is registered for the code.
func Supported(c Code) bool {
	_, err := lookup(c)
	return err == nil
}

// Transformer maps coordinates from one reference system to another.
type Transformer struct {
	From, To Code
	src, dst projection
}

// NewTransformer builds a transformer between two supported systems.
func NewTransformer(from, to Code) (*Transformer, error) {
	src, err := lookup(from)
	if err != nil {
		return nil, eris.Wrapf(err, "crs: source %s", from)
	}
	dst, err := lookup(to)
	if err != nil {
		return nil, eris.Wrapf(err, "crs: target %s", to)
	}
	return &Transformer{From: from, To: to, src: src, dst: dst}, nil
}

// Identity reports whether the transform leaves coordinates unchanged.
func (t *Transformer) Identity() bool {
	return t.From == t.To
}

// Point transforms a single coordinate pair.
func (t *Transformer) Point(x, y float64) (float64, float64, error) {
	if t.Identity() {
		return x, y, nil
	}
	lon, lat := t.src.ToGeographic(x, y)
	ox, oy := t.dst.FromGeographic(lon, lat)
	if math.IsNaN(ox) || math.IsNaN(oy) || math.IsInf(ox, 0) || math.IsInf(oy, 0) {
		return 0, 0, eris.Errorf("crs: (%g, %g) has no image in %s", x, y, t.To)
	}
	return ox, oy, nil
}

// Geometry returns a transformed deep copy of g. The input is never modified.
func (t *Transformer) Geometry(g geom.T) (geom.T, error) {
	var out geom.T
	switch v := g.(type) {
	case *geom.Point:
		out = v.Clone()
	case *geom.Polygon:
		out = v.Clone()
	case *geom.MultiPolygon:
		out = v.Clone()
	case *geom.LinearRing:
		out = v.Clone()
	default:
		return nil, eris.Errorf("crs: unsupported geometry %T", g)
	}

	flat := out.FlatCoords()
	stride := out.Stride()
	for i := 0; i+1 < len(flat); i += stride {
		x, y, err := t.Point(flat[i], flat[i+1])
		if err != nil {
			return nil, err
		}
		flat[i], flat[i+1] = x, y
	}
	return out, nil
}
