package crs

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

// Tolerances for projected (metres) and geographic (degrees) comparisons.
const (
	metreTol  = 0.01
	degreeTol = 1e-7
)

func TestIrishTM_Origin(t *testing.T) {
	tr, err := NewTransformer(WGS84, IrishTM)
	require.NoError(t, err)

	x, y, err := tr.Point(-8, 53.5)
	require.NoError(t, err)
	assert.InDelta(t, 600000, x, 1e-6)
	assert.InDelta(t, 750000, y, 1e-6)
}

func TestIrishTM_EastOfMeridian(t *testing.T) {
	tr, err := NewTransformer(WGS84, IrishTM)
	require.NoError(t, err)

	// Dublin lies east of the central meridian and north of the origin.
	x, y, err := tr.Point(-6.2603, 53.3498)
	require.NoError(t, err)
	assert.Greater(t, x, 700000.0)
	assert.Less(t, x, 730000.0)
	assert.Greater(t, y, 725000.0)
	assert.Less(t, y, 740000.0)
}

// Published worked examples on the Clarke 1866 ellipsoid exercise the same
// series the Irish and UTM grids use.
func TestTransverseMercator_PublishedControlPoints(t *testing.T) {
	const clarke1866A, clarke1866F = 6378206.4, 1 / 294.978698214

	tests := []struct {
		name     string
		lon0     float64
		falseE   float64
		lon, lat float64
		x, y     float64
		tol      float64
	}{
		// Snyder, Map Projections: A Working Manual (USGS PP 1395), p. 269.
		{"snyder", -75, 0, -73.5, 40.5, 127106.5, 4484124.4, 0.2},
		// proj(1) manual: +proj=utm +lon_0=112w +ellps=clrk66, zone 12.
		{"proj manual", -111, 500000, -111.5, 45 + 15.0/60 + 33.1/3600, 460769.27, 5011648.45, 0.05},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := newTransverseMercator(clarke1866A, clarke1866F, 0, tt.lon0, 0.9996, tt.falseE, 0)

			x, y := tm.FromGeographic(tt.lon, tt.lat)
			assert.InDelta(t, tt.x, x, tt.tol)
			assert.InDelta(t, tt.y, y, tt.tol)

			lon, lat := tm.ToGeographic(tt.x, tt.y)
			assert.InDelta(t, tt.lon, lon, 1e-5)
			assert.InDelta(t, tt.lat, lat, 1e-5)
		})
	}
}

func TestUTM_CentralMeridianOnEquator(t *testing.T) {
	tr, err := NewTransformer(WGS84, Code(32629))
	require.NoError(t, err)

	x, y, err := tr.Point(-9, 0)
	require.NoError(t, err)
	assert.InDelta(t, 500000, x, 1e-6)
	assert.InDelta(t, 0, y, 1e-6)

	south, err := NewTransformer(WGS84, Code(32729))
	require.NoError(t, err)
	_, ys, err := south.Point(-9, 0)
	require.NoError(t, err)
	assert.InDelta(t, 10000000, ys, 1e-6)
}

func TestWebMercator_Origin(t *testing.T) {
	tr, err := NewTransformer(WGS84, WebMercator)
	require.NoError(t, err)

	x, y, err := tr.Point(0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0, x, 1e-9)
	assert.InDelta(t, 0, y, 1e-9)

	x, _, err = tr.Point(180, 0)
	require.NoError(t, err)
	assert.InDelta(t, 20037508.342789244, x, metreTol)
}

func TestRoundTrip(t *testing.T) {
	points := [][2]float64{
		{-8, 53.5},
		{-6.2603, 53.3498},
		{-10.4, 51.6},
		{-6.0, 55.3},
		{-9.05, 53.27},
	}

	for _, target := range []Code{IrishTM, WebMercator, Code(32629)} {
		fwd, err := NewTransformer(WGS84, target)
		require.NoError(t, err)
		inv, err := NewTransformer(target, WGS84)
		require.NoError(t, err)

		for _, p := range points {
			x, y, err := fwd.Point(p[0], p[1])
			require.NoError(t, err)
			lon, lat, err := inv.Point(x, y)
			require.NoError(t, err)
			assert.InDelta(t, p[0], lon, degreeTol, "lon round trip via %s", target)
			assert.InDelta(t, p[1], lat, degreeTol, "lat round trip via %s", target)
		}
	}
}

func TestProjectedToProjected(t *testing.T) {
	// ITM -> UTM 29N -> ITM stays within a centimetre.
	there, err := NewTransformer(IrishTM, Code(32629))
	require.NoError(t, err)
	back, err := NewTransformer(Code(32629), IrishTM)
	require.NoError(t, err)

	x, y, err := there.Point(715830, 734697)
	require.NoError(t, err)
	bx, by, err := back.Point(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 715830, bx, metreTol)
	assert.InDelta(t, 734697, by, metreTol)
}

func TestIdentityIsNoOp(t *testing.T) {
	tr, err := NewTransformer(IrishTM, IrishTM)
	require.NoError(t, err)
	assert.True(t, tr.Identity())

	x, y, err := tr.Point(715830.123456, 734697.654321)
	require.NoError(t, err)
	assert.Equal(t, 715830.123456, x)
	assert.Equal(t, 734697.654321, y)
}

func TestNewTransformer_Unsupported(t *testing.T) {
	_, err := NewTransformer(WGS84, Code(29903))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnsupported))

	_, err = NewTransformer(0, WGS84)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUndeclared))

	assert.True(t, Supported(IrishTM))
	assert.True(t, Supported(Code(32760)))
	assert.False(t, Supported(Code(27700)))
}

func TestGeometry_DoesNotMutateInput(t *testing.T) {
	tr, err := NewTransformer(WGS84, IrishTM)
	require.NoError(t, err)

	poly := geom.NewPolygonFlat(geom.XY, []float64{
		-8, 53.5, -7.9, 53.5, -7.9, 53.6, -8, 53.6, -8, 53.5,
	}, []int{10})
	before := append([]float64(nil), poly.FlatCoords()...)

	out, err := tr.Geometry(poly)
	require.NoError(t, err)

	assert.Equal(t, before, poly.FlatCoords())
	got, ok := out.(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, poly.Ends(), got.Ends())
	assert.InDelta(t, 600000, got.FlatCoords()[0], 1e-6)
	assert.InDelta(t, 750000, got.FlatCoords()[1], 1e-6)
	// First and last coordinates stay identical so rings stay closed.
	n := len(got.FlatCoords())
	assert.Equal(t, got.FlatCoords()[0], got.FlatCoords()[n-2])
	assert.Equal(t, got.FlatCoords()[1], got.FlatCoords()[n-1])
}

func TestGeometry_MultiPolygonAndPoint(t *testing.T) {
	tr, err := NewTransformer(WGS84, WebMercator)
	require.NoError(t, err)

	mp := geom.NewMultiPolygonFlat(geom.XY, []float64{
		0, 0, 1, 0, 1, 1, 0, 0,
		2, 2, 3, 2, 3, 3, 2, 2,
	}, [][]int{{8}, {16}})
	out, err := tr.Geometry(mp)
	require.NoError(t, err)
	assert.Equal(t, 2, out.(*geom.MultiPolygon).NumPolygons())

	pt, err := tr.Geometry(geom.NewPointFlat(geom.XY, []float64{0, 0}))
	require.NoError(t, err)
	assert.InDelta(t, 0, pt.FlatCoords()[0], 1e-9)

	_, err = tr.Geometry(geom.NewLineStringFlat(geom.XY, []float64{0, 0, 1, 1}))
	assert.Error(t, err)
}
