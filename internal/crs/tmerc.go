package crs

import "math"

// Ellipsoid parameters.
const (
	grs80A  = 6378137.0
	grs80F  = 1 / 298.257222101
	wgs84A  = 6378137.0
	wgs84F  = 1 / 298.257223563
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi
)

// transverseMercator implements the Krüger n-series (third order), which is
// accurate to well under a millimetre within a few thousand kilometres of
// the central meridian.
type transverseMercator struct {
	lon0    float64 // central meridian, radians
	k0      float64
	e0, n0  float64 // false easting / northing
	a       float64 // rectifying radius A
	e       float64 // first eccentricity
	alpha   [3]float64
	beta    [3]float64
	delta   [3]float64
	xiFloor float64 // unscaled northing of the latitude of origin
}

func newTransverseMercator(a, f, lat0Deg, lon0Deg, k0, falseE, falseN float64) *transverseMercator {
	n := f / (2 - f)
	n2, n3 := n*n, n*n*n

	tm := &transverseMercator{
		lon0: lon0Deg * deg2rad,
		k0:   k0,
		e0:   falseE,
		n0:   falseN,
		a:    a / (1 + n) * (1 + n2/4 + n2*n2/64),
		e:    math.Sqrt(f * (2 - f)),
		alpha: [3]float64{
			n/2 - 2*n2/3 + 5*n3/16,
			13*n2/48 - 3*n3/5,
			61 * n3 / 240,
		},
		beta: [3]float64{
			n/2 - 2*n2/3 + 37*n3/96,
			n2/48 + n3/15,
			17 * n3 / 480,
		},
		delta: [3]float64{
			2*n - 2*n2/3 - 2*n3,
			7*n2/3 - 8*n3/5,
			56 * n3 / 15,
		},
	}

	xi0 := math.Atan(tm.conformalT(lat0Deg * deg2rad))
	floor := xi0
	for j := 1; j <= 3; j++ {
		floor += tm.alpha[j-1] * math.Sin(2*float64(j)*xi0)
	}
	tm.xiFloor = floor
	return tm
}

// conformalT returns sinh of the conformal latitude.
func (tm *transverseMercator) conformalT(phi float64) float64 {
	s := math.Sin(phi)
	return math.Sinh(math.Atanh(s) - tm.e*math.Atanh(tm.e*s))
}

func (tm *transverseMercator) FromGeographic(lon, lat float64) (float64, float64) {
	phi := lat * deg2rad
	dl := lon*deg2rad - tm.lon0

	t := tm.conformalT(phi)
	xiP := math.Atan2(t, math.Cos(dl))
	etaP := math.Atanh(math.Sin(dl) / math.Sqrt(1+t*t))

	xi, eta := xiP, etaP
	for j := 1; j <= 3; j++ {
		k := 2 * float64(j)
		xi += tm.alpha[j-1] * math.Sin(k*xiP) * math.Cosh(k*etaP)
		eta += tm.alpha[j-1] * math.Cos(k*xiP) * math.Sinh(k*etaP)
	}

	x := tm.e0 + tm.k0*tm.a*eta
	y := tm.n0 + tm.k0*tm.a*(xi-tm.xiFloor)
	return x, y
}

func (tm *transverseMercator) ToGeographic(x, y float64) (float64, float64) {
	xi := (y-tm.n0)/(tm.k0*tm.a) + tm.xiFloor
	eta := (x - tm.e0) / (tm.k0 * tm.a)

	xiP, etaP := xi, eta
	for j := 1; j <= 3; j++ {
		k := 2 * float64(j)
		xiP -= tm.beta[j-1] * math.Sin(k*xi) * math.Cosh(k*eta)
		etaP -= tm.beta[j-1] * math.Cos(k*xi) * math.Sinh(k*eta)
	}

	chi := math.Asin(math.Sin(xiP) / math.Cosh(etaP))
	phi := chi
	for j := 1; j <= 3; j++ {
		phi += tm.delta[j-1] * math.Sin(2*float64(j)*chi)
	}
	lam := tm.lon0 + math.Atan2(math.Sinh(etaP), math.Cos(xiP))
	return lam * rad2deg, phi * rad2deg
}
