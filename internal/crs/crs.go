// Package crs identifies coordinate reference systems and reprojects feature
// geometry between them.
package crs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Sentinel errors.
var (
	// ErrMismatch is returned when two collections are compared geometrically
	// while tagged with different reference systems.
	ErrMismatch = eris.New("crs: reference system mismatch")
	// ErrUndeclared is returned when an input declares no reference system and
	// none was supplied out of band.
	ErrUndeclared = eris.New("crs: reference system not declared")
	// ErrUnsupported is returned for EPSG codes with no registered transform.
	ErrUnsupported = eris.New("crs: unsupported reference system")
)

// Well-known EPSG codes.
const (
	WGS84         Code = 4326
	WebMercator   Code = 3857
	IrishTM       Code = 2157
	utmNorthFirst Code = 32601
	utmNorthLast  Code = 32660
	utmSouthFirst Code = 32701
	utmSouthLast  Code = 32760
)

// Code is an EPSG coordinate reference system code. The zero value means
// "undeclared".
type Code int

// String renders the code as "EPSG:<n>".
func (c Code) String() string {
	if c == 0 {
		return "undeclared"
	}
	return fmt.Sprintf("EPSG:%d", int(c))
}

// Geographic reports whether coordinates in this system are lon/lat degrees.
func (c Code) Geographic() bool {
	return c == WGS84
}

// Parse reads a reference system identifier. It accepts "EPSG:2157", "2157",
// OGC URNs such as "urn:ogc:def:crs:EPSG::2157" and the CRS84 URN, which maps
// to EPSG:4326 (lon/lat axis order is assumed throughout).
func Parse(s string) (Code, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, ErrUndeclared
	}
	upper := strings.ToUpper(raw)

	switch upper {
	case "CRS84", "OGC:CRS84", "URN:OGC:DEF:CRS:OGC:1.3:CRS84", "URN:OGC:DEF:CRS:OGC::CRS84":
		return WGS84, nil
	}

	num := upper
	if i := strings.LastIndex(upper, ":"); i >= 0 {
		if !strings.Contains(upper, "EPSG") {
			return 0, eris.Wrapf(ErrUnsupported, "crs: %q is not an EPSG identifier", raw)
		}
		num = upper[i+1:]
	}

	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return 0, eris.Wrapf(ErrUnsupported, "crs: cannot parse %q", raw)
	}
	return Code(n), nil
}

// Resolve combines a reference system declared inside an input with one
// supplied out of band. Either may be zero; if both are set they must agree.
func Resolve(declared, configured Code) (Code, error) {
	switch {
	case declared == 0 && configured == 0:
		return 0, ErrUndeclared
	case declared == 0:
		return configured, nil
	case configured == 0:
		return declared, nil
	case declared != configured:
		return 0, eris.Wrapf(ErrMismatch, "crs: input declares %s but configuration says %s", declared, configured)
	}
	return declared, nil
}

// RequireSame fails fast unless both codes are declared and equal.
func RequireSame(a, b Code) error {
	if a == 0 || b == 0 {
		return eris.Wrapf(ErrUndeclared, "crs: cannot compare %s with %s", a, b)
	}
	if a != b {
		return eris.Wrapf(ErrMismatch, "crs: %s vs %s", a, b)
	}
	return nil
}

// prjNames maps substrings found in ESRI .prj WKT to EPSG codes.
var prjNames = []struct {
	needle string
	code   Code
}{
	{"IRENET95_IRISH_TRANSVERSE_MERCATOR", IrishTM},
	{"IRISH_TRANSVERSE_MERCATOR", IrishTM},
	{"WGS_1984_WEB_MERCATOR", WebMercator},
	{"WGS_84_PSEUDO_MERCATOR", WebMercator},
	{"GCS_WGS_1984", WGS84},
}

// FromPRJ sniffs an ESRI .prj WKT string for a well-known projection name.
// Returns 0 when the projection is not recognised.
func FromPRJ(wkt string) Code {
	upper := strings.ToUpper(wkt)
	// PROJCS wraps GEOGCS, so a projected name must win over the datum.
	if strings.HasPrefix(strings.TrimSpace(upper), "PROJCS") {
		for _, p := range prjNames {
			if p.code != WGS84 && strings.Contains(upper, p.needle) {
				return p.code
			}
		}
		if zone, south, ok := utmZoneFromWKT(upper); ok {
			if south {
				return utmSouthFirst + Code(zone-1)
			}
			return utmNorthFirst + Code(zone-1)
		}
		return 0
	}
	for _, p := range prjNames {
		if strings.Contains(upper, p.needle) {
			return p.code
		}
	}
	return 0
}

// utmZoneFromWKT extracts the zone from names like "WGS_1984_UTM_ZONE_29N".
func utmZoneFromWKT(upper string) (int, bool, bool) {
	const marker = "WGS_1984_UTM_ZONE_"
	i := strings.Index(upper, marker)
	if i < 0 {
		return 0, false, false
	}
	rest := upper[i+len(marker):]
	j := 0
	for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
		j++
	}
	if j == 0 || j >= len(rest) {
		return 0, false, false
	}
	zone, err := strconv.Atoi(rest[:j])
	if err != nil || zone < 1 || zone > 60 {
		return 0, false, false
	}
	return zone, rest[j] == 'S', true
}
