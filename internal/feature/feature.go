// Package feature holds the in-memory point and polygon collections the
// pipeline works on, and the loaders that build them from CSV, XLSX, GeoJSON
// and shapefile inputs.
package feature

import (
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/settlement-cli/internal/crs"
	"github.com/sells-group/settlement-cli/internal/filter"
)

// Attributes maps column or property names to their raw string values.
type Attributes map[string]string

// Get implements filter.Record.
func (a Attributes) Get(name string) (string, bool) {
	v, ok := a[name]
	return v, ok
}

// Clone returns a shallow copy.
func (a Attributes) Clone() Attributes {
	return maps.Clone(a)
}

var _ filter.Record = Attributes(nil)

// Point is a located feature with a capacity, e.g. a school.
type Point struct {
	ID       string
	Name     string
	Geom     *geom.Point
	Capacity int64
	Attrs    Attributes
}

// XY returns the point's planar coordinates.
func (p Point) XY() (float64, float64) {
	return p.Geom.X(), p.Geom.Y()
}

// Polygon is an area feature, e.g. a settlement boundary. Geom is a
// *geom.Polygon or *geom.MultiPolygon.
type Polygon struct {
	ID    string
	Name  string
	Geom  geom.T
	Attrs Attributes
}

// PointSet is a point collection tagged with its reference system.
type PointSet struct {
	CRS    crs.Code
	Points []Point
}

// PolygonSet is a polygon collection tagged with its reference system.
type PolygonSet struct {
	CRS      crs.Code
	Polygons []Polygon
}

// IDs returns polygon identifiers in input order.
func (s PolygonSet) IDs() []string {
	ids := make([]string, len(s.Polygons))
	for i, p := range s.Polygons {
		ids[i] = p.ID
	}
	return ids
}

// Rejection records one input record that could not be loaded.
type Rejection struct {
	Row    int    `yaml:"row"`
	ID     string `yaml:"id,omitempty"`
	Reason string `yaml:"reason"`
}

// LoadReport summarises a load. Rejection rows are 1-based and count data
// records only, so a table header is not counted.
type LoadReport struct {
	Source   string        `yaml:"source"`
	Total    int           `yaml:"total"`
	Loaded   int           `yaml:"loaded"`
	Rejected []Rejection   `yaml:"rejected,omitempty"`
	Filtered filter.Counts `yaml:"filtered,omitempty"`
}

func (r *LoadReport) reject(row int, id, format string, args ...any) {
	r.Rejected = append(r.Rejected, Rejection{Row: row, ID: id, Reason: fmt.Sprintf(format, args...)})
}

func (r *LoadReport) filtered(name string) {
	if r.Filtered == nil {
		r.Filtered = filter.Counts{}
	}
	r.Filtered[name]++
}

// CanonicalID normalises an identifier. Values that parse as a UUID (with or
// without braces or a urn:uuid: prefix, in any case) are rendered in the
// canonical lower-case hyphenated form so census and boundary keys match.
// Anything else is returned trimmed but otherwise unchanged.
func CanonicalID(s string) string {
	s = strings.TrimSpace(s)
	if u, err := uuid.Parse(s); err == nil {
		return u.String()
	}
	return s
}

// ParseCount parses a non-fractional count. Thousands separators are
// accepted, as are integral floats such as "212.0" written by spreadsheet
// exports.
func ParseCount(s string) (int64, error) {
	v := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if v == "" {
		return 0, eris.New("empty value")
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, eris.Errorf("%q is not a number", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, eris.Errorf("%q is not a whole number", s)
	}
	return int64(f), nil
}

// parseCoord parses a finite coordinate value.
func parseCoord(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, eris.Errorf("%q is not a number", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, eris.Errorf("%q is not finite", s)
	}
	return f, nil
}
