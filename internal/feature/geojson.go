package feature

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/settlement-cli/internal/crs"
)

// PolygonOptions maps GeoJSON properties or shapefile fields onto polygon
// features.
type PolygonOptions struct {
	Source string
	// CRS is the out-of-band reference system. It is used when the input does
	// not declare one and must agree with the input when both are present.
	CRS crs.Code
	// IDProperty names the identifier property. When empty the GeoJSON
	// feature "id" member is used.
	IDProperty   string
	NameProperty string
}

type featureCollection struct {
	Type string `json:"type"`
	CRS  *struct {
		Type       string `json:"type"`
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"crs"`
	Features []json.RawMessage `json:"features"`
}

type rawFeature struct {
	Type       string          `json:"type"`
	ID         json.RawMessage `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// LoadPolygonsGeoJSON reads a GeoJSON FeatureCollection of Polygon and
// MultiPolygon features. The reference system comes from the legacy "crs"
// member or from opts.CRS; if neither is present the load fails with
// crs.ErrUndeclared, and if they disagree with crs.ErrMismatch. Features with
// unparseable or unsupported geometry, unclosed rings or a missing or
// duplicate identifier are rejected and listed in the report.
func LoadPolygonsGeoJSON(r io.Reader, opts PolygonOptions) (PolygonSet, LoadReport, error) {
	report := LoadReport{Source: opts.Source}

	var fc featureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return PolygonSet{}, report, eris.Wrapf(err, "feature: decode %s", opts.Source)
	}
	if fc.Type != "FeatureCollection" {
		return PolygonSet{}, report, eris.Errorf("feature: %s: expected a FeatureCollection, got %q", opts.Source, fc.Type)
	}

	var declared crs.Code
	if fc.CRS != nil && fc.CRS.Properties.Name != "" {
		c, err := crs.Parse(fc.CRS.Properties.Name)
		if err != nil {
			return PolygonSet{}, report, eris.Wrapf(err, "feature: %s crs member", opts.Source)
		}
		declared = c
	}
	code, err := crs.Resolve(declared, opts.CRS)
	if err != nil {
		return PolygonSet{}, report, eris.Wrapf(err, "feature: %s", opts.Source)
	}

	set := PolygonSet{CRS: code}
	seen := make(map[string]int, len(fc.Features))
	report.Total = len(fc.Features)

	for i, raw := range fc.Features {
		row := i + 1

		var f rawFeature
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&f); err != nil {
			report.reject(row, "", "malformed feature: %v", err)
			continue
		}
		attrs := propertiesToAttributes(f.Properties)

		var id string
		if opts.IDProperty != "" {
			id = CanonicalID(attrs[opts.IDProperty])
		} else {
			id = CanonicalID(rawID(f.ID))
		}
		if id == "" {
			report.reject(row, "", "missing identifier")
			continue
		}
		if first, dup := seen[id]; dup {
			report.reject(row, id, "duplicate id (first seen in feature %d)", first)
			continue
		}

		g, reason := decodePolygonal(f.Geometry)
		if reason != "" {
			report.reject(row, id, "%s", reason)
			continue
		}

		seen[id] = row
		set.Polygons = append(set.Polygons, Polygon{
			ID:    id,
			Name:  attrs[opts.NameProperty],
			Geom:  g,
			Attrs: attrs,
		})
	}
	report.Loaded = len(set.Polygons)

	logPolygonLoad(report, code)
	return set, report, nil
}

// decodePolygonal converts a GeoJSON geometry object. A non-empty reason
// means the geometry is unusable.
func decodePolygonal(raw json.RawMessage) (geom.T, string) {
	if len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil, "missing geometry"
	}
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return nil, "unparseable geometry: " + err.Error()
	}
	switch g.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
	default:
		return nil, "unsupported geometry type " + geometryName(g)
	}
	if err := ValidateRings(g); err != nil {
		return nil, err.Error()
	}
	return g, ""
}

// ValidateRings checks that a polygonal geometry is non-empty and that every
// ring has at least four coordinates, is closed and does not intersect
// itself. Containment tests on a self-intersecting ring are undefined.
func ValidateRings(g geom.T) error {
	var polys []*geom.Polygon
	switch v := g.(type) {
	case *geom.Polygon:
		polys = []*geom.Polygon{v}
	case *geom.MultiPolygon:
		for i := range v.NumPolygons() {
			polys = append(polys, v.Polygon(i))
		}
	default:
		return eris.Errorf("unsupported geometry type %s", geometryName(g))
	}
	if len(polys) == 0 {
		return eris.New("empty geometry")
	}
	for pi, p := range polys {
		if p.NumLinearRings() == 0 {
			return eris.Errorf("polygon %d has no rings", pi)
		}
		for ri := range p.NumLinearRings() {
			ring := p.LinearRing(ri)
			n := ring.NumCoords()
			if n < 4 {
				return eris.Errorf("polygon %d ring %d has %d coordinates, need at least 4", pi, ri, n)
			}
			first, last := ring.Coord(0), ring.Coord(n-1)
			if first.X() != last.X() || first.Y() != last.Y() {
				return eris.Errorf("polygon %d ring %d is not closed", pi, ri)
			}
			if err := checkRingSimple(ring.Layout(), ring.FlatCoords()); err != nil {
				return eris.Errorf("polygon %d ring %d %v", pi, ri, err)
			}
		}
	}
	return nil
}

func geometryName(g geom.T) string {
	switch g.(type) {
	case *geom.Point:
		return "Point"
	case *geom.MultiPoint:
		return "MultiPoint"
	case *geom.LineString:
		return "LineString"
	case *geom.MultiLineString:
		return "MultiLineString"
	case *geom.GeometryCollection:
		return "GeometryCollection"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}

// rawID renders a GeoJSON "id" member, which may be a string or a number.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// propertiesToAttributes flattens GeoJSON properties to strings. Numbers keep
// their source spelling, nulls are omitted and nested values are re-encoded
// as JSON.
func propertiesToAttributes(props map[string]any) Attributes {
	attrs := make(Attributes, len(props))
	for k, v := range props {
		switch t := v.(type) {
		case nil:
		case string:
			attrs[k] = t
		case json.Number:
			attrs[k] = t.String()
		case bool:
			attrs[k] = strconv.FormatBool(t)
		default:
			b, err := json.Marshal(t)
			if err == nil {
				attrs[k] = string(b)
			}
		}
	}
	return attrs
}

func logPolygonLoad(report LoadReport, code crs.Code) {
	zap.L().Info("feature: loaded polygons",
		zap.String("component", "feature"),
		zap.String("source", report.Source),
		zap.Stringer("crs", code),
		zap.Int("total", report.Total),
		zap.Int("loaded", report.Loaded),
		zap.Int("rejected", len(report.Rejected)),
	)
}
