package feature

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/settlement-cli/internal/crs"
)

// LoadPolygonsShapefile reads polygon records from a shapefile. The reference
// system is sniffed from the sibling .prj file and resolved against opts.CRS.
// opts.IDProperty must name a DBF field.
func LoadPolygonsShapefile(path string, opts PolygonOptions) (PolygonSet, LoadReport, error) {
	report := LoadReport{Source: opts.Source}
	if opts.IDProperty == "" {
		return PolygonSet{}, report, eris.Errorf("feature: %s: shapefile input needs an id field", opts.Source)
	}

	var declared crs.Code
	prjPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
	if prj, err := os.ReadFile(prjPath); err == nil {
		declared = crs.FromPRJ(string(prj))
		if declared == 0 {
			zap.L().Warn("feature: unrecognised .prj, relying on configured crs",
				zap.String("component", "feature"),
				zap.String("path", prjPath),
			)
		}
	}
	code, err := crs.Resolve(declared, opts.CRS)
	if err != nil {
		return PolygonSet{}, report, eris.Wrapf(err, "feature: %s", opts.Source)
	}

	reader, err := shp.Open(path)
	if err != nil {
		return PolygonSet{}, report, eris.Wrapf(err, "feature: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	set := PolygonSet{CRS: code}
	seen := make(map[string]int)

	for reader.Next() {
		n, shape := reader.Shape()
		row := n + 1
		report.Total++

		attrs := make(Attributes, len(names))
		for i, name := range names {
			if v := dbfString(reader.Attribute(i)); v != "" {
				attrs[name] = v
			}
		}

		id := CanonicalID(attrs[opts.IDProperty])
		if id == "" {
			report.reject(row, "", "missing %s", opts.IDProperty)
			continue
		}
		if first, dup := seen[id]; dup {
			report.reject(row, id, "duplicate id (first seen in record %d)", first)
			continue
		}

		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			report.reject(row, id, "unsupported shape %T", shape)
			continue
		}
		g, err := shapeToPolygonal(poly)
		if err != nil {
			report.reject(row, id, "%v", err)
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

// dbfString trims DBF padding. Values that are not valid UTF-8 are assumed to
// be Windows-1252, the usual encoding of older Irish boundary exports.
func dbfString(v string) string {
	v = strings.TrimSpace(strings.TrimRight(v, "\x00"))
	if utf8.ValidString(v) {
		return v
	}
	if d, err := charmap.Windows1252.NewDecoder().String(v); err == nil {
		return d
	}
	return v
}

// shapeToPolygonal groups shapefile parts into polygons. Clockwise rings are
// outer boundaries and counter-clockwise rings are holes, each assigned to
// the outer ring that contains it. Files with no clockwise ring are treated
// as one polygon per ring.
func shapeToPolygonal(p *shp.Polygon) (geom.T, error) {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil, eris.New("empty geometry")
	}

	type ring struct {
		flat  []float64
		outer bool
	}
	rings := make([]ring, 0, p.NumParts)
	for i := range int(p.NumParts) {
		start := int(p.Parts[i])
		end := len(p.Points)
		if i+1 < int(p.NumParts) {
			end = int(p.Parts[i+1])
		}
		if start < 0 || end > len(p.Points) || end-start < 4 {
			return nil, eris.Errorf("ring %d has %d coordinates, need at least 4", i, max(end-start, 0))
		}
		flat := make([]float64, 0, 2*(end-start))
		for _, pt := range p.Points[start:end] {
			flat = append(flat, pt.X, pt.Y)
		}
		if flat[0] != flat[len(flat)-2] || flat[1] != flat[len(flat)-1] {
			return nil, eris.Errorf("ring %d is not closed", i)
		}
		if err := checkRingSimple(geom.XY, flat); err != nil {
			return nil, eris.Errorf("ring %d %v", i, err)
		}
		rings = append(rings, ring{flat: flat, outer: !xy.IsRingCounterClockwise(geom.XY, flat)})
	}

	var polys [][][]float64
	hasOuter := false
	for _, r := range rings {
		if r.outer {
			hasOuter = true
			break
		}
	}
	for _, r := range rings {
		if !hasOuter || r.outer {
			polys = append(polys, [][]float64{r.flat})
		}
	}
	if hasOuter {
		for _, r := range rings {
			if r.outer {
				continue
			}
			owner := -1
			probe := geom.Coord{r.flat[0], r.flat[1]}
			for pi := len(polys) - 1; pi >= 0; pi-- {
				if xy.LocatePointInRing(geom.XY, probe, polys[pi][0]) != location.Exterior {
					owner = pi
					break
				}
			}
			if owner < 0 {
				polys = append(polys, [][]float64{r.flat})
				continue
			}
			polys[owner] = append(polys[owner], r.flat)
		}
	}

	built := make([]*geom.Polygon, len(polys))
	for i, rs := range polys {
		var flat []float64
		ends := make([]int, 0, len(rs))
		for _, r := range rs {
			flat = append(flat, r...)
			ends = append(ends, len(flat))
		}
		built[i] = geom.NewPolygonFlat(geom.XY, flat, ends)
	}
	if len(built) == 1 {
		return built[0], nil
	}
	mp := geom.NewMultiPolygon(geom.XY)
	for _, b := range built {
		if err := mp.Push(b); err != nil {
			return nil, eris.Wrap(err, "assemble multipolygon")
		}
	}
	return mp, nil
}
