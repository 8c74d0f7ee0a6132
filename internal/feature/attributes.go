package feature

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/settlement-cli/internal/fetcher"
)

// LoadPolygonsFile loads polygons from a GeoJSON file, a shapefile, or a ZIP
// archive holding either.
func LoadPolygonsFile(path string, opts PolygonOptions) (PolygonSet, LoadReport, error) {
	resolved, err := fetcher.Unpack(path, ".shp", ".geojson", ".json")
	if err != nil {
		return PolygonSet{}, LoadReport{Source: opts.Source}, eris.Wrapf(err, "feature: %s", opts.Source)
	}

	if strings.EqualFold(filepath.Ext(resolved), ".shp") {
		return LoadPolygonsShapefile(resolved, opts)
	}

	f, err := os.Open(resolved)
	if err != nil {
		return PolygonSet{}, LoadReport{Source: opts.Source}, eris.Wrapf(err, "feature: open %s", resolved)
	}
	defer f.Close() //nolint:errcheck
	return LoadPolygonsGeoJSON(f, opts)
}

// MergeReport describes how an attribute table lined up with a polygon set.
type MergeReport struct {
	Source            string      `yaml:"source"`
	Rows              int         `yaml:"rows"`
	Merged            int         `yaml:"merged"`
	Rejected          []Rejection `yaml:"rejected,omitempty"`
	UnmatchedPolygons []string    `yaml:"unmatched_polygons,omitempty"`
	UnmatchedRows     []string    `yaml:"unmatched_rows,omitempty"`
}

// MergeAttributes joins table rows onto polygons by identifier and returns a
// new set holding only the polygons that found a row, in their original
// order. Identifiers on both sides are compared after CanonicalID. Table
// values are added to each polygon's attributes and win over same-named
// polygon properties. Rows with an empty or repeated identifier are
// rejected; polygons without a row and rows without a polygon are listed in
// the report. The input set is not modified.
func MergeAttributes(set PolygonSet, tbl *fetcher.Table, idColumn, source string) (PolygonSet, MergeReport, error) {
	report := MergeReport{Source: source, Rows: len(tbl.Rows)}
	if err := tbl.RequireColumns(idColumn); err != nil {
		return PolygonSet{}, report, eris.Wrapf(err, "feature: %s", source)
	}

	rows := make(map[string]Attributes, len(tbl.Rows))
	firstRow := make(map[string]int, len(tbl.Rows))
	var order []string
	for i := range tbl.Rows {
		row := i + 1
		rec := Attributes(tbl.Record(i))
		id := CanonicalID(rec[idColumn])
		if id == "" {
			report.Rejected = append(report.Rejected, Rejection{Row: row, Reason: "missing " + idColumn})
			continue
		}
		if first, dup := firstRow[id]; dup {
			report.Rejected = append(report.Rejected, Rejection{
				Row:    row,
				ID:     id,
				Reason: fmt.Sprintf("duplicate id (first seen in row %d)", first),
			})
			continue
		}
		firstRow[id] = row
		rows[id] = rec
		order = append(order, id)
	}

	out := PolygonSet{CRS: set.CRS}
	matched := make(map[string]bool, len(set.Polygons))
	for _, p := range set.Polygons {
		rec, ok := rows[p.ID]
		if !ok {
			report.UnmatchedPolygons = append(report.UnmatchedPolygons, p.ID)
			continue
		}
		attrs := p.Attrs.Clone()
		if attrs == nil {
			attrs = make(Attributes, len(rec))
		}
		for k, v := range rec {
			attrs[k] = v
		}
		p.Attrs = attrs
		out.Polygons = append(out.Polygons, p)
		matched[p.ID] = true
	}
	for _, id := range order {
		if !matched[id] {
			report.UnmatchedRows = append(report.UnmatchedRows, id)
		}
	}
	report.Merged = len(out.Polygons)

	if len(report.UnmatchedPolygons) > 0 || len(report.UnmatchedRows) > 0 || len(report.Rejected) > 0 {
		zap.L().Warn("feature: attribute merge incomplete",
			zap.String("component", "feature"),
			zap.String("source", source),
			zap.Int("merged", report.Merged),
			zap.Int("unmatched_polygons", len(report.UnmatchedPolygons)),
			zap.Int("unmatched_rows", len(report.UnmatchedRows)),
			zap.Int("rejected", len(report.Rejected)),
		)
	}
	return out, report, nil
}

// LoadAttributesFile reads an attribute table and merges it onto set.
func LoadAttributesFile(ctx context.Context, path string, set PolygonSet, idColumn, source string) (PolygonSet, MergeReport, error) {
	resolved, err := fetcher.Unpack(path, ".csv", ".xlsx", ".txt")
	if err != nil {
		return PolygonSet{}, MergeReport{Source: source}, eris.Wrapf(err, "feature: %s", source)
	}
	tbl, err := fetcher.OpenTable(ctx, resolved)
	if err != nil {
		return PolygonSet{}, MergeReport{Source: source}, eris.Wrapf(err, "feature: read %s", resolved)
	}
	return MergeAttributes(set, tbl, idColumn, source)
}
