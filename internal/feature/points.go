package feature

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/settlement-cli/internal/crs"
	"github.com/sells-group/settlement-cli/internal/fetcher"
	"github.com/sells-group/settlement-cli/internal/filter"
)

// PointOptions maps table columns onto point features.
type PointOptions struct {
	Source         string
	CRS            crs.Code
	IDColumn       string
	NameColumn     string
	XColumn        string
	YColumn        string
	CapacityColumn string
	// Filters run after a row has been validated. Rows they drop are counted
	// under the predicate name rather than reported as rejections.
	Filters []filter.Predicate
}

// LoadPointsFile reads a CSV or XLSX table, optionally inside a ZIP archive,
// and loads points from it.
func LoadPointsFile(ctx context.Context, path string, opts PointOptions) (PointSet, LoadReport, error) {
	resolved, err := fetcher.Unpack(path, ".csv", ".xlsx", ".txt")
	if err != nil {
		return PointSet{}, LoadReport{Source: opts.Source}, eris.Wrapf(err, "feature: %s", opts.Source)
	}
	tbl, err := fetcher.OpenTable(ctx, resolved)
	if err != nil {
		return PointSet{}, LoadReport{Source: opts.Source}, eris.Wrapf(err, "feature: read %s", path)
	}
	return LoadPoints(tbl, opts)
}

// LoadPoints builds a point collection from a table. Rows with a missing or
// duplicate identifier, a malformed coordinate or capacity, or a negative
// capacity are rejected and listed in the report. A missing column or an
// undeclared reference system fails the whole load.
func LoadPoints(tbl *fetcher.Table, opts PointOptions) (PointSet, LoadReport, error) {
	report := LoadReport{Source: opts.Source, Total: len(tbl.Rows)}

	if opts.CRS == 0 {
		return PointSet{}, report, eris.Wrapf(crs.ErrUndeclared, "feature: %s", opts.Source)
	}
	if err := tbl.RequireColumns(opts.IDColumn, opts.XColumn, opts.YColumn, opts.CapacityColumn, opts.NameColumn); err != nil {
		return PointSet{}, report, eris.Wrapf(err, "feature: %s", opts.Source)
	}
	if opts.IDColumn == "" || opts.XColumn == "" || opts.YColumn == "" || opts.CapacityColumn == "" {
		return PointSet{}, report, eris.Errorf("feature: %s: id, x, y and capacity columns must be named", opts.Source)
	}

	set := PointSet{CRS: opts.CRS}
	seen := make(map[string]int, len(tbl.Rows))

	for i := range tbl.Rows {
		row := i + 1
		attrs := Attributes(tbl.Record(i))

		id := CanonicalID(attrs[opts.IDColumn])
		if id == "" {
			report.reject(row, "", "missing %s", opts.IDColumn)
			continue
		}
		if first, dup := seen[id]; dup {
			report.reject(row, id, "duplicate id (first seen in row %d)", first)
			continue
		}

		x, err := parseCoord(attrs[opts.XColumn])
		if err != nil {
			report.reject(row, id, "malformed %s: %v", opts.XColumn, err)
			continue
		}
		y, err := parseCoord(attrs[opts.YColumn])
		if err != nil {
			report.reject(row, id, "malformed %s: %v", opts.YColumn, err)
			continue
		}
		if opts.CRS.Geographic() && (x < -180 || x > 180 || y < -90 || y > 90) {
			report.reject(row, id, "coordinate (%g, %g) outside lon/lat range", x, y)
			continue
		}

		capacity, err := ParseCount(attrs[opts.CapacityColumn])
		if err != nil {
			report.reject(row, id, "malformed %s: %v", opts.CapacityColumn, err)
			continue
		}
		if capacity < 0 {
			report.reject(row, id, "negative %s %d", opts.CapacityColumn, capacity)
			continue
		}

		if name := filter.Apply(attrs, opts.Filters); name != "" {
			report.filtered(name)
			continue
		}

		seen[id] = row
		set.Points = append(set.Points, Point{
			ID:       id,
			Name:     attrs[opts.NameColumn],
			Geom:     geom.NewPointFlat(geom.XY, []float64{x, y}),
			Capacity: capacity,
			Attrs:    attrs,
		})
	}
	report.Loaded = len(set.Points)

	zap.L().Info("feature: loaded points",
		zap.String("component", "feature"),
		zap.String("source", opts.Source),
		zap.Int("total", report.Total),
		zap.Int("loaded", report.Loaded),
		zap.Int("rejected", len(report.Rejected)),
		zap.Int("filtered", report.Filtered.Total()),
	)
	return set, report, nil
}
