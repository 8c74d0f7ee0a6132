package export

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/settlement-cli/internal/db"
	"github.com/sells-group/settlement-cli/internal/feature"
	"github.com/sells-group/settlement-cli/internal/ratio"
)

var postgisColumns = append(append([]string(nil), Columns...), "geom")

// WritePostGIS replaces the contents of a PostGIS table with the ratio table.
// Boundaries are stored as MultiPolygons tagged with the settlements' SRID.
func WritePostGIS(ctx context.Context, pool db.Pool, table string, records []ratio.Record, settlements feature.PolygonSet) (int64, error) {
	if table == "" {
		return 0, eris.New("export: table name is empty")
	}
	srid := int(settlements.CRS)
	if srid == 0 {
		return 0, eris.New("export: settlements have no reference system")
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	total_schoolchildren BIGINT NOT NULL,
	total_school_places  BIGINT NOT NULL,
	ratio                DOUBLE PRECISION NOT NULL,
	outlier              BOOLEAN NOT NULL,
	geom                 geometry(MultiPolygon, %d)
)`, db.Identifier(table).Sanitize(), srid)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return 0, eris.Wrapf(err, "export: create %s", table)
	}

	byID := make(map[string]geom.T, len(settlements.Polygons))
	for _, p := range settlements.Polygons {
		byID[p.ID] = p.Geom
	}

	rows := make([][]any, 0, len(records))
	for _, r := range records {
		g, ok := byID[r.ID]
		if !ok {
			return 0, eris.Errorf("export: no boundary for settlement %s", r.ID)
		}
		wkb, err := EncodeEWKB(g, srid)
		if err != nil {
			return 0, eris.Wrapf(err, "export: settlement %s", r.ID)
		}
		rows = append(rows, []any{r.ID, r.Name, r.Children, r.Places, r.Ratio, r.Outlier, wkb})
	}

	return db.ReplaceRows(ctx, pool, table, postgisColumns, rows)
}

// EncodeEWKB encodes a polygonal geometry as a little-endian EWKB
// MultiPolygon with the given SRID. The input is not modified.
func EncodeEWKB(g geom.T, srid int) ([]byte, error) {
	var mp *geom.MultiPolygon
	switch v := g.(type) {
	case *geom.Polygon:
		mp = geom.NewMultiPolygon(v.Layout())
		if err := mp.Push(v.Clone()); err != nil {
			return nil, eris.Wrap(err, "export: wrap polygon")
		}
	case *geom.MultiPolygon:
		mp = v.Clone()
	default:
		return nil, eris.Errorf("export: cannot encode %T as MultiPolygon", g)
	}

	data, err := ewkb.Marshal(mp.SetSRID(srid), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "export: encode EWKB")
	}
	return data, nil
}
