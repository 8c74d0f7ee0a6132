package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/settlement-cli/internal/feature"
	"github.com/sells-group/settlement-cli/internal/ratio"
)

type namedCRS struct {
	Type       string `json:"type"`
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

type featureCollection struct {
	Type     string             `json:"type"`
	CRS      *namedCRS          `json:"crs,omitempty"`
	Features []*geojson.Feature `json:"features"`
}

// WriteGeoJSON writes one feature per ratio record carrying the settlement
// boundary. The collection declares the settlements' reference system with a
// named crs member so the file loads back without configuration.
func WriteGeoJSON(w io.Writer, records []ratio.Record, settlements feature.PolygonSet) error {
	byID := make(map[string]feature.Polygon, len(settlements.Polygons))
	for _, p := range settlements.Polygons {
		byID[p.ID] = p
	}

	fc := featureCollection{Type: "FeatureCollection", Features: make([]*geojson.Feature, 0, len(records))}
	if settlements.CRS != 0 {
		fc.CRS = &namedCRS{Type: "name"}
		fc.CRS.Properties.Name = fmt.Sprintf("urn:ogc:def:crs:EPSG::%d", int(settlements.CRS))
	}

	for _, r := range records {
		p, ok := byID[r.ID]
		if !ok {
			return eris.Errorf("export: no boundary for settlement %s", r.ID)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       r.ID,
			Geometry: p.Geom,
			Properties: map[string]any{
				"name":                 r.Name,
				"total_schoolchildren": r.Children,
				"total_school_places":  r.Places,
				"ratio":                r.Ratio,
				"outlier":              r.Outlier,
			},
		})
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(fc); err != nil {
		return eris.Wrap(err, "export: encode geojson")
	}
	return nil
}
