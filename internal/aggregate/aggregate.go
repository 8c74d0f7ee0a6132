// Package aggregate computes per-settlement demand from census attributes and
// per-settlement supply from joined schools.
package aggregate

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/settlement-cli/internal/feature"
	"github.com/sells-group/settlement-cli/internal/spatial"
)

// ErrMissingColumn is returned when a settlement lacks one of the age columns.
// A missing column is never read as zero.
var ErrMissingColumn = eris.New("aggregate: missing age column")

// Demand is the number of school-age children in one settlement.
type Demand struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Children int64  `yaml:"children"`
}

// Supply is the number of school places attributed to one settlement.
type Supply struct {
	PolygonID string `yaml:"polygon_id"`
	Places    int64  `yaml:"places"`
	Schools   int    `yaml:"schools"`
}

// Demands sums the named age columns for every polygon, in polygon order. It
// fails on the first polygon where a column is absent, empty, negative or not
// a whole number.
func Demands(set feature.PolygonSet, columns []string) ([]Demand, error) {
	if len(columns) == 0 {
		return nil, eris.New("aggregate: no age columns configured")
	}
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if seen[c] {
			return nil, eris.Errorf("aggregate: age column %q listed twice", c)
		}
		seen[c] = true
	}

	out := make([]Demand, 0, len(set.Polygons))
	for _, p := range set.Polygons {
		var total int64
		for _, c := range columns {
			raw, ok := p.Attrs[c]
			if !ok {
				return nil, eris.Wrapf(ErrMissingColumn, "aggregate: settlement %s has no %s", p.ID, c)
			}
			n, err := feature.ParseCount(raw)
			if err != nil {
				return nil, eris.Wrapf(err, "aggregate: settlement %s column %s", p.ID, c)
			}
			if n < 0 {
				return nil, eris.Errorf("aggregate: settlement %s column %s is negative (%d)", p.ID, c, n)
			}
			if total > math.MaxInt64-n {
				return nil, eris.Errorf("aggregate: settlement %s demand overflows", p.ID)
			}
			total += n
		}
		out = append(out, Demand{ID: p.ID, Name: p.Name, Children: total})
	}

	zap.L().Debug("aggregate: demand computed",
		zap.String("component", "aggregate"),
		zap.Int("settlements", len(out)),
		zap.Strings("columns", columns),
	)
	return out, nil
}

// Supplies sums capacity per polygon over the join matches. Polygons with no
// matched point are absent. Records are ordered by each polygon's first match.
// A negative capacity or a total beyond int64 is an error.
func Supplies(matches []spatial.Match) ([]Supply, error) {
	index := make(map[string]int)
	var out []Supply
	for _, m := range matches {
		if m.Capacity < 0 {
			return nil, eris.Errorf("aggregate: school %s capacity is negative (%d)", m.PointID, m.Capacity)
		}
		i, ok := index[m.PolygonID]
		if !ok {
			i = len(out)
			index[m.PolygonID] = i
			out = append(out, Supply{PolygonID: m.PolygonID})
		}
		if out[i].Places > math.MaxInt64-m.Capacity {
			return nil, eris.Errorf("aggregate: settlement %s supply overflows at school %s", m.PolygonID, m.PointID)
		}
		out[i].Places += m.Capacity
		out[i].Schools++
	}

	zap.L().Debug("aggregate: supply computed",
		zap.String("component", "aggregate"),
		zap.Int("settlements", len(out)),
		zap.Int("schools", len(matches)),
	)
	return out, nil
}
