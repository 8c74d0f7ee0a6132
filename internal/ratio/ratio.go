// Package ratio combines settlement demand and supply into demand/supply
// ratios and flags outliers.
package ratio

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/settlement-cli/internal/aggregate"
)

// Record is one row of the settlement ratio table.
type Record struct {
	ID       string  `csv:"id" yaml:"id"`
	Name     string  `csv:"name" yaml:"name"`
	Children int64   `csv:"total_schoolchildren" yaml:"total_schoolchildren"`
	Places   int64   `csv:"total_school_places" yaml:"total_school_places"`
	Ratio    float64 `csv:"ratio" yaml:"ratio"`
	Outlier  bool    `csv:"outlier" yaml:"outlier"`
}

// Result is the ratio table plus the settlements left out of it.
type Result struct {
	Threshold float64
	Records   []Record
	// NoSupply lists settlements with demand but no school places, either
	// because no school joined or because the joined schools report zero.
	NoSupply []string
	// NoDemand lists settlements with supply but no demand record.
	NoDemand []string
}

// Outliers returns the number of flagged records.
func (r *Result) Outliers() int {
	n := 0
	for _, rec := range r.Records {
		if rec.Outlier {
			n++
		}
	}
	return n
}

// Analyze inner-joins demand and supply on settlement identity and computes
// ratio = children / places with outlier = ratio > threshold. Rows follow the
// demand order. Settlements without positive supply never produce a row, so
// the table holds no infinite or NaN ratio.
func Analyze(demand []aggregate.Demand, supply []aggregate.Supply, threshold float64) (*Result, error) {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return nil, eris.Errorf("ratio: threshold must be finite, got %v", threshold)
	}

	places := make(map[string]int64, len(supply))
	for _, s := range supply {
		if _, dup := places[s.PolygonID]; dup {
			return nil, eris.Errorf("ratio: duplicate supply record for %s", s.PolygonID)
		}
		places[s.PolygonID] = s.Places
	}

	res := &Result{Threshold: threshold}
	known := make(map[string]bool, len(demand))
	for _, d := range demand {
		if known[d.ID] {
			return nil, eris.Errorf("ratio: duplicate demand record for %s", d.ID)
		}
		known[d.ID] = true

		p := places[d.ID]
		if p <= 0 {
			res.NoSupply = append(res.NoSupply, d.ID)
			continue
		}
		r := float64(d.Children) / float64(p)
		res.Records = append(res.Records, Record{
			ID:       d.ID,
			Name:     d.Name,
			Children: d.Children,
			Places:   p,
			Ratio:    r,
			Outlier:  r > threshold,
		})
	}
	for _, s := range supply {
		if !known[s.PolygonID] {
			res.NoDemand = append(res.NoDemand, s.PolygonID)
		}
	}

	log := zap.L().With(zap.String("component", "ratio"))
	if len(res.NoSupply) > 0 || len(res.NoDemand) > 0 {
		log.Warn("ratio: settlements excluded from ratio table",
			zap.Int("no_supply", len(res.NoSupply)),
			zap.Int("no_demand", len(res.NoDemand)),
		)
	}
	log.Info("ratio: analysis complete",
		zap.Float64("threshold", threshold),
		zap.Int("rows", len(res.Records)),
		zap.Int("outliers", res.Outliers()),
	)
	return res, nil
}
