package pipeline

import (
	"github.com/sells-group/settlement-cli/internal/feature"
	"github.com/sells-group/settlement-cli/internal/ratio"
	"github.com/sells-group/settlement-cli/internal/spatial"
)

// Report is the data-quality summary written next to the ratio table.
type Report struct {
	CRS             string               `yaml:"crs"`
	Threshold       float64              `yaml:"threshold"`
	AgeColumns      []string             `yaml:"age_columns"`
	BoundaryPolicy  string               `yaml:"boundary_policy"`
	AmbiguityPolicy string               `yaml:"ambiguity_policy"`
	Loads           []feature.LoadReport `yaml:"loads,omitempty"`
	CensusMerge     *feature.MergeReport `yaml:"census_merge,omitempty"`
	Join            JoinReport           `yaml:"join"`
	Settlements     int                  `yaml:"settlements"`
	Rows            int                  `yaml:"rows"`
	Outliers        int                  `yaml:"outliers"`
	NoSupply        []string             `yaml:"no_supply,omitempty"`
	NoDemand        []string             `yaml:"no_demand,omitempty"`
}

// JoinReport summarises the spatial join.
type JoinReport struct {
	Points       int                 `yaml:"points"`
	Matched      int                 `yaml:"matched"`
	Unmatched    int                 `yaml:"unmatched"`
	OnBoundary   int                 `yaml:"on_boundary"`
	UnmatchedIDs []string            `yaml:"unmatched_ids,omitempty"`
	Ambiguities  []spatial.Ambiguity `yaml:"ambiguities,omitempty"`
}

// Rejected returns the number of rejected input records across all loads.
func (r *Report) Rejected() int {
	n := 0
	for _, l := range r.Loads {
		n += len(l.Rejected)
	}
	if r.CensusMerge != nil {
		n += len(r.CensusMerge.Rejected)
	}
	return n
}

// Excluded returns the number of settlements left out of the ratio table.
func (r *Report) Excluded() int {
	return len(r.NoSupply) + len(r.NoDemand)
}

func newReport(opts Options) *Report {
	return &Report{
		CRS:             opts.TargetCRS.String(),
		Threshold:       opts.Threshold,
		AgeColumns:      opts.AgeColumns,
		BoundaryPolicy:  string(opts.Boundary),
		AmbiguityPolicy: string(opts.Ambiguity),
	}
}

func (r *Report) record(settlements int, joined *spatial.Result, res *ratio.Result) {
	r.Settlements = settlements
	r.Join = JoinReport{
		Points:       joined.Total,
		Matched:      len(joined.Matches),
		Unmatched:    len(joined.Unmatched),
		OnBoundary:   joined.OnBoundary,
		UnmatchedIDs: joined.Unmatched,
		Ambiguities:  joined.Ambiguities,
	}
	r.Rows = len(res.Records)
	r.Outliers = res.Outliers()
	r.NoSupply = res.NoSupply
	r.NoDemand = res.NoDemand
}
