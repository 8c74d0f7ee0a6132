// Package pipeline runs the settlement demand/supply analysis end to end:
// load, normalise, aggregate demand, join schools, aggregate supply, and
// compute ratios.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/settlement-cli/internal/aggregate"
	"github.com/sells-group/settlement-cli/internal/config"
	"github.com/sells-group/settlement-cli/internal/crs"
	"github.com/sells-group/settlement-cli/internal/feature"
	"github.com/sells-group/settlement-cli/internal/filter"
	"github.com/sells-group/settlement-cli/internal/ratio"
	"github.com/sells-group/settlement-cli/internal/spatial"
)

// Stage names a pipeline step.
type Stage string

// Pipeline stages in execution order.
const (
	StageLoadSchools     Stage = "load_schools"
	StageLoadSettlements Stage = "load_settlements"
	StageMergeCensus     Stage = "merge_census"
	StageNormalize       Stage = "normalize"
	StageDemand          Stage = "demand"
	StageJoin            Stage = "join"
	StageSupply          Stage = "supply"
	StageRatio           Stage = "ratio"
)

// StageError attributes a failure to the stage and input that caused it.
type StageError struct {
	Stage Stage
	Input string
	Err   error
}

func (e *StageError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("pipeline: stage %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("pipeline: stage %s (%s): %v", e.Stage, e.Input, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Inputs are local paths to the three datasets. Census may be empty when the
// settlement file already carries the age columns.
type Inputs struct {
	Schools     string
	Settlements string
	Census      string
}

// Options holds the resolved analysis settings.
type Options struct {
	Threshold      float64
	AgeColumns     []string
	TargetCRS      crs.Code
	Boundary       spatial.BoundaryPolicy
	Ambiguity      spatial.AmbiguityPolicy
	Schools        feature.PointOptions
	Settlements    feature.PolygonOptions
	CensusIDColumn string
}

// OptionsFromConfig resolves reference systems, policies and filters from
// configuration.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	target, err := crs.Parse(cfg.Analysis.TargetCRS)
	if err != nil {
		return Options{}, eris.Wrap(err, "pipeline: analysis.target_crs")
	}
	if !crs.Supported(target) {
		return Options{}, eris.Wrapf(crs.ErrUnsupported, "pipeline: analysis.target_crs %s", target)
	}
	boundary, err := spatial.ParseBoundaryPolicy(cfg.Analysis.BoundaryPolicy)
	if err != nil {
		return Options{}, err
	}
	ambiguity, err := spatial.ParseAmbiguityPolicy(cfg.Analysis.AmbiguityPolicy)
	if err != nil {
		return Options{}, err
	}

	var schoolCRS crs.Code
	if cfg.Schools.CRS != "" {
		if schoolCRS, err = crs.Parse(cfg.Schools.CRS); err != nil {
			return Options{}, eris.Wrap(err, "pipeline: schools.crs")
		}
	}
	var settlementCRS crs.Code
	if cfg.Settlements.CRS != "" {
		if settlementCRS, err = crs.Parse(cfg.Settlements.CRS); err != nil {
			return Options{}, eris.Wrap(err, "pipeline: settlements.crs")
		}
	}

	var filters []filter.Predicate
	if cfg.Schools.ExcludeColumn != "" && len(cfg.Schools.ExcludeValues) > 0 {
		filters = append(filters, filter.ExcludeValues(cfg.Schools.ExcludeColumn, cfg.Schools.ExcludeValues...))
	}

	return Options{
		Threshold:  cfg.Analysis.Threshold,
		AgeColumns: cfg.Analysis.AgeColumns,
		TargetCRS:  target,
		Boundary:   boundary,
		Ambiguity:  ambiguity,
		Schools: feature.PointOptions{
			Source:         "schools",
			CRS:            schoolCRS,
			IDColumn:       cfg.Schools.IDColumn,
			NameColumn:     cfg.Schools.NameColumn,
			XColumn:        cfg.Schools.XColumn,
			YColumn:        cfg.Schools.YColumn,
			CapacityColumn: cfg.Schools.CapacityColumn,
			Filters:        filters,
		},
		Settlements: feature.PolygonOptions{
			Source:       "settlements",
			CRS:          settlementCRS,
			IDProperty:   cfg.Settlements.IDColumn,
			NameProperty: cfg.Settlements.NameColumn,
		},
		CensusIDColumn: cfg.Census.IDColumn,
	}, nil
}

// Output is the product of a run.
type Output struct {
	Records []ratio.Record
	// Settlements holds the analysed polygons in the target reference system,
	// for sinks that write geometry.
	Settlements feature.PolygonSet
	Report      *Report
}

// Pipeline runs the analysis with fixed options.
type Pipeline struct {
	opts   Options
	joiner *spatial.Joiner
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	return &Pipeline{
		opts: opts,
		joiner: spatial.NewJoiner(
			spatial.WithBoundaryPolicy(opts.Boundary),
			spatial.WithAmbiguityPolicy(opts.Ambiguity),
		),
	}
}

// Run loads the inputs and analyses them. Rejected records are reported, not
// fatal; any fatal failure is returned as a *StageError.
func (p *Pipeline) Run(ctx context.Context, in Inputs) (*Output, error) {
	log := zap.L().With(zap.String("component", "pipeline"))
	log.Info("pipeline: starting run",
		zap.String("schools", in.Schools),
		zap.String("settlements", in.Settlements),
		zap.String("census", in.Census),
	)

	report := newReport(p.opts)

	var schools feature.PointSet
	err := p.track(ctx, StageLoadSchools, in.Schools, func() error {
		set, lr, err := feature.LoadPointsFile(ctx, in.Schools, p.opts.Schools)
		report.Loads = append(report.Loads, lr)
		schools = set
		return err
	})
	if err != nil {
		return nil, err
	}

	var settlements feature.PolygonSet
	err = p.track(ctx, StageLoadSettlements, in.Settlements, func() error {
		set, lr, err := feature.LoadPolygonsFile(in.Settlements, p.opts.Settlements)
		report.Loads = append(report.Loads, lr)
		settlements = set
		return err
	})
	if err != nil {
		return nil, err
	}

	if in.Census != "" {
		err = p.track(ctx, StageMergeCensus, in.Census, func() error {
			merged, mr, err := feature.LoadAttributesFile(ctx, in.Census, settlements, p.opts.CensusIDColumn, "census")
			report.CensusMerge = &mr
			settlements = merged
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	return p.analyze(ctx, schools, settlements, report)
}

// Analyze runs the stages after loading on collections already in memory.
// Neither input is modified.
func (p *Pipeline) Analyze(ctx context.Context, schools feature.PointSet, settlements feature.PolygonSet) (*Output, error) {
	return p.analyze(ctx, schools, settlements, newReport(p.opts))
}

func (p *Pipeline) analyze(ctx context.Context, schools feature.PointSet, settlements feature.PolygonSet, report *Report) (*Output, error) {
	var (
		pts     feature.PointSet
		polys   feature.PolygonSet
		demand  []aggregate.Demand
		joined  *spatial.Result
		supply  []aggregate.Supply
		results *ratio.Result
	)

	err := p.track(ctx, StageNormalize, "schools", func() error {
		var err error
		pts, err = schools.Reproject(p.opts.TargetCRS)
		return err
	})
	if err != nil {
		return nil, err
	}
	err = p.track(ctx, StageNormalize, "settlements", func() error {
		var err error
		polys, err = settlements.Reproject(p.opts.TargetCRS)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = p.track(ctx, StageDemand, "settlements", func() error {
		var err error
		demand, err = aggregate.Demands(polys, p.opts.AgeColumns)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = p.track(ctx, StageJoin, "schools", func() error {
		var err error
		joined, err = p.joiner.Join(pts, polys)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = p.track(ctx, StageSupply, "schools", func() error {
		var err error
		supply, err = aggregate.Supplies(joined.Matches)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = p.track(ctx, StageRatio, "", func() error {
		var err error
		results, err = ratio.Analyze(demand, supply, p.opts.Threshold)
		return err
	})
	if err != nil {
		return nil, err
	}

	report.record(len(polys.Polygons), joined, results)
	zap.L().Info("pipeline: run complete",
		zap.String("component", "pipeline"),
		zap.Int("rows", len(results.Records)),
		zap.Int("outliers", report.Outliers),
		zap.Int("unmatched_schools", report.Join.Unmatched),
	)
	return &Output{Records: results.Records, Settlements: polys, Report: report}, nil
}

// track runs one stage, logs its duration and wraps a failure in a
// StageError.
func (p *Pipeline) track(ctx context.Context, stage Stage, input string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: stage, Input: input, Err: eris.Wrap(err, "pipeline: cancelled")}
	}

	start := time.Now()
	err := fn()
	duration := time.Since(start).Milliseconds()

	log := zap.L().With(
		zap.String("component", "pipeline"),
		zap.String("stage", string(stage)),
		zap.String("input", input),
		zap.Int64("duration_ms", duration),
	)
	if err != nil {
		log.Error("pipeline: stage failed", zap.Error(err))
		return &StageError{Stage: stage, Input: input, Err: err}
	}
	log.Debug("pipeline: stage complete")
	return nil
}
