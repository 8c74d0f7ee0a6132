// Package valuation summarises commercial property valuations per category.
package valuation

import (
	"context"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/settlement-cli/internal/feature"
	"github.com/sells-group/settlement-cli/internal/fetcher"
	"github.com/sells-group/settlement-cli/internal/filter"
)

// Overall is the category name of the all-rows summary.
const Overall = "ALL"

// Options names the valuation table columns.
type Options struct {
	CategoryColumn    string
	AreaColumn        string
	ValueColumn       string
	ExcludeCategories []string
}

// Filters returns the named predicates applied before any statistic is taken:
// rows without a positive floor area, then excluded categories.
func (o Options) Filters() []filter.Predicate {
	preds := []filter.Predicate{filter.Positive(o.AreaColumn)}
	if len(o.ExcludeCategories) > 0 {
		preds = append(preds, filter.ExcludeValues(o.CategoryColumn, o.ExcludeCategories...))
	}
	return preds
}

// Summary holds descriptive statistics for one variable. StdDev is the
// sample standard deviation and is NaN for fewer than two values.
type Summary struct {
	Count  int     `yaml:"count"`
	Mean   float64 `yaml:"mean"`
	StdDev float64 `yaml:"std_dev"`
	Min    float64 `yaml:"min"`
	Median float64 `yaml:"median"`
	Max    float64 `yaml:"max"`
}

// Summarize computes a Summary. The input is not modified.
func Summarize(xs []float64) Summary {
	if len(xs) == 0 {
		return Summary{}
	}
	sorted := slices.Clone(xs)
	slices.Sort(sorted)

	s := Summary{
		Count:  len(sorted),
		Mean:   stat.Mean(sorted, nil),
		StdDev: math.NaN(),
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
		Median: median(sorted),
	}
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}
	return s
}

// median averages the two middle values of an even-length sorted slice.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return stat.Mean(sorted[n/2-1:n/2+1], nil)
}

// CategoryStats summarises valuation and valuation per square metre.
type CategoryStats struct {
	Category       string  `yaml:"category"`
	Value          Summary `yaml:"value"`
	PerSquareMetre Summary `yaml:"per_square_metre"`
}

// Result is the outcome of an analysis.
type Result struct {
	Total      int                 `yaml:"total"`
	Used       int                 `yaml:"used"`
	Rejected   []feature.Rejection `yaml:"rejected,omitempty"`
	Filtered   filter.Counts       `yaml:"filtered,omitempty"`
	Categories []CategoryStats     `yaml:"categories"`
	Overall    CategoryStats       `yaml:"overall"`
}

// Analyze validates each row, applies the named filters and summarises the
// survivors per category, in category name order, and overall. Rows whose
// valuation or area is missing or not a finite number are rejected.
func Analyze(tbl *fetcher.Table, opts Options) (*Result, error) {
	if opts.CategoryColumn == "" || opts.AreaColumn == "" || opts.ValueColumn == "" {
		return nil, eris.New("valuation: category, area and value columns must be named")
	}
	if err := tbl.RequireColumns(opts.CategoryColumn, opts.AreaColumn, opts.ValueColumn); err != nil {
		return nil, eris.Wrap(err, "valuation")
	}

	res := &Result{Total: len(tbl.Rows)}
	preds := opts.Filters()

	values := make(map[string][]float64)
	perM2 := make(map[string][]float64)
	var allValues, allPerM2 []float64

	for i := range tbl.Rows {
		rec := filter.Map(tbl.Record(i))
		v, err := parseAmount(rec[opts.ValueColumn])
		if err != nil {
			res.Rejected = append(res.Rejected, feature.Rejection{
				Row:    i + 1,
				Reason: fmt.Sprintf("malformed %s: %v", opts.ValueColumn, err),
			})
			continue
		}
		if name := filter.Apply(rec, preds); name != "" {
			if res.Filtered == nil {
				res.Filtered = filter.Counts{}
			}
			res.Filtered[name]++
			continue
		}
		area, err := parseAmount(rec[opts.AreaColumn])
		if err != nil {
			res.Rejected = append(res.Rejected, feature.Rejection{
				Row:    i + 1,
				Reason: fmt.Sprintf("malformed %s: %v", opts.AreaColumn, err),
			})
			continue
		}

		cat := strings.TrimSpace(rec[opts.CategoryColumn])
		if cat == "" {
			cat = "UNCATEGORISED"
		}
		values[cat] = append(values[cat], v)
		perM2[cat] = append(perM2[cat], v/area)
		allValues = append(allValues, v)
		allPerM2 = append(allPerM2, v/area)
		res.Used++
	}

	cats := make([]string, 0, len(values))
	for c := range values {
		cats = append(cats, c)
	}
	slices.Sort(cats)
	for _, c := range cats {
		res.Categories = append(res.Categories, CategoryStats{
			Category:       c,
			Value:          Summarize(values[c]),
			PerSquareMetre: Summarize(perM2[c]),
		})
	}
	res.Overall = CategoryStats{Category: Overall, Value: Summarize(allValues), PerSquareMetre: Summarize(allPerM2)}

	zap.L().Info("valuation: summarised",
		zap.String("component", "valuation"),
		zap.Int("total", res.Total),
		zap.Int("used", res.Used),
		zap.Int("rejected", len(res.Rejected)),
		zap.Int("filtered", res.Filtered.Total()),
		zap.Int("categories", len(res.Categories)),
	)
	return res, nil
}

// AnalyzeFile reads a CSV or XLSX valuation table and analyses it.
func AnalyzeFile(ctx context.Context, path string, opts Options) (*Result, error) {
	resolved, err := fetcher.Unpack(path, ".csv", ".xlsx", ".txt")
	if err != nil {
		return nil, eris.Wrap(err, "valuation")
	}
	tbl, err := fetcher.OpenTable(ctx, resolved)
	if err != nil {
		return nil, eris.Wrapf(err, "valuation: read %s", resolved)
	}
	return Analyze(tbl, opts)
}

// parseAmount reads a finite number, tolerating thousands separators and a
// leading euro sign.
func parseAmount(s string) (float64, error) {
	v := strings.TrimSpace(s)
	v = strings.TrimPrefix(v, "€")
	v = strings.ReplaceAll(v, ",", "")
	if v == "" {
		return 0, eris.New("empty value")
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, eris.Errorf("%q is not a number", s)
	}
	return f, nil
}

// WriteTable renders the result as an aligned text table.
func (r *Result) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "category\tvariable\tcount\tmean\tstd\tmin\tmedian\tmax\t")
	rows := append(slices.Clone(r.Categories), r.Overall)
	for _, c := range rows {
		for _, v := range []struct {
			name string
			s    Summary
		}{{"value", c.Value}, {"value_per_m2", c.PerSquareMetre}} {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t\n",
				c.Category, v.name, v.s.Count,
				num(v.s.Mean), num(v.s.StdDev), num(v.s.Min), num(v.s.Median), num(v.s.Max))
		}
	}
	if err := tw.Flush(); err != nil {
		return eris.Wrap(err, "valuation: write table")
	}
	if _, err := fmt.Fprintf(w, "rows: %d used, %d rejected, %d filtered\n", r.Used, len(r.Rejected), r.Filtered.Total()); err != nil {
		return eris.Wrap(err, "valuation: write table")
	}
	return nil
}

func num(f float64) string {
	if math.IsNaN(f) {
		return "-"
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}
