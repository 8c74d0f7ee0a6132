// Package spatial assigns point features to the settlement polygons that
// contain them.
package spatial

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/xy/location"
	"go.uber.org/zap"

	"github.com/sells-group/settlement-cli/internal/crs"
	"github.com/sells-group/settlement-cli/internal/feature"
)

// ErrAmbiguous is returned under AmbiguityFail when a point lies in more than
// one polygon.
var ErrAmbiguous = eris.New("spatial: point within more than one polygon")

// BoundaryPolicy decides what happens to a point that lies exactly on a
// polygon boundary.
type BoundaryPolicy string

// Boundary policies.
const (
	// BoundaryExclude applies a strict within test: boundary points do not
	// match.
	BoundaryExclude BoundaryPolicy = "exclude"
	// BoundaryInclude treats boundary points as contained.
	BoundaryInclude BoundaryPolicy = "include"
)

// AmbiguityPolicy decides what happens when a point is contained by several
// polygons.
type AmbiguityPolicy string

// Ambiguity policies.
const (
	// AmbiguityFirst assigns the point to the earliest polygon in input order
	// and records the ambiguity.
	AmbiguityFirst AmbiguityPolicy = "first"
	// AmbiguityFail aborts the join with ErrAmbiguous.
	AmbiguityFail AmbiguityPolicy = "fail"
)

// ParseBoundaryPolicy validates a configured boundary policy.
func ParseBoundaryPolicy(s string) (BoundaryPolicy, error) {
	switch p := BoundaryPolicy(s); p {
	case BoundaryExclude, BoundaryInclude:
		return p, nil
	}
	return "", eris.Errorf("spatial: unknown boundary policy %q", s)
}

// ParseAmbiguityPolicy validates a configured ambiguity policy.
func ParseAmbiguityPolicy(s string) (AmbiguityPolicy, error) {
	switch p := AmbiguityPolicy(s); p {
	case AmbiguityFirst, AmbiguityFail:
		return p, nil
	}
	return "", eris.Errorf("spatial: unknown ambiguity policy %q", s)
}

// Match pairs one point with the single polygon it was assigned to.
type Match struct {
	PointID   string
	PolygonID string
	Capacity  int64
}

// Ambiguity records a point that more than one polygon contains.
type Ambiguity struct {
	PointID    string   `yaml:"point_id"`
	PolygonIDs []string `yaml:"polygon_ids"`
	Chosen     string   `yaml:"chosen"`
}

// Result is the outcome of a join. Matches and Unmatched are in point input
// order; every input point appears in exactly one of them.
type Result struct {
	Total       int
	Matches     []Match
	Unmatched   []string
	OnBoundary  int
	Ambiguities []Ambiguity
}

// JoinerOption configures a Joiner.
type JoinerOption func(*Joiner)

// WithBoundaryPolicy sets the boundary policy.
func WithBoundaryPolicy(p BoundaryPolicy) JoinerOption {
	return func(j *Joiner) {
		j.boundary = p
	}
}

// WithAmbiguityPolicy sets the ambiguity policy.
func WithAmbiguityPolicy(p AmbiguityPolicy) JoinerOption {
	return func(j *Joiner) {
		j.ambiguity = p
	}
}

// Joiner performs point-in-polygon joins.
type Joiner struct {
	boundary  BoundaryPolicy
	ambiguity AmbiguityPolicy
}

// NewJoiner creates a Joiner that excludes boundary points and resolves
// overlaps to the first polygon unless configured otherwise.
func NewJoiner(opts ...JoinerOption) *Joiner {
	j := &Joiner{boundary: BoundaryExclude, ambiguity: AmbiguityFirst}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Join assigns every point to at most one polygon. Both sets must carry the
// same declared reference system; otherwise Join fails before any geometry is
// compared.
func (j *Joiner) Join(points feature.PointSet, polygons feature.PolygonSet) (*Result, error) {
	if err := crs.RequireSame(points.CRS, polygons.CRS); err != nil {
		return nil, eris.Wrap(err, "spatial: join")
	}
	if _, err := ParseBoundaryPolicy(string(j.boundary)); err != nil {
		return nil, err
	}
	if _, err := ParseAmbiguityPolicy(string(j.ambiguity)); err != nil {
		return nil, err
	}

	ix, err := newPointIndex(points.Points)
	if err != nil {
		return nil, err
	}

	// hits[i] lists the polygons containing point i, in polygon input order.
	hits := make([][]int, len(points.Points))
	touching := make([]bool, len(points.Points))
	for pi, poly := range polygons.Polygons {
		b := poly.Geom.Bounds()
		for _, i := range ix.within(b.Min(0), b.Min(1), b.Max(0), b.Max(1)) {
			x, y := points.Points[i].XY()
			switch Locate(poly.Geom, x, y) {
			case location.Interior:
				hits[i] = append(hits[i], pi)
			case location.Boundary:
				touching[i] = true
				if j.boundary == BoundaryInclude {
					hits[i] = append(hits[i], pi)
				}
			}
		}
	}

	res := &Result{Total: len(points.Points)}
	for i, p := range points.Points {
		if touching[i] && j.boundary == BoundaryExclude && len(hits[i]) == 0 {
			res.OnBoundary++
		}
		switch len(hits[i]) {
		case 0:
			res.Unmatched = append(res.Unmatched, p.ID)
			continue
		case 1:
		default:
			ids := make([]string, len(hits[i]))
			for k, pi := range hits[i] {
				ids[k] = polygons.Polygons[pi].ID
			}
			if j.ambiguity == AmbiguityFail {
				return nil, eris.Wrapf(ErrAmbiguous, "spatial: point %s within %v", p.ID, ids)
			}
			res.Ambiguities = append(res.Ambiguities, Ambiguity{PointID: p.ID, PolygonIDs: ids, Chosen: ids[0]})
		}
		res.Matches = append(res.Matches, Match{
			PointID:   p.ID,
			PolygonID: polygons.Polygons[hits[i][0]].ID,
			Capacity:  p.Capacity,
		})
	}

	j.log(res)
	return res, nil
}

func (j *Joiner) log(res *Result) {
	log := zap.L().With(zap.String("component", "spatial"))
	for _, a := range res.Ambiguities {
		log.Warn("spatial: ambiguous point resolved to first polygon",
			zap.String("point_id", a.PointID),
			zap.Strings("polygon_ids", a.PolygonIDs),
			zap.String("chosen", a.Chosen),
		)
	}
	log.Info("spatial: join complete",
		zap.String("boundary_policy", string(j.boundary)),
		zap.Int("points", res.Total),
		zap.Int("matched", len(res.Matches)),
		zap.Int("unmatched", len(res.Unmatched)),
		zap.Int("on_boundary", res.OnBoundary),
		zap.Int("ambiguous", len(res.Ambiguities)),
	)
}

// String summarises the result for logs and test failures.
func (r *Result) String() string {
	return fmt.Sprintf("%d points: %d matched, %d unmatched, %d ambiguous",
		r.Total, len(r.Matches), len(r.Unmatched), len(r.Ambiguities))
}
