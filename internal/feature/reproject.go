package feature

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/settlement-cli/internal/crs"
)

// Reproject returns a copy of the set in the target reference system.
// Identity, name, capacity and attributes are carried over unchanged;
// reprojecting to the set's own system copies the coordinates exactly.
func (s PointSet) Reproject(target crs.Code) (PointSet, error) {
	tr, err := transformerFor(s.CRS, target)
	if err != nil {
		return PointSet{}, err
	}
	out := PointSet{CRS: target, Points: make([]Point, len(s.Points))}
	for i, p := range s.Points {
		g, err := tr.Geometry(p.Geom)
		if err != nil {
			return PointSet{}, eris.Wrapf(err, "feature: reproject point %s", p.ID)
		}
		p.Geom = g.(*geom.Point)
		p.Attrs = p.Attrs.Clone()
		out.Points[i] = p
	}
	logReprojection("points", s.CRS, target, len(out.Points))
	return out, nil
}

// Reproject returns a copy of the set in the target reference system. Ring
// structure is preserved, so closed rings stay closed.
func (s PolygonSet) Reproject(target crs.Code) (PolygonSet, error) {
	tr, err := transformerFor(s.CRS, target)
	if err != nil {
		return PolygonSet{}, err
	}
	out := PolygonSet{CRS: target, Polygons: make([]Polygon, len(s.Polygons))}
	for i, p := range s.Polygons {
		g, err := tr.Geometry(p.Geom)
		if err != nil {
			return PolygonSet{}, eris.Wrapf(err, "feature: reproject polygon %s", p.ID)
		}
		p.Geom = g
		p.Attrs = p.Attrs.Clone()
		out.Polygons[i] = p
	}
	logReprojection("polygons", s.CRS, target, len(out.Polygons))
	return out, nil
}

func transformerFor(from, to crs.Code) (*crs.Transformer, error) {
	if from == 0 {
		return nil, eris.Wrap(crs.ErrUndeclared, "feature: reproject")
	}
	tr, err := crs.NewTransformer(from, to)
	if err != nil {
		return nil, eris.Wrap(err, "feature: reproject")
	}
	return tr, nil
}

func logReprojection(kind string, from, to crs.Code, n int) {
	zap.L().Debug("feature: reprojected",
		zap.String("component", "feature"),
		zap.String("kind", kind),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Int("count", n),
	)
}
