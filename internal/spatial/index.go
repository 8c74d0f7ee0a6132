package spatial

import (
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"
	"github.com/rotisserie/eris"

	"github.com/sells-group/settlement-cli/internal/feature"
)

// indexedPoint lets a point feature satisfy orb.Pointer.
type indexedPoint struct {
	idx int
	at  orb.Point
}

func (p *indexedPoint) Point() orb.Point { return p.at }

// pointIndex is a quadtree over the input points. Polygons query it with their
// bounding box so only nearby points reach the exact ring test.
type pointIndex struct {
	tree *quadtree.Quadtree
	buf  []orb.Pointer
}

func newPointIndex(points []feature.Point) (*pointIndex, error) {
	if len(points) == 0 {
		return &pointIndex{}, nil
	}

	items := make([]*indexedPoint, len(points))
	bound := orb.Bound{}
	for i, p := range points {
		x, y := p.XY()
		items[i] = &indexedPoint{idx: i, at: orb.Point{x, y}}
		if i == 0 {
			bound = items[i].at.Bound()
		} else {
			bound = bound.Extend(items[i].at)
		}
	}
	// Pad so a degenerate extent still has area.
	bound = bound.Pad(1)

	tree := quadtree.New(bound)
	for _, it := range items {
		if err := tree.Add(it); err != nil {
			return nil, eris.Wrapf(err, "spatial: index point %s", points[it.idx].ID)
		}
	}
	return &pointIndex{tree: tree}, nil
}

// within returns the indexes of points inside the closed rectangle, in
// ascending order.
func (ix *pointIndex) within(minX, minY, maxX, maxY float64) []int {
	if ix.tree == nil {
		return nil
	}
	ix.buf = ix.tree.InBound(ix.buf[:0], orb.Bound{
		Min: orb.Point{minX, minY},
		Max: orb.Point{maxX, maxY},
	})
	out := make([]int, len(ix.buf))
	for i, p := range ix.buf {
		out[i] = p.(*indexedPoint).idx
	}
	slices.Sort(out)
	return out
}
