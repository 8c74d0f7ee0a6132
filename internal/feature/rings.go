package feature

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy/lineintersection"
	"github.com/twpayne/go-geom/xy/lineintersector"
)

// checkRingSimple returns an error when a closed ring crosses or touches
// itself. Repeated consecutive vertices are ignored. Neighbouring segments
// may only meet at their shared vertex; any other contact, including a
// collinear overlap or a spike, makes the ring invalid.
func checkRingSimple(layout geom.Layout, flat []float64) error {
	stride := layout.Stride()
	pts := make([]geom.Coord, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		c := geom.Coord{flat[i], flat[i+1]}
		if n := len(pts); n > 0 && pts[n-1].Equal(geom.XY, c) {
			continue
		}
		pts = append(pts, c)
	}

	segments := len(pts) - 1
	if segments < 3 {
		return eris.New("is degenerate")
	}

	strategy := lineintersector.RobustLineIntersector{}
	for i := range segments {
		a0, a1 := pts[i], pts[i+1]
		for j := i + 1; j < segments; j++ {
			b0, b1 := pts[j], pts[j+1]
			if !envelopesOverlap(a0, a1, b0, b1) {
				continue
			}
			res := lineintersector.LineIntersectsLine(strategy, a0, a1, b0, b1)
			if !res.HasIntersection() {
				continue
			}
			adjacent := j == i+1 || (i == 0 && j == segments-1)
			if adjacent && res.Type() == lineintersection.PointIntersection {
				continue
			}
			at := res.Intersection()[0]
			return eris.Errorf("self-intersects at (%g, %g)", at.X(), at.Y())
		}
	}
	return nil
}

func envelopesOverlap(a0, a1, b0, b1 geom.Coord) bool {
	return min(a0.X(), a1.X()) <= max(b0.X(), b1.X()) &&
		min(b0.X(), b1.X()) <= max(a0.X(), a1.X()) &&
		min(a0.Y(), a1.Y()) <= max(b0.Y(), b1.Y()) &&
		min(b0.Y(), b1.Y()) <= max(a0.Y(), a1.Y())
}
