package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// parts is a geometry flattened into isolated points and segments.
type parts struct {
	points   []orb.Point
	segments [][2]orb.Point
	areas    []orb.Polygon
}

// decompose flattens g. When asArea is set, polygons are also kept as areas so
// that containment yields a zero distance; otherwise only their rings count.
func decompose(g orb.Geometry, asArea bool) (parts, error) {
	var p parts
	var walk func(orb.Geometry) error
	walk = func(g orb.Geometry) error {
		switch g := g.(type) {
		case orb.Point:
			p.points = append(p.points, g)
		case orb.MultiPoint:
			p.points = append(p.points, g...)
		case orb.LineString:
			p.addPath(g)
		case orb.MultiLineString:
			for _, ls := range g {
				p.addPath(ls)
			}
		case orb.Ring:
			p.addPath(g)
		case orb.Polygon:
			for _, r := range g {
				p.addPath(r)
			}
			if asArea && len(g) > 0 {
				p.areas = append(p.areas, g)
			}
		case orb.MultiPolygon:
			for _, poly := range g {
				if err := walk(poly); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("unsupported geometry %T", g)
		}
		return nil
	}

	if err := walk(g); err != nil {
		return parts{}, err
	}
	if len(p.points) == 0 && len(p.segments) == 0 {
		return parts{}, errors.New("empty geometry")
	}
	return p, nil
}

func (p *parts) addPath(pts []orb.Point) {
	switch len(pts) {
	case 0:
		return
	case 1:
		p.points = append(p.points, pts[0])
		return
	}
	for i := 0; i+1 < len(pts); i++ {
		p.segments = append(p.segments, [2]orb.Point{pts[i], pts[i+1]})
	}
}

// vertices returns every coordinate of the flattened geometry.
func (p parts) vertices() []orb.Point {
	out := append([]orb.Point(nil), p.points...)
	for _, s := range p.segments {
		out = append(out, s[0])
	}
	return out
}

// NearestPoints returns the closest pair of points between ref and feat in planar
// coordinates along with their distance. ref is measured by its outline only
// (a polygon reference is its boundary), while polygons in feat are areas: a
// reference that touches or lies inside a feature polygon is at distance zero.
func NearestPoints(ref, feat orb.Geometry) (onRef, onFeat orb.Point, dist float64, err error) {
	rp, err := decompose(ref, false)
	if err != nil {
		return orb.Point{}, orb.Point{}, 0, fmt.Errorf("reference: %w", err)
	}
	fp, err := decompose(feat, true)
	if err != nil {
		return orb.Point{}, orb.Point{}, 0, fmt.Errorf("feature: %w", err)
	}

	for _, area := range fp.areas {
		for _, v := range rp.vertices() {
			if planar.PolygonContains(area, v) {
				return v, v, 0, nil
			}
		}
	}

	dist = math.Inf(1)
	consider := func(a, b orb.Point) {
		if d := planar.Distance(a, b); d < dist {
			onRef, onFeat, dist = a, b, d
		}
	}

	for _, a := range rp.points {
		for _, b := range fp.points {
			consider(a, b)
		}
		for _, s := range fp.segments {
			consider(a, ClosestOnSegment(s[0], s[1], a))
		}
	}
	for _, s := range rp.segments {
		for _, b := range fp.points {
			consider(ClosestOnSegment(s[0], s[1], b), b)
		}
		for _, t := range fp.segments {
			a, b := closestBetweenSegments(s, t)
			consider(a, b)
			if dist == 0 {
				return onRef, onFeat, 0, nil
			}
		}
	}

	if math.IsInf(dist, 1) || math.IsNaN(dist) {
		return orb.Point{}, orb.Point{}, 0, errors.New("no measurable distance")
	}
	return onRef, onFeat, dist, nil
}

// ClosestOnSegment returns the point of segment ab nearest to p.
func ClosestOnSegment(a, b, p orb.Point) orb.Point {
	dx, dy := b[0]-a[0], b[1]-a[1]
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return a
	}
	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / lenSq
	switch {
	case t <= 0:
		return a
	case t >= 1:
		return b
	}
	return orb.Point{a[0] + t*dx, a[1] + t*dy}
}

func closestBetweenSegments(s, t [2]orb.Point) (orb.Point, orb.Point) {
	if x, ok := SegmentIntersection(s[0], s[1], t[0], t[1]); ok {
		return x, x
	}

	best := math.Inf(1)
	var pa, pb orb.Point
	try := func(a, b orb.Point) {
		if d := planar.Distance(a, b); d < best {
			best, pa, pb = d, a, b
		}
	}
	try(s[0], ClosestOnSegment(t[0], t[1], s[0]))
	try(s[1], ClosestOnSegment(t[0], t[1], s[1]))
	try(ClosestOnSegment(s[0], s[1], t[0]), t[0])
	try(ClosestOnSegment(s[0], s[1], t[1]), t[1])
	return pa, pb
}

// SegmentIntersection returns a point shared by segments ab and cd, if any.
// Collinear overlaps report the first shared endpoint.
func SegmentIntersection(a, b, c, d orb.Point) (orb.Point, bool) {
	r := orb.Point{b[0] - a[0], b[1] - a[1]}
	s := orb.Point{d[0] - c[0], d[1] - c[1]}
	denom := cross(r, s)
	qp := orb.Point{c[0] - a[0], c[1] - a[1]}

	if denom == 0 {
		if cross(qp, r) != 0 {
			return orb.Point{}, false
		}
		// collinear
		for _, p := range []orb.Point{c, d} {
			if onSegment(a, b, p) {
				return p, true
			}
		}
		for _, p := range []orb.Point{a, b} {
			if onSegment(c, d, p) {
				return p, true
			}
		}
		return orb.Point{}, false
	}

	t := cross(qp, s) / denom
	u := cross(qp, r) / denom
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return orb.Point{}, false
	}
	return orb.Point{a[0] + t*r[0], a[1] + t*r[1]}, true
}

func cross(a, b orb.Point) float64 {
	return a[0]*b[1] - a[1]*b[0]
}

func onSegment(a, b, p orb.Point) bool {
	return p[0] >= math.Min(a[0], b[0]) && p[0] <= math.Max(a[0], b[0]) &&
		p[1] >= math.Min(a[1], b[1]) && p[1] <= math.Max(a[1], b[1])
}
