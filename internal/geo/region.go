package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Region is the area a search is measured against: a point with a radius, or
// a polygon whose boundary is the reference.
type Region struct {
	Center   Point
	RadiusM  float64
	Polygon  orb.Polygon // (lon, lat); nil for point regions
	Vertices []Point     // polygon outline as given, nil for point regions
	Repaired bool        // the given outline crossed itself and was repaired
}

// PointRegion returns a point-and-radius region.
func PointRegion(center Point, radiusM float64) Region {
	return Region{Center: center, RadiusM: radiusM}
}

// PolygonRegion builds a polygon region from its outline. The polygon is
// repaired if it self-intersects. The center is the area centroid and the
// radius covers the farthest vertex plus margin meters.
func PolygonRegion(vertices []Point, marginM float64) (Region, error) {
	poly, err := NewPolygon(vertices)
	if err != nil {
		return Region{}, err
	}

	repaired := SelfIntersects(CloseRing(OrbRing(vertices)))

	c, _ := planar.CentroidArea(poly)
	center := FromOrb(c)
	if !center.Valid() {
		center = FromOrb(poly.Bound().Center())
	}

	return Region{
		Center:   center,
		RadiusM:  marginM + math.Ceil(MaxDistance(center, vertices)),
		Polygon:  poly,
		Vertices: append([]Point(nil), vertices...),
		Repaired: repaired,
	}, nil
}

// Around recenters a polygon region on center. The radius becomes marginM
// plus the distance from center to the farthest given vertex, so a circular
// query around center covers the whole outline.
func (r Region) Around(center Point, marginM float64) Region {
	if !r.IsPolygon() {
		return r
	}
	r.Center = center
	r.RadiusM = marginM + math.Ceil(MaxDistance(center, r.Vertices))
	return r
}

// IsPolygon reports whether the region is measured against a polygon boundary.
func (r Region) IsPolygon() bool {
	return len(r.Polygon) > 0
}

// Reference returns the geometry distances are measured to, in (lon, lat) order.
func (r Region) Reference() orb.Geometry {
	if r.IsPolygon() {
		return r.Polygon
	}
	return r.Center.Orb()
}

// Outline returns the polygon's exterior ring vertices, or nil for point regions.
func (r Region) Outline() []Point {
	if !r.IsPolygon() {
		return nil
	}
	ring := r.Polygon[0]
	out := make([]Point, len(ring))
	for i, p := range ring {
		out[i] = FromOrb(p)
	}
	return out
}
