package overpass

import (
	"math"

	"github.com/MeKo-Tech/proximity/internal/geo"
	"github.com/MeKo-Tech/proximity/internal/types"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// constructor tries to build a geometry from one part of a record.
type constructor func(Element) (orb.Geometry, types.GeometrySource, bool)

// constructors are tried in order; the first success wins.
var constructors = []constructor{
	fromVertices,
	fromCoordinate,
	fromCenter,
}

// Normalize converts raw elements into features. Records without usable
// coordinates are skipped; it never fails.
func Normalize(elements []Element) []types.Feature {
	features := make([]types.Feature, 0, len(elements))
	for _, e := range elements {
		if f, ok := NormalizeElement(e); ok {
			features = append(features, f)
		}
	}
	return features
}

// NormalizeElement converts one element, reporting false if it has no usable geometry.
func NormalizeElement(e Element) (types.Feature, bool) {
	for _, build := range constructors {
		g, source, ok := build(e)
		if !ok || degenerate(g) {
			continue
		}
		centroid, ok := centroidOf(g)
		if !ok {
			continue
		}
		return types.Feature{
			ID:       e.Key(),
			Type:     types.ElementType(e.Type),
			Name:     nameOf(e.Tags),
			Tags:     e.Tags,
			Geometry: g,
			Centroid: centroid,
			Source:   source,
		}, true
	}
	return types.Feature{}, false
}

func nameOf(tags map[string]string) string {
	if n := tags["name"]; n != "" {
		return n
	}
	return types.UnnamedFeature
}

func fromVertices(e Element) (orb.Geometry, types.GeometrySource, bool) {
	var pts orb.LineString
	for _, v := range e.Vertices() {
		p := geo.Point{Lat: v.Lat, Lon: v.Lon}
		if p.Valid() {
			pts = append(pts, p.Orb())
		}
	}

	switch {
	case len(pts) >= 4 && pts[0] == pts[len(pts)-1]:
		return polygonOrDegrade(pts), types.SourceVertices, true
	case len(pts) >= 2:
		return lineOrPoint(pts), types.SourceVertices, true
	case len(pts) == 1:
		return pts[0], types.SourceVertices, true
	}
	return nil, 0, false
}

// polygonOrDegrade builds a polygon from a closed path, repairing
// self-intersections; if no area survives it falls back to a line or point.
func polygonOrDegrade(pts orb.LineString) orb.Geometry {
	if ring, ok := geo.RepairRing(orb.Ring(pts)); ok {
		return orb.Polygon{ring}
	}
	return lineOrPoint(pts)
}

func lineOrPoint(pts orb.LineString) orb.Geometry {
	distinct := orb.LineString{pts[0]}
	for _, p := range pts[1:] {
		if p != distinct[len(distinct)-1] {
			distinct = append(distinct, p)
		}
	}
	if len(distinct) == 1 {
		return distinct[0]
	}
	return distinct
}

func fromCoordinate(e Element) (orb.Geometry, types.GeometrySource, bool) {
	c, ok := e.Coordinate()
	if !ok {
		return nil, 0, false
	}
	p := geo.Point{Lat: c.Lat, Lon: c.Lon}
	if !p.Valid() {
		return nil, 0, false
	}
	return p.Orb(), types.SourceCoordinate, true
}

func fromCenter(e Element) (orb.Geometry, types.GeometrySource, bool) {
	c, ok := e.CenterPoint()
	if !ok {
		return nil, 0, false
	}
	p := geo.Point{Lat: c.Lat, Lon: c.Lon}
	if !p.Valid() {
		return nil, 0, false
	}
	return p.Orb(), types.SourceCenter, true
}

func degenerate(g orb.Geometry) bool {
	switch g := g.(type) {
	case nil:
		return true
	case orb.Point:
		return !finite(g)
	case orb.LineString:
		return len(g) < 2
	case orb.Polygon:
		return len(g) == 0 || len(g[0]) < 4
	}
	return false
}

// centroidOf returns the planar centroid in (lon, lat) space. Good enough for
// labelling; distances are never computed from it when vertices exist.
func centroidOf(g orb.Geometry) (geo.Point, bool) {
	if p, ok := g.(orb.Point); ok {
		return geo.FromOrb(p), true
	}
	c, _ := planar.CentroidArea(g)
	if !finite(c) {
		c = g.Bound().Center()
	}
	p := geo.FromOrb(c)
	return p, p.Valid()
}

func finite(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsNaN(p[1]) && !math.IsInf(p[0], 0) && !math.IsInf(p[1], 0)
}
