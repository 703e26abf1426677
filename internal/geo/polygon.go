package geo

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrInvalidPolygon is returned when a ring cannot be turned into a usable polygon.
var ErrInvalidPolygon = errors.New("invalid polygon")

const maxRepairDepth = 8

// NewPolygon builds a valid polygon from at least three vertices. The ring is
// closed if needed and self-intersections are repaired; the result is an error
// when no part of the outline encloses a non-zero area.
func NewPolygon(vertices []Point) (orb.Polygon, error) {
	if len(vertices) < 3 {
		return nil, ErrInvalidPolygon
	}
	for _, v := range vertices {
		if !v.Valid() {
			return nil, ErrInvalidPolygon
		}
	}

	ring, ok := RepairRing(CloseRing(OrbRing(vertices)))
	if !ok {
		return nil, ErrInvalidPolygon
	}
	return orb.Polygon{ring}, nil
}

// CloseRing drops consecutive duplicates and closes the ring.
func CloseRing(r orb.Ring) orb.Ring {
	out := make(orb.Ring, 0, len(r)+1)
	for _, p := range r {
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	if len(out) > 1 && out[0] != out[len(out)-1] {
		out = append(out, out[0])
	}
	return out
}

// RepairRing returns r when it is simple and encloses area. A self-intersecting
// ring is split at its crossings into simple loops, and the loop with the largest
// area is kept, the same outcome a zero-width buffer gives for a figure-eight.
func RepairRing(r orb.Ring) (orb.Ring, bool) {
	loops := splitRing(CloseRing(r), 0)

	var best orb.Ring
	bestArea := 0.0
	for _, l := range loops {
		if a := planar.Area(orb.Polygon{l}); a > bestArea {
			best, bestArea = l, a
		}
	}
	if best == nil || bestArea <= 0 || math.IsNaN(bestArea) {
		return nil, false
	}
	return best, true
}

// SelfIntersects reports whether two non-adjacent edges of a closed ring meet.
func SelfIntersects(r orb.Ring) bool {
	_, _, _, ok := firstCrossing(r)
	return ok
}

func splitRing(r orb.Ring, depth int) []orb.Ring {
	if len(r) < 4 {
		return nil
	}
	i, j, x, ok := firstCrossing(r)
	if !ok {
		return []orb.Ring{r}
	}
	if depth >= maxRepairDepth {
		return nil
	}

	// loop through the crossing point: x, r[i+1..j], x
	a := orb.Ring{x}
	a = append(a, r[i+1:j+1]...)
	a = append(a, x)

	// remainder: r[0..i], x, r[j+1..]
	b := append(orb.Ring{}, r[:i+1]...)
	b = append(b, x)
	b = append(b, r[j+1:]...)

	var out []orb.Ring
	out = append(out, splitRing(CloseRing(a), depth+1)...)
	out = append(out, splitRing(CloseRing(b), depth+1)...)
	return out
}

// firstCrossing finds the first pair of non-adjacent edges (i < j) sharing a point.
func firstCrossing(r orb.Ring) (int, int, orb.Point, bool) {
	n := len(r) - 1 // number of edges in a closed ring
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue // first and last edge share the closing vertex
			}
			if x, ok := SegmentIntersection(r[i], r[i+1], r[j], r[j+1]); ok {
				return i, j, x, true
			}
		}
	}
	return 0, 0, orb.Point{}, false
}
