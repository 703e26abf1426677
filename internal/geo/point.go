// Package geo holds the coordinate types and planar/spherical geometry used by
// the proximity search: UTM projection, nearest-point computation and polygon repair.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point lies within the WGS84 lat/lon ranges.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Orb returns the point in orb's (lon, lat) order.
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// String renders the point with six decimal places, latitude first.
func (p Point) String() string {
	return fmt.Sprintf("%.6f, %.6f", p.Lat, p.Lon)
}

// FromOrb converts an orb point in (lon, lat) order.
func FromOrb(p orb.Point) Point {
	return Point{Lat: p.Lat(), Lon: p.Lon()}
}

// OrbRing converts vertices to an orb ring without closing it.
func OrbRing(vertices []Point) orb.Ring {
	ring := make(orb.Ring, len(vertices))
	for i, v := range vertices {
		ring[i] = v.Orb()
	}
	return ring
}
