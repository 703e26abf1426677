package geo

import "math"

// EarthRadiusM is the mean Earth radius used for great-circle fallbacks.
const EarthRadiusM = 6371000.0

// Haversine returns the great-circle distance in meters between two points.
func Haversine(a, b Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusM * c
}

// NearestVertex returns the vertex closest to p by great-circle distance.
// ok is false when vertices is empty.
func NearestVertex(p Point, vertices []Point) (nearest Point, dist float64, ok bool) {
	dist = math.Inf(1)
	for _, v := range vertices {
		if d := Haversine(p, v); d < dist {
			nearest, dist, ok = v, d, true
		}
	}
	return nearest, dist, ok
}

// MaxDistance returns the largest great-circle distance from origin to any vertex.
func MaxDistance(origin Point, vertices []Point) float64 {
	var maxD float64
	for _, v := range vertices {
		if d := Haversine(origin, v); d > maxD {
			maxD = d
		}
	}
	return maxD
}

// Offset moves p by north/east meters on a local spherical approximation.
// Intended for building fixtures and small search areas.
func Offset(p Point, northM, eastM float64) Point {
	dLat := northM / EarthRadiusM
	dLon := eastM / (EarthRadiusM * math.Cos(toRad(p.Lat)))
	return Point{
		Lat: p.Lat + toDeg(dLat),
		Lon: p.Lon + toDeg(dLon),
	}
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
