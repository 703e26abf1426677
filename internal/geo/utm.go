package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// ErrProjectionUnavailable is returned when no UTM zone can represent the origin.
var ErrProjectionUnavailable = errors.New("utm projection unavailable")

// WGS84 ellipsoid and UTM constants.
const (
	wgs84A        = 6378137.0
	wgs84F        = 1 / 298.257223563
	utmK0         = 0.9996
	falseEasting  = 500000.0
	falseNorthing = 10000000.0
)

var (
	eSq   = wgs84F * (2 - wgs84F)
	ePrSq = eSq / (1 - eSq)
)

// UTM is a transverse Mercator projection pinned to one zone and hemisphere.
// Every coordinate is projected into that zone, even when it lies outside it,
// so that all geometry of a search shares one planar frame.
type UTM struct {
	zone  int
	south bool
	lon0  float64 // central meridian, radians
}

// ZoneFor returns the UTM zone number for a longitude, clamped to [1, 60].
func ZoneFor(lon float64) int {
	zone := int(math.Floor((lon+180)/6)) + 1
	if zone < 1 {
		return 1
	}
	if zone > 60 {
		return 60
	}
	return zone
}

// NewUTM sets up the projection for the zone and hemisphere containing origin.
func NewUTM(origin Point) (*UTM, error) {
	if math.IsNaN(origin.Lat) || math.IsNaN(origin.Lon) || math.IsInf(origin.Lat, 0) || math.IsInf(origin.Lon, 0) {
		return nil, fmt.Errorf("%w: non-finite origin", ErrProjectionUnavailable)
	}
	if origin.Lat < -80 || origin.Lat > 84 {
		return nil, fmt.Errorf("%w: latitude %.4f outside UTM coverage", ErrProjectionUnavailable, origin.Lat)
	}

	zone := ZoneFor(origin.Lon)
	return &UTM{
		zone:  zone,
		south: origin.Lat < 0,
		lon0:  toRad(float64((zone-1)*6-180+3)),
	}, nil
}

// Zone returns the zone number and hemisphere letter ("N" or "S").
func (u *UTM) Zone() (int, string) {
	if u.south {
		return u.zone, "S"
	}
	return u.zone, "N"
}

// Forward projects a WGS84 point to (easting, northing) meters.
func (u *UTM) Forward(p Point) orb.Point {
	phi := toRad(p.Lat)
	lam := toRad(p.Lon)

	sinPhi, cosPhi := math.Sin(phi), math.Cos(phi)
	tanPhi := math.Tan(phi)

	n := wgs84A / math.Sqrt(1-eSq*sinPhi*sinPhi)
	t := tanPhi * tanPhi
	c := ePrSq * cosPhi * cosPhi
	a := cosPhi * (lam - u.lon0)
	m := meridianArc(phi)

	a2 := a * a
	a3 := a2 * a
	a4 := a3 * a
	a5 := a4 * a
	a6 := a5 * a

	x := utmK0*n*(a+(1-t+c)*a3/6+(5-18*t+t*t+72*c-58*ePrSq)*a5/120) + falseEasting
	y := utmK0 * (m + n*tanPhi*(a2/2+(5-t+9*c+4*c*c)*a4/24+(61-58*t+t*t+600*c-330*ePrSq)*a6/720))
	if u.south {
		y += falseNorthing
	}
	return orb.Point{x, y}
}

// Inverse maps (easting, northing) meters back to WGS84.
func (u *UTM) Inverse(xy orb.Point) Point {
	x := xy[0] - falseEasting
	y := xy[1]
	if u.south {
		y -= falseNorthing
	}

	e4 := eSq * eSq
	e6 := e4 * eSq
	m := y / utmK0
	mu := m / (wgs84A * (1 - eSq/4 - 3*e4/64 - 5*e6/256))

	sq := math.Sqrt(1 - eSq)
	e1 := (1 - sq) / (1 + sq)
	e12 := e1 * e1
	e13 := e12 * e1
	e14 := e13 * e1

	phi1 := mu +
		(3*e1/2-27*e13/32)*math.Sin(2*mu) +
		(21*e12/16-55*e14/32)*math.Sin(4*mu) +
		(151*e13/96)*math.Sin(6*mu) +
		(1097*e14/512)*math.Sin(8*mu)

	sin1, cos1 := math.Sin(phi1), math.Cos(phi1)
	tan1 := math.Tan(phi1)
	n1 := wgs84A / math.Sqrt(1-eSq*sin1*sin1)
	t1 := tan1 * tan1
	c1 := ePrSq * cos1 * cos1
	r1 := wgs84A * (1 - eSq) / math.Pow(1-eSq*sin1*sin1, 1.5)
	d := x / (n1 * utmK0)

	d2 := d * d
	d3 := d2 * d
	d4 := d3 * d
	d5 := d4 * d
	d6 := d5 * d

	phi := phi1 - (n1*tan1/r1)*(d2/2-
		(5+3*t1+10*c1-4*c1*c1-9*ePrSq)*d4/24+
		(61+90*t1+298*c1+45*t1*t1-252*ePrSq-3*c1*c1)*d6/720)
	lam := u.lon0 + (d-(1+2*t1+c1)*d3/6+(5-2*c1+28*t1-3*c1*c1+8*ePrSq+24*t1*t1)*d5/120)/cos1

	return Point{Lat: toDeg(phi), Lon: toDeg(lam)}
}

// ForwardGeometry projects an orb geometry in (lon, lat) order into the zone.
func (u *UTM) ForwardGeometry(g orb.Geometry) (orb.Geometry, error) {
	switch g := g.(type) {
	case orb.Point:
		return u.Forward(FromOrb(g)), nil
	case orb.LineString:
		return orb.LineString(u.forwardAll(g)), nil
	case orb.Ring:
		return orb.Ring(u.forwardAll(g)), nil
	case orb.Polygon:
		out := make(orb.Polygon, len(g))
		for i, r := range g {
			out[i] = orb.Ring(u.forwardAll(r))
		}
		return out, nil
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(g))
		for i, p := range g {
			pp, _ := u.ForwardGeometry(p)
			out[i] = pp.(orb.Polygon)
		}
		return out, nil
	case nil:
		return nil, errors.New("nil geometry")
	default:
		return nil, fmt.Errorf("unsupported geometry %T", g)
	}
}

func (u *UTM) forwardAll(pts []orb.Point) []orb.Point {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = u.Forward(FromOrb(p))
	}
	return out
}

func meridianArc(phi float64) float64 {
	e4 := eSq * eSq
	e6 := e4 * eSq
	return wgs84A * ((1-eSq/4-3*e4/64-5*e6/256)*phi -
		(3*eSq/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}
