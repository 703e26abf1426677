package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZoneFor(t *testing.T) {
	tests := []struct {
		lon  float64
		want int
	}{
		{-180, 1},
		{-177.5, 1},
		{-5.93, 30},
		{0, 31},
		{9.73, 32},
		{179.99, 60},
		{180, 60},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ZoneFor(tt.lon), "lon=%v", tt.lon)
	}
}

func TestUTMRoundTrip(t *testing.T) {
	origins := []Point{
		{Lat: 54.5973, Lon: -5.9301},
		{Lat: 52.3759, Lon: 9.7320},
		{Lat: -33.8688, Lon: 151.2093},
		{Lat: 0.0001, Lon: 36.8219},
	}

	for _, origin := range origins {
		u, err := NewUTM(origin)
		require.NoError(t, err)

		xy := u.Forward(origin)
		back := u.Inverse(xy)
		assert.InDelta(t, origin.Lat, back.Lat, 1e-7)
		assert.InDelta(t, origin.Lon, back.Lon, 1e-7)
	}
}

func TestUTMKnownCoordinate(t *testing.T) {
	// Belfast, zone 30N.
	u, err := NewUTM(Point{Lat: 54.5966, Lon: -5.9301})
	require.NoError(t, err)

	zone, hemi := u.Zone()
	assert.Equal(t, 30, zone)
	assert.Equal(t, "N", hemi)

	// West of the zone's central meridian (-3) lies below the false easting.
	xy := u.Forward(Point{Lat: 54.5966, Lon: -5.9301})
	assert.Less(t, xy[0], falseEasting)
}

func TestUTMCentralMeridianOnEquator(t *testing.T) {
	u, err := NewUTM(Point{Lat: 0, Lon: 3})
	require.NoError(t, err)

	xy := u.Forward(Point{Lat: 0, Lon: 3})
	assert.InDelta(t, falseEasting, xy[0], 1e-6)
	assert.InDelta(t, 0, xy[1], 1e-6)
}

func TestUTMDistanceMatchesHaversine(t *testing.T) {
	origin := Point{Lat: 54.5973, Lon: -5.9301}
	u, err := NewUTM(origin)
	require.NoError(t, err)

	for _, d := range []float64{30, 60, 250, 1500} {
		p := Offset(origin, d, 0)
		planar := math.Hypot(u.Forward(p)[0]-u.Forward(origin)[0], u.Forward(p)[1]-u.Forward(origin)[1])
		// UTM scale error stays well under 0.5% near the central meridian band.
		assert.InEpsilon(t, Haversine(origin, p), planar, 0.005, "d=%v", d)
	}
}

func TestNewUTMRejectsPolarOrigin(t *testing.T) {
	_, err := NewUTM(Point{Lat: 86, Lon: 10})
	require.ErrorIs(t, err, ErrProjectionUnavailable)

	_, err = NewUTM(Point{Lat: math.NaN(), Lon: 10})
	require.ErrorIs(t, err, ErrProjectionUnavailable)
}

func TestSouthernHemisphereFalseNorthing(t *testing.T) {
	u, err := NewUTM(Point{Lat: -33.8688, Lon: 151.2093})
	require.NoError(t, err)

	_, hemi := u.Zone()
	assert.Equal(t, "S", hemi)
	xy := u.Forward(Point{Lat: -33.8688, Lon: 151.2093})
	assert.Greater(t, xy[1], 6000000.0)
	assert.Less(t, xy[1], falseNorthing)
}
