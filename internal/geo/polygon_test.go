package geo

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPolygon_ClosesRing(t *testing.T) {
	poly, err := NewPolygon([]Point{
		{Lat: 54.0, Lon: -6.0},
		{Lat: 54.0, Lon: -5.9},
		{Lat: 54.1, Lon: -5.9},
	})
	require.NoError(t, err)
	require.Len(t, poly, 1)
	ring := poly[0]
	assert.Len(t, ring, 4)
	assert.Equal(t, ring[0], ring[len(ring)-1])
}

func TestNewPolygon_TooFewVertices(t *testing.T) {
	_, err := NewPolygon([]Point{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}})
	require.ErrorIs(t, err, ErrInvalidPolygon)
}

func TestNewPolygon_Collinear(t *testing.T) {
	_, err := NewPolygon([]Point{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 0, Lon: 2}})
	require.ErrorIs(t, err, ErrInvalidPolygon)
}

func TestNewPolygon_OutOfRange(t *testing.T) {
	_, err := NewPolygon([]Point{{Lat: 0, Lon: 0}, {Lat: 95, Lon: 1}, {Lat: 1, Lon: 2}})
	require.ErrorIs(t, err, ErrInvalidPolygon)
}

func TestRepairRing_Bowtie(t *testing.T) {
	// Figure-eight crossing at (2,1).
	bowtie := orb.Ring{{0, 0}, {4, 2}, {4, 0}, {0, 2}, {0, 0}}
	require.True(t, SelfIntersects(bowtie))

	fixed, ok := RepairRing(bowtie)
	require.True(t, ok)
	assert.False(t, SelfIntersects(fixed))
	assert.Greater(t, planar.Area(orb.Polygon{fixed}), 0.0)
}

func TestRepairRing_SimpleUnchanged(t *testing.T) {
	sq := orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}
	fixed, ok := RepairRing(sq)
	require.True(t, ok)
	assert.Equal(t, sq, fixed)
}

func TestHaversineAndMaxDistance(t *testing.T) {
	origin := Point{Lat: 54.5973, Lon: -5.9301}
	north := Offset(origin, 100, 0)
	east := Offset(origin, 0, 250)

	assert.InDelta(t, 100, Haversine(origin, north), 0.01)
	assert.InDelta(t, 250, Haversine(origin, east), 0.05)
	assert.InDelta(t, 250, MaxDistance(origin, []Point{north, east}), 0.05)

	v, d, ok := NearestVertex(origin, []Point{east, north})
	require.True(t, ok)
	assert.Equal(t, north, v)
	assert.InDelta(t, 100, d, 0.01)
}
