package distance

import (
	"math"
	"testing"

	"github.com/MeKo-Tech/proximity/internal/geo"
	"github.com/MeKo-Tech/proximity/internal/types"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var origin = geo.Point{Lat: 54.5973, Lon: -5.9301}

func nodeAt(id string, p geo.Point) types.Feature {
	return types.Feature{ID: id, Type: "node", Name: id, Geometry: p.Orb(), Centroid: p, Source: types.SourceCoordinate}
}

func wayFrom(id string, pts ...geo.Point) types.Feature {
	ls := make(orb.LineString, len(pts))
	for i, p := range pts {
		ls[i] = p.Orb()
	}
	var g orb.Geometry = ls
	if len(pts) >= 4 && pts[0] == pts[len(pts)-1] {
		g = orb.Polygon{orb.Ring(ls)}
	}
	return types.Feature{ID: id, Type: "way", Name: id, Geometry: g, Centroid: pts[0], Source: types.SourceVertices}
}

// square returns a closed square of side 2*half meters centered on c.
func square(c geo.Point, half float64) []geo.Point {
	return []geo.Point{
		geo.Offset(c, -half, -half),
		geo.Offset(c, -half, half),
		geo.Offset(c, half, half),
		geo.Offset(c, half, -half),
		geo.Offset(c, -half, -half),
	}
}

func TestAnnotate_PointRegion(t *testing.T) {
	e := New(Config{})
	region := geo.PointRegion(origin, 100)

	features := []types.Feature{
		nodeAt("node/1", origin),
		nodeAt("node/2", geo.Offset(origin, 30, 0)),
		wayFrom("way/3", geo.Offset(origin, -100, 50), geo.Offset(origin, 100, 50)),
		wayFrom("way/4", square(origin, 20)...),
	}

	got := e.Annotate(features, region)
	require.Len(t, got, 4)

	assert.InDelta(t, 0, got[0].DistanceM, 1e-3)
	assert.InDelta(t, 30, got[1].DistanceM, 1e-6)
	assert.InEpsilon(t, 50, got[2].DistanceM, 0.005)
	assert.InDelta(t, 0, got[3].DistanceM, 1e-9, "origin inside a feature polygon")

	require.NotNil(t, got[1].OriginWitness)
	require.NotNil(t, got[1].FeatureWitness)
	assert.Equal(t, origin, *got[1].OriginWitness)
	assert.Equal(t, geo.Offset(origin, 30, 0), *got[1].FeatureWitness)

	// the witness on the line lies due east of the origin
	require.NotNil(t, got[2].FeatureWitness)
	assert.InDelta(t, origin.Lat, got[2].FeatureWitness.Lat, 1e-5)
	assert.Greater(t, got[2].FeatureWitness.Lon, origin.Lon)

	for i, f := range got {
		assert.Equal(t, features[i].ID, f.ID, "order preserved")
	}
}

func TestAnnotate_PolygonRegion(t *testing.T) {
	region, err := geo.PolygonRegion(square(origin, 50), 100)
	require.NoError(t, err)
	require.True(t, region.IsPolygon())

	got := New(Config{}).Annotate([]types.Feature{
		nodeAt("node/centre", origin),
		wayFrom("way/edge", geo.Offset(origin, 0, 50), geo.Offset(origin, 0, 80)),
		nodeAt("node/outside", geo.Offset(origin, 0, 80)),
	}, region)

	// a coordinate-only feature at the centre is measured to the boundary
	assert.InEpsilon(t, 50, got[0].DistanceM, 0.01)
	assert.InDelta(t, 0, got[1].DistanceM, 0.05)
	assert.InEpsilon(t, 30, got[2].DistanceM, 0.01)

	for _, f := range got {
		require.NotNil(t, f.OriginWitness)
		require.NotNil(t, f.FeatureWitness)
	}
}

func TestAnnotate_FailuresDegradeToInfinity(t *testing.T) {
	features := []types.Feature{
		{ID: "way/empty", Source: types.SourceVertices, Geometry: orb.LineString{}},
		{ID: "node/none"},
		{ID: "rel/collection", Source: types.SourceVertices, Geometry: orb.Collection{origin.Orb()}},
		nodeAt("node/ok", geo.Offset(origin, 10, 0)),
	}

	got := New(Config{Workers: 3}).Annotate(features, geo.PointRegion(origin, 100))
	require.Len(t, got, 4)

	for _, f := range got[:3] {
		assert.True(t, math.IsInf(f.DistanceM, 1), f.ID)
		assert.Nil(t, f.OriginWitness, f.ID)
		assert.Nil(t, f.FeatureWitness, f.ID)
		assert.False(t, f.Determined())
	}
	assert.InDelta(t, 10, got[3].DistanceM, 1e-6)
}

func TestAnnotate_ProjectionUnavailable(t *testing.T) {
	polar := geo.Point{Lat: 85.5, Lon: 10}
	e := New(Config{})

	got := e.Annotate([]types.Feature{
		nodeAt("node/1", geo.Offset(polar, 40, 0)),
		wayFrom("way/2", geo.Offset(polar, 70, 0), geo.Offset(polar, 70, 10)),
	}, geo.PointRegion(polar, 100))

	assert.InDelta(t, 40, got[0].DistanceM, 1e-6)
	// shapes fall back to their centroid, which is the first vertex here
	assert.InDelta(t, 70, got[1].DistanceM, 1e-6)

	vertices := square(polar, 50)
	region, err := geo.PolygonRegion(vertices, 0)
	require.NoError(t, err)

	got = e.Annotate([]types.Feature{nodeAt("node/3", geo.Offset(vertices[2], 20, 0))}, region)
	assert.InDelta(t, 20, got[0].DistanceM, 0.01, "nearest vertex approximation")
}

func TestAnnotate_Empty(t *testing.T) {
	assert.Empty(t, New(Config{}).Annotate(nil, geo.PointRegion(origin, 10)))
}

func TestAnnotate_ParallelMatchesSequential(t *testing.T) {
	var features []types.Feature
	for i := 0; i < 50; i++ {
		features = append(features, nodeAt("node", geo.Offset(origin, float64(i*7), float64(-i*3))))
	}

	region := geo.PointRegion(origin, 500)
	seq := New(Config{Workers: 1}).Annotate(features, region)
	par := New(Config{Workers: 8}).Annotate(features, region)

	require.Len(t, par, len(seq))
	for i := range seq {
		assert.Equal(t, seq[i].DistanceM, par[i].DistanceM)
	}
}
