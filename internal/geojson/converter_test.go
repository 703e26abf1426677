package geojson

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MeKo-Tech/proximity/internal/geo"
	"github.com/MeKo-Tech/proximity/internal/types"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *types.SearchResult {
	origin := geo.Point{Lat: 54.5973, Lon: -5.9301}
	witness := geo.Point{Lat: 54.5976, Lon: -5.9301}

	return &types.SearchResult{
		Center:    types.Center{Lat: origin.Lat, Lon: origin.Lon, Display: origin.String()},
		RadiusM:   250,
		Permit:    "P-17/B",
		CreatedAt: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		Selection: types.Selection{Mode: types.ModePoint, Centroid: origin, RadiusM: 250},
		Features: []types.AnnotatedFeature{
			{
				Feature: types.Feature{
					ID:       "node/1",
					Type:     "node",
					Name:     "Top Fuel",
					Tags:     map[string]string{"amenity": "fuel"},
					Geometry: witness.Orb(),
					Centroid: witness,
					Source:   types.SourceCoordinate,
				},
				DistanceAnnotation: types.DistanceAnnotation{DistanceM: 33.36, OriginWitness: &origin, FeatureWitness: &witness},
			},
			{
				Feature: types.Feature{
					ID:       "way/2",
					Type:     "way",
					Name:     types.UnnamedFeature,
					Tags:     map[string]string{"landuse": "industrial"},
					Geometry: orb.LineString{{-5.93, 54.6}, {-5.92, 54.6}},
				},
				DistanceAnnotation: types.Undetermined(),
			},
			{Feature: types.Feature{ID: "node/3"}, DistanceAnnotation: types.Undetermined()},
		},
	}
}

func layerOf(f *geojson.Feature) string {
	s, _ := f.Properties["layer"].(string)
	return s
}

func TestToGeoJSON(t *testing.T) {
	fc, err := ToGeoJSON(sampleResult())
	require.NoError(t, err)

	// origin, region, two features, one witness line
	require.Len(t, fc.Features, 5)
	assert.Equal(t, string(LayerOrigin), layerOf(fc.Features[0]))
	assert.Equal(t, string(LayerRegion), layerOf(fc.Features[1]))
	assert.Equal(t, 250, fc.Features[1].Properties["radius_m"])

	fuel := fc.Features[2]
	assert.Equal(t, "node/1", fuel.Properties["osm_id"])
	assert.Equal(t, "fuel", fuel.Properties["amenity"])
	assert.Equal(t, "Petrol stations / Garages", fuel.Properties["category"])
	assert.Equal(t, 33.4, fuel.Properties["distance_m"])

	line := fc.Features[3]
	assert.Equal(t, string(LayerWitness), layerOf(line))
	assert.Equal(t, "LineString", line.Geometry.GeoJSONType())

	industrial := fc.Features[4]
	assert.Equal(t, "way/2", industrial.Properties["osm_id"])
	assert.Nil(t, industrial.Properties["distance_m"])
}

func TestToGeoJSON_PolygonRegion(t *testing.T) {
	r := sampleResult()
	r.Features = nil
	r.Selection = types.Selection{
		Mode:    types.ModePolygon,
		RadiusM: 300,
		Polygon: []geo.Point{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}, {Lat: 0, Lon: 0}},
	}

	fc, err := ToGeoJSON(r)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "Polygon", fc.Features[1].Geometry.GeoJSONType())
	assert.Equal(t, "polygon", fc.Features[1].Properties["mode"])

	_, err = ToGeoJSON(nil)
	assert.Error(t, err)
}

func TestSink_Publish(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink := &Sink{Dir: dir}

	refs, err := sink.Publish(context.Background(), sampleResult())
	require.NoError(t, err)

	path := refs["geojson"]
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Regexp(t, `^20260301T123000Z-p-17-b-[0-9a-f]{8}\.geojson$`, filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var fc geojson.FeatureCollection
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Len(t, fc.Features, 5)

	for _, f := range fc.Features {
		if d, ok := f.Properties["distance_m"].(float64); ok {
			assert.False(t, math.IsInf(d, 0))
		}
	}
}

func TestSink_SameSecondDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	sink := &Sink{Dir: dir}

	first := sampleResult()
	first.Permit = ""
	second := sampleResult()
	second.Permit = ""
	second.CreatedAt = first.CreatedAt.Add(300 * time.Millisecond)

	a, err := sink.Publish(context.Background(), first)
	require.NoError(t, err)
	b, err := sink.Publish(context.Background(), second)
	require.NoError(t, err)

	require.NotEqual(t, a["geojson"], b["geojson"])
	assert.FileExists(t, a["geojson"])
	assert.FileExists(t, b["geojson"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
