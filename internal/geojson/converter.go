// Package geojson exports search results as GeoJSON for the interactive map.
package geojson

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/proximity/internal/types"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Layer is the "layer" property of every exported feature.
type Layer string

const (
	LayerRegion  Layer = "region"
	LayerOrigin  Layer = "origin"
	LayerFeature Layer = "feature"
	LayerWitness Layer = "witness"
)

// ToGeoJSON converts a search result into a FeatureCollection: the search
// region, the origin, every measured feature and, for features with
// witnesses, the line between the two nearest points.
func ToGeoJSON(result *types.SearchResult) (*geojson.FeatureCollection, error) {
	if result == nil {
		return nil, fmt.Errorf("nil result")
	}
	fc := geojson.NewFeatureCollection()

	origin := geojson.NewFeature(orb.Point{result.Center.Lon, result.Center.Lat})
	origin.Properties["layer"] = string(LayerOrigin)
	origin.Properties["display"] = result.Center.Display
	fc.Append(origin)

	sel := result.Selection
	var region *geojson.Feature
	if len(sel.Polygon) > 0 {
		ring := make(orb.Ring, len(sel.Polygon))
		for i, p := range sel.Polygon {
			ring[i] = p.Orb()
		}
		region = geojson.NewFeature(orb.Polygon{ring})
	} else {
		region = geojson.NewFeature(sel.Centroid.Orb())
	}
	region.Properties["layer"] = string(LayerRegion)
	region.Properties["mode"] = string(sel.Mode)
	region.Properties["radius_m"] = sel.RadiusM
	fc.Append(region)

	for _, f := range result.Features {
		if f.Geometry == nil {
			continue
		}

		gf := geojson.NewFeature(f.Geometry)
		for key, value := range f.Tags {
			gf.Properties[key] = value
		}
		gf.Properties["layer"] = string(LayerFeature)
		gf.Properties["osm_id"] = f.ID
		gf.Properties["name"] = f.Name
		gf.Properties["category"] = types.DisplayLabel(f.Tags)
		gf.Properties["geometry_source"] = f.Source.String()
		if f.Determined() {
			gf.Properties["distance_m"] = math.Round(f.DistanceM*10) / 10
		} else {
			gf.Properties["distance_m"] = nil
		}
		fc.Append(gf)

		if f.OriginWitness != nil && f.FeatureWitness != nil {
			line := geojson.NewFeature(orb.LineString{f.OriginWitness.Orb(), f.FeatureWitness.Orb()})
			line.Properties["layer"] = string(LayerWitness)
			line.Properties["osm_id"] = f.ID
			line.Properties["distance_m"] = math.Round(f.DistanceM*10) / 10
			fc.Append(line)
		}
	}

	return fc, nil
}

// ToGeoJSONBytes converts a result to indented GeoJSON bytes.
func ToGeoJSONBytes(result *types.SearchResult) ([]byte, error) {
	fc, err := ToGeoJSON(result)
	if err != nil {
		return nil, fmt.Errorf("failed to convert to GeoJSON: %w", err)
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}

	return data, nil
}

// Sink writes one GeoJSON file per result into Dir.
type Sink struct {
	Dir string
}

// Name implements search.ArtifactSink.
func (s *Sink) Name() string { return "geojson" }

// Publish implements search.ArtifactSink.
func (s *Sink) Publish(_ context.Context, result *types.SearchResult) (map[string]string, error) {
	data, err := ToGeoJSONBytes(result)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	path := filepath.Join(s.Dir, result.Slug()+".geojson")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write GeoJSON: %w", err)
	}
	return map[string]string{"geojson": path}, nil
}
