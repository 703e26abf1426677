package types

import (
	"math"
	"strings"

	"github.com/MeKo-Tech/proximity/internal/geo"
	"github.com/paulmach/orb"
)

// ElementType is the OSM element type of a feature.
type ElementType string

const (
	ElementNode     ElementType = "node"
	ElementWay      ElementType = "way"
	ElementRelation ElementType = "relation"
)

// GeometrySource records which part of the raw record a geometry came from.
type GeometrySource int

const (
	// SourceVertices means the geometry was built from the record's vertex list.
	SourceVertices GeometrySource = iota
	// SourceCoordinate means only the record's own lat/lon was available.
	SourceCoordinate
	// SourceCenter means only the server-computed center was available.
	SourceCenter
)

func (s GeometrySource) String() string {
	switch s {
	case SourceVertices:
		return "vertices"
	case SourceCoordinate:
		return "coordinate"
	case SourceCenter:
		return "center"
	default:
		return "unknown"
	}
}

// UnnamedFeature is the name given to features without a name tag.
const UnnamedFeature = "(unnamed)"

// Feature represents a geographic feature extracted from OSM
type Feature struct {
	ID       string            // OSM element ID (e.g., "way/12345")
	Type     ElementType       // node, way or relation
	Name     string            // name tag or UnnamedFeature
	Tags     map[string]string // OSM tags
	Geometry orb.Geometry      // Point, LineString or Polygon in (lon, lat)
	Centroid geo.Point         // best-effort centroid for display
	Source   GeometrySource
}

// HasShape reports whether the feature carries geometry built from vertices.
func (f Feature) HasShape() bool {
	return f.Source == SourceVertices && f.Geometry != nil
}

// Address joins the feature's addr:* tags, or returns "".
func (f Feature) Address() string {
	var parts []string
	street := strings.TrimSpace(strings.Join(nonEmpty(f.Tags["addr:housenumber"], f.Tags["addr:street"]), " "))
	if street != "" {
		parts = append(parts, street)
	}
	parts = append(parts, nonEmpty(f.Tags["addr:city"], f.Tags["addr:postcode"])...)
	if len(parts) == 0 {
		return f.Tags["addr:full"]
	}
	return strings.Join(parts, ", ")
}

func nonEmpty(values ...string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// DistanceAnnotation is the outcome of measuring a feature against the origin.
// DistanceM is +Inf when the distance could not be determined.
type DistanceAnnotation struct {
	DistanceM      float64
	OriginWitness  *geo.Point // nearest point on the reference geometry
	FeatureWitness *geo.Point // nearest point on the feature
}

// Undetermined returns the annotation used for features that cannot be measured.
func Undetermined() DistanceAnnotation {
	return DistanceAnnotation{DistanceM: math.Inf(1)}
}

// Determined reports whether the distance is finite.
func (d DistanceAnnotation) Determined() bool {
	return !math.IsInf(d.DistanceM, 0) && !math.IsNaN(d.DistanceM)
}

// AnnotatedFeature pairs a feature with its distance annotation.
type AnnotatedFeature struct {
	Feature
	DistanceAnnotation
}
