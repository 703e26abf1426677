// Package distance measures features against a search region. Geometry is
// projected into the UTM zone of the region's center and measured with planar
// nearest points; spherical distances are the fallback.
package distance

import (
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/proximity/internal/geo"
	"github.com/MeKo-Tech/proximity/internal/metrics"
	"github.com/MeKo-Tech/proximity/internal/types"
	"github.com/paulmach/orb"
)

// Measurement methods, also used as metric labels.
const (
	MethodPlanar    = "planar"
	MethodHaversine = "haversine"
	MethodBoundary  = "boundary"
	MethodVertex    = "vertex"
	MethodFailed    = "failed"
)

// Config configures an Engine.
type Config struct {
	// Workers is the number of features measured concurrently (default 1).
	Workers int
	Logger  *slog.Logger
}

// Engine annotates features with their distance to a region.
type Engine struct {
	workers int
	logger  *slog.Logger
}

// New creates an engine.
func New(cfg Config) *Engine {
	e := &Engine{workers: cfg.Workers, logger: cfg.Logger}
	if e.workers <= 0 {
		e.workers = 1
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Annotate measures every feature against region. It never fails: a feature
// that cannot be measured gets an infinite distance and no witnesses. The
// output has the same order as the input.
func (e *Engine) Annotate(features []types.Feature, region geo.Region) []types.AnnotatedFeature {
	out := make([]types.AnnotatedFeature, len(features))
	if len(features) == 0 {
		return out
	}

	m := newMeasurer(region, e.logger)

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := range features {
		g.Go(func() error {
			ann, method := m.safeMeasure(features[i])
			metrics.FeaturesMeasured.WithLabelValues(method).Inc()
			out[i] = types.AnnotatedFeature{Feature: features[i], DistanceAnnotation: ann}
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// measurer holds the per-search projection state. It is read-only once built.
type measurer struct {
	region geo.Region
	proj   *geo.UTM
	ref    orb.Geometry // projected reference, nil without projection
	logger *slog.Logger
}

func newMeasurer(region geo.Region, logger *slog.Logger) *measurer {
	m := &measurer{region: region, logger: logger}

	proj, err := geo.NewUTM(region.Center)
	if err != nil {
		logger.Warn("Projection unavailable, using spherical distances",
			"center", region.Center.String(),
			"error", err)
		return m
	}
	ref, err := proj.ForwardGeometry(region.Reference())
	if err != nil {
		logger.Warn("Failed to project reference geometry, using spherical distances", "error", err)
		return m
	}

	zone, hemi := proj.Zone()
	logger.Debug("Projected reference geometry", "zone", zone, "hemisphere", hemi, "polygon", region.IsPolygon())

	m.proj, m.ref = proj, ref
	return m
}

func (m *measurer) safeMeasure(f types.Feature) (ann types.DistanceAnnotation, method string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Debug("Distance computation panicked", "feature", f.ID, "panic", r)
			ann, method = types.Undetermined(), MethodFailed
		}
	}()

	ann, method, err := m.measure(f)
	if err != nil || !ann.Determined() || ann.DistanceM < 0 {
		m.logger.Debug("Distance undetermined", "feature", f.ID, "method", method, "error", err)
		return types.Undetermined(), MethodFailed
	}
	return ann, method
}

func (m *measurer) measure(f types.Feature) (types.DistanceAnnotation, string, error) {
	if f.HasShape() && m.proj != nil {
		return m.planar(f)
	}

	pt, ok := featurePoint(f)
	if !ok {
		return types.DistanceAnnotation{}, MethodFailed, fmt.Errorf("feature %s has no coordinates", f.ID)
	}

	if !m.region.IsPolygon() {
		origin := m.region.Center
		return annotation(geo.Haversine(origin, pt), origin, pt), MethodHaversine, nil
	}

	if m.proj != nil {
		onRef, _, _, err := geo.NearestPoints(m.ref, m.proj.Forward(pt))
		if err != nil {
			return types.DistanceAnnotation{}, MethodBoundary, err
		}
		w := m.proj.Inverse(onRef)
		return annotation(geo.Haversine(w, pt), w, pt), MethodBoundary, nil
	}

	w, d, ok := geo.NearestVertex(pt, m.region.Outline())
	if !ok {
		return types.DistanceAnnotation{}, MethodVertex, fmt.Errorf("region has no vertices")
	}
	return annotation(d, w, pt), MethodVertex, nil
}

func (m *measurer) planar(f types.Feature) (types.DistanceAnnotation, string, error) {
	fg, err := m.proj.ForwardGeometry(f.Geometry)
	if err != nil {
		return types.DistanceAnnotation{}, MethodPlanar, err
	}
	onRef, onFeat, d, err := geo.NearestPoints(m.ref, fg)
	if err != nil {
		return types.DistanceAnnotation{}, MethodPlanar, err
	}
	return annotation(d, m.proj.Inverse(onRef), m.proj.Inverse(onFeat)), MethodPlanar, nil
}

// featurePoint is the single coordinate used when a feature is measured without its shape.
func featurePoint(f types.Feature) (geo.Point, bool) {
	if p, ok := f.Geometry.(orb.Point); ok {
		gp := geo.FromOrb(p)
		return gp, gp.Valid()
	}
	if f.Centroid.Valid() && !(f.Centroid == geo.Point{} && f.Geometry == nil) {
		return f.Centroid, true
	}
	return geo.Point{}, false
}

func annotation(d float64, onRef, onFeat geo.Point) types.DistanceAnnotation {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return types.Undetermined()
	}
	return types.DistanceAnnotation{
		DistanceM:      d,
		OriginWitness:  &onRef,
		FeatureWitness: &onFeat,
	}
}
