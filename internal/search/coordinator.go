// Package search runs a proximity search end to end: resolve the location,
// query the feature database, measure every feature and classify the result.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/MeKo-Tech/proximity/internal/classify"
	"github.com/MeKo-Tech/proximity/internal/geo"
	"github.com/MeKo-Tech/proximity/internal/metrics"
	"github.com/MeKo-Tech/proximity/internal/overpass"
	"github.com/MeKo-Tech/proximity/internal/types"
)

// Radius limits in meters; requested radii are clamped into this range.
const (
	MinRadiusM     = 10
	MaxRadiusM     = 3000
	DefaultRadiusM = 250
)

// ErrNoLocation is returned when neither a location nor a polygon is given.
var ErrNoLocation = errors.New("no location given")

// Resolver turns location text into a point and a display string.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (geo.Point, string, error)
}

// Fetcher executes an Overpass query.
type Fetcher interface {
	Fetch(ctx context.Context, query string) (*overpass.Response, error)
}

// Annotator measures features against a region.
type Annotator interface {
	Annotate(features []types.Feature, region geo.Region) []types.AnnotatedFeature
}

// ArtifactSink publishes a finished result somewhere (a file, a database)
// and returns named references to what it wrote.
type ArtifactSink interface {
	Name() string
	Publish(ctx context.Context, result *types.SearchResult) (map[string]string, error)
}

// Request is one search.
type Request struct {
	Location   string
	RadiusM    int
	Categories []string
	Mode       types.SelectionMode
	Polygon    []geo.Point
	Permit     string
	MaxRows    int
}

// Config wires the coordinator's collaborators.
type Config struct {
	Resolver  Resolver
	Fetcher   Fetcher
	Annotator Annotator
	Sinks     []ArtifactSink
	Logger    *slog.Logger
	Now       func() time.Time
}

// Coordinator runs searches. It holds no per-search state and is safe for
// concurrent use when its collaborators are.
type Coordinator struct {
	resolver  Resolver
	fetcher   Fetcher
	annotator Annotator
	sinks     []ArtifactSink
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a coordinator. Resolver, Fetcher and Annotator are required.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Resolver == nil || cfg.Fetcher == nil || cfg.Annotator == nil {
		return nil, fmt.Errorf("resolver, fetcher and annotator are required")
	}
	c := &Coordinator{
		resolver:  cfg.Resolver,
		fetcher:   cfg.Fetcher,
		annotator: cfg.Annotator,
		sinks:     cfg.Sinks,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// ClampRadius limits r to [MinRadiusM, MaxRadiusM]; zero means DefaultRadiusM.
func ClampRadius(r int) int {
	switch {
	case r == 0:
		return DefaultRadiusM
	case r < MinRadiusM:
		return MinRadiusM
	case r > MaxRadiusM:
		return MaxRadiusM
	}
	return r
}

// Search runs one search. It returns either a complete result or an error;
// artifact sink failures are reported as warnings on the result.
func (c *Coordinator) Search(ctx context.Context, req Request) (result *types.SearchResult, err error) {
	start := time.Now()
	defer func() {
		label := "error"
		if err == nil {
			label = string(result.Summary.Outcome)
		}
		metrics.Searches.WithLabelValues(label).Inc()
		metrics.SearchDuration.Observe(time.Since(start).Seconds())
	}()

	radius := ClampRadius(req.RadiusM)
	if radius != req.RadiusM && req.RadiusM != 0 {
		c.logger.Debug("Clamped search radius", "requested", req.RadiusM, "radius", radius)
	}

	categories, unknown := types.ParseCategories(req.Categories)
	if len(unknown) > 0 {
		c.logger.Warn("Ignoring unknown categories", "categories", unknown)
	}
	if len(categories) == 0 {
		categories = types.AllCategories()
	}

	origin, display, err := c.origin(ctx, req)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Resolved location", "display", display, "lat", origin.Lat, "lon", origin.Lon)

	region, mode, notes := c.region(req, origin, radius)
	queryRadius := int(math.Ceil(region.RadiusM))

	query, err := overpass.BuildQuery(region.Center, queryRadius, categories)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	c.logger.Info("Fetching features",
		"mode", mode,
		"radius_m", queryRadius,
		"categories", len(categories))
	resp, err := c.fetcher.Fetch(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch features: %w", err)
	}

	features := overpass.Normalize(resp.Elements)
	c.logger.Debug("Normalized features", "elements", len(resp.Elements), "features", len(features))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	annotated := c.annotator.Annotate(features, region)
	summary := classify.Summarize(annotated, req.MaxRows)

	result = &types.SearchResult{
		Center:      types.Center{Lat: origin.Lat, Lon: origin.Lon, Display: display},
		RadiusM:     radius,
		Permit:      req.Permit,
		SummaryBins: summary.Bins,
		Details:     summary.Rows,
		Selection: types.Selection{
			Mode:     mode,
			Centroid: region.Center,
			RadiusM:  queryRadius,
			Polygon:  region.Outline(),
		},
		Artifacts:  map[string]string{},
		Warnings:   notes,
		Categories: categories,
		CreatedAt:  c.now().UTC(),
		Features:   annotated,
	}
	if result.Details == nil {
		result.Details = []types.DetailRow{}
	}
	result.Summary = types.Summary{
		Outcome:      summary.Outcome,
		Center:       display,
		Radius:       radius,
		Permit:       req.Permit,
		CenterCoords: origin.String(),
		Categories:   classify.CategorySummaries(summary.Bins),
	}

	c.logger.Info("Search complete",
		"outcome", summary.Outcome,
		"features", len(annotated),
		"rows", len(summary.Rows),
		"duration", time.Since(start))

	c.publish(ctx, result)
	return result, nil
}

// origin resolves the request's location. A polygon search without location
// text uses the mean of its vertices.
func (c *Coordinator) origin(ctx context.Context, req Request) (geo.Point, string, error) {
	if req.Location != "" {
		return c.resolver.Resolve(ctx, req.Location)
	}
	if req.Mode == types.ModePolygon && len(req.Polygon) > 0 {
		var lat, lon float64
		for _, v := range req.Polygon {
			lat += v.Lat
			lon += v.Lon
		}
		n := float64(len(req.Polygon))
		p := geo.Point{Lat: lat / n, Lon: lon / n}
		if p.Valid() {
			return p, p.String(), nil
		}
	}
	return geo.Point{}, "", ErrNoLocation
}

// region builds the measurement region. An unusable polygon silently turns
// the search into a point search around origin with the requested radius. A
// polygon query is centered on origin with radius plus the distance to the
// farthest vertex.
func (c *Coordinator) region(req Request, origin geo.Point, radius int) (geo.Region, types.SelectionMode, []string) {
	if req.Mode != types.ModePolygon {
		return geo.PointRegion(origin, float64(radius)), types.ModePoint, nil
	}

	region, err := geo.PolygonRegion(req.Polygon, float64(radius))
	if err != nil {
		c.logger.Warn("Invalid search polygon, falling back to point search",
			"vertices", len(req.Polygon),
			"error", err)
		return geo.PointRegion(origin, float64(radius)), types.ModePoint, nil
	}

	var notes []string
	if region.Repaired {
		c.logger.Warn("Repaired self-intersecting search polygon", "vertices", len(req.Polygon))
		notes = append(notes, "polygon: outline crossed itself and was repaired")
	}
	return region.Around(origin, float64(radius)), types.ModePolygon, notes
}

// publish hands the result to every sink and records their references once
// all of them have returned, so no sink sees the result change under it.
func (c *Coordinator) publish(ctx context.Context, result *types.SearchResult) {
	artifacts := make(map[string]string)
	var warnings []string
	for _, sink := range c.sinks {
		refs, err := sink.Publish(ctx, result)
		if err != nil {
			c.logger.Warn("Artifact sink failed", "sink", sink.Name(), "error", err)
			warnings = append(warnings, fmt.Sprintf("%s: %v", sink.Name(), err))
			continue
		}
		for k, v := range refs {
			artifacts[k] = v
		}
	}

	for k, v := range artifacts {
		result.Artifacts[k] = v
	}
	result.Warnings = append(result.Warnings, warnings...)
}
