// Package staticmap renders a PNG overview of a search: the search region,
// every measured feature colored by distance tier, and witness lines.
package staticmap

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/proximity/internal/classify"
	"github.com/MeKo-Tech/proximity/internal/geo"
	"github.com/MeKo-Tech/proximity/internal/types"
	"github.com/paulmach/orb"
	"golang.org/x/image/vector"
)

// Options configures the canvas.
type Options struct {
	Width   int
	Height  int
	Padding int
	// Grid draws the web-mercator tile boundaries as a faint reference grid.
	Grid bool
}

// DefaultOptions is a 1024x768 canvas with a 32 px margin.
func DefaultOptions() Options {
	return Options{Width: 1024, Height: 768, Padding: 32, Grid: true}
}

var (
	background   = color.NRGBA{R: 246, G: 244, B: 238, A: 255}
	regionFill   = color.NRGBA{R: 66, G: 133, B: 244, A: 40}
	regionStroke = color.NRGBA{R: 66, G: 133, B: 244, A: 255}
	witnessColor = color.NRGBA{R: 90, G: 90, B: 90, A: 200}
	originColor  = color.NRGBA{R: 20, G: 20, B: 20, A: 255}
	gridColor    = color.NRGBA{R: 222, G: 218, B: 208, A: 255}
	scaleColor   = color.NRGBA{R: 40, G: 40, B: 40, A: 255}

	tierColors = map[string]color.NRGBA{
		types.TierNear:     {R: 211, G: 47, B: 47, A: 255},
		types.TierMid:      {R: 245, G: 124, B: 0, A: 255},
		types.TierFar:      {R: 251, G: 192, B: 45, A: 255},
		types.TierNotFound: {R: 120, G: 144, B: 156, A: 255},
	}
)

// Renderer draws results onto a canvas.
type Renderer struct {
	opts Options
}

// NewRenderer creates a renderer; zero option fields take their defaults.
func NewRenderer(opts Options) *Renderer {
	def := DefaultOptions()
	if opts.Width <= 0 {
		opts.Width = def.Width
	}
	if opts.Height <= 0 {
		opts.Height = def.Height
	}
	if opts.Padding < 0 || 2*opts.Padding >= min(opts.Width, opts.Height) {
		opts.Padding = def.Padding
	}
	return &Renderer{opts: opts}
}

// Render draws the result and returns the canvas and its viewport.
func (r *Renderer) Render(result *types.SearchResult) (*image.NRGBA, Viewport) {
	vp := Fit(bounds(result), r.opts.Width, r.opts.Height, r.opts.Padding)
	c := &canvas{
		img: image.NewNRGBA(image.Rect(0, 0, vp.Width, vp.Height)),
		vp:  vp,
	}
	c.fill(background)
	if r.opts.Grid {
		c.drawGrid()
	}

	sel := result.Selection
	if len(sel.Polygon) > 0 {
		poly := orb.Polygon{orb.Ring(geo.OrbRing(sel.Polygon))}
		c.fillPolygon(poly, regionFill)
		c.strokeLine(orb.LineString(poly[0]), 2, regionStroke)
	} else {
		ring := circle(sel.Centroid, float64(sel.RadiusM))
		c.fillPolygon(orb.Polygon{ring}, regionFill)
		c.strokeLine(orb.LineString(ring), 2, regionStroke)
	}

	// farthest first so near features end up on top
	for i := len(result.Features) - 1; i >= 0; i-- {
		f := result.Features[i]
		col := tierColors[tierOf(f)]
		c.drawGeometry(f.Geometry, col)
		if f.OriginWitness != nil && f.FeatureWitness != nil && f.DistanceM > 0 {
			c.strokeLine(orb.LineString{f.OriginWitness.Orb(), f.FeatureWitness.Orb()}, 1, witnessColor)
		}
	}

	ox, oy := vp.ToPixel(orb.Point{result.Center.Lon, result.Center.Lat})
	c.drawDisc(ox, oy, 5, originColor)

	c.drawScaleBar(result.Center.Lat, r.opts.Padding)

	return c.img, vp
}

// ScaleLength picks the longest 1, 2 or 5 times a power of ten meters that
// fits in maxPx pixels at the given ground resolution.
func ScaleLength(metersPerPixel, maxPx float64) float64 {
	limit := metersPerPixel * maxPx
	if limit <= 0 || math.IsInf(limit, 0) || math.IsNaN(limit) {
		return 0
	}
	base := math.Pow(10, math.Floor(math.Log10(limit)))
	for _, f := range []float64{5, 2, 1} {
		if f*base <= limit {
			return f * base
		}
	}
	return base
}

// RenderPNG renders the result and encodes it as PNG.
func (r *Renderer) RenderPNG(result *types.SearchResult) ([]byte, error) {
	img, _ := r.Render(result)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func tierOf(f types.AnnotatedFeature) string {
	t := types.DefaultThresholds
	if spec, ok := types.Classify(f.Tags); ok {
		t = spec.Thresholds
	}
	return classify.Tier(f.DistanceM, t)
}

// bounds covers the search region and every feature, never less than the
// search circle.
func bounds(result *types.SearchResult) orb.Bound {
	sel := result.Selection
	b := circle(sel.Centroid, math.Max(float64(sel.RadiusM), 10)).Bound()
	for _, p := range sel.Polygon {
		b = b.Extend(p.Orb())
	}
	for _, f := range result.Features {
		if f.Geometry != nil {
			b = b.Union(f.Geometry.Bound())
		}
	}
	return b
}

// circle approximates a ground circle as a closed ring.
func circle(center geo.Point, radiusM float64) orb.Ring {
	const n = 64
	ring := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / n
		ring = append(ring, geo.Offset(center, radiusM*math.Cos(a), radiusM*math.Sin(a)).Orb())
	}
	return append(ring, ring[0])
}

type canvas struct {
	img *image.NRGBA
	vp  Viewport
}

func (c *canvas) fill(col color.NRGBA) {
	for i := 0; i < len(c.img.Pix); i += 4 {
		c.img.Pix[i], c.img.Pix[i+1], c.img.Pix[i+2], c.img.Pix[i+3] = col.R, col.G, col.B, col.A
	}
}

func (c *canvas) drawGeometry(g orb.Geometry, col color.NRGBA) {
	switch g := g.(type) {
	case orb.Polygon:
		if len(g) == 0 {
			return
		}
		fill := col
		fill.A = 110
		c.fillPolygon(g, fill)
		c.strokeLine(orb.LineString(g[0]), 1.5, col)
	case orb.LineString:
		c.strokeLine(g, 3, col)
	case orb.Point:
		x, y := c.vp.ToPixel(g)
		c.drawDisc(x, y, 4, col)
	}
}

func (c *canvas) fillPolygon(poly orb.Polygon, col color.NRGBA) {
	if len(poly) == 0 {
		return
	}

	ras := vector.NewRasterizer(c.vp.Width, c.vp.Height)
	for _, ring := range poly {
		if len(ring) < 3 {
			continue
		}
		for i, pt := range ring {
			x, y := c.vp.ToPixel(pt)
			if i == 0 {
				ras.MoveTo(float32(x), float32(y))
			} else {
				ras.LineTo(float32(x), float32(y))
			}
		}
		ras.ClosePath()
	}

	ras.Draw(c.img, c.img.Bounds(), image.NewUniform(col), image.Point{})
}

// strokeLine draws each segment as a quad of the given pixel width.
func (c *canvas) strokeLine(ls orb.LineString, width float64, col color.NRGBA) {
	if len(ls) < 2 {
		return
	}
	half := width / 2

	ras := vector.NewRasterizer(c.vp.Width, c.vp.Height)
	for i := 0; i < len(ls)-1; i++ {
		x0, y0 := c.vp.ToPixel(ls[i])
		x1, y1 := c.vp.ToPixel(ls[i+1])

		dx, dy := x1-x0, y1-y0
		segLen := math.Hypot(dx, dy)
		if segLen == 0 {
			continue
		}
		nx, ny := -dy/segLen*half, dx/segLen*half

		ras.MoveTo(float32(x0+nx), float32(y0+ny))
		ras.LineTo(float32(x1+nx), float32(y1+ny))
		ras.LineTo(float32(x1-nx), float32(y1-ny))
		ras.LineTo(float32(x0-nx), float32(y0-ny))
		ras.ClosePath()
	}

	ras.Draw(c.img, c.img.Bounds(), image.NewUniform(col), image.Point{})
}

// drawGrid strokes the left and top edge of every tile the canvas covers.
func (c *canvas) drawGrid() {
	w, h := float64(c.vp.Width), float64(c.vp.Height)
	for _, t := range c.vp.Tiles() {
		b := t.Bound()
		x, y := c.vp.ToPixel(orb.Point{b.Min.Lon(), b.Max.Lat()})
		c.strokePx(x, 0, x, h, 1, gridColor)
		c.strokePx(0, y, w, y, 1, gridColor)
	}
}

// drawScaleBar draws a labelless bar of ScaleLength meters in the bottom
// left corner, with end ticks.
func (c *canvas) drawScaleBar(lat float64, padding int) {
	mpp := c.vp.MetersPerPixel(lat)
	meters := ScaleLength(mpp, float64(c.vp.Width)/5)
	if meters == 0 {
		return
	}
	length := meters / mpp
	x0 := float64(max(padding, 8))
	y := float64(c.vp.Height - max(padding, 8))
	c.strokePx(x0, y, x0+length, y, 3, scaleColor)
	c.strokePx(x0, y-6, x0, y+1.5, 2, scaleColor)
	c.strokePx(x0+length, y-6, x0+length, y+1.5, 2, scaleColor)
}

// strokePx draws one segment given in canvas pixels.
func (c *canvas) strokePx(x0, y0, x1, y1, width float64, col color.NRGBA) {
	dx, dy := x1-x0, y1-y0
	segLen := math.Hypot(dx, dy)
	if segLen == 0 {
		return
	}
	half := width / 2
	nx, ny := -dy/segLen*half, dx/segLen*half

	ras := vector.NewRasterizer(c.vp.Width, c.vp.Height)
	ras.MoveTo(float32(x0+nx), float32(y0+ny))
	ras.LineTo(float32(x1+nx), float32(y1+ny))
	ras.LineTo(float32(x1-nx), float32(y1-ny))
	ras.LineTo(float32(x0-nx), float32(y0-ny))
	ras.ClosePath()
	ras.Draw(c.img, c.img.Bounds(), image.NewUniform(col), image.Point{})
}

func (c *canvas) drawDisc(cx, cy, radius float64, col color.NRGBA) {
	minX := max(int(math.Floor(cx-radius)), 0)
	maxX := min(int(math.Ceil(cx+radius)), c.vp.Width-1)
	minY := max(int(math.Floor(cy-radius)), 0)
	maxY := min(int(math.Ceil(cy+radius)), c.vp.Height-1)

	r2 := radius * radius
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			dx := (float64(x) + 0.5) - cx
			dy := (float64(y) + 0.5) - cy
			if dx*dx+dy*dy <= r2 {
				c.img.SetNRGBA(x, y, col)
			}
		}
	}
}

// Sink writes one PNG per result into Dir.
type Sink struct {
	Dir      string
	Renderer *Renderer
}

// Name implements search.ArtifactSink.
func (s *Sink) Name() string { return "staticmap" }

// Publish implements search.ArtifactSink.
func (s *Sink) Publish(_ context.Context, result *types.SearchResult) (map[string]string, error) {
	r := s.Renderer
	if r == nil {
		r = NewRenderer(DefaultOptions())
	}
	data, err := r.RenderPNG(result)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	path := filepath.Join(s.Dir, result.Slug()+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write PNG: %w", err)
	}
	return map[string]string{"map": path}, nil
}
