package staticmap

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
)

// TileSize is the web-mercator tile edge in pixels.
const TileSize = 256

const (
	minZoom = 1
	maxZoom = 19
	// half the web-mercator world width in meters
	mercatorHalf = 20037508.342789244
)

// Viewport maps lon/lat to pixels of a fixed-size canvas at one zoom level.
type Viewport struct {
	Zoom    int
	Width   int
	Height  int
	offsetX float64 // global pixel space
	offsetY float64 // global pixel space
}

// Fit returns the viewport with the highest zoom at which bound, plus padding
// pixels on every side, fits the canvas. The bound is centered.
func Fit(bound orb.Bound, width, height, padding int) Viewport {
	center := bound.Center()
	zoom := minZoom
	for z := maxZoom; z >= minZoom; z-- {
		minX, maxY := globalPx(bound.Min, z)
		maxX, minY := globalPx(bound.Max, z)
		if maxX-minX <= float64(width-2*padding) && maxY-minY <= float64(height-2*padding) {
			zoom = z
			break
		}
	}

	cx, cy := globalPx(center, zoom)
	return Viewport{
		Zoom:    zoom,
		Width:   width,
		Height:  height,
		offsetX: cx - float64(width)/2,
		offsetY: cy - float64(height)/2,
	}
}

// ToPixel maps a (lon, lat) point to canvas pixel coordinates.
func (v Viewport) ToPixel(p orb.Point) (float64, float64) {
	x, y := globalPx(p, v.Zoom)
	return x - v.offsetX, y - v.offsetY
}

// MetersPerPixel is the ground resolution at latitude lat.
func (v Viewport) MetersPerPixel(lat float64) float64 {
	world := float64(TileSize) * math.Pow(2, float64(v.Zoom))
	return 2 * mercatorHalf * math.Cos(lat*math.Pi/180) / world
}

// Tiles returns the map tiles the canvas covers; their edges form the
// reference grid.
func (v Viewport) Tiles() maptile.Tiles {
	z := maptile.Zoom(v.Zoom)
	n := uint32(1) << uint(v.Zoom)

	minTX := int(math.Floor(v.offsetX / TileSize))
	minTY := int(math.Floor(v.offsetY / TileSize))
	maxTX := int(math.Floor((v.offsetX + float64(v.Width) - 1) / TileSize))
	maxTY := int(math.Floor((v.offsetY + float64(v.Height) - 1) / TileSize))

	var tiles maptile.Tiles
	for x := minTX; x <= maxTX; x++ {
		for y := minTY; y <= maxTY; y++ {
			if x < 0 || y < 0 || uint32(x) >= n || uint32(y) >= n {
				continue
			}
			tiles = append(tiles, maptile.New(uint32(x), uint32(y), z))
		}
	}
	return tiles
}

// globalPx projects to web mercator and scales to global pixel space at zoom.
func globalPx(p orb.Point, zoom int) (float64, float64) {
	m := project.WGS84.ToMercator(p)
	world := float64(TileSize) * math.Pow(2, float64(zoom))
	x := (m[0] + mercatorHalf) / (2 * mercatorHalf) * world
	y := (mercatorHalf - m[1]) / (2 * mercatorHalf) * world
	return x, y
}
