// Package overpass builds Overpass QL proximity queries, fetches them from a
// list of mirrors with failover, and normalizes the returned elements into features.
package overpass

import (
	"encoding/json"
	"fmt"
	"strings"
)

// LatLon is a coordinate as it appears in Overpass JSON.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Bounds is the bounding box Overpass attaches with "out geom".
type Bounds struct {
	MinLat float64 `json:"minlat"`
	MinLon float64 `json:"minlon"`
	MaxLat float64 `json:"maxlat"`
	MaxLon float64 `json:"maxlon"`
}

// Center returns the midpoint of the box.
func (b Bounds) Center() LatLon {
	return LatLon{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// Member is a relation member with its inline geometry.
type Member struct {
	Type     string    `json:"type"`
	Ref      int64     `json:"ref"`
	Role     string    `json:"role"`
	Lat      *float64  `json:"lat,omitempty"`
	Lon      *float64  `json:"lon,omitempty"`
	Geometry []*LatLon `json:"geometry,omitempty"`
}

// Element is one raw record of an Overpass JSON response.
type Element struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Tags     map[string]string `json:"tags,omitempty"`
	Lat      *float64          `json:"lat,omitempty"`
	Lon      *float64          `json:"lon,omitempty"`
	Center   *LatLon           `json:"center,omitempty"`
	Bounds   *Bounds           `json:"bounds,omitempty"`
	Geometry []*LatLon         `json:"geometry,omitempty"`
	Members  []Member          `json:"members,omitempty"`
}

// Key returns the element's "type/id" identifier.
func (e Element) Key() string {
	return fmt.Sprintf("%s/%d", e.Type, e.ID)
}

// Coordinate returns the element's own lat/lon, if present.
func (e Element) Coordinate() (LatLon, bool) {
	if e.Lat == nil || e.Lon == nil {
		return LatLon{}, false
	}
	return LatLon{Lat: *e.Lat, Lon: *e.Lon}, true
}

// CenterPoint returns the server-computed center, falling back to the bounds midpoint.
func (e Element) CenterPoint() (LatLon, bool) {
	if e.Center != nil {
		return *e.Center, true
	}
	if e.Bounds != nil {
		return e.Bounds.Center(), true
	}
	return LatLon{}, false
}

// Vertices returns the element's explicit vertex list. For relations the
// outer member ways are stitched end to end and the longest resulting
// path is returned.
func (e Element) Vertices() []LatLon {
	if len(e.Geometry) > 0 {
		return compact(e.Geometry)
	}
	if e.Type != "relation" {
		return nil
	}

	var paths [][]LatLon
	for _, m := range e.Members {
		if m.Type != "way" || m.Role == "inner" {
			continue
		}
		if pts := compact(m.Geometry); len(pts) > 0 {
			paths = append(paths, pts)
		}
	}

	var longest []LatLon
	for _, p := range stitch(paths) {
		if len(p) > len(longest) {
			longest = p
		}
	}
	return longest
}

func compact(pts []*LatLon) []LatLon {
	out := make([]LatLon, 0, len(pts))
	for _, p := range pts {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// stitch joins paths that share endpoints, reversing where necessary.
func stitch(paths [][]LatLon) [][]LatLon {
	var done [][]LatLon
	remaining := append([][]LatLon(nil), paths...)

	for len(remaining) > 0 {
		cur := remaining[0]
		remaining = remaining[1:]

		for extended := true; extended && cur[0] != cur[len(cur)-1]; {
			extended = false
			for i, p := range remaining {
				last := cur[len(cur)-1]
				switch {
				case p[0] == last:
					cur = append(cur, p[1:]...)
				case p[len(p)-1] == last:
					cur = append(cur, reversed(p)[1:]...)
				default:
					continue
				}
				remaining = append(remaining[:i], remaining[i+1:]...)
				extended = true
				break
			}
		}
		done = append(done, cur)
	}
	return done
}

func reversed(p []LatLon) []LatLon {
	out := make([]LatLon, len(p))
	for i := range p {
		out[len(p)-1-i] = p[i]
	}
	return out
}

// Response is the decoded Overpass JSON payload.
type Response struct {
	Version   float64   `json:"version"`
	Generator string    `json:"generator"`
	Remark    string    `json:"remark,omitempty"`
	Elements  []Element `json:"elements"`
}

// DecodeResponse decodes an Overpass JSON body. A runtime-error remark with no
// elements is treated as a failed query, as Overpass reports timeouts that way
// with status 200.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal overpass json: %w", err)
	}
	if len(resp.Elements) == 0 && strings.Contains(strings.ToLower(resp.Remark), "error") {
		return nil, fmt.Errorf("overpass remark: %s", resp.Remark)
	}
	return &resp, nil
}
