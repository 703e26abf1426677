package overpass

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/MeKo-Christian/go-overpass"
)

// LibraryTransport runs queries through the go-overpass client. The client has
// no context support, so the request context and the status/content-type
// checks are applied by the HTTP round tripper it is given.
type LibraryTransport struct {
	// Base performs the underlying HTTP round trips (default: http.DefaultTransport)
	Base http.RoundTripper
}

// Query implements Transport.
func (t *LibraryTransport) Query(ctx context.Context, endpoint, query string) (*Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	client := overpass.NewWithSettings(
		endpoint,
		1, // one request per client; failover is handled by the Fetcher
		&http.Client{Transport: &guardedTransport{ctx: ctx, next: base}},
	)

	result, err := client.Query(query)
	if err != nil {
		return nil, fmt.Errorf("overpass query failed: %w", err)
	}

	return &Response{
		Generator: "go-overpass",
		Elements:  ElementsFromResult(&result),
	}, nil
}

// guardedTransport binds requests to ctx and rejects non-JSON or non-200 responses.
type guardedTransport struct {
	ctx  context.Context
	next http.RoundTripper
}

func (g *guardedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := g.next.RoundTrip(req.WithContext(g.ctx))
	if err != nil {
		return nil, err
	}
	if err := checkResponse(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// ElementsFromResult converts a go-overpass result into raw elements, ordered
// by type and ID. Untagged nodes and ways are skipped: they are geometry
// stubs for referenced members, not matches of the query.
func ElementsFromResult(result *overpass.Result) []Element {
	if result == nil {
		return nil
	}

	var elements []Element

	for _, id := range sortedKeys(result.Nodes) {
		node := result.Nodes[id]
		if node == nil || len(node.Tags) == 0 {
			continue
		}
		lat, lon := node.Lat, node.Lon
		elements = append(elements, Element{
			Type: "node",
			ID:   node.ID,
			Tags: node.Tags,
			Lat:  &lat,
			Lon:  &lon,
		})
	}

	for _, id := range sortedKeys(result.Ways) {
		way := result.Ways[id]
		if way == nil || len(way.Tags) == 0 {
			continue
		}
		elements = append(elements, Element{
			Type:     "way",
			ID:       way.ID,
			Tags:     way.Tags,
			Bounds:   convertBox(way.Bounds),
			Geometry: convertPoints(way.Geometry),
		})
	}

	for _, id := range sortedKeys(result.Relations) {
		rel := result.Relations[id]
		if rel == nil {
			continue
		}
		e := Element{
			Type:   "relation",
			ID:     rel.ID,
			Tags:   rel.Tags,
			Bounds: convertBox(rel.Bounds),
		}
		for _, m := range rel.Members {
			member := Member{Type: string(m.Type), Role: m.Role}
			if m.Way != nil {
				member.Ref = m.Way.ID
				member.Geometry = convertPoints(m.Way.Geometry)
			}
			e.Members = append(e.Members, member)
		}
		elements = append(elements, e)
	}

	return elements
}

func convertPoints(pts []overpass.Point) []*LatLon {
	if len(pts) == 0 {
		return nil
	}
	out := make([]*LatLon, len(pts))
	for i, p := range pts {
		out[i] = &LatLon{Lat: p.Lat, Lon: p.Lon}
	}
	return out
}

func convertBox(b *overpass.Box) *Bounds {
	if b == nil {
		return nil
	}
	return &Bounds{MinLat: b.Min.Lat, MinLon: b.Min.Lon, MaxLat: b.Max.Lat, MaxLon: b.Max.Lon}
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
