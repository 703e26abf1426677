package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/proximity/internal/distance"
	"github.com/MeKo-Tech/proximity/internal/geo"
	"github.com/MeKo-Tech/proximity/internal/location"
	"github.com/MeKo-Tech/proximity/internal/overpass"
	"github.com/MeKo-Tech/proximity/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var belfast = geo.Point{Lat: 54.5973, Lon: -5.9301}

type stubFetcher struct {
	queries []string
	resp    *overpass.Response
	err     error
}

func (s *stubFetcher) Fetch(_ context.Context, query string) (*overpass.Response, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	if s.resp == nil {
		return &overpass.Response{}, nil
	}
	return s.resp, nil
}

type stubSink struct {
	name string
	refs map[string]string
	err  error
	got  *types.SearchResult
}

func (s *stubSink) Name() string { return s.name }

func (s *stubSink) Publish(_ context.Context, r *types.SearchResult) (map[string]string, error) {
	s.got = r
	return s.refs, s.err
}

func newCoordinator(t *testing.T, f Fetcher, sinks ...ArtifactSink) *Coordinator {
	t.Helper()
	c, err := New(Config{
		Resolver:  location.NewResolver(location.Config{}),
		Fetcher:   f,
		Annotator: distance.New(distance.Config{}),
		Sinks:     sinks,
		Now:       func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return c
}

func fuelNode(id int64, p geo.Point) string {
	return fmt.Sprintf(`{"type":"node","id":%d,"lat":%.9f,"lon":%.9f,"tags":{"amenity":"fuel","name":"Fuel %d"}}`, id, p.Lat, p.Lon, id)
}

func TestSearch_PetrolScenario(t *testing.T) {
	body := fmt.Sprintf(`{"version":0.6,"elements":[%s,%s]}`,
		fuelNode(1, geo.Offset(belfast, 30, 0)),
		fuelNode(2, geo.Offset(belfast, 60, 0)))

	var posted string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		posted = r.PostForm.Get("data")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	fetcher, err := overpass.NewFetcher(overpass.FetcherConfig{Endpoints: []string{srv.URL}, Timeout: 5 * time.Second})
	require.NoError(t, err)

	res, err := newCoordinator(t, fetcher).Search(context.Background(), Request{
		Location:   "54.5973,-5.9301",
		RadiusM:    2000,
		Categories: []string{"petrol_stations"},
	})
	require.NoError(t, err)

	assert.Contains(t, posted, "(around:2000,54.597300,-5.930100)")
	assert.Equal(t, map[string]int{
		"<10m":              0,
		"10-25m":            1,
		"25-100m":           1,
		">100m / not found": 0,
	}, res.SummaryBins["Petrol stations / Garages"])
	assert.Equal(t, types.OutcomeMedium, res.Summary.Outcome)

	require.Len(t, res.Details, 2)
	assert.Equal(t, 30, res.Details[0].DistanceM)
	assert.Equal(t, "Fuel 1", res.Details[0].Name)
	assert.Equal(t, 60, res.Details[1].DistanceM)

	assert.Equal(t, "54.597300, -5.930100", res.Center.Display)
	assert.Equal(t, 2000, res.RadiusM)
	assert.Equal(t, types.ModePoint, res.Selection.Mode)
	assert.Equal(t, []types.Category{types.CategoryPetrolStations}, res.Categories)
}

func TestSearch_OutputContract(t *testing.T) {
	c := newCoordinator(t, &stubFetcher{})
	res, err := c.Search(context.Background(), Request{Location: "54.5973 -5.9301", RadiusM: 100, Permit: "P-17"})
	require.NoError(t, err)

	raw, err := json.Marshal(res)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	for _, key := range []string{"center", "radius_m", "permit", "summary", "summary_bins", "details_100m", "selection", "artifacts"} {
		assert.Contains(t, doc, key)
	}
	assert.NotContains(t, doc, "warnings")
	assert.NotContains(t, doc, "Features")

	summary := doc["summary"].(map[string]any)
	assert.Equal(t, "LOW", summary["outcome"])
	assert.Equal(t, "P-17", summary["permit"])
	assert.Equal(t, "54.597300, -5.930100", summary["center_coords"])
	assert.Len(t, summary["categories"], len(types.Categories()))
	assert.Equal(t, []any{}, doc["details_100m"])
}

func TestSearch_CategoryDefaulting(t *testing.T) {
	f := &stubFetcher{}
	res, err := newCoordinator(t, f).Search(context.Background(), Request{
		Location:   "54.5973,-5.9301",
		Categories: []string{"volcanoes", "unicorns"},
	})
	require.NoError(t, err)

	assert.Equal(t, types.AllCategories(), res.Categories)
	require.Len(t, f.queries, 1)
	assert.Contains(t, f.queries[0], `["amenity"="fuel"]`)
	assert.Contains(t, f.queries[0], `["man_made"="gasometer"]`)
}

func TestSearch_RadiusClamped(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, DefaultRadiusM},
		{1, MinRadiusM},
		{-5, MinRadiusM},
		{500, 500},
		{10000, MaxRadiusM},
	}
	for _, tt := range tests {
		f := &stubFetcher{}
		res, err := newCoordinator(t, f).Search(context.Background(), Request{Location: "54.5973,-5.9301", RadiusM: tt.in})
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.RadiusM)
		assert.Contains(t, f.queries[0], fmt.Sprintf("(around:%d,", tt.want))
	}
}

func TestSearch_PolygonMode(t *testing.T) {
	square := []geo.Point{
		geo.Offset(belfast, -100, -100),
		geo.Offset(belfast, -100, 100),
		geo.Offset(belfast, 100, 100),
		geo.Offset(belfast, 100, -100),
	}

	f := &stubFetcher{resp: &overpass.Response{Elements: []overpass.Element{
		{Type: "node", ID: 9, Tags: map[string]string{"power": "substation"}, Lat: ptr(belfast.Lat), Lon: ptr(belfast.Lon)},
	}}}
	res, err := newCoordinator(t, f).Search(context.Background(), Request{
		Location: "54.5973,-5.9301",
		RadiusM:  50,
		Mode:     types.ModePolygon,
		Polygon:  square,
	})
	require.NoError(t, err)

	assert.Equal(t, types.ModePolygon, res.Selection.Mode)
	assert.NotEmpty(t, res.Selection.Polygon)
	// half diagonal of the square is ~141.4 m
	assert.InDelta(t, 50+142, res.Selection.RadiusM, 1)
	assert.Contains(t, f.queries[0], fmt.Sprintf("(around:%d,", res.Selection.RadiusM))

	// the substation at the centre is ~100 m from the boundary
	require.Len(t, res.Features, 1)
	assert.InEpsilon(t, 100, res.Features[0].DistanceM, 0.01)
}

func TestSearch_InvalidPolygonFallsBackToPoint(t *testing.T) {
	f := &stubFetcher{}
	res, err := newCoordinator(t, f).Search(context.Background(), Request{
		Location: "54.5973,-5.9301",
		RadiusM:  75,
		Mode:     types.ModePolygon,
		Polygon:  []geo.Point{belfast, geo.Offset(belfast, 10, 0)},
	})
	require.NoError(t, err)

	assert.Equal(t, types.ModePoint, res.Selection.Mode)
	assert.Equal(t, 75, res.Selection.RadiusM)
	assert.Nil(t, res.Selection.Polygon)
	assert.Contains(t, f.queries[0], "(around:75,54.597300,-5.930100)")
}

func TestSearch_PolygonWithoutLocation(t *testing.T) {
	square := []geo.Point{
		geo.Offset(belfast, -50, -50),
		geo.Offset(belfast, -50, 50),
		geo.Offset(belfast, 50, 50),
		geo.Offset(belfast, 50, -50),
	}
	res, err := newCoordinator(t, &stubFetcher{}).Search(context.Background(), Request{
		RadiusM: 20,
		Mode:    types.ModePolygon,
		Polygon: square,
	})
	require.NoError(t, err)
	assert.InDelta(t, belfast.Lat, res.Center.Lat, 1e-6)
	assert.InDelta(t, belfast.Lon, res.Center.Lon, 1e-6)

	_, err = newCoordinator(t, &stubFetcher{}).Search(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNoLocation)
}

func TestSearch_ErrorsPropagate(t *testing.T) {
	c := newCoordinator(t, &stubFetcher{})
	_, err := c.Search(context.Background(), Request{Location: "somewhere"})
	assert.ErrorIs(t, err, location.ErrInvalidLocation)

	_, err = c.Search(context.Background(), Request{Location: "///index.home.raft"})
	assert.ErrorIs(t, err, location.ErrMissingCredential)

	down := &overpass.UnavailableError{Attempts: []overpass.Attempt{{Endpoint: "a", Err: errors.New("503")}}}
	sink := &stubSink{name: "archive"}
	c = newCoordinator(t, &stubFetcher{err: down}, sink)
	_, err = c.Search(context.Background(), Request{Location: "54.5973,-5.9301"})
	assert.ErrorIs(t, err, overpass.ErrAllEndpointsUnavailable)
	assert.Nil(t, sink.got, "no artifacts for failed searches")
}

func TestSearch_SinkFailuresBecomeWarnings(t *testing.T) {
	ok := &stubSink{name: "geojson", refs: map[string]string{"geojson": "/tmp/r.geojson"}}
	bad := &stubSink{name: "upload", err: errors.New("bucket unreachable")}

	res, err := newCoordinator(t, &stubFetcher{}, ok, bad).Search(context.Background(), Request{Location: "54.5973,-5.9301"})
	require.NoError(t, err)

	assert.Equal(t, "/tmp/r.geojson", res.Artifacts["geojson"])
	require.Len(t, res.Warnings, 1)
	assert.True(t, strings.HasPrefix(res.Warnings[0], "upload: "))
	assert.Same(t, res, ok.got)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func ptr(f float64) *float64 { return &f }

func TestSearch_PolygonQueryCenteredOnOrigin(t *testing.T) {
	// 200 m square whose centre is 300 m east of the resolved location
	square := []geo.Point{
		geo.Offset(belfast, -100, 200),
		geo.Offset(belfast, -100, 400),
		geo.Offset(belfast, 100, 400),
		geo.Offset(belfast, 100, 200),
	}
	f := &stubFetcher{}
	res, err := newCoordinator(t, f).Search(context.Background(), Request{
		Location: "54.5973,-5.9301",
		RadiusM:  50,
		Mode:     types.ModePolygon,
		Polygon:  square,
	})
	require.NoError(t, err)

	assert.Equal(t, types.ModePolygon, res.Selection.Mode)
	assert.InDelta(t, belfast.Lat, res.Selection.Centroid.Lat, 1e-9)
	assert.InDelta(t, belfast.Lon, res.Selection.Centroid.Lon, 1e-9)
	assert.InDelta(t, 50+413, res.Selection.RadiusM, 1)
	assert.Contains(t, f.queries[0], fmt.Sprintf("(around:%d,54.597300,-5.930100)", res.Selection.RadiusM))
}

func TestSearch_SelfIntersectingPolygonWarns(t *testing.T) {
	bowtie := []geo.Point{
		belfast,
		geo.Offset(belfast, 100, 200),
		geo.Offset(belfast, 0, 200),
		geo.Offset(belfast, 100, 0),
	}
	res, err := newCoordinator(t, &stubFetcher{}).Search(context.Background(), Request{
		Location: "54.5973,-5.9301",
		RadiusM:  20,
		Mode:     types.ModePolygon,
		Polygon:  bowtie,
	})
	require.NoError(t, err)

	assert.Equal(t, types.ModePolygon, res.Selection.Mode)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "polygon")
}
