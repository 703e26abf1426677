package location

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/proximity/internal/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Coordinates(t *testing.T) {
	r := NewResolver(Config{})

	tests := []struct {
		name    string
		input   string
		want    geo.Point
		display string
	}{
		{"comma", "54.5973,-5.9301", geo.Point{Lat: 54.5973, Lon: -5.9301}, "54.597300, -5.930100"},
		{"comma and spaces", "  54.5973 ,  -5.9301 ", geo.Point{Lat: 54.5973, Lon: -5.9301}, "54.597300, -5.930100"},
		{"whitespace", "54.5973 -5.9301", geo.Point{Lat: 54.5973, Lon: -5.9301}, "54.597300, -5.930100"},
		{"no-break space", "54.5973,\u00a0-5.9301", geo.Point{Lat: 54.5973, Lon: -5.9301}, "54.597300, -5.930100"},
		{"zero width", "\u200b54.5973,-5.9301\ufeff", geo.Point{Lat: 54.5973, Lon: -5.9301}, "54.597300, -5.930100"},
		{"integers", "0 0", geo.Point{}, "0.000000, 0.000000"},
		{"plus sign", "+10.5,+20.25", geo.Point{Lat: 10.5, Lon: 20.25}, "10.500000, 20.250000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, display, err := r.Resolve(context.Background(), tt.input)
			require.NoError(t, err)
			assert.InDelta(t, tt.want.Lat, p.Lat, 1e-12)
			assert.InDelta(t, tt.want.Lon, p.Lon, 1e-12)
			assert.Equal(t, tt.display, display)
		})
	}
}

func TestResolve_Invalid(t *testing.T) {
	r := NewResolver(Config{})

	for _, input := range []string{
		"",
		"belfast",
		"91,0",
		"0,181",
		"54.5;-5.9",
		"//one.two.three",
		"///one.two",
	} {
		t.Run(input, func(t *testing.T) {
			_, _, err := r.Resolve(context.Background(), input)
			assert.ErrorIs(t, err, ErrInvalidLocation)
		})
	}
}

func TestResolve_WordCodeWithoutKey(t *testing.T) {
	r := NewResolver(Config{})
	_, _, err := r.Resolve(context.Background(), "///filled.count.soap")
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func geocoder(t *testing.T, calls *atomic.Int32, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/convert-to-coordinates", r.URL.Path)
		assert.Equal(t, "filled.count.soap", r.URL.Query().Get("words"))
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolve_WordCode(t *testing.T) {
	var calls atomic.Int32
	srv := geocoder(t, &calls, http.StatusOK,
		`{"coordinates":{"lat":51.520847,"lng":-0.195521},"nearestPlace":"Bayswater, London","words":"filled.count.soap"}`)

	r := NewResolver(Config{APIKey: "secret", BaseURL: srv.URL})
	p, display, err := r.Resolve(context.Background(), "///Filled.Count.Soap")
	require.NoError(t, err)
	assert.InDelta(t, 51.520847, p.Lat, 1e-9)
	assert.InDelta(t, -0.195521, p.Lon, 1e-9)
	assert.Equal(t, "///filled.count.soap (Bayswater, London)", display)
	assert.Equal(t, int32(1), calls.Load())
}

func TestResolve_WordCodeFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"non-2xx", http.StatusUnauthorized, `{"error":{"code":"InvalidKey","message":"bad key"}}`},
		{"missing coordinates", http.StatusOK, `{"nearestPlace":"Nowhere"}`},
		{"missing lng", http.StatusOK, `{"coordinates":{"lat":51.5}}`},
		{"error body", http.StatusOK, `{"error":{"code":"BadWords","message":"invalid"}}`},
		{"malformed", http.StatusOK, `{"coordinates":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := geocoder(t, &calls, tt.status, tt.body)
			r := NewResolver(Config{APIKey: "secret", BaseURL: srv.URL})

			_, _, err := r.Resolve(context.Background(), "///filled.count.soap")
			assert.ErrorIs(t, err, ErrGeocodeFailure)
		})
	}
}

func TestResolve_WordCodeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	r := NewResolver(Config{APIKey: "secret", BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, _, err := r.Resolve(context.Background(), "///filled.count.soap")
	assert.ErrorIs(t, err, ErrGeocodeFailure)
}

func TestResolve_WordCodeCache(t *testing.T) {
	var calls atomic.Int32
	srv := geocoder(t, &calls, http.StatusOK, `{"coordinates":{"lat":51.5,"lng":-0.1}}`)

	cache := NewMemoryCache()
	r := NewResolver(Config{APIKey: "secret", BaseURL: srv.URL, Cache: cache, CacheTTL: time.Hour})

	for i := 0; i < 3; i++ {
		_, display, err := r.Resolve(context.Background(), "///filled.count.soap")
		require.NoError(t, err)
		assert.Equal(t, "///filled.count.soap", display)
	}
	assert.Equal(t, int32(1), calls.Load())
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (Resolved, bool, error) {
	return Resolved{}, false, errors.New("connection refused")
}

func (brokenCache) Set(context.Context, string, Resolved, time.Duration) error {
	return errors.New("connection refused")
}

func TestResolve_CacheErrorsIgnored(t *testing.T) {
	var calls atomic.Int32
	srv := geocoder(t, &calls, http.StatusOK, `{"coordinates":{"lat":51.5,"lng":-0.1}}`)

	r := NewResolver(Config{APIKey: "secret", BaseURL: srv.URL, Cache: brokenCache{}})
	p, _, err := r.Resolve(context.Background(), "///filled.count.soap")
	require.NoError(t, err)
	assert.InDelta(t, 51.5, p.Lat, 1e-9)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	v := Resolved{Point: geo.Point{Lat: 1, Lon: 2}, Display: "///a.b.c"}
	require.NoError(t, c.Set(context.Background(), "a.b.c", v, time.Minute))

	got, ok, err := c.Get(context.Background(), "a.b.c")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, v, got)

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.Get(context.Background(), "a.b.c")
	assert.False(t, ok)
}

func TestMemoryCache_Bounded(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCacheSize(3)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	v := Resolved{Display: "///a.b.c"}
	require.NoError(t, c.Set(ctx, "short", v, time.Minute))
	require.NoError(t, c.Set(ctx, "long", v, time.Hour))
	require.NoError(t, c.Set(ctx, "forever", v, 0))

	// full: the entry closest to expiry goes
	require.NoError(t, c.Set(ctx, "new", v, 30*time.Minute))
	assert.Equal(t, 3, c.Len())
	_, ok, _ := c.Get(ctx, "short")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "forever")
	assert.True(t, ok)

	// overwriting an existing key never evicts
	require.NoError(t, c.Set(ctx, "new", v, time.Minute))
	assert.Equal(t, 3, c.Len())

	// expired entries are swept in one pass when the cache is full
	now = now.Add(2 * time.Hour)
	require.NoError(t, c.Set(ctx, "late", v, time.Minute))
	assert.Equal(t, 2, c.Len())
	_, ok, _ = c.Get(ctx, "forever")
	assert.True(t, ok)
	_, ok, _ = c.Get(ctx, "late")
	assert.True(t, ok)

	for i := range 10 {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), v, 0))
	}
	assert.Equal(t, 3, c.Len())
}

func TestIsWordCode(t *testing.T) {
	assert.True(t, IsWordCode("///index.home.raft"))
	assert.True(t, IsWordCode(" ///INDEX.home.raft "))
	assert.False(t, IsWordCode("index.home.raft"))
	assert.False(t, IsWordCode("54.1,-5.9"))
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("PROXIMITY_REDIS_ADDR")
	if addr == "" {
		t.Skip("set PROXIMITY_REDIS_ADDR to run against a real Redis")
	}

	c := OpenRedisCache(addr, "", 0)
	defer c.Close()

	ctx := context.Background()
	key := "test." + time.Now().Format("150405.000000000")
	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	v := Resolved{Point: geo.Point{Lat: 3, Lon: 4}, Display: "///" + key}
	require.NoError(t, c.Set(ctx, key, v, time.Minute))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, v, got)
}
