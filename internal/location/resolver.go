// Package location resolves free-form location text into a coordinate. Two
// forms are understood: a latitude/longitude pair and a three-word address
// code ("///word.word.word") looked up through an external geocoding service.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/proximity/internal/geo"
	"github.com/MeKo-Tech/proximity/internal/metrics"
)

var (
	// ErrInvalidLocation is returned for text that is neither a coordinate pair
	// nor a word code, or for coordinates outside the WGS84 ranges.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrMissingCredential is returned when a word code is given but no API key is configured.
	ErrMissingCredential = errors.New("word-code lookup requires an API key")

	// ErrGeocodeFailure is returned when the geocoder cannot be reached or returns no coordinates.
	ErrGeocodeFailure = errors.New("geocode failure")
)

const (
	// DefaultBaseURL is the word-code geocoding API.
	DefaultBaseURL = "https://api.what3words.com/v3"

	// DefaultTimeout bounds one geocoding request.
	DefaultTimeout = 10 * time.Second

	wordCodePrefix = "///"
)

var (
	coordPattern = regexp.MustCompile(`^([-+]?\d+(?:\.\d+)?)\s*[,\s]\s*([-+]?\d+(?:\.\d+)?)$`)
	wordPattern  = regexp.MustCompile(`^///([\p{L}\p{M}]+)\.([\p{L}\p{M}]+)\.([\p{L}\p{M}]+)$`)

	// stray characters pasted from maps and chat apps
	invisibles = strings.NewReplacer(
		"\u00a0", " ", // no-break space
		"\u202f", " ", // narrow no-break space
		"\u200b", "", // zero width space
		"\u200c", "",
		"\u200d", "",
		"\u2060", "",
		"\ufeff", "",
	)
)

// Config configures a Resolver.
type Config struct {
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	Client   *http.Client
	Cache    Cache
	CacheTTL time.Duration
	Logger   *slog.Logger
}

// Resolver turns location text into a point and a display string.
type Resolver struct {
	apiKey   string
	baseURL  string
	client   *http.Client
	cache    Cache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewResolver creates a resolver. A zero Config resolves coordinate pairs only.
func NewResolver(cfg Config) *Resolver {
	r := &Resolver{
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		client:   cfg.Client,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		logger:   cfg.Logger,
	}
	if r.baseURL == "" {
		r.baseURL = DefaultBaseURL
	}
	if r.client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		r.client = &http.Client{Timeout: timeout}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.cacheTTL <= 0 {
		r.cacheTTL = 24 * time.Hour
	}
	return r
}

// Resolve parses raw and returns the point with its display string.
func (r *Resolver) Resolve(ctx context.Context, raw string) (geo.Point, string, error) {
	text := strings.TrimSpace(invisibles.Replace(raw))

	if p, ok := ParseCoordinates(text); ok {
		if !p.Valid() {
			return geo.Point{}, "", fmt.Errorf("%w: %q is out of range", ErrInvalidLocation, raw)
		}
		return p, p.String(), nil
	}

	if m := wordPattern.FindStringSubmatch(text); m != nil {
		words := strings.ToLower(strings.Join(m[1:], "."))
		return r.resolveWords(ctx, words)
	}

	return geo.Point{}, "", fmt.Errorf("%w: %q", ErrInvalidLocation, raw)
}

// ParseCoordinates parses "lat,lon" or "lat lon". The range is not checked.
func ParseCoordinates(text string) (geo.Point, bool) {
	m := coordPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return geo.Point{}, false
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return geo.Point{}, false
	}
	lon, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: lat, Lon: lon}, true
}

// IsWordCode reports whether text has the word-code form.
func IsWordCode(text string) bool {
	return wordPattern.MatchString(strings.TrimSpace(invisibles.Replace(text)))
}

type wordResponse struct {
	Coordinates *struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	} `json:"coordinates"`
	NearestPlace string `json:"nearestPlace"`
	Error        *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Resolved is a geocoded word code as stored in the cache.
type Resolved struct {
	Point   geo.Point `json:"point"`
	Display string    `json:"display"`
}

func (r *Resolver) resolveWords(ctx context.Context, words string) (geo.Point, string, error) {
	if r.apiKey == "" {
		return geo.Point{}, "", ErrMissingCredential
	}

	if r.cache != nil {
		hit, ok, err := r.cache.Get(ctx, words)
		switch {
		case err != nil:
			r.logger.Warn("Word-code cache read failed", "words", words, "error", err)
		case ok:
			metrics.GeocodeRequests.WithLabelValues("cached").Inc()
			return hit.Point, hit.Display, nil
		}
	}

	res, err := r.lookup(ctx, words)
	if err != nil {
		metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return geo.Point{}, "", err
	}
	metrics.GeocodeRequests.WithLabelValues("ok").Inc()

	if r.cache != nil {
		if err := r.cache.Set(ctx, words, res, r.cacheTTL); err != nil {
			r.logger.Warn("Word-code cache write failed", "words", words, "error", err)
		}
	}
	return res.Point, res.Display, nil
}

func (r *Resolver) lookup(ctx context.Context, words string) (Resolved, error) {
	q := url.Values{}
	q.Set("words", words)
	q.Set("key", r.apiKey)
	u := r.baseURL + "/convert-to-coordinates?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Resolved{}, fmt.Errorf("%w: %v", ErrGeocodeFailure, err)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return Resolved{}, fmt.Errorf("%w: %v", ErrGeocodeFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Resolved{}, fmt.Errorf("%w: status %d", ErrGeocodeFailure, resp.StatusCode)
	}

	var body wordResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return Resolved{}, fmt.Errorf("%w: decode response: %v", ErrGeocodeFailure, err)
	}
	if body.Error != nil {
		return Resolved{}, fmt.Errorf("%w: %s: %s", ErrGeocodeFailure, body.Error.Code, body.Error.Message)
	}
	if body.Coordinates == nil || body.Coordinates.Lat == nil || body.Coordinates.Lng == nil {
		return Resolved{}, fmt.Errorf("%w: response has no coordinates", ErrGeocodeFailure)
	}

	p := geo.Point{Lat: *body.Coordinates.Lat, Lon: *body.Coordinates.Lng}
	if !p.Valid() {
		return Resolved{}, fmt.Errorf("%w: coordinates out of range", ErrGeocodeFailure)
	}

	display := wordCodePrefix + words
	if body.NearestPlace != "" {
		display += " (" + body.NearestPlace + ")"
	}

	r.logger.Debug("Resolved word code",
		"words", words,
		"lat", p.Lat,
		"lon", p.Lon,
		"duration", time.Since(start))

	return Resolved{Point: p, Display: display}, nil
}
