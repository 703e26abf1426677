package overpass

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MeKo-Tech/proximity/internal/metrics"
)

// ErrAllEndpointsUnavailable is matched by the error returned when every mirror failed.
var ErrAllEndpointsUnavailable = errors.New("all overpass endpoints unavailable")

// DefaultEndpoints are public mirrors of the Overpass API in priority order.
var DefaultEndpoints = []string{
	"https://overpass-api.de/api/interpreter",
	"https://lz4.overpass-api.de/api/interpreter",
	"https://z.overpass-api.de/api/interpreter",
	"https://overpass.kumi.systems/api/interpreter",
}

const maxResponseBytes = 64 << 20

// Transport performs one query against one endpoint.
type Transport interface {
	Query(ctx context.Context, endpoint, query string) (*Response, error)
}

// Attempt records the failure of one endpoint.
type Attempt struct {
	Endpoint string
	Err      error
}

// UnavailableError lists every failed attempt. It matches
// ErrAllEndpointsUnavailable and unwraps to the last failure.
type UnavailableError struct {
	Attempts []Attempt
}

func (e *UnavailableError) Error() string {
	if len(e.Attempts) == 0 {
		return ErrAllEndpointsUnavailable.Error()
	}
	last := e.Attempts[len(e.Attempts)-1]
	return fmt.Sprintf("%s after %d attempts (last: %s: %v)",
		ErrAllEndpointsUnavailable, len(e.Attempts), last.Endpoint, last.Err)
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrAllEndpointsUnavailable
}

func (e *UnavailableError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// FetcherConfig configures the mirror failover.
type FetcherConfig struct {
	// Endpoints are tried in order, each exactly once.
	Endpoints []string
	// Timeout bounds a single request (default: 25s)
	Timeout time.Duration
	// Backoff is the fixed pause before trying the next endpoint (default: 1s)
	Backoff time.Duration
	// Transport performs requests (default: HTTPTransport)
	Transport Transport
	Logger    *slog.Logger
}

// DefaultFetcherConfig returns the public mirror list with the standard timings.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Endpoints: append([]string(nil), DefaultEndpoints...),
		Timeout:   25 * time.Second,
		Backoff:   time.Second,
		Transport: &HTTPTransport{},
		Logger:    slog.Default(),
	}
}

// Fetcher executes queries against a prioritized list of equivalent mirrors.
type Fetcher struct {
	cfg FetcherConfig
}

// NewFetcher validates cfg and fills in defaults.
func NewFetcher(cfg FetcherConfig) (*Fetcher, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("at least one overpass endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	if cfg.Transport == nil {
		cfg.Transport = &HTTPTransport{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Endpoints = append([]string(nil), cfg.Endpoints...)
	return &Fetcher{cfg: cfg}, nil
}

// Endpoints returns the configured mirrors in priority order.
func (f *Fetcher) Endpoints() []string {
	return append([]string(nil), f.cfg.Endpoints...)
}

// Fetch runs query against each endpoint in order and returns the first
// successful response. Results are never merged across endpoints. A cancelled
// context aborts the loop with the context's error.
func (f *Fetcher) Fetch(ctx context.Context, query string) (*Response, error) {
	var attempts []Attempt

	for i, endpoint := range f.cfg.Endpoints {
		if i > 0 && f.cfg.Backoff > 0 {
			timer := time.NewTimer(f.cfg.Backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		log := f.cfg.Logger.With("endpoint", endpoint, "attempt", i+1)
		start := time.Now()

		attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
		resp, err := f.cfg.Transport.Query(attemptCtx, endpoint, query)
		cancel()
		elapsed := time.Since(start)
		metrics.FetchDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())

		if err == nil {
			metrics.FetchAttempts.WithLabelValues(endpoint, "ok").Inc()
			log.Info("overpass query succeeded",
				"elements", len(resp.Elements),
				"duration_ms", elapsed.Milliseconds(),
			)
			return resp, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.FetchAttempts.WithLabelValues(endpoint, "cancelled").Inc()
			return nil, ctxErr
		}

		metrics.FetchAttempts.WithLabelValues(endpoint, "error").Inc()
		log.Warn("overpass endpoint failed",
			"error", err,
			"duration_ms", elapsed.Milliseconds(),
		)
		attempts = append(attempts, Attempt{Endpoint: endpoint, Err: err})
	}

	return nil, &UnavailableError{Attempts: attempts}
}

// HTTPTransport posts the query as a form body and decodes the JSON payload.
type HTTPTransport struct {
	Client    *http.Client
	UserAgent string
}

// Query implements Transport.
func (t *HTTPTransport) Query(ctx context.Context, endpoint, query string) (*Response, error) {
	form := url.Values{"data": []string{query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return DecodeResponse(body)
}

// checkResponse requires status 200 and a JSON content type.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode}
	}
	ct := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || !(mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")) {
		return fmt.Errorf("unexpected content type %q", ct)
	}
	return nil
}
