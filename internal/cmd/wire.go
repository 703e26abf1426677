package cmd

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MeKo-Tech/proximity/internal/archive"
	"github.com/MeKo-Tech/proximity/internal/config"
	"github.com/MeKo-Tech/proximity/internal/distance"
	"github.com/MeKo-Tech/proximity/internal/geojson"
	"github.com/MeKo-Tech/proximity/internal/location"
	"github.com/MeKo-Tech/proximity/internal/metrics"
	"github.com/MeKo-Tech/proximity/internal/overpass"
	"github.com/MeKo-Tech/proximity/internal/search"
	"github.com/MeKo-Tech/proximity/internal/staticmap"
)

// app holds the wired collaborators of one CLI invocation.
type app struct {
	coordinator *search.Coordinator
	closers     []func() error
}

// Close releases databases and connections and dumps metrics if configured.
func (a *app) Close(cfg *config.Config) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		} else {
			logger.Debug("Metrics written", "path", cfg.MetricsFile)
		}
	}
	return errors.Join(errs...)
}

func newTransport(cfg *config.Config) overpass.Transport {
	if cfg.Overpass.Transport == config.TransportLibrary {
		return &overpass.LibraryTransport{}
	}
	return &overpass.HTTPTransport{
		Client:    &http.Client{},
		UserAgent: cfg.Overpass.UserAgent,
	}
}

func newResolver(cfg *config.Config) (*location.Resolver, func() error) {
	var cache location.Cache = location.NewMemoryCache()
	closer := func() error { return nil }

	if cfg.Redis.Addr != "" {
		rc := location.OpenRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cache = rc
		closer = rc.Close
		logger.Debug("Using redis geocode cache", "addr", cfg.Redis.Addr)
	}

	return location.NewResolver(location.Config{
		APIKey:   cfg.Geocode.APIKey,
		BaseURL:  cfg.Geocode.BaseURL,
		Timeout:  cfg.Geocode.Timeout,
		Cache:    cache,
		CacheTTL: cfg.Geocode.CacheTTL,
		Logger:   logger.With("component", "location"),
	}), closer
}

// newApp builds the coordinator and its artifact sinks from cfg.
func newApp(cfg *config.Config) (*app, error) {
	a := &app{}

	fetcher, err := overpass.NewFetcher(overpass.FetcherConfig{
		Endpoints: cfg.Overpass.Endpoints,
		Timeout:   cfg.Overpass.Timeout,
		Backoff:   cfg.Overpass.Backoff,
		Transport: newTransport(cfg),
		Logger:    logger.With("component", "overpass"),
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("Overpass mirrors", "endpoints", fetcher.Endpoints(), "transport", cfg.Overpass.Transport)
	var queries search.Fetcher = fetcher
	if cfg.Overpass.MaxConcurrent > 0 {
		queue := overpass.NewQueue(fetcher, overpass.QueueConfig{
			Workers: cfg.Overpass.MaxConcurrent,
			Logger:  logger.With("component", "overpass-queue"),
		})
		queue.Start()
		a.closers = append(a.closers, func() error {
			queue.Stop()
			logger.Debug("Overpass queue stopped", "status", queue.Status())
			return nil
		})
		queries = queue
	}

	resolver, closeResolver := newResolver(cfg)
	a.closers = append(a.closers, closeResolver)

	var sinks []search.ArtifactSink
	if cfg.Output.GeoJSONDir != "" {
		sinks = append(sinks, &geojson.Sink{Dir: cfg.Output.GeoJSONDir})
	}
	if cfg.Output.MapDir != "" {
		sinks = append(sinks, &staticmap.Sink{
			Dir: cfg.Output.MapDir,
			Renderer: staticmap.NewRenderer(staticmap.Options{
				Width:   cfg.Output.MapWidth,
				Height:  cfg.Output.MapHeight,
				Padding: staticmap.DefaultOptions().Padding,
			}),
		})
	}
	if cfg.Archive.Path != "" {
		w, err := archive.New(cfg.Archive.Path, archive.Metadata{
			Name:        "proximity",
			Description: "Proximity search archive",
		})
		if err != nil {
			_ = a.Close(&config.Config{})
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
		w.SetBatchSize(cfg.Archive.BatchSize)
		sinks = append(sinks, w)
		a.closers = append(a.closers, w.Close)
	}

	a.coordinator, err = search.New(search.Config{
		Resolver: resolver,
		Fetcher:  queries,
		Annotator: distance.New(distance.Config{
			Workers: cfg.Search.DistanceWorkers,
			Logger:  logger.With("component", "distance"),
		}),
		Sinks:  sinks,
		Logger: logger.With("component", "search"),
	})
	if err != nil {
		_ = a.Close(&config.Config{})
		return nil, err
	}
	return a, nil
}
