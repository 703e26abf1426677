// Package metrics holds the Prometheus collectors of the proximity search.
// A batch run can dump them to a node-exporter textfile.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the registry all proximity collectors are registered with.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	FetchAttempts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proximity",
		Subsystem: "overpass",
		Name:      "fetch_attempts_total",
		Help:      "Overpass requests by mirror endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	FetchDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "proximity",
		Subsystem: "overpass",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of single Overpass requests",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 25},
	}, []string{"endpoint"})

	GeocodeRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proximity",
		Subsystem: "geocode",
		Name:      "requests_total",
		Help:      "Word-code geocoding lookups by result",
	}, []string{"result"})

	Searches = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proximity",
		Subsystem: "search",
		Name:      "total",
		Help:      "Completed searches by outcome (LOW, MEDIUM, HIGH or error)",
	}, []string{"outcome"})

	SearchDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "proximity",
		Subsystem: "search",
		Name:      "duration_seconds",
		Help:      "End-to-end search latency",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	FeaturesMeasured = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proximity",
		Subsystem: "distance",
		Name:      "features_total",
		Help:      "Features measured by the distance engine, by method",
	}, []string{"method"})
)

// WriteTextfile writes the current state of Registry in the text exposition format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
