package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every rpcortho metric. It is separate from the default
// registry so a batch run exports only its own series.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// Inverse solver
	Inversions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rpcortho",
		Subsystem: "solver",
		Name:      "inversions_total",
		Help:      "Total image-to-ground inversions by method and outcome",
	}, []string{"method", "outcome"})

	SolverIterations = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rpcortho",
		Subsystem: "solver",
		Name:      "iterations",
		Help:      "Iterations spent per inversion",
		Buckets:   prometheus.LinearBuckets(1, 1, 10),
	}, []string{"method"})

	// Elevation
	ElevationFallbacks = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "rpcortho",
		Subsystem: "elevation",
		Name:      "fallbacks_total",
		Help:      "Height lookups answered with the fallback height",
	})

	CacheHits = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rpcortho",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"cache"})

	CacheMisses = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rpcortho",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"cache"})

	// Pipeline
	GridNodes = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "rpcortho",
		Subsystem: "grid",
		Name:      "nodes",
		Help:      "Nodes in the most recent geolocation grid",
	})

	StageDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rpcortho",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Wall time per pipeline stage",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"stage"})
)

// Outcome labels for Inversions.
const (
	OutcomeConverged    = "converged"
	OutcomeNotConverged = "not_converged"
	OutcomeDegenerate   = "degenerate"
)

// WriteTextfile writes the registry in the text exposition format, for the
// node-exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
