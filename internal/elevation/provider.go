// Package elevation answers terrain height queries for the inverse solver.
// Providers never fail: lookups that cannot be answered fall back to a
// fixed height.
package elevation

import (
	"log/slog"
	"math"

	"github.com/pspoerri/rpcortho/internal/metrics"
)

// DefaultFallbackHeight is used when a source cannot answer a lookup.
const DefaultFallbackHeight = 30.0

// Provider returns the terrain height in metres at a WGS84 position.
type Provider interface {
	Height(lat, lon float64) float64
}

// Source is a height lookup that may fail, such as a DEM.
type Source interface {
	Sample(lat, lon float64) (float64, error)
}

// Constant answers every query with the same height.
type Constant float64

func (c Constant) Height(lat, lon float64) float64 { return float64(c) }

// Sampled asks Source first and answers Fallback when it fails or returns a
// non-finite height.
type Sampled struct {
	Source   Source
	Fallback float64
	Logger   *slog.Logger // nil uses slog.Default()
}

// NewSampled returns a Sampled provider with DefaultFallbackHeight.
func NewSampled(src Source) *Sampled {
	return &Sampled{Source: src, Fallback: DefaultFallbackHeight}
}

func (s *Sampled) Height(lat, lon float64) float64 {
	h, err := s.Source.Sample(lat, lon)
	if err == nil && !math.IsNaN(h) && !math.IsInf(h, 0) {
		return h
	}
	metrics.ElevationFallbacks.Inc()
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("elevation lookup failed, using fallback height",
		"lat", lat, "lon", lon, "fallback", s.Fallback, "error", err)
	return s.Fallback
}
