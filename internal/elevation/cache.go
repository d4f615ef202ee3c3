package elevation

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/pspoerri/rpcortho/internal/metrics"
)

const cacheLabel = "elevation"

type latLon struct {
	lat, lon float64
}

// Cached memoizes heights per exact (lat, lon).
type Cached struct {
	p     Provider
	cache *lru.Cache
}

// NewCached wraps p with an LRU of at most size entries.
func NewCached(p Provider, size int) (*Cached, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating elevation cache: %w", err)
	}
	return &Cached{p: p, cache: cache}, nil
}

func (c *Cached) Height(lat, lon float64) float64 {
	key := latLon{lat, lon}
	if v, ok := c.cache.Get(key); ok {
		metrics.CacheHits.WithLabelValues(cacheLabel).Inc()
		return v.(float64)
	}
	metrics.CacheMisses.WithLabelValues(cacheLabel).Inc()
	h := c.p.Height(lat, lon)
	c.cache.Add(key, h)
	return h
}

// Len returns the number of cached heights.
func (c *Cached) Len() int { return c.cache.Len() }
