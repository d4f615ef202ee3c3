package raster

import (
	"fmt"
	"strconv"
	"time"

	"github.com/karlseguin/ccache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/pspoerri/rpcortho/internal/metrics"
)

const chunkTTL = 10 * time.Minute

// ChunkCache decodes chunks of a Reader at most once while they stay
// cached. Concurrent misses on the same chunk share a single decode.
type ChunkCache struct {
	r        *Reader
	cache    *ccache.Cache[[]byte]
	inflight singleflight.Group
	label    string
}

// NewChunkCache caches up to maxChunks decoded chunks of r. label names the
// cache in metrics.
func NewChunkCache(r *Reader, maxChunks int64, label string) *ChunkCache {
	if maxChunks <= 0 {
		maxChunks = 256
	}
	return &ChunkCache{
		r:     r,
		cache: ccache.New(ccache.Configure[[]byte]().MaxSize(maxChunks)),
		label: label,
	}
}

// Reader returns the underlying reader.
func (c *ChunkCache) Reader() *Reader { return c.r }

// Chunk returns decoded chunk idx, from cache when possible.
func (c *ChunkCache) Chunk(idx int) ([]byte, error) {
	key := strconv.Itoa(idx)
	if item := c.cache.Get(key); item != nil && !item.Expired() {
		metrics.CacheHits.WithLabelValues(c.label).Inc()
		return item.Value(), nil
	}
	metrics.CacheMisses.WithLabelValues(c.label).Inc()

	v, err, _ := c.inflight.Do(key, func() (any, error) {
		data, err := c.r.ReadChunk(idx)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, data, chunkTTL)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Sample returns the sample at pixel (x, y) of band.
func (c *ChunkCache) Sample(x, y, band int) (float64, error) {
	r := c.r
	if x < 0 || y < 0 || x >= r.Width() || y >= r.Height() || band < 0 || band >= r.Bands() {
		return 0, fmt.Errorf("pixel (%d, %d) band %d outside %dx%dx%d", x, y, band, r.Width(), r.Height(), r.Bands())
	}
	idx, lx, ly := r.ChunkIndex(x, y)
	chunk, err := c.Chunk(idx)
	if err != nil {
		return 0, err
	}
	return r.sampleInChunk(chunk, lx, ly, band), nil
}

// Close stops the cache's background worker. The reader stays open.
func (c *ChunkCache) Close() {
	c.cache.Stop()
}
