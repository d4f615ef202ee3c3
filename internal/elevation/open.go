package elevation

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Modes accepted by Options.Mode.
const (
	ModeConstant = "constant"
	ModeDEM      = "dem"
)

// Options selects and configures a Provider.
type Options struct {
	Mode      string   // constant (default) or dem
	Height    float64  // constant mode height
	DEM       string   // dem mode raster path
	DEMEPSG   int      // CRS for a DEM without GeoKeys
	Fallback  *float64 // dem mode fallback height; nil means DefaultFallbackHeight
	CacheSize int      // LRU entries in dem mode; 0 disables the cache
	Logger    *slog.Logger
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the Provider described by opts. The returned Closer releases
// the DEM, if any.
func Open(opts Options) (Provider, io.Closer, error) {
	switch strings.ToLower(opts.Mode) {
	case "", ModeConstant:
		return Constant(opts.Height), nopCloser{}, nil
	case ModeDEM:
		if opts.DEM == "" {
			return nil, nil, fmt.Errorf("elevation mode %q needs a DEM path", ModeDEM)
		}
		dem, err := OpenDEM(opts.DEM, DEMOptions{EPSG: opts.DEMEPSG})
		if err != nil {
			return nil, nil, err
		}
		fallback := DefaultFallbackHeight
		if opts.Fallback != nil {
			fallback = *opts.Fallback
		}
		var p Provider = &Sampled{Source: dem, Fallback: fallback, Logger: opts.Logger}
		if opts.CacheSize > 0 {
			cached, err := NewCached(p, opts.CacheSize)
			if err != nil {
				dem.Close()
				return nil, nil, err
			}
			p = cached
		}
		return p, dem, nil
	default:
		return nil, nil, fmt.Errorf("unknown elevation mode %q (want %s or %s)", opts.Mode, ModeConstant, ModeDEM)
	}
}
