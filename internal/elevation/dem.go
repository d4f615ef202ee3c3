package elevation

import (
	"errors"
	"fmt"
	"math"

	"github.com/pspoerri/rpcortho/internal/coord"
	"github.com/pspoerri/rpcortho/internal/raster"
)

var (
	ErrNoData        = errors.New("elevation: no data at position")
	ErrOutOfCoverage = errors.New("elevation: position outside DEM coverage")
)

// DEMOptions tunes OpenDEM.
type DEMOptions struct {
	// EPSG overrides the DEM's CRS when the file does not declare one.
	EPSG int
	// CacheChunks bounds the number of decoded chunks kept in memory.
	CacheChunks int64
}

// DEM samples band 0 of a georeferenced raster with bilinear
// interpolation between pixel centres.
type DEM struct {
	r         *raster.Reader
	chunks    *raster.ChunkCache
	proj      coord.Projection
	geo       raster.GeoInfo
	nodata    float64
	hasNoData bool
}

// OpenDEM opens a DEM GeoTIFF.
func OpenDEM(path string, opts DEMOptions) (*DEM, error) {
	r, err := raster.Open(path)
	if err != nil {
		return nil, err
	}
	geo := r.GeoInfo()
	if !geo.Valid() {
		r.Close()
		return nil, fmt.Errorf("DEM %s is not georeferenced", path)
	}
	epsg := geo.EPSG
	if epsg == 0 {
		epsg = opts.EPSG
	}
	proj := coord.ForEPSG(epsg)
	if proj == nil {
		r.Close()
		return nil, fmt.Errorf("DEM %s: unsupported CRS EPSG:%d", path, epsg)
	}
	d := &DEM{
		r:      r,
		chunks: raster.NewChunkCache(r, opts.CacheChunks, "dem"),
		proj:   proj,
		geo:    geo,
	}
	d.nodata, d.hasNoData = r.NoData()
	return d, nil
}

// Close releases the chunk cache and the file mapping.
func (d *DEM) Close() error {
	d.chunks.Close()
	return d.r.Close()
}

// EPSG returns the DEM's CRS.
func (d *DEM) EPSG() int { return d.proj.EPSG() }

// Sample returns the interpolated height at (lat, lon).
func (d *DEM) Sample(lat, lon float64) (float64, error) {
	x, y := d.proj.FromWGS84(lon, lat)
	px, py := d.geo.CRSToPixel(x, y)
	w, h := float64(d.r.Width()), float64(d.r.Height())
	if !(px >= 0 && py >= 0 && px <= w && py <= h) {
		return 0, ErrOutOfCoverage
	}

	// Pixel centres sit at half-integer positions.
	fx := clamp(px-0.5, 0, w-1)
	fy := clamp(py-0.5, 0, h-1)
	x0, y0 := int(fx), int(fy)
	x1, y1 := min(x0+1, d.r.Width()-1), min(y0+1, d.r.Height()-1)
	tx, ty := fx-float64(x0), fy-float64(y0)

	corners := [4]struct {
		x, y int
		w    float64
	}{
		{x0, y0, (1 - tx) * (1 - ty)},
		{x1, y0, tx * (1 - ty)},
		{x0, y1, (1 - tx) * ty},
		{x1, y1, tx * ty},
	}
	var sum float64
	for _, c := range corners {
		if c.w == 0 {
			continue
		}
		v, err := d.chunks.Sample(c.x, c.y, 0)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(v) || (d.hasNoData && v == d.nodata) {
			return 0, ErrNoData
		}
		sum += c.w * v
	}
	return sum, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
