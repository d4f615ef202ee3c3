package coord

import (
	"fmt"
	"math"
)

// Reprojector converts batches of WGS84 coordinates into a target CRS.
type Reprojector struct {
	proj Projection
}

// NewReprojector returns a Reprojector targeting the given EPSG code.
func NewReprojector(epsg int) (*Reprojector, error) {
	p := ForEPSG(epsg)
	if p == nil {
		return nil, fmt.Errorf("unsupported target CRS EPSG:%d", epsg)
	}
	return &Reprojector{proj: p}, nil
}

// EPSG returns the target CRS code.
func (r *Reprojector) EPSG() int { return r.proj.EPSG() }

// Forward converts row-major 2-D arrays of longitudes and latitudes
// (degrees, lon first as in GIS axis order) into target CRS x/y arrays of the
// same shape.
func (r *Reprojector) Forward(lons, lats [][]float64) (xs, ys [][]float64, err error) {
	if len(lons) != len(lats) {
		return nil, nil, fmt.Errorf("reproject: %d lon rows vs %d lat rows", len(lons), len(lats))
	}
	xs = make([][]float64, len(lons))
	ys = make([][]float64, len(lons))
	for i := range lons {
		if len(lons[i]) != len(lats[i]) {
			return nil, nil, fmt.Errorf("reproject: row %d has %d lons vs %d lats", i, len(lons[i]), len(lats[i]))
		}
		xs[i] = make([]float64, len(lons[i]))
		ys[i] = make([]float64, len(lons[i]))
		for j := range lons[i] {
			x, y := r.proj.FromWGS84(lons[i][j], lats[i][j])
			if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
				return nil, nil, fmt.Errorf("reproject: (%g, %g) has no finite EPSG:%d coordinate",
					lons[i][j], lats[i][j], r.proj.EPSG())
			}
			xs[i][j], ys[i][j] = x, y
		}
	}
	return xs, ys, nil
}

// Point converts one WGS84 coordinate.
func (r *Reprojector) Point(lon, lat float64) (x, y float64) {
	return r.proj.FromWGS84(lon, lat)
}
