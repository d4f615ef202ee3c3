package ortho

import (
	"errors"
	"fmt"
	"math"

	"github.com/pspoerri/rpcortho/internal/raster"
)

// Affine is a north-up geotransform in GDAL order:
//
//	x = A[0] + col*A[1] + row*A[2]
//	y = A[3] + col*A[4] + row*A[5]
type Affine [6]float64

// Apply maps a pixel position to CRS coordinates.
func (a Affine) Apply(col, row float64) (x, y float64) {
	return a[0] + col*a[1] + row*a[2], a[3] + col*a[4] + row*a[5]
}

// GeoInfo converts a to the raster package's corner-based georeference.
func (a Affine) GeoInfo(epsg int) raster.GeoInfo {
	return raster.GeoInfo{
		EPSG:       epsg,
		OriginX:    a[0],
		OriginY:    a[3],
		PixelSizeX: a[1],
		PixelSizeY: -a[5],
	}
}

func (a Affine) String() string {
	return fmt.Sprintf("(%.6f, %.9g, %g, %.6f, %g, %.9g)", a[0], a[1], a[2], a[3], a[4], a[5])
}

var errEmptyGrid = errors.New("geolocation grid is empty")

// Bounds returns the extent of the reprojected nodes.
func (g *Grid) Bounds() (xmin, ymin, xmax, ymax float64, err error) {
	if g == nil || g.Len() == 0 {
		return 0, 0, 0, 0, errEmptyGrid
	}
	if g.EPSG == 0 {
		return 0, 0, 0, 0, errors.New("geolocation grid has not been reprojected")
	}
	xmin, ymin = math.Inf(1), math.Inf(1)
	xmax, ymax = math.Inf(-1), math.Inf(-1)
	for _, row := range g.Nodes {
		for _, n := range row {
			if math.IsNaN(n.X) || math.IsNaN(n.Y) || math.IsInf(n.X, 0) || math.IsInf(n.Y, 0) {
				return 0, 0, 0, 0, fmt.Errorf("node at line %g sample %g has non-finite coordinates (%g, %g)",
					n.Line, n.Sample, n.X, n.Y)
			}
			xmin, xmax = math.Min(xmin, n.X), math.Max(xmax, n.X)
			ymin, ymax = math.Min(ymin, n.Y), math.Max(ymax, n.Y)
		}
	}
	return xmin, ymin, xmax, ymax, nil
}

// EstimateFootprintAffine fits an axis-aligned geotransform to the grid's
// bounding box so that width x height pixels span it exactly. Pixels are
// not resampled; the transform only approximates the sensor geometry.
func EstimateFootprintAffine(g *Grid, width, height int) (Affine, error) {
	if width <= 0 || height <= 0 {
		return Affine{}, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	xmin, ymin, xmax, ymax, err := g.Bounds()
	if err != nil {
		return Affine{}, err
	}
	if !(xmax > xmin && ymax > ymin) {
		return Affine{}, fmt.Errorf("geolocation grid footprint has no area: x [%g, %g], y [%g, %g]",
			xmin, xmax, ymin, ymax)
	}
	pixelW := (xmax - xmin) / float64(width)
	pixelH := (ymax - ymin) / float64(height)
	return Affine{xmin, pixelW, 0, ymax, 0, -pixelH}, nil
}
