package preview

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pspoerri/rpcortho/internal/raster"
)

// DefaultMaxSize bounds the longer preview side when Options.MaxSize is 0.
const DefaultMaxSize = 1024

// Options controls preview output.
type Options struct {
	Format  string // png, jpeg or webp
	Quality int    // jpeg and webp quality, 1-100
	MaxSize int    // longest side in pixels
}

// Render downsamples r by nearest neighbour so its longer side is at most
// maxSize and stretches each band linearly between its minimum and maximum.
// Rasters with three or more bands render bands 0-2 as RGB, others render
// band 0 as gray. Nodata and NaN samples become black (transparent in RGB).
func Render(r *raster.Raster, maxSize int) image.Image {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	step := max(1, (max(r.Width, r.Height)+maxSize-1)/maxSize)
	w, h := (r.Width+step-1)/step, (r.Height+step-1)/step

	nodata, hasNoData := parseNoData(r.NoData)
	valid := func(v float64) bool {
		return !math.IsNaN(v) && !(hasNoData && v == nodata)
	}

	bands := 1
	if r.Bands >= 3 {
		bands = 3
	}
	var lo, hi [3]float64
	for b := 0; b < bands; b++ {
		lo[b], hi[b] = math.Inf(1), math.Inf(-1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := r.At(x*step, y*step, b)
				if valid(v) {
					lo[b], hi[b] = math.Min(lo[b], v), math.Max(hi[b], v)
				}
			}
		}
	}
	stretch := func(v float64, b int) uint8 {
		if hi[b] <= lo[b] {
			return 0
		}
		return uint8(math.Round((v - lo[b]) / (hi[b] - lo[b]) * 255))
	}

	if bands == 1 {
		img := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if v := r.At(x*step, y*step, 0); valid(v) {
					img.SetGray(x, y, color.Gray{Y: stretch(v, 0)})
				}
			}
		}
		return img
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var c [3]uint8
			ok := true
			for b := 0; b < 3; b++ {
				v := r.At(x*step, y*step, b)
				if !valid(v) {
					ok = false
					break
				}
				c[b] = stretch(v, b)
			}
			if ok {
				img.SetRGBA(x, y, color.RGBA{R: c[0], G: c[1], B: c[2], A: 255})
			}
		}
	}
	return img
}

func parseNoData(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v, err == nil
}

// Path returns the preview path next to output, e.g. scene.preview.png.
func Path(output string, enc Encoder) string {
	base := output
	if i := strings.LastIndexByte(base, '.'); i > strings.LastIndexByte(base, os.PathSeparator) {
		base = base[:i]
	}
	return base + ".preview" + enc.FileExtension()
}

// Write renders r and writes it to path.
func Write(path string, r *raster.Raster, opts Options) error {
	enc, err := NewEncoder(opts.Format, opts.Quality)
	if err != nil {
		return err
	}
	data, err := enc.Encode(Render(r, opts.MaxSize))
	if err != nil {
		return fmt.Errorf("encoding %s preview: %w", enc.Format(), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing preview %s: %w", path, err)
	}
	return nil
}
