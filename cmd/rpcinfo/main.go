package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pspoerri/rpcortho/internal/ortho"
	"github.com/pspoerri/rpcortho/internal/raster"
	"github.com/pspoerri/rpcortho/internal/rpc"
)

func main() {
	rpcFile := flag.String("rpc", "", "RPC file to use instead of the sidecar or RPC tag")
	groundHeight := flag.Float64("height", math.NaN(), "Ground height in metres (default: HEIGHT_OFFSET)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rpcinfo [flags] <scene.tif | model.RPB | model.XML>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	path := flag.Arg(0)

	var (
		model         *rpc.Model
		source        string
		width, height int
		err           error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".rpb", ".xml":
		model, err = rpc.ReadModelFile(path)
		source = path
	default:
		model, source, width, height, err = inspectRaster(path, *rpcFile)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	c := model.Coefficients()
	fmt.Printf("\nModel: %s\n", source)
	fmt.Printf("  Line:   offset %.3f, scale %.3f\n", c.LineOffset, c.LineScale)
	fmt.Printf("  Sample: offset %.3f, scale %.3f\n", c.SampOffset, c.SampScale)
	fmt.Printf("  Lat:    offset %.6f, scale %.6f\n", c.LatOffset, c.LatScale)
	fmt.Printf("  Lon:    offset %.6f, scale %.6f\n", c.LonOffset, c.LonScale)
	fmt.Printf("  Height: offset %.1f, scale %.1f\n", c.HeightOffset, c.HeightScale)
	if c.ErrBias != 0 || c.ErrRand != 0 {
		fmt.Printf("  Error:  bias %.2f m, random %.2f m\n", c.ErrBias, c.ErrRand)
	}

	h := *groundHeight
	if math.IsNaN(h) {
		h = c.HeightOffset
	}
	ground := func(float64, float64) float64 { return h }

	// Without a raster the model's normalisation box stands in for the image.
	var lines, samples [2]float64
	if width > 0 && height > 0 {
		lines = [2]float64{0, float64(height)}
		samples = [2]float64{0, float64(width)}
	} else {
		lines = [2]float64{math.Max(0, c.LineOffset-c.LineScale), c.LineOffset + c.LineScale}
		samples = [2]float64{math.Max(0, c.SampOffset-c.SampScale), c.SampOffset + c.SampScale}
	}

	solver := rpc.NewSolver(model)
	fmt.Printf("\nGround positions at h=%.1f m:\n", h)
	points := []struct {
		name         string
		line, sample float64
	}{
		{"upper left", lines[0], samples[0]},
		{"upper right", lines[0], samples[1]},
		{"lower right", lines[1], samples[1]},
		{"lower left", lines[1], samples[0]},
		{"centre", (lines[0] + lines[1]) / 2, (samples[0] + samples[1]) / 2},
	}
	for _, p := range points {
		r := solver.Solve(p.line, p.sample, ground)
		status := "ok"
		switch {
		case r.Degenerate:
			status = "DEGENERATE"
		case !r.Converged:
			status = "NOT CONVERGED"
		}
		fmt.Printf("  %-12s (%9.2f, %9.2f) -> lat %11.7f, lon %12.7f  %d iter, residual %.2e px  %s\n",
			p.name+":", p.line, p.sample, r.Lat, r.Lon, r.Iterations,
			math.Hypot(r.ResidualLine, r.ResidualSample), status)
	}
}

// inspectRaster prints how the scene is stored and loads its model.
func inspectRaster(path, rpcFile string) (*rpc.Model, string, int, int, error) {
	r, err := raster.Open(path)
	if err != nil {
		return nil, "", 0, 0, err
	}
	defer r.Close()

	fmt.Printf("File: %s\n", path)
	fmt.Printf("Size: %d x %d, %d band(s), %s\n", r.Width(), r.Height(), r.Bands(), r.DataType())
	layout := "strips"
	if r.Tiled() {
		layout = "tiles"
	}
	cw, ch := r.ChunkSize()
	fmt.Printf("Layout: %s %dx%d, compression %d\n", layout, cw, ch, r.Compression())
	if nd := r.NoDataString(); nd != "" {
		fmt.Printf("NoData: %s\n", nd)
	}
	if geo := r.GeoInfo(); geo.Valid() {
		fmt.Printf("EPSG: %d\n", geo.EPSG)
		fmt.Printf("Origin: X=%f, Y=%f\n", geo.OriginX, geo.OriginY)
		fmt.Printf("Pixel size: %f x %f\n", geo.PixelSizeX, geo.PixelSizeY)
	} else {
		fmt.Printf("Georeferencing: none\n")
	}

	m, source, err := ortho.LoadModel(r, rpcFile)
	if err != nil {
		return nil, "", 0, 0, err
	}
	return m, source, r.Width(), r.Height(), nil
}
