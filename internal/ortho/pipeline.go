package ortho

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pspoerri/rpcortho/internal/coord"
	"github.com/pspoerri/rpcortho/internal/elevation"
	"github.com/pspoerri/rpcortho/internal/metrics"
	"github.com/pspoerri/rpcortho/internal/preview"
	"github.com/pspoerri/rpcortho/internal/raster"
	"github.com/pspoerri/rpcortho/internal/rpc"
)

// RasterSink stores the untouched input pixels under an estimated
// georeference.
type RasterSink interface {
	WriteRaster(path string, img *raster.Raster, geo raster.GeoInfo) error
}

// GeoTIFFSink writes a GeoTIFF and, optionally, a world file next to it.
type GeoTIFFSink struct {
	Options   raster.WriteOptions
	WorldFile bool
}

func (s GeoTIFFSink) WriteRaster(path string, img *raster.Raster, geo raster.GeoInfo) error {
	if err := raster.WriteGeoTIFF(path, img, geo, s.Options); err != nil {
		return err
	}
	if s.WorldFile {
		return raster.WriteTFW(raster.WorldFilePath(path), geo)
	}
	return nil
}

// Options configures Run.
type Options struct {
	Input  string // scene raster
	RPC    string // RPB or DG XML; empty looks for a sidecar, then the RPC tag
	Output string // GeoTIFF path

	TargetEPSG  int // 0 picks the UTM zone of the scene centre
	Spacing     int
	Concurrency int
	Progress    bool

	Method        rpc.Method
	MaxIterations int
	Tolerance     float64
	Gain          float64

	Elevation elevation.Options

	Sink        RasterSink // nil writes a GeoTIFF with Compression
	Compression string
	WorldFile   bool
	KeepRPC     bool   // copy the model into the output's RPC tag
	Footprint   string // GeoJSON path; empty disables

	Preview     preview.Options // Format empty disables
	PreviewPath string          // empty derives from Output

	Logger *slog.Logger
}

// Result describes a completed run.
type Result struct {
	Width, Height, Bands int
	ModelSource          string
	EPSG                 int
	Affine               Affine
	Stats                GridStats
	Footprint            string
	Preview              string
}

func stage(name string) *prometheus.Timer {
	return prometheus.NewTimer(metrics.StageDuration.WithLabelValues(name))
}

// LoadModel finds the RPC model of a scene: an explicit file, a sidecar
// next to the scene, or the scene's RPC tag. An .XML sidecar that is not
// DigitalGlobe metadata gives way to the tag. It returns where the model
// came from.
func LoadModel(r *raster.Reader, rpcPath string) (*rpc.Model, string, error) {
	if rpcPath != "" {
		m, err := rpc.ReadModelFile(rpcPath)
		if err != nil {
			return nil, "", err
		}
		return m, rpcPath, nil
	}
	tag := r.RPCTag()
	if sidecar := rpc.FindSidecar(r.Path()); sidecar != "" {
		m, err := rpc.ReadModelFile(sidecar)
		if err == nil {
			return m, sidecar, nil
		}
		if !errors.Is(err, rpc.ErrNotDGXML) || tag == nil {
			return nil, "", err
		}
	}
	if tag != nil {
		m, err := rpc.FromTIFFTag(tag)
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", r.Path(), err)
		}
		return m, "RPC tag", nil
	}
	return nil, "", fmt.Errorf("%s: no RPC sidecar or RPC tag found", r.Path())
}

// Run georeferences one scene: it inverts a sparse grid of pixels through
// the scene's RPC model, fits an affine transform to the grid footprint in
// the target CRS and writes the input pixels under that transform.
func Run(ctx context.Context, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	src, err := raster.Open(opts.Input)
	if err != nil {
		return Result{}, err
	}
	defer src.Close()
	res := Result{Width: src.Width(), Height: src.Height(), Bands: src.Bands()}

	model, source, err := LoadModel(src, opts.RPC)
	if err != nil {
		return res, err
	}
	res.ModelSource = source
	lat0, lon0, h0 := model.Center()
	logger.Info("loaded RPC model", "source", source,
		"center_lat", lat0, "center_lon", lon0, "center_height", h0)

	elevOpts := opts.Elevation
	if elevOpts.Logger == nil {
		elevOpts.Logger = logger
	}
	heights, closer, err := elevation.Open(elevOpts)
	if err != nil {
		return res, err
	}
	defer closer.Close()

	epsg := opts.TargetEPSG
	if epsg == 0 {
		epsg = coord.UTMZoneEPSG(lon0, lat0)
	}
	reproj, err := coord.NewReprojector(epsg)
	if err != nil {
		return res, err
	}

	solver := &rpc.Solver{
		Model:         model,
		Method:        opts.Method,
		MaxIterations: opts.MaxIterations,
		Tolerance:     opts.Tolerance,
		Gain:          opts.Gain,
	}

	t := stage("grid")
	grid, err := BuildGrid(ctx, GridConfig{
		Width:       src.Width(),
		Height:      src.Height(),
		Spacing:     opts.Spacing,
		Concurrency: opts.Concurrency,
		Progress:    opts.Progress,
	}, solver, heights.Height)
	t.ObserveDuration()
	if err != nil {
		return res, fmt.Errorf("building geolocation grid: %w", err)
	}
	res.Stats = grid.Stats()
	logger.Info("geolocation grid built", "lines", len(grid.Lines), "samples", len(grid.Samples),
		"method", solver.Method.String())
	if res.Stats.NotConverged > 0 {
		logger.Warn("grid nodes did not converge",
			"count", res.Stats.NotConverged, "degenerate", res.Stats.Degenerate, "nodes", res.Stats.Nodes)
	}

	t = stage("reproject")
	err = grid.Reproject(reproj)
	t.ObserveDuration()
	if err != nil {
		return res, fmt.Errorf("reprojecting grid to EPSG:%d: %w", epsg, err)
	}
	res.EPSG = epsg

	res.Affine, err = EstimateFootprintAffine(grid, src.Width(), src.Height())
	if err != nil {
		return res, err
	}
	geo := res.Affine.GeoInfo(epsg)
	logger.Info("estimated footprint affine", "epsg", epsg, "affine", res.Affine.String())

	t = stage("write")
	img, err := src.ReadAll()
	if err != nil {
		t.ObserveDuration()
		return res, err
	}
	sink := opts.Sink
	if sink == nil {
		wo := raster.WriteOptions{Compression: opts.Compression}
		if opts.KeepRPC {
			wo.RPC = model.TIFFTag()
		}
		sink = GeoTIFFSink{Options: wo, WorldFile: opts.WorldFile}
	}
	err = sink.WriteRaster(opts.Output, img, geo)
	t.ObserveDuration()
	if err != nil {
		return res, err
	}

	if opts.Footprint != "" {
		props := map[string]any{
			"source":      opts.Input,
			"model":       source,
			"nodes":       res.Stats.Nodes,
			"unconverged": res.Stats.NotConverged,
		}
		if err := WriteFootprint(opts.Footprint, grid, props); err != nil {
			return res, err
		}
		res.Footprint = opts.Footprint
	}

	if opts.Preview.Format != "" {
		path := opts.PreviewPath
		if path == "" {
			enc, err := preview.NewEncoder(opts.Preview.Format, opts.Preview.Quality)
			if err != nil {
				return res, err
			}
			path = preview.Path(opts.Output, enc)
		}
		t = stage("preview")
		err := preview.Write(path, img, opts.Preview)
		t.ObserveDuration()
		if err != nil {
			return res, err
		}
		res.Preview = path
	}

	logger.Info("scene written", "output", opts.Output,
		"size", fmt.Sprintf("%dx%dx%d", res.Width, res.Height, res.Bands),
		"elapsed", formatDuration(time.Since(start)))
	return res, nil
}
