package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/pspoerri/rpcortho/internal/config"
	"github.com/pspoerri/rpcortho/internal/elevation"
	"github.com/pspoerri/rpcortho/internal/logging"
	"github.com/pspoerri/rpcortho/internal/metrics"
	"github.com/pspoerri/rpcortho/internal/ortho"
	"github.com/pspoerri/rpcortho/internal/preview"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// flagKeys maps command-line flags onto config keys. Only flags the user
// set override the config file and environment.
var flagKeys = map[string]string{
	"rpc":             "rpc",
	"target-crs":      "target_crs",
	"spacing":         "spacing",
	"concurrency":     "concurrency",
	"verbose":         "verbose",
	"method":          "solver.method",
	"max-iterations":  "solver.max_iterations",
	"tolerance":       "solver.tolerance",
	"gain":            "solver.gain",
	"elevation":       "elevation.mode",
	"height":          "elevation.height",
	"dem":             "elevation.dem",
	"dem-crs":         "elevation.dem_crs",
	"fallback":        "elevation.fallback",
	"compression":     "output_options.compression",
	"world-file":      "output_options.world_file",
	"footprint":       "output_options.footprint",
	"keep-rpc":        "output_options.keep_rpc",
	"preview":         "preview.format",
	"preview-quality": "preview.quality",
	"preview-size":    "preview.max_size",
	"preview-path":    "preview.path",
	"metrics-file":    "metrics_file",
	"log-level":       "log.level",
	"log-format":      "log.format",
}

func main() {
	var (
		configFile  string
		showVersion bool
		cpuProfile  string
	)
	flag.StringVar(&configFile, "config", "", "YAML config file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.StringVar(&cpuProfile, "cpuprofile", "", "Write CPU profile to file")

	flag.String("rpc", "", "RPC file (.RPB or DigitalGlobe .XML); default: sidecar, then the GeoTIFF RPC tag")
	flag.String("target-crs", "auto", "Output CRS, e.g. EPSG:32632 (auto: UTM zone of the scene centre)")
	flag.Int("spacing", 64, "Geolocation grid spacing in pixels")
	flag.Int("concurrency", 0, "Number of parallel inversion workers (0: one per CPU)")
	flag.Bool("verbose", false, "Show progress")
	flag.String("method", "newton", "Inverse solver: newton, fixed-step")
	flag.Int("max-iterations", 10, "Solver iteration limit")
	flag.Float64("tolerance", 1e-3, "Solver convergence tolerance in pixels")
	flag.Float64("gain", 1e-5, "Fixed-step gain in degrees per pixel")
	flag.String("elevation", "constant", "Height source: constant, dem")
	flag.Float64("height", 0, "Terrain height in metres for -elevation constant")
	flag.String("dem", "", "DEM GeoTIFF for -elevation dem")
	flag.String("dem-crs", "", "CRS of a DEM without GeoKeys")
	flag.Float64("fallback", elevation.DefaultFallbackHeight, "Height used where the DEM has no data")
	flag.String("compression", "deflate", "Output compression: none, deflate")
	flag.Bool("world-file", false, "Also write a .tfw world file")
	flag.String("footprint", "", "Write the grid outline as GeoJSON to this path")
	flag.Bool("keep-rpc", true, "Copy the RPC model into the output RPC tag")
	flag.String("preview", "", "Write a quicklook: png, jpeg, webp")
	flag.Int("preview-quality", 85, "Quicklook JPEG/WebP quality 1-100")
	flag.Int("preview-size", preview.DefaultMaxSize, "Quicklook longest side in pixels")
	flag.String("preview-path", "", "Quicklook path (default: <output>.preview.<ext>)")
	flag.String("metrics-file", "", "Write Prometheus metrics in textfile format to this path")
	flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.String("log-format", "text", "Log format: text, json")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rpcortho [flags] <input.tif> <output.tif>\n\n")
		fmt.Fprintf(os.Stderr, "Georeference a satellite scene from its RPC model by estimating an affine\n")
		fmt.Fprintf(os.Stderr, "transform for the unwarped pixels.\n\n")
		fmt.Fprintf(os.Stderr, "Settings may also come from -config and RPCORTHO_* environment variables.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("rpcortho %s (commit %s, built %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	overrides := make(map[string]any)
	flag.Visit(func(f *flag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			overrides[key] = f.Value.(flag.Getter).Get()
		}
	})
	args := flag.Args()
	if len(args) > 2 {
		flag.Usage()
		os.Exit(1)
	}
	if len(args) > 0 {
		overrides["input"] = args[0]
	}
	if len(args) > 1 {
		overrides["output"] = args[1]
	}

	cfg, err := config.Load(configFile, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		flag.Usage()
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			fatal(logger, "creating CPU profile", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fatal(logger, "starting CPU profile", err)
		}
		defer pprof.StopCPUProfile()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := pipelineOptions(cfg, logger)
	if err != nil {
		fatal(logger, "invalid configuration", err)
	}
	printSettings(cfg)

	start := time.Now()
	res, runErr := ortho.Run(ctx, opts)
	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error("writing metrics", "path", cfg.MetricsFile, "error", err)
		}
	}
	if runErr != nil {
		stop()
		pprof.StopCPUProfile()
		fatal(logger, "orthorectification failed", runErr)
	}

	a := res.Affine
	fmt.Printf("  %-14s %s\n", "Model:", res.ModelSource)
	fmt.Printf("  %-14s %d nodes, %d not converged, %d degenerate\n", "Grid:",
		res.Stats.Nodes, res.Stats.NotConverged, res.Stats.Degenerate)
	fmt.Printf("  %-14s EPSG:%d\n", "CRS:", res.EPSG)
	fmt.Printf("  %-14s origin (%.3f, %.3f), pixel %.4f x %.4f\n", "Affine:", a[0], a[3], a[1], -a[5])
	if res.Footprint != "" {
		fmt.Printf("  %-14s %s\n", "Footprint:", res.Footprint)
	}
	if res.Preview != "" {
		fmt.Printf("  %-14s %s\n", "Preview:", res.Preview)
	}
	var size int64
	if fi, err := os.Stat(cfg.Output); err == nil {
		size = fi.Size()
	}
	fmt.Printf("Done: %dx%dx%d, %s, %v → %s\n", res.Width, res.Height, res.Bands,
		humanSize(size), time.Since(start).Round(time.Millisecond), cfg.Output)
}

func pipelineOptions(cfg *config.Config, logger *slog.Logger) (ortho.Options, error) {
	epsg, err := cfg.TargetEPSG()
	if err != nil {
		return ortho.Options{}, err
	}
	demEPSG, err := cfg.DEMEPSG()
	if err != nil {
		return ortho.Options{}, err
	}
	return ortho.Options{
		Input:         cfg.Input,
		RPC:           cfg.RPC,
		Output:        cfg.Output,
		TargetEPSG:    epsg,
		Spacing:       cfg.Spacing,
		Concurrency:   cfg.Concurrency,
		Progress:      cfg.Verbose,
		Method:        cfg.SolverMethod(),
		MaxIterations: cfg.Solver.MaxIterations,
		Tolerance:     cfg.Solver.Tolerance,
		Gain:          cfg.Solver.Gain,
		Elevation: elevation.Options{
			Mode:      cfg.Elevation.Mode,
			Height:    cfg.Elevation.Height,
			DEM:       cfg.Elevation.DEM,
			DEMEPSG:   demEPSG,
			Fallback:  &cfg.Elevation.Fallback,
			CacheSize: cfg.Elevation.CacheSize,
			Logger:    logger,
		},
		Compression: cfg.OutputOptions.Compression,
		WorldFile:   cfg.OutputOptions.WorldFile,
		KeepRPC:     cfg.OutputOptions.KeepRPC,
		Footprint:   cfg.OutputOptions.Footprint,
		Preview: preview.Options{
			Format:  cfg.Preview.Format,
			Quality: cfg.Preview.Quality,
			MaxSize: cfg.Preview.MaxSize,
		},
		PreviewPath: cfg.Preview.Path,
		Logger:      logger,
	}, nil
}

func printSettings(cfg *config.Config) {
	fmt.Printf("rpcortho %s (commit %s, built %s)\n", version, commit, buildDate)
	fmt.Printf("  %-14s %s\n", "Input:", cfg.Input)
	fmt.Printf("  %-14s %s\n", "Target CRS:", cfg.TargetCRS)
	fmt.Printf("  %-14s %dpx\n", "Spacing:", cfg.Spacing)
	fmt.Printf("  %-14s %s (max %d iterations, tolerance %g px)\n", "Solver:",
		cfg.SolverMethod(), cfg.Solver.MaxIterations, cfg.Solver.Tolerance)
	switch cfg.Elevation.Mode {
	case elevation.ModeDEM:
		fmt.Printf("  %-14s DEM %s (fallback %g m)\n", "Elevation:", cfg.Elevation.DEM, cfg.Elevation.Fallback)
	default:
		fmt.Printf("  %-14s constant %g m\n", "Elevation:", cfg.Elevation.Height)
	}
	workers := cfg.Concurrency
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	fmt.Printf("  %-14s %d\n", "Concurrency:", workers)
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
