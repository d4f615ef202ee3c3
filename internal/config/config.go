package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/pspoerri/rpcortho/internal/coord"
	"github.com/pspoerri/rpcortho/internal/preview"
	"github.com/pspoerri/rpcortho/internal/raster"
	"github.com/pspoerri/rpcortho/internal/rpc"
)

// EnvPrefix prefixes environment overrides: RPCORTHO_SOLVER_METHOD sets
// solver.method.
const EnvPrefix = "RPCORTHO"

// Config holds all rpcortho settings.
type Config struct {
	Input       string `mapstructure:"input"`
	RPC         string `mapstructure:"rpc"`
	Output      string `mapstructure:"output"`
	TargetCRS   string `mapstructure:"target_crs"`
	Spacing     int    `mapstructure:"spacing"`
	Concurrency int    `mapstructure:"concurrency"`
	Verbose     bool   `mapstructure:"verbose"`
	MetricsFile string `mapstructure:"metrics_file"`

	Elevation     ElevationConfig `mapstructure:"elevation"`
	Solver        SolverConfig    `mapstructure:"solver"`
	OutputOptions OutputConfig    `mapstructure:"output_options"`
	Preview       PreviewConfig   `mapstructure:"preview"`
	Log           LogConfig       `mapstructure:"log"`
}

type ElevationConfig struct {
	Mode      string  `mapstructure:"mode"`
	Height    float64 `mapstructure:"height"`
	DEM       string  `mapstructure:"dem"`
	DEMCRS    string  `mapstructure:"dem_crs"`
	Fallback  float64 `mapstructure:"fallback"`
	CacheSize int     `mapstructure:"cache_size"`
}

type SolverConfig struct {
	Method        string  `mapstructure:"method"`
	MaxIterations int     `mapstructure:"max_iterations"`
	Tolerance     float64 `mapstructure:"tolerance"`
	Gain          float64 `mapstructure:"gain"`
}

type OutputConfig struct {
	Compression string `mapstructure:"compression"`
	WorldFile   bool   `mapstructure:"world_file"`
	Footprint   string `mapstructure:"footprint"`
	KeepRPC     bool   `mapstructure:"keep_rpc"`
}

type PreviewConfig struct {
	Format  string `mapstructure:"format"`
	Quality int    `mapstructure:"quality"`
	MaxSize int    `mapstructure:"max_size"`
	Path    string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("input", "")
	v.SetDefault("rpc", "")
	v.SetDefault("output", "")
	v.SetDefault("target_crs", "auto")
	v.SetDefault("spacing", 64)
	v.SetDefault("concurrency", 0)
	v.SetDefault("verbose", false)
	v.SetDefault("metrics_file", "")

	v.SetDefault("elevation.mode", "constant")
	v.SetDefault("elevation.height", 0.0)
	v.SetDefault("elevation.dem", "")
	v.SetDefault("elevation.dem_crs", "")
	v.SetDefault("elevation.fallback", 30.0)
	v.SetDefault("elevation.cache_size", 65536)

	v.SetDefault("solver.method", rpc.MethodNewton.String())
	v.SetDefault("solver.max_iterations", rpc.DefaultMaxIterations)
	v.SetDefault("solver.tolerance", rpc.DefaultTolerance)
	v.SetDefault("solver.gain", rpc.DefaultGain)

	v.SetDefault("output_options.compression", "deflate")
	v.SetDefault("output_options.world_file", false)
	v.SetDefault("output_options.footprint", "")
	v.SetDefault("output_options.keep_rpc", true)

	v.SetDefault("preview.format", "")
	v.SetDefault("preview.quality", 85)
	v.SetDefault("preview.max_size", preview.DefaultMaxSize)
	v.SetDefault("preview.path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load merges, in increasing precedence: defaults, the YAML file at path
// (skipped when path is empty), RPCORTHO_* environment variables and
// overrides keyed by dotted config name.
func Load(path string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for k, val := range overrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Input == "" {
		errs = append(errs, "input is required")
	}
	if c.Output == "" {
		errs = append(errs, "output is required")
	}
	if c.Spacing <= 0 {
		errs = append(errs, fmt.Sprintf("spacing must be positive, got %d", c.Spacing))
	}
	if c.Concurrency < 0 {
		errs = append(errs, fmt.Sprintf("concurrency must not be negative, got %d", c.Concurrency))
	}
	if _, err := c.TargetEPSG(); err != nil {
		errs = append(errs, err.Error())
	}

	switch strings.ToLower(c.Elevation.Mode) {
	case "constant":
	case "dem":
		if c.Elevation.DEM == "" {
			errs = append(errs, "elevation.dem is required when elevation.mode is dem")
		}
	default:
		errs = append(errs, fmt.Sprintf("elevation.mode must be constant or dem, got %q", c.Elevation.Mode))
	}
	if _, err := c.DEMEPSG(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Elevation.CacheSize < 0 {
		errs = append(errs, "elevation.cache_size must not be negative")
	}

	if _, ok := rpc.ParseMethod(strings.ToLower(c.Solver.Method)); !ok {
		errs = append(errs, fmt.Sprintf("solver.method must be newton or fixed-step, got %q", c.Solver.Method))
	}
	if c.Solver.MaxIterations <= 0 {
		errs = append(errs, "solver.max_iterations must be positive")
	}
	if c.Solver.Tolerance <= 0 {
		errs = append(errs, "solver.tolerance must be positive")
	}
	if c.Solver.Gain <= 0 {
		errs = append(errs, "solver.gain must be positive")
	}

	if _, err := raster.ParseCompression(c.OutputOptions.Compression); err != nil {
		errs = append(errs, "output_options.compression: "+err.Error())
	}

	if c.Preview.Format != "" {
		if _, err := preview.NewEncoder(c.Preview.Format, c.Preview.Quality); err != nil {
			errs = append(errs, "preview.format: "+err.Error())
		}
	}
	if c.Preview.Quality < 0 || c.Preview.Quality > 100 {
		errs = append(errs, fmt.Sprintf("preview.quality must be 0-100, got %d", c.Preview.Quality))
	}
	if c.Preview.MaxSize < 0 {
		errs = append(errs, "preview.max_size must not be negative")
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be text or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// TargetEPSG returns the output CRS, or 0 for "auto" (UTM zone of the
// scene centre).
func (c *Config) TargetEPSG() (int, error) {
	switch strings.ToLower(strings.TrimSpace(c.TargetCRS)) {
	case "", "auto", "utm":
		return 0, nil
	}
	p, err := coord.ParseCRS(c.TargetCRS)
	if err != nil {
		return 0, fmt.Errorf("target_crs: %w", err)
	}
	return p.EPSG(), nil
}

// DEMEPSG returns the CRS assumed for a DEM without GeoKeys, 0 if unset.
func (c *Config) DEMEPSG() (int, error) {
	if strings.TrimSpace(c.Elevation.DEMCRS) == "" {
		return 0, nil
	}
	epsg, err := coord.ParseEPSG(c.Elevation.DEMCRS)
	if err != nil {
		return 0, fmt.Errorf("elevation.dem_crs: %w", err)
	}
	return epsg, nil
}

// SolverMethod returns the parsed solver method.
func (c *Config) SolverMethod() rpc.Method {
	m, _ := rpc.ParseMethod(strings.ToLower(c.Solver.Method))
	return m
}
