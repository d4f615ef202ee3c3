package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pspoerri/rpcortho/internal/rpc"
)

func required() map[string]any {
	return map[string]any{"input": "scene.tif", "output": "out.tif"}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", required())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Spacing != 64 || cfg.Elevation.Mode != "constant" || cfg.Elevation.Fallback != 30 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Solver.MaxIterations != rpc.DefaultMaxIterations || cfg.Solver.Tolerance != rpc.DefaultTolerance ||
		cfg.Solver.Gain != rpc.DefaultGain {
		t.Errorf("solver defaults = %+v", cfg.Solver)
	}
	if cfg.SolverMethod() != rpc.MethodNewton {
		t.Errorf("method = %v, want newton", cfg.SolverMethod())
	}
	if epsg, err := cfg.TargetEPSG(); err != nil || epsg != 0 {
		t.Errorf("TargetEPSG = (%d, %v), want (0, nil)", epsg, err)
	}
	if cfg.OutputOptions.Compression != "deflate" || !cfg.OutputOptions.KeepRPC {
		t.Errorf("output defaults = %+v", cfg.OutputOptions)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rpcortho.yaml")
	yaml := `
input: from-file.tif
output: out.tif
spacing: 32
target_crs: EPSG:32633
elevation:
  mode: dem
  dem: dem.tif
  fallback: 12.5
solver:
  method: fixed-step
  max_iterations: 20
preview:
  format: webp
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RPCORTHO_SPACING", "16")
	t.Setenv("RPCORTHO_SOLVER_METHOD", "newton")

	cfg, err := Load(path, map[string]any{"input": "from-flag.tif"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Input != "from-flag.tif" {
		t.Errorf("input = %q, want the override", cfg.Input)
	}
	if cfg.Spacing != 16 {
		t.Errorf("spacing = %d, want 16 from the environment", cfg.Spacing)
	}
	if cfg.SolverMethod() != rpc.MethodNewton {
		t.Errorf("method = %q, want newton from the environment", cfg.Solver.Method)
	}
	if cfg.Solver.MaxIterations != 20 || cfg.Elevation.Mode != "dem" || cfg.Elevation.DEM != "dem.tif" ||
		cfg.Elevation.Fallback != 12.5 || cfg.Preview.Format != "webp" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if epsg, err := cfg.TargetEPSG(); err != nil || epsg != 32633 {
		t.Errorf("TargetEPSG = (%d, %v), want 32633", epsg, err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), required()); err == nil {
		t.Error("missing config file should fail")
	}
}

func TestValidateAggregates(t *testing.T) {
	overrides := map[string]any{
		"spacing":                    0,
		"target_crs":                 "EPSG:27700",
		"elevation.mode":             "dem",
		"solver.method":              "gauss",
		"solver.tolerance":           -1,
		"output_options.compression": "jpeg",
		"preview.format":             "gif",
		"log.format":                 "xml",
	}
	_, err := Load("", overrides)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{
		"input is required",
		"output is required",
		"spacing must be positive",
		"target_crs",
		"elevation.dem is required",
		"solver.method",
		"solver.tolerance",
		"output_options.compression",
		"preview.format",
		"log.format",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error does not mention %q:\n%s", want, msg)
		}
	}
	if !strings.HasPrefix(msg, "config validation failed:") {
		t.Errorf("unexpected error prefix: %s", msg)
	}
}

func TestDEMEPSG(t *testing.T) {
	c := Config{Elevation: ElevationConfig{DEMCRS: "EPSG:32632"}}
	if epsg, err := c.DEMEPSG(); err != nil || epsg != 32632 {
		t.Errorf("DEMEPSG = (%d, %v)", epsg, err)
	}
	c.Elevation.DEMCRS = "ESRI:1234"
	if _, err := c.DEMEPSG(); err == nil {
		t.Error("non-EPSG authority should fail")
	}
}
