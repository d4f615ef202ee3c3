package elevation

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pspoerri/rpcortho/internal/coord"
	"github.com/pspoerri/rpcortho/internal/metrics"
	"github.com/pspoerri/rpcortho/internal/raster"
	"github.com/pspoerri/rpcortho/internal/rpc"
)

type failingSource struct{ calls int }

func (f *failingSource) Sample(lat, lon float64) (float64, error) {
	f.calls++
	return 0, ErrOutOfCoverage
}

type countingProvider struct {
	calls int
}

func (c *countingProvider) Height(lat, lon float64) float64 {
	c.calls++
	return lat + lon
}

func heightModel(t *testing.T) *rpc.Model {
	t.Helper()
	c := rpc.Coefficients{
		LineOffset: 45, SampOffset: 9,
		LatOffset: 45, LonOffset: 9, HeightOffset: 0,
		LineScale: 1, SampScale: 1,
		LatScale: 1, LonScale: 1, HeightScale: 1000,
	}
	c.LineNum[1] = 1
	c.LineNum[3] = 0.01
	c.LineDen[0] = 1
	c.SampNum[2] = 1
	c.SampNum[3] = -0.02
	c.SampDen[0] = 1
	m, err := rpc.NewModelFromCoefficients(c)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestConstant(t *testing.T) {
	p := Constant(123.5)
	for _, ll := range [][2]float64{{0, 0}, {45, 9}, {-89, 179}} {
		if got := p.Height(ll[0], ll[1]); got != 123.5 {
			t.Errorf("Height%v = %v, want 123.5", ll, got)
		}
	}
}

func TestSampledFallbackMatchesConstant(t *testing.T) {
	before := testutil.ToFloat64(metrics.ElevationFallbacks)
	src := &failingSource{}
	sampled := NewSampled(src)
	if sampled.Fallback != DefaultFallbackHeight {
		t.Fatalf("Fallback = %v, want %v", sampled.Fallback, DefaultFallbackHeight)
	}

	solver := rpc.NewSolver(heightModel(t))
	constant := Constant(DefaultFallbackHeight)
	for _, px := range [][2]float64{{45, 9}, {45.2, 8.9}, {44.7, 9.4}} {
		a := solver.Solve(px[0], px[1], sampled.Height)
		b := solver.Solve(px[0], px[1], constant.Height)
		if a != b {
			t.Errorf("Solve%v with failing source = %+v, constant = %+v", px, a, b)
		}
		if !a.Converged {
			t.Errorf("Solve%v did not converge", px)
		}
	}
	if src.calls == 0 {
		t.Fatal("source was never consulted")
	}
	if got := testutil.ToFloat64(metrics.ElevationFallbacks) - before; got != float64(src.calls) {
		t.Errorf("fallback counter advanced by %v, want %d", got, src.calls)
	}
}

type nanSource struct{}

func (nanSource) Sample(lat, lon float64) (float64, error) { return math.NaN(), nil }

func TestSampledRejectsNonFinite(t *testing.T) {
	s := &Sampled{Source: nanSource{}, Fallback: -5}
	if got := s.Height(1, 2); got != -5 {
		t.Errorf("Height = %v, want fallback -5", got)
	}
}

func TestCached(t *testing.T) {
	inner := &countingProvider{}
	c, err := NewCached(inner, 2)
	if err != nil {
		t.Fatal(err)
	}
	hits := testutil.ToFloat64(metrics.CacheHits.WithLabelValues(cacheLabel))

	if got := c.Height(1, 2); got != 3 {
		t.Errorf("Height = %v, want 3", got)
	}
	c.Height(1, 2)
	c.Height(1, 2)
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
	if got := testutil.ToFloat64(metrics.CacheHits.WithLabelValues(cacheLabel)) - hits; got != 2 {
		t.Errorf("cache hits advanced by %v, want 2", got)
	}

	c.Height(3, 4)
	c.Height(5, 6) // evicts (1, 2)
	c.Height(1, 2)
	if inner.calls != 4 {
		t.Errorf("inner calls after eviction = %d, want 4", inner.calls)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}

	if _, err := NewCached(inner, 0); err == nil {
		t.Error("size 0 should be rejected")
	}
}

// writeDEM writes a 10x10 EPSG:4326 DEM over lon 9..10, lat 45..46 whose
// value at pixel (x, y) is 100 + 10x + y. Pixel (5, 5) holds nodata.
func writeDEM(t *testing.T) string {
	t.Helper()
	r := raster.New(10, 10, 1, raster.Float32)
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			r.Set(x, y, 0, float64(100+10*x+y))
		}
	}
	r.Set(5, 5, 0, -9999)
	r.NoData = "-9999"
	geo := raster.GeoInfo{EPSG: 4326, OriginX: 9, OriginY: 46, PixelSizeX: 0.1, PixelSizeY: 0.1}
	path := filepath.Join(t.TempDir(), "dem.tif")
	if err := raster.WriteGeoTIFF(path, r, geo, raster.WriteOptions{Compression: "deflate", RowsPerStrip: 3}); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDEMSample(t *testing.T) {
	dem, err := OpenDEM(writeDEM(t), DEMOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer dem.Close()
	if dem.EPSG() != 4326 {
		t.Errorf("EPSG = %d, want 4326", dem.EPSG())
	}

	tests := []struct {
		name     string
		lat, lon float64
		want     float64
		wantErr  error
	}{
		{"pixel centre", 45.65, 9.25, 123, nil},
		{"between columns", 45.65, 9.30, 128, nil},
		{"between rows and columns", 45.60, 9.30, 128.5, nil},
		{"upper-left edge clamps", 45.999, 9.001, 100, nil},
		{"lower-right edge clamps", 45.001, 9.999, 199, nil},
		{"west of coverage", 45.5, 8.9, 0, ErrOutOfCoverage},
		{"north of coverage", 46.1, 9.5, 0, ErrOutOfCoverage},
		{"nodata pixel", 45.45, 9.55, 0, ErrNoData},
		{"next to nodata", 45.45, 9.50, 0, ErrNoData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dem.Sample(tt.lat, tt.lon)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Sample(%v, %v) = %v, want %v", tt.lat, tt.lon, got, tt.want)
			}
		})
	}
}

// An LV95 DEM around Bern with a world file and no GeoKeys: 10x10 pixels
// of 200 m, value 100+10x+y.
func writeLV95DEM(t *testing.T) string {
	t.Helper()
	r := raster.New(10, 10, 1, raster.Float32)
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			r.Set(x, y, 0, float64(100+10*x+y))
		}
	}
	path := filepath.Join(t.TempDir(), "swissalti.tif")
	if err := raster.WriteGeoTIFF(path, r, raster.GeoInfo{}, raster.WriteOptions{}); err != nil {
		t.Fatal(err)
	}
	geo := raster.GeoInfo{OriginX: 2_599_000, OriginY: 1_201_000, PixelSizeX: 200, PixelSizeY: 200}
	if err := raster.WriteTFW(raster.WorldFilePath(path), geo); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDEMSampleLV95(t *testing.T) {
	path := writeLV95DEM(t)
	if _, err := OpenDEM(path, DEMOptions{}); err == nil {
		t.Error("projected DEM without a CRS should fail")
	}

	dem, err := OpenDEM(path, DEMOptions{EPSG: 2056})
	if err != nil {
		t.Fatal(err)
	}
	defer dem.Close()
	if dem.EPSG() != 2056 {
		t.Errorf("EPSG = %d, want 2056", dem.EPSG())
	}

	lat, lon := 46.951083, 7.438632 // Bern
	x, y := (&coord.SwissLV95{}).FromWGS84(lon, lat)
	fx := (x-2_599_000)/200 - 0.5
	fy := (1_201_000-y)/200 - 0.5
	want := 100 + 10*fx + fy
	got, err := dem.Sample(lat, lon)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-want) > 1e-3 {
		t.Errorf("Sample(Bern) = %v, want %v", got, want)
	}
	if math.Abs(got-149.5) > 0.1 {
		t.Errorf("Sample(Bern) = %v, want about 149.5 near the DEM centre", got)
	}

	if _, err := dem.Sample(47.3769, 8.5417); !errors.Is(err, ErrOutOfCoverage) {
		t.Errorf("Zurich err = %v, want ErrOutOfCoverage", err)
	}
}

func TestOpen(t *testing.T) {
	p, closer, err := Open(Options{Height: 12})
	if err != nil {
		t.Fatal(err)
	}
	if got := p.Height(10, 10); got != 12 {
		t.Errorf("constant Height = %v, want 12", got)
	}
	closer.Close()

	seven := 7.0
	p, closer, err = Open(Options{Mode: "DEM", DEM: writeDEM(t), Fallback: &seven, CacheSize: 16})
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()
	if _, ok := p.(*Cached); !ok {
		t.Errorf("dem provider with cache size = %T, want *Cached", p)
	}
	if got := p.Height(45.65, 9.25); math.Abs(got-123) > 1e-6 {
		t.Errorf("dem Height = %v, want 123", got)
	}
	if got := p.Height(0, 0); got != 7 {
		t.Errorf("outside coverage Height = %v, want fallback 7", got)
	}

	zero := 0.0
	fallbacks := []struct {
		name     string
		fallback *float64
		want     float64
	}{
		{"unset", nil, DefaultFallbackHeight},
		{"sea level", &zero, 0},
	}
	for _, tt := range fallbacks {
		t.Run(tt.name, func(t *testing.T) {
			p, closer, err := Open(Options{Mode: ModeDEM, DEM: writeDEM(t), Fallback: tt.fallback})
			if err != nil {
				t.Fatal(err)
			}
			defer closer.Close()
			if got := p.Height(0, 0); got != tt.want {
				t.Errorf("outside coverage Height = %v, want %v", got, tt.want)
			}
		})
	}

	if _, _, err := Open(Options{Mode: "dem"}); err == nil {
		t.Error("dem mode without a path should fail")
	}
	if _, _, err := Open(Options{Mode: "lidar"}); err == nil {
		t.Error("unknown mode should fail")
	}
}
