package ortho

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/pspoerri/rpcortho/internal/coord"
	"github.com/pspoerri/rpcortho/internal/rpc"
)

func builtGrid(t *testing.T, size, spacing int, r Reprojector) *Grid {
	t.Helper()
	solver := rpc.NewSolver(sceneModel(t, size))
	g, err := BuildGrid(context.Background(), GridConfig{Width: size, Height: size, Spacing: spacing}, solver, flat)
	if err != nil {
		t.Fatal(err)
	}
	if r != nil {
		if err := g.Reproject(r); err != nil {
			t.Fatal(err)
		}
	}
	return g
}

func TestEstimateFootprintAffine(t *testing.T) {
	g := builtGrid(t, 1001, 100, lonLatReprojector{})
	a, err := EstimateFootprintAffine(g, 1001, 1001)
	if err != nil {
		t.Fatal(err)
	}
	want := Affine{9.0, 0.1 / 1001, 0, 45.1, 0, -0.1 / 1001}
	for i := range a {
		tol := 1e-6
		if i == 1 || i == 5 {
			tol = 1e-10
		}
		if math.Abs(a[i]-want[i]) > tol {
			t.Errorf("affine[%d] = %v, want %v", i, a[i], want[i])
		}
	}

	x, y := a.Apply(1001, 1001)
	if math.Abs(x-9.1) > 1e-6 || math.Abs(y-45.0) > 1e-6 {
		t.Errorf("lower-right corner = (%v, %v), want (9.1, 45.0)", x, y)
	}

	geo := a.GeoInfo(4326)
	if geo.EPSG != 4326 || geo.OriginX != a[0] || geo.OriginY != a[3] ||
		geo.PixelSizeX != a[1] || geo.PixelSizeY != -a[5] || !geo.Valid() {
		t.Errorf("GeoInfo = %+v for %v", geo, a)
	}
}

// Every spacing below keeps the first and last pixel of the 1001 px scene
// as nodes, so refining the grid adds nodes without moving the footprint.
func TestFootprintStableAcrossDensity(t *testing.T) {
	r, err := coord.NewReprojector(32632)
	if err != nil {
		t.Fatal(err)
	}
	const tol = 0.05 // metres, well above the solver's 1e-3 px
	var prev [4]float64
	prevNodes := 0
	for i, spacing := range []int{125, 250, 500, 1000} {
		g := builtGrid(t, 1001, spacing, r)
		xmin, ymin, xmax, ymax, err := g.Bounds()
		if err != nil {
			t.Fatal(err)
		}
		cur := [4]float64{xmin, ymin, xmax, ymax}
		if i > 0 {
			if g.Len() >= prevNodes {
				t.Errorf("spacing %d has %d nodes, want fewer than %d", spacing, g.Len(), prevNodes)
			}
			for k := range cur {
				if d := math.Abs(cur[k] - prev[k]); d > tol {
					t.Errorf("spacing %d bound %d = %v, differs by %v from %v", spacing, k, cur[k], d, prev[k])
				}
			}
		}
		prev, prevNodes = cur, g.Len()
	}
}

func TestEstimateFootprintAffineSingleLine(t *testing.T) {
	solver := rpc.NewSolver(sceneModel(t, 101))
	g, err := BuildGrid(context.Background(), GridConfig{Width: 101, Height: 1, Spacing: 50}, solver, flat)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Reproject(lonLatReprojector{}); err != nil {
		t.Fatal(err)
	}
	if _, err := EstimateFootprintAffine(g, 101, 1); err == nil {
		t.Error("a footprint without height should fail")
	}
}

func TestEstimateFootprintAffineErrors(t *testing.T) {
	if _, err := EstimateFootprintAffine(&Grid{}, 10, 10); err == nil {
		t.Error("empty grid should fail")
	}
	if _, err := EstimateFootprintAffine(nil, 10, 10); err == nil {
		t.Error("nil grid should fail")
	}

	unprojected := builtGrid(t, 101, 50, nil)
	if _, err := EstimateFootprintAffine(unprojected, 101, 101); err == nil {
		t.Error("unprojected grid should fail")
	}

	g := builtGrid(t, 101, 50, lonLatReprojector{})
	if _, err := EstimateFootprintAffine(g, 0, 101); err == nil {
		t.Error("zero width should fail")
	}
	g.Nodes[1][1].X = math.NaN()
	if _, err := EstimateFootprintAffine(g, 101, 101); err == nil {
		t.Error("non-finite node should fail")
	}
}

func TestOutline(t *testing.T) {
	g := builtGrid(t, 101, 50, nil) // 3x3 nodes
	ring := g.Outline()
	if len(ring) != 9 {
		t.Fatalf("outline has %d points, want 9", len(ring))
	}
	if ring[0] != ring[len(ring)-1] {
		t.Error("outline is not closed")
	}
	corners := []struct {
		i   int
		lon float64
		lat float64
	}{
		{0, 9.0, 45.1},
		{2, 9.1, 45.1},
		{4, 9.1, 45.0},
		{6, 9.0, 45.0},
	}
	for _, c := range corners {
		p := ring[c.i]
		if math.Abs(p.Lon()-c.lon) > 1e-6 || math.Abs(p.Lat()-c.lat) > 1e-6 {
			t.Errorf("ring[%d] = %v, want (%v, %v)", c.i, p, c.lon, c.lat)
		}
	}
	if (&Grid{}).Outline() != nil {
		t.Error("empty grid outline should be nil")
	}
}

func TestWriteFootprint(t *testing.T) {
	g := builtGrid(t, 101, 50, nil)
	path := filepath.Join(t.TempDir(), "footprint.geojson")
	if err := WriteFootprint(path, g, map[string]any{"nodes": 9, "source": "scene.tif"}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("features = %d, want 1", len(fc.Features))
	}
	f := fc.Features[0]
	poly, ok := f.Geometry.(orb.Polygon)
	if !ok {
		t.Fatalf("geometry is %T, want orb.Polygon", f.Geometry)
	}
	if len(poly) != 1 || len(poly[0]) != 9 {
		t.Errorf("polygon rings = %v", poly)
	}
	if f.Properties.MustString("source") != "scene.tif" || f.Properties.MustFloat64("nodes") != 9 {
		t.Errorf("properties = %v", f.Properties)
	}
	if len(f.BBox) != 4 {
		t.Errorf("bbox = %v, want 4 values", f.BBox)
	}

	if _, err := FootprintGeoJSON(&Grid{}, nil); err == nil {
		t.Error("empty grid footprint should fail")
	}
}
