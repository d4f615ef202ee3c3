package coord

import (
	"math"
	"testing"
)

func TestParseCRS(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"EPSG:32633", 32633, false},
		{"epsg:4326", 4326, false},
		{" 3857 ", 3857, false},
		{"urn:ogc:def:crs:EPSG::32733", 32733, false},
		{"EPSG:2056", 2056, false},
		{"EPSG:27700", 0, true},
		{"ESRI:102100", 0, true},
		{"EPSG:abc", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		p, err := ParseCRS(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseCRS(%q) = %v, want error", tt.in, p.EPSG())
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCRS(%q): %v", tt.in, err)
			continue
		}
		if p.EPSG() != tt.want {
			t.Errorf("ParseCRS(%q).EPSG() = %d, want %d", tt.in, p.EPSG(), tt.want)
		}
	}
}

func TestReprojectorForward(t *testing.T) {
	r, err := NewReprojector(32632)
	if err != nil {
		t.Fatal(err)
	}
	lons := [][]float64{{9, 9.1}, {9, 9.1}}
	lats := [][]float64{{45.1, 45.1}, {45, 45}}

	xs, ys, err := r.Forward(lons, lats)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if len(xs) != 2 || len(xs[0]) != 2 || len(ys[1]) != 2 {
		t.Fatalf("shape = %dx%d, want 2x2", len(xs), len(xs[0]))
	}
	for i := range lons {
		for j := range lons[i] {
			x, y := r.Point(lons[i][j], lats[i][j])
			if xs[i][j] != x || ys[i][j] != y {
				t.Errorf("Forward[%d][%d] = (%v, %v), Point = (%v, %v)", i, j, xs[i][j], ys[i][j], x, y)
			}
		}
	}
	if math.Abs(xs[1][0]-500000) > 1e-6 {
		t.Errorf("central meridian easting = %v, want 500000", xs[1][0])
	}
	if ys[0][0] <= ys[1][0] {
		t.Errorf("northing should grow with latitude: %v <= %v", ys[0][0], ys[1][0])
	}
}

func TestReprojectorShapeMismatch(t *testing.T) {
	r, err := NewReprojector(4326)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Forward([][]float64{{1, 2}}, [][]float64{{1}}); err == nil {
		t.Error("ragged row should fail")
	}
	if _, _, err := r.Forward([][]float64{{1}}, nil); err == nil {
		t.Error("row count mismatch should fail")
	}
	if _, err := NewReprojector(9999); err == nil {
		t.Error("unsupported EPSG should fail")
	}
}
