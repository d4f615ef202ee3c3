package raster

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"
)

func gradient(w, h, bands int, t DataType) *Raster {
	r := New(w, h, bands, t)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for b := 0; b < bands; b++ {
				r.Set(x, y, b, float64((x*7+y*13+b*31)%200))
			}
		}
	}
	return r
}

func TestDataTypeFor(t *testing.T) {
	tests := []struct {
		bits, format uint16
		want         DataType
		wantErr      bool
	}{
		{8, 0, Uint8, false},
		{8, 1, Uint8, false},
		{16, 2, Int16, false},
		{32, 3, Float32, false},
		{64, 3, Float64, false},
		{64, 2, Int64, false},
		{16, 3, 0, true},
		{12, 1, 0, true},
	}
	for _, tt := range tests {
		got, err := dataTypeFor(tt.bits, tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("dataTypeFor(%d, %d) error = %v, wantErr %v", tt.bits, tt.format, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("dataTypeFor(%d, %d) = %v, want %v", tt.bits, tt.format, got, tt.want)
		}
	}
}

func TestRasterSetAt(t *testing.T) {
	for _, dt := range []DataType{Uint8, Int8, Uint16, Int16, Uint32, Int32, Uint64, Int64, Float32, Float64} {
		r := New(3, 2, 2, dt)
		v := 100.0
		if dt == Int8 || dt == Int16 || dt == Int32 || dt == Int64 {
			v = -100
		}
		r.Set(2, 1, 1, v)
		if got := r.At(2, 1, 1); got != v {
			t.Errorf("%v: At = %v, want %v", dt, got, v)
		}
		if got := r.At(2, 1, 0); got != 0 {
			t.Errorf("%v: neighbouring sample = %v, want 0", dt, got)
		}
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	geo := GeoInfo{EPSG: 32632, OriginX: 500000, OriginY: 5000000, PixelSizeX: 0.5, PixelSizeY: 0.5}
	rpc := make([]float64, RPCTagLen)
	for i := range rpc {
		rpc[i] = float64(i) / 4
	}

	tests := []struct {
		name  string
		src   *Raster
		opts  WriteOptions
		strip bool
	}{
		{"uint8 rgb none", gradient(17, 11, 3, Uint8), WriteOptions{}, false},
		{"uint16 4 bands deflate", gradient(33, 9, 4, Uint16), WriteOptions{Compression: "deflate"}, false},
		{"int16 short last strip", gradient(10, 10, 1, Int16), WriteOptions{RowsPerStrip: 3}, true},
		{"float32 deflate strips", gradient(8, 7, 1, Float32), WriteOptions{Compression: "deflate", RowsPerStrip: 2, RPC: rpc}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.src.NoData = "-9999"
			path := filepath.Join(t.TempDir(), "out.tif")
			if err := WriteGeoTIFF(path, tt.src, geo, tt.opts); err != nil {
				t.Fatalf("WriteGeoTIFF: %v", err)
			}

			r, err := Open(path)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer r.Close()

			if r.Width() != tt.src.Width || r.Height() != tt.src.Height || r.Bands() != tt.src.Bands {
				t.Fatalf("size = %dx%dx%d, want %dx%dx%d", r.Width(), r.Height(), r.Bands(),
					tt.src.Width, tt.src.Height, tt.src.Bands)
			}
			if r.DataType() != tt.src.Type {
				t.Errorf("DataType = %v, want %v", r.DataType(), tt.src.Type)
			}
			if r.Tiled() {
				t.Error("writer output should be stripped")
			}
			if got := r.GeoInfo(); got != geo {
				t.Errorf("GeoInfo = %+v, want %+v", got, geo)
			}
			if nd, ok := r.NoData(); !ok || nd != -9999 {
				t.Errorf("NoData = (%v, %v), want (-9999, true)", nd, ok)
			}
			if tt.opts.RPC != nil {
				got := r.RPCTag()
				if len(got) != RPCTagLen || got[91] != rpc[91] || got[12] != rpc[12] {
					t.Errorf("RPCTag = %v", got)
				}
			} else if r.RPCTag() != nil {
				t.Errorf("unexpected RPC tag")
			}

			got, err := r.ReadAll()
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if !bytes.Equal(got.Data, tt.src.Data) {
				t.Error("pixel data differs after round trip")
			}
			if got.NoData != "-9999" {
				t.Errorf("Raster.NoData = %q", got.NoData)
			}

			x, y := tt.src.Width-1, tt.src.Height-1
			v, err := r.Sample(x, y, 0)
			if err != nil {
				t.Fatalf("Sample: %v", err)
			}
			if want := tt.src.At(x, y, 0); v != want {
				t.Errorf("Sample(%d, %d) = %v, want %v", x, y, v, want)
			}
			if _, err := r.Sample(tt.src.Width, 0, 0); err == nil {
				t.Error("Sample outside the image should fail")
			}
		})
	}
}

func TestWriteGeographicKeys(t *testing.T) {
	geo := GeoInfo{EPSG: 4326, OriginX: 8.9, OriginY: 45.1, PixelSizeX: 0.001, PixelSizeY: 0.001}
	path := filepath.Join(t.TempDir(), "geo.tif")
	if err := WriteGeoTIFF(path, gradient(4, 4, 1, Uint8), geo, WriteOptions{}); err != nil {
		t.Fatal(err)
	}
	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if r.EPSG() != 4326 {
		t.Errorf("EPSG = %d, want 4326", r.EPSG())
	}
}

func TestWriteRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	if err := WriteGeoTIFF(filepath.Join(dir, "a.tif"), gradient(2, 2, 1, Uint8), GeoInfo{}, WriteOptions{Compression: "jpeg"}); err == nil {
		t.Error("unsupported compression should fail")
	}
	short := gradient(2, 2, 1, Uint8)
	short.Data = short.Data[:3]
	if err := WriteGeoTIFF(filepath.Join(dir, "b.tif"), short, GeoInfo{}, WriteOptions{}); err == nil {
		t.Error("truncated data should fail")
	}
}

func TestOpenFallsBackToWorldFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.tif")
	if err := WriteGeoTIFF(path, gradient(20, 10, 1, Uint8), GeoInfo{}, WriteOptions{}); err != nil {
		t.Fatal(err)
	}
	geo := GeoInfo{OriginX: 9.0, OriginY: 45.5, PixelSizeX: 0.01, PixelSizeY: 0.02}
	if err := WriteTFW(WorldFilePath(path), geo); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got := r.GeoInfo()
	if math.Abs(got.OriginX-9.0) > 1e-12 || math.Abs(got.OriginY-45.5) > 1e-12 ||
		math.Abs(got.PixelSizeX-0.01) > 1e-15 || math.Abs(got.PixelSizeY-0.02) > 1e-15 {
		t.Errorf("GeoInfo from TFW = %+v, want %+v", got, geo)
	}
	if got.EPSG != 4326 {
		t.Errorf("inferred EPSG = %d, want 4326", got.EPSG)
	}
}

func TestTFWRoundTrip(t *testing.T) {
	geo := GeoInfo{OriginX: 412345.5, OriginY: 5012345.25, PixelSizeX: 2.5, PixelSizeY: 3}
	path := filepath.Join(t.TempDir(), "x.tfw")
	if err := WriteTFW(path, geo); err != nil {
		t.Fatal(err)
	}
	tfw, err := ReadTFW(path)
	if err != nil {
		t.Fatal(err)
	}
	if tfw.PixelSizeY != -3 || tfw.OriginX != 412346.75 || tfw.OriginY != 5012343.75 {
		t.Errorf("TFW = %+v", tfw)
	}
	if got := tfw.GeoInfo(); got != geo {
		t.Errorf("GeoInfo = %+v, want %+v", got, geo)
	}
}

func TestGeoInfoPixelMapping(t *testing.T) {
	g := GeoInfo{OriginX: 100, OriginY: 200, PixelSizeX: 2, PixelSizeY: 4}
	x, y := g.PixelToCRS(10, 5)
	if x != 120 || y != 180 {
		t.Errorf("PixelToCRS = (%v, %v), want (120, 180)", x, y)
	}
	px, py := g.CRSToPixel(x, y)
	if px != 10 || py != 5 {
		t.Errorf("CRSToPixel = (%v, %v), want (10, 5)", px, py)
	}
}

func TestChunkCacheSample(t *testing.T) {
	src := gradient(30, 25, 2, Float64)
	path := filepath.Join(t.TempDir(), "dem.tif")
	if err := WriteGeoTIFF(path, src, GeoInfo{}, WriteOptions{Compression: "deflate", RowsPerStrip: 4}); err != nil {
		t.Fatal(err)
	}
	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	c := NewChunkCache(r, 4, "test")
	defer c.Close()
	for _, p := range [][3]int{{0, 0, 0}, {29, 24, 1}, {15, 12, 0}, {15, 12, 1}, {0, 0, 0}} {
		got, err := c.Sample(p[0], p[1], p[2])
		if err != nil {
			t.Fatalf("Sample%v: %v", p, err)
		}
		if want := src.At(p[0], p[1], p[2]); got != want {
			t.Errorf("Sample%v = %v, want %v", p, got, want)
		}
	}
	if _, err := c.Sample(-1, 0, 0); err == nil {
		t.Error("negative x should fail")
	}
}

func TestParseEPSGGeoKeys(t *testing.T) {
	if got := parseEPSG(geoKeyDirectory(32633)); got != 32633 {
		t.Errorf("projected = %d, want 32633", got)
	}
	if got := parseEPSG(geoKeyDirectory(4326)); got != 4326 {
		t.Errorf("geographic = %d, want 4326", got)
	}
	// User-defined projection with a known datum reports nothing.
	keys := []uint16{1, 1, 0, 2, gkGeographicTypeGeoKey, 0, 1, 32767, gkProjectedCSTypeGeoKey, 0, 1, 32767}
	if got := parseEPSG(keys); got != 0 {
		t.Errorf("user-defined = %d, want 0", got)
	}
}
