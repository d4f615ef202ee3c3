package raster

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// TFW holds the six parameters of a TIFF World File (.tfw).
//
// Line 1: pixel width (x-component of pixel size)
// Line 2: rotation about y-axis (typically 0)
// Line 3: rotation about x-axis (typically 0)
// Line 4: pixel height (y-component, typically negative for north-up)
// Line 5: x-coordinate of the center of the upper-left pixel
// Line 6: y-coordinate of the center of the upper-left pixel
type TFW struct {
	PixelSizeX float64
	RotationY  float64
	RotationX  float64
	PixelSizeY float64
	OriginX    float64
	OriginY    float64
}

// ReadTFW reads a world file from path.
func ReadTFW(path string) (*TFW, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading TFW %s: %w", path, err)
	}

	lines := strings.Fields(string(data))
	if len(lines) < 6 {
		return nil, fmt.Errorf("TFW %s: expected 6 values, got %d", path, len(lines))
	}

	var vals [6]float64
	for i := range vals {
		v, err := strconv.ParseFloat(lines[i], 64)
		if err != nil {
			return nil, fmt.Errorf("TFW %s line %d: %w", path, i+1, err)
		}
		vals[i] = v
	}

	tfw := &TFW{
		PixelSizeX: vals[0],
		RotationY:  vals[1],
		RotationX:  vals[2],
		PixelSizeY: vals[3],
		OriginX:    vals[4],
		OriginY:    vals[5],
	}

	if tfw.RotationX != 0 || tfw.RotationY != 0 {
		return nil, fmt.Errorf("TFW %s: rotated world files are not supported (rotation: %f, %f)",
			path, tfw.RotationX, tfw.RotationY)
	}

	return tfw, nil
}

// WriteTFW writes the world file for g to path.
func WriteTFW(path string, g GeoInfo) error {
	t := TFWFromGeoInfo(g)
	var b strings.Builder
	for _, v := range []float64{t.PixelSizeX, t.RotationY, t.RotationX, t.PixelSizeY, t.OriginX, t.OriginY} {
		b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing TFW %s: %w", path, err)
	}
	return nil
}

// WorldFilePath returns the .tfw path that sits next to a TIFF.
func WorldFilePath(tiffPath string) string {
	return strings.TrimSuffix(tiffPath, filepath.Ext(tiffPath)) + ".tfw"
}

// findTFW looks for a world file alongside the given TIFF path.
// Checks extensions: .tfw, .TFW, .tifw, .TIFW
func findTFW(tiffPath string) string {
	ext := filepath.Ext(tiffPath)
	base := tiffPath[:len(tiffPath)-len(ext)]

	for _, c := range []string{".tfw", ".TFW", ".tifw", ".TIFW"} {
		p := base + c
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// TFWFromGeoInfo converts a corner-based GeoInfo into world file
// parameters, which reference the centre of the upper-left pixel.
func TFWFromGeoInfo(g GeoInfo) TFW {
	return TFW{
		PixelSizeX: g.PixelSizeX,
		PixelSizeY: -g.PixelSizeY,
		OriginX:    g.OriginX + g.PixelSizeX/2,
		OriginY:    g.OriginY - g.PixelSizeY/2,
	}
}

// GeoInfo converts TFW parameters into a corner-based GeoInfo. The EPSG
// code is left unset; world files do not carry one.
func (tfw *TFW) GeoInfo() GeoInfo {
	return GeoInfo{
		PixelSizeX: math.Abs(tfw.PixelSizeX),
		PixelSizeY: math.Abs(tfw.PixelSizeY),
		OriginX:    tfw.OriginX - math.Abs(tfw.PixelSizeX)/2,
		OriginY:    tfw.OriginY + math.Abs(tfw.PixelSizeY)/2,
	}
}

// inferEPSG guesses EPSG:4326 when the extent looks like geographic
// lon/lat and returns 0 otherwise.
func inferEPSG(info GeoInfo, width, height int) int {
	maxX := info.OriginX + float64(width)*info.PixelSizeX
	minY := info.OriginY - float64(height)*info.PixelSizeY

	if info.OriginX >= -180 && maxX <= 360 &&
		minY >= -90 && info.OriginY <= 90 {
		return 4326
	}
	return 0
}
