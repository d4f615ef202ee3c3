package raster

// GeoTIFF GeoKey IDs.
const (
	gkModelTypeGeoKey       = 1024
	gkRasterTypeGeoKey      = 1025
	gkGeographicTypeGeoKey  = 2048
	gkProjectedCSTypeGeoKey = 3072
)

const (
	modelTypeProjected  = 1
	modelTypeGeographic = 2
	rasterPixelIsArea   = 1
)

// GeoInfo is a north-up georeference: the upper-left corner of the
// upper-left pixel and positive pixel sizes in CRS units.
type GeoInfo struct {
	EPSG       int     // 0 when unknown
	OriginX    float64 // x of the upper-left corner
	OriginY    float64 // y of the upper-left corner
	PixelSizeX float64 // pixel width in CRS units (positive)
	PixelSizeY float64 // pixel height in CRS units (positive)
}

// Valid reports whether g carries a usable transform.
func (g GeoInfo) Valid() bool {
	return g.PixelSizeX > 0 && g.PixelSizeY > 0
}

// PixelToCRS maps a fractional pixel position (x right, y down) to CRS
// coordinates.
func (g GeoInfo) PixelToCRS(px, py float64) (x, y float64) {
	return g.OriginX + px*g.PixelSizeX, g.OriginY - py*g.PixelSizeY
}

// CRSToPixel is the inverse of PixelToCRS.
func (g GeoInfo) CRSToPixel(x, y float64) (px, py float64) {
	return (x - g.OriginX) / g.PixelSizeX, (g.OriginY - y) / g.PixelSizeY
}

// parseGeoInfo extracts geographic metadata from an IFD.
func parseGeoInfo(ifd *IFD) GeoInfo {
	info := GeoInfo{}

	// ModelPixelScale: [ScaleX, ScaleY, ScaleZ]
	if len(ifd.ModelPixelScale) >= 2 {
		info.PixelSizeX = ifd.ModelPixelScale[0]
		info.PixelSizeY = ifd.ModelPixelScale[1]
	}

	// ModelTiepoint: [I, J, K, X, Y, Z] maps pixel (I,J) to (X,Y).
	if len(ifd.ModelTiepoint) >= 6 {
		info.OriginX = ifd.ModelTiepoint[3] - ifd.ModelTiepoint[0]*info.PixelSizeX
		info.OriginY = ifd.ModelTiepoint[4] + ifd.ModelTiepoint[1]*info.PixelSizeY
	}

	info.EPSG = parseEPSG(ifd.GeoKeys)

	return info
}

// parseEPSG extracts the EPSG code from GeoKey directory entries.
func parseEPSG(geoKeys []uint16) int {
	if len(geoKeys) < 4 {
		return 0
	}

	// Header: [KeyDirectoryVersion, KeyRevision, MinorRevision, NumberOfKeys]
	numKeys := int(geoKeys[3])

	var geographic int
	for i := 0; i < numKeys; i++ {
		base := 4 + i*4
		if base+3 >= len(geoKeys) {
			break
		}
		keyID := geoKeys[base]
		location := geoKeys[base+1]
		valueOffset := geoKeys[base+3]
		if location != 0 || valueOffset == 0 || valueOffset == 32767 {
			continue // stored elsewhere or user-defined
		}

		switch keyID {
		case gkProjectedCSTypeGeoKey:
			return int(valueOffset)
		case gkGeographicTypeGeoKey:
			geographic = int(valueOffset)
		}
	}

	return geographic
}

// geoKeyDirectory encodes the minimal GeoKey directory for an EPSG code.
func geoKeyDirectory(epsg int) []uint16 {
	if epsg == 4326 || epsg == 0 {
		code := uint16(4326)
		return []uint16{
			1, 1, 0, 3,
			gkModelTypeGeoKey, 0, 1, modelTypeGeographic,
			gkRasterTypeGeoKey, 0, 1, rasterPixelIsArea,
			gkGeographicTypeGeoKey, 0, 1, code,
		}
	}
	return []uint16{
		1, 1, 0, 3,
		gkModelTypeGeoKey, 0, 1, modelTypeProjected,
		gkRasterTypeGeoKey, 0, 1, rasterPixelIsArea,
		gkProjectedCSTypeGeoKey, 0, 1, uint16(epsg),
	}
}
