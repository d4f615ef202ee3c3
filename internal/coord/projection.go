package coord

// Projection converts between a projected CRS and WGS84.
type Projection interface {
	// ToWGS84 converts CRS coordinates to WGS84 longitude/latitude (degrees).
	ToWGS84(x, y float64) (lon, lat float64)

	// FromWGS84 converts WGS84 longitude/latitude (degrees) to CRS coordinates.
	FromWGS84(lon, lat float64) (x, y float64)

	// EPSG returns the EPSG code for this projection.
	EPSG() int
}

// ForEPSG returns a Projection for the given EPSG code.
// Supported: 4326, 3857, 2056 and the WGS84 UTM zones 32601-32660 / 32701-32760.
// Returns nil if the EPSG code is not supported.
func ForEPSG(epsg int) Projection {
	switch {
	case epsg == 4326:
		return &WGS84Identity{}
	case epsg == 3857:
		return &WebMercatorProj{}
	case epsg == 2056:
		return &SwissLV95{}
	case epsg >= 32601 && epsg <= 32660:
		return NewUTM(epsg-32600, false)
	case epsg >= 32701 && epsg <= 32760:
		return NewUTM(epsg-32700, true)
	default:
		return nil
	}
}

// WGS84Identity is a no-op projection for EPSG:4326 (x = lon, y = lat).
type WGS84Identity struct{}

func (w *WGS84Identity) ToWGS84(x, y float64) (lon, lat float64) { return x, y }
func (w *WGS84Identity) FromWGS84(lon, lat float64) (x, y float64) { return lon, lat }
func (w *WGS84Identity) EPSG() int { return 4326 }
