package coord

import (
	"fmt"
	"math"
)

// WGS84 ellipsoid.
const (
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563
)

const (
	utmK0         = 0.9996
	utmFalseEast  = 500000.0
	utmFalseNorth = 10000000.0 // southern hemisphere only
)

// Krüger series coefficients to third order in the third flattening n.
var (
	utmN     = wgs84F / (2 - wgs84F)
	utmRectA = wgs84A / (1 + utmN) * (1 + utmN*utmN/4 + math.Pow(utmN, 4)/64)
	utmE     = 2 * math.Sqrt(utmN) / (1 + utmN) // first eccentricity

	utmAlpha = [3]float64{
		utmN/2 - 2*utmN*utmN/3 + 5*math.Pow(utmN, 3)/16,
		13*utmN*utmN/48 - 3*math.Pow(utmN, 3)/5,
		61 * math.Pow(utmN, 3) / 240,
	}
	utmBeta = [3]float64{
		utmN/2 - 2*utmN*utmN/3 + 37*math.Pow(utmN, 3)/96,
		utmN*utmN/48 + math.Pow(utmN, 3)/15,
		17 * math.Pow(utmN, 3) / 480,
	}
	utmDelta = [3]float64{
		2*utmN - 2*utmN*utmN/3 - 2*math.Pow(utmN, 3),
		7*utmN*utmN/3 - 8*math.Pow(utmN, 3)/5,
		56 * math.Pow(utmN, 3) / 15,
	}
)

// UTM is a WGS84 Universal Transverse Mercator zone (EPSG:326zz / 327zz).
type UTM struct {
	Zone  int
	South bool

	lon0 float64 // central meridian, radians
}

// NewUTM returns the projection for zone 1-60 in the given hemisphere.
func NewUTM(zone int, south bool) *UTM {
	return &UTM{
		Zone:  zone,
		South: south,
		lon0:  float64((zone-1)*6-180+3) * math.Pi / 180,
	}
}

func (u *UTM) EPSG() int {
	if u.South {
		return 32700 + u.Zone
	}
	return 32600 + u.Zone
}

func (u *UTM) String() string {
	h := "N"
	if u.South {
		h = "S"
	}
	return fmt.Sprintf("UTM %d%s", u.Zone, h)
}

func (u *UTM) FromWGS84(lon, lat float64) (x, y float64) {
	phi := lat * math.Pi / 180
	dLon := lon*math.Pi/180 - u.lon0

	sinPhi := math.Sin(phi)
	t := math.Sinh(math.Atanh(sinPhi) - utmE*math.Atanh(utmE*sinPhi))
	xiP := math.Atan2(t, math.Cos(dLon))
	etaP := math.Atanh(math.Sin(dLon) / math.Sqrt(1+t*t))

	xi, eta := xiP, etaP
	for j, a := range utmAlpha {
		k := 2 * float64(j+1)
		xi += a * math.Sin(k*xiP) * math.Cosh(k*etaP)
		eta += a * math.Cos(k*xiP) * math.Sinh(k*etaP)
	}

	x = utmFalseEast + utmK0*utmRectA*eta
	y = utmK0 * utmRectA * xi
	if u.South {
		y += utmFalseNorth
	}
	return x, y
}

func (u *UTM) ToWGS84(x, y float64) (lon, lat float64) {
	if u.South {
		y -= utmFalseNorth
	}
	xi := y / (utmK0 * utmRectA)
	eta := (x - utmFalseEast) / (utmK0 * utmRectA)

	xiP, etaP := xi, eta
	for j, b := range utmBeta {
		k := 2 * float64(j+1)
		xiP -= b * math.Sin(k*xi) * math.Cosh(k*eta)
		etaP -= b * math.Cos(k*xi) * math.Sinh(k*eta)
	}

	chi := math.Asin(math.Sin(xiP) / math.Cosh(etaP))
	phi := chi
	for j, d := range utmDelta {
		phi += d * math.Sin(2*float64(j+1)*chi)
	}
	lam := u.lon0 + math.Atan2(math.Sinh(etaP), math.Cos(xiP))

	return lam * 180 / math.Pi, phi * 180 / math.Pi
}

// UTMZoneEPSG returns the EPSG code of the standard UTM zone containing
// (lon, lat). The Norway and Svalbard exceptions are not applied.
func UTMZoneEPSG(lon, lat float64) int {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	zone := int(lon/6) + 1
	if zone > 60 {
		zone = 60
	}
	if lat < 0 {
		return 32700 + zone
	}
	return 32600 + zone
}
