package coord

// LV95 false origin (Bern) and its WGS84 position in arc seconds.
const (
	lv95East     = 2_600_000.0
	lv95North    = 1_200_000.0
	lv95BernLat  = 169028.66
	lv95BernLon  = 26782.5
	lv95AuxScale = 10000.0 // arc seconds per auxiliary unit
)

// SwissLV95 is CH1903+ / LV95 (EPSG:2056), using swisstopo's approximate
// polynomials. They hold to about a metre inside Switzerland, which is
// well below the footprint error of an unwarped scene.
type SwissLV95 struct{}

func (s *SwissLV95) EPSG() int { return 2056 }

func (s *SwissLV95) String() string { return "CH1903+ / LV95" }

// FromWGS84 returns LV95 easting and northing in metres.
func (s *SwissLV95) FromWGS84(lon, lat float64) (x, y float64) {
	phi := (lat*3600 - lv95BernLat) / lv95AuxScale
	lam := (lon*3600 - lv95BernLon) / lv95AuxScale

	x = 2_600_072.37 + lam*(211_455.93-10_938.51*phi-0.36*phi*phi-44.54*lam*lam)
	y = 1_200_147.07 + phi*(308_807.95+76.63*phi+119.79*phi*phi) + lam*lam*(3_745.25-194.56*phi)
	return x, y
}

// ToWGS84 inverts FromWGS84 with the companion swisstopo series.
func (s *SwissLV95) ToWGS84(x, y float64) (lon, lat float64) {
	e := (x - lv95East) / 1e6
	n := (y - lv95North) / 1e6

	lonAux := 2.6779094 + e*(4.728982+0.791484*n+0.1306*n*n-0.0436*e*e)
	latAux := 16.9023892 + n*(3.238272-0.002528*n-0.0140*n*n) - e*e*(0.270978+0.0447*n)

	// auxiliary units are 10000 arc seconds
	return lonAux * lv95AuxScale / 3600, latAux * lv95AuxScale / 3600
}
