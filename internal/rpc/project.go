package rpc

import "math"

// DenominatorEpsilon is the smallest denominator magnitude Project accepts.
const DenominatorEpsilon = 1e-12

// Normalize maps ground coordinates into the model's normalized space.
// Values outside [-1, 1] are returned as-is.
func (m *Model) Normalize(lat, lon, h float64) (latN, lonN, hN float64) {
	c := &m.c
	return (lat - c.LatOffset) / c.LatScale,
		(lon - c.LonOffset) / c.LonScale,
		(h - c.HeightOffset) / c.HeightScale
}

// terms expands normalized (lat, lon, h) into the 20 cubic monomials in
// RPC00B order.
func terms(lat, lon, h float64) [NumCoefficients]float64 {
	return [NumCoefficients]float64{
		1,
		lat,
		lon,
		h,
		lat * lon,
		lat * h,
		lon * h,
		lat * lat,
		lon * lon,
		h * h,
		lon * lat * h,
		lat * lat * lat,
		lat * lon * lon,
		lat * h * h,
		lon * lon * lon,
		lon * lat * lat,
		lon * h * h,
		h * h * h,
		h * lat * lat,
		h * lon * lon,
	}
}

func dot(a, b *[NumCoefficients]float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// Project maps a ground point (degrees, metres) to image (line, sample).
//
// A denominator whose magnitude is below DenominatorEpsilon, or a non-finite
// result, yields a *DegenerateError.
func (m *Model) Project(lat, lon, h float64) (line, sample float64, err error) {
	latN, lonN, hN := m.Normalize(lat, lon, h)
	t := terms(latN, lonN, hN)

	c := &m.c
	lineDen := dot(&c.LineDen, &t)
	if !(math.Abs(lineDen) >= DenominatorEpsilon) {
		return 0, 0, &DegenerateError{Lat: lat, Lon: lon, Height: h, Axis: "line"}
	}
	sampDen := dot(&c.SampDen, &t)
	if !(math.Abs(sampDen) >= DenominatorEpsilon) {
		return 0, 0, &DegenerateError{Lat: lat, Lon: lon, Height: h, Axis: "sample"}
	}

	line = dot(&c.LineNum, &t)/lineDen*c.LineScale + c.LineOffset
	sample = dot(&c.SampNum, &t)/sampDen*c.SampScale + c.SampOffset
	if math.IsNaN(line) || math.IsInf(line, 0) {
		return 0, 0, &DegenerateError{Lat: lat, Lon: lon, Height: h, Axis: "line"}
	}
	if math.IsNaN(sample) || math.IsInf(sample, 0) {
		return 0, 0, &DegenerateError{Lat: lat, Lon: lon, Height: h, Axis: "sample"}
	}
	return line, sample, nil
}
