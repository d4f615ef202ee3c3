package rpc

import (
	"strconv"
	"strings"
)

// NumCoefficients is the number of terms in each cubic rational polynomial.
const NumCoefficients = 20

// tiffTagLen is the number of doubles in a GeoTIFF RPCCoefficientTag (50844).
const tiffTagLen = 12 + 4*NumCoefficients

// Coefficients holds the normalisation offsets/scales and the four
// coefficient vectors of an RPC model.
type Coefficients struct {
	LineOffset, SampOffset             float64
	LatOffset, LonOffset, HeightOffset float64
	LineScale, SampScale               float64
	LatScale, LonScale, HeightScale    float64
	LineNum, LineDen, SampNum, SampDen [NumCoefficients]float64
	ErrBias, ErrRand                   float64 // informational only
}

// Model is an RPC forward model. It is immutable and safe for concurrent use.
type Model struct {
	c Coefficients
}

// NewModel builds a Model from parsed metadata.
//
// Missing offsets default to 0 and missing scales to 1. The four coefficient
// vectors are required and must hold exactly NumCoefficients values each.
func NewModel(md *Metadata) (*Model, error) {
	var c Coefficients
	var err error

	scalars := []struct {
		key string
		def float64
		dst *float64
	}{
		{KeyLineOffset, 0, &c.LineOffset},
		{KeySampOffset, 0, &c.SampOffset},
		{KeyLatOffset, 0, &c.LatOffset},
		{KeyLonOffset, 0, &c.LonOffset},
		{KeyHeightOffset, 0, &c.HeightOffset},
		{KeyLineScale, 1, &c.LineScale},
		{KeySampScale, 1, &c.SampScale},
		{KeyLatScale, 1, &c.LatScale},
		{KeyLonScale, 1, &c.LonScale},
		{KeyHeightScale, 1, &c.HeightScale},
	}
	for _, s := range scalars {
		if *s.dst, err = md.scalar(s.key, s.def); err != nil {
			return nil, err
		}
	}
	c.ErrBias = md.Scalars[KeyErrBias]
	c.ErrRand = md.Scalars[KeyErrRand]

	vectors := []struct {
		key string
		dst *[NumCoefficients]float64
	}{
		{KeyLineNum, &c.LineNum},
		{KeyLineDen, &c.LineDen},
		{KeySampNum, &c.SampNum},
		{KeySampDen, &c.SampDen},
	}
	raw := make([][]float64, len(vectors))
	for i, v := range vectors {
		if raw[i], err = md.vector(v.key); err != nil {
			return nil, err
		}
	}
	for i, v := range vectors {
		if len(raw[i]) != NumCoefficients {
			return nil, malformed("coefficient vector length: %s has %d values, want %d",
				v.key, len(raw[i]), NumCoefficients)
		}
		copy(v.dst[:], raw[i])
	}

	return NewModelFromCoefficients(c)
}

// NewModelFromCoefficients validates c and wraps it in a Model.
func NewModelFromCoefficients(c Coefficients) (*Model, error) {
	scales := []struct {
		key string
		v   float64
	}{
		{KeyLineScale, c.LineScale},
		{KeySampScale, c.SampScale},
		{KeyLatScale, c.LatScale},
		{KeyLonScale, c.LonScale},
		{KeyHeightScale, c.HeightScale},
	}
	for _, s := range scales {
		if s.v == 0 {
			return nil, malformed("zero %s", s.key)
		}
	}
	return &Model{c: c}, nil
}

// FromTIFFTag builds a Model from the 92 doubles of a GeoTIFF
// RPCCoefficientTag: ERR_BIAS, ERR_RAND, LINE_OFF, SAMP_OFF, LAT_OFF,
// LONG_OFF, HEIGHT_OFF, LINE_SCALE, SAMP_SCALE, LAT_SCALE, LONG_SCALE,
// HEIGHT_SCALE, then line numerator, line denominator, sample numerator and
// sample denominator.
func FromTIFFTag(vals []float64) (*Model, error) {
	if len(vals) != tiffTagLen {
		return nil, malformed("coefficient vector length: RPC tag has %d values, want %d", len(vals), tiffTagLen)
	}
	c := Coefficients{
		ErrBias:      vals[0],
		ErrRand:      vals[1],
		LineOffset:   vals[2],
		SampOffset:   vals[3],
		LatOffset:    vals[4],
		LonOffset:    vals[5],
		HeightOffset: vals[6],
		LineScale:    vals[7],
		SampScale:    vals[8],
		LatScale:     vals[9],
		LonScale:     vals[10],
		HeightScale:  vals[11],
	}
	copy(c.LineNum[:], vals[12:32])
	copy(c.LineDen[:], vals[32:52])
	copy(c.SampNum[:], vals[52:72])
	copy(c.SampDen[:], vals[72:92])
	return NewModelFromCoefficients(c)
}

// TIFFTag returns the model in RPCCoefficientTag order; see FromTIFFTag.
func (m *Model) TIFFTag() []float64 {
	c := &m.c
	vals := make([]float64, 0, tiffTagLen)
	vals = append(vals,
		c.ErrBias, c.ErrRand,
		c.LineOffset, c.SampOffset, c.LatOffset, c.LonOffset, c.HeightOffset,
		c.LineScale, c.SampScale, c.LatScale, c.LonScale, c.HeightScale)
	vals = append(vals, c.LineNum[:]...)
	vals = append(vals, c.LineDen[:]...)
	vals = append(vals, c.SampNum[:]...)
	vals = append(vals, c.SampDen[:]...)
	return vals
}

// Coefficients returns a copy of the model's coefficients.
func (m *Model) Coefficients() Coefficients {
	return m.c
}

// Center returns the scene centre (LAT_OFFSET, LONG_OFFSET, HEIGHT_OFFSET).
func (m *Model) Center() (lat, lon, height float64) {
	return m.c.LatOffset, m.c.LonOffset, m.c.HeightOffset
}

func (m *Metadata) scalar(key string, def float64) (float64, error) {
	if v, ok := m.Scalars[key]; ok {
		return v, nil
	}
	if s, ok := m.Text[key]; ok {
		return 0, malformed("invalid %s: %q is not a number", key, s)
	}
	if v, ok := m.Vectors[key]; ok {
		return 0, malformed("invalid %s: expected a scalar, got %d values", key, len(v))
	}
	return def, nil
}

func (m *Metadata) vector(key string) ([]float64, error) {
	if v, ok := m.Vectors[key]; ok {
		return v, nil
	}
	if v, ok := m.Scalars[key]; ok {
		return []float64{v}, nil
	}
	if s, ok := m.Text[key]; ok {
		// GDAL metadata style: whitespace-separated values in one string.
		fields := strings.Fields(s)
		out := make([]float64, 0, len(fields))
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, malformed("invalid coefficient for %s: %q", key, f)
			}
			out = append(out, v)
		}
		return out, nil
	}
	return nil, malformed("missing %s", key)
}
