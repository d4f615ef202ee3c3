package raster

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DataType is the sample type of a raster band.
type DataType uint8

const (
	Uint8 DataType = iota + 1
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Uint64
	Int64
	Float32
	Float64
)

// TIFF SampleFormat values.
const (
	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3
)

// Size returns the sample size in bytes.
func (t DataType) Size() int {
	switch t {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Uint64, Int64, Float64:
		return 8
	default:
		return 0
	}
}

func (t DataType) String() string {
	switch t {
	case Uint8:
		return "uint8"
	case Int8:
		return "int8"
	case Uint16:
		return "uint16"
	case Int16:
		return "int16"
	case Uint32:
		return "uint32"
	case Int32:
		return "int32"
	case Uint64:
		return "uint64"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("DataType(%d)", uint8(t))
	}
}

func (t DataType) sampleFormat() uint16 {
	switch t {
	case Int8, Int16, Int32, Int64:
		return sampleFormatInt
	case Float32, Float64:
		return sampleFormatFloat
	default:
		return sampleFormatUint
	}
}

// dataTypeFor maps TIFF BitsPerSample/SampleFormat to a DataType.
func dataTypeFor(bits, format uint16) (DataType, error) {
	switch format {
	case 0, sampleFormatUint:
		switch bits {
		case 8:
			return Uint8, nil
		case 16:
			return Uint16, nil
		case 32:
			return Uint32, nil
		case 64:
			return Uint64, nil
		}
	case sampleFormatInt:
		switch bits {
		case 8:
			return Int8, nil
		case 16:
			return Int16, nil
		case 32:
			return Int32, nil
		case 64:
			return Int64, nil
		}
	case sampleFormatFloat:
		switch bits {
		case 32:
			return Float32, nil
		case 64:
			return Float64, nil
		}
	}
	return 0, fmt.Errorf("unsupported sample layout: %d bits, sample format %d", bits, format)
}

// Raster is an in-memory pixel-interleaved image. Samples are stored
// little-endian regardless of the source file's byte order.
type Raster struct {
	Width, Height int
	Bands         int
	Type          DataType
	Data          []byte

	// NoData is the GDAL_NODATA string, empty when unset.
	NoData string
}

// New allocates a zeroed raster.
func New(width, height, bands int, t DataType) *Raster {
	return &Raster{
		Width:  width,
		Height: height,
		Bands:  bands,
		Type:   t,
		Data:   make([]byte, width*height*bands*t.Size()),
	}
}

// PixelSize returns the number of bytes per pixel across all bands.
func (r *Raster) PixelSize() int {
	return r.Bands * r.Type.Size()
}

func (r *Raster) offset(x, y, band int) int {
	return ((y*r.Width+x)*r.Bands + band) * r.Type.Size()
}

// At returns the sample at (x, y, band) as float64. It panics when out of
// range, like slice indexing.
func (r *Raster) At(x, y, band int) float64 {
	return decodeSample(r.Data[r.offset(x, y, band):], r.Type)
}

// Set stores v at (x, y, band), converting to the raster's type. Integer
// types truncate toward zero.
func (r *Raster) Set(x, y, band int, v float64) {
	encodeSample(r.Data[r.offset(x, y, band):], r.Type, v)
}

func decodeSample(b []byte, t DataType) float64 {
	le := binary.LittleEndian
	switch t {
	case Uint8:
		return float64(b[0])
	case Int8:
		return float64(int8(b[0]))
	case Uint16:
		return float64(le.Uint16(b))
	case Int16:
		return float64(int16(le.Uint16(b)))
	case Uint32:
		return float64(le.Uint32(b))
	case Int32:
		return float64(int32(le.Uint32(b)))
	case Uint64:
		return float64(le.Uint64(b))
	case Int64:
		return float64(int64(le.Uint64(b)))
	case Float32:
		return float64(math.Float32frombits(le.Uint32(b)))
	case Float64:
		return math.Float64frombits(le.Uint64(b))
	}
	return math.NaN()
}

func encodeSample(b []byte, t DataType, v float64) {
	le := binary.LittleEndian
	switch t {
	case Uint8:
		b[0] = uint8(v)
	case Int8:
		b[0] = byte(int8(v))
	case Uint16:
		le.PutUint16(b, uint16(v))
	case Int16:
		le.PutUint16(b, uint16(int16(v)))
	case Uint32:
		le.PutUint32(b, uint32(v))
	case Int32:
		le.PutUint32(b, uint32(int32(v)))
	case Uint64:
		le.PutUint64(b, uint64(v))
	case Int64:
		le.PutUint64(b, uint64(int64(v)))
	case Float32:
		le.PutUint32(b, math.Float32bits(float32(v)))
	case Float64:
		le.PutUint64(b, math.Float64bits(v))
	}
}
