package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/exp/mmap"
)

// Reader provides chunk-level access to a TIFF/GeoTIFF file.
// The file is memory-mapped, so concurrent reads need no locking.
type Reader struct {
	ra    *mmap.ReaderAt
	bo    binary.ByteOrder
	ifd   IFD
	geo   GeoInfo
	dtype DataType
	path  string
}

// Open memory-maps a TIFF or BigTIFF file and parses its first IFD.
func Open(path string) (*Reader, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if ra.Len() == 0 {
		ra.Close()
		return nil, fmt.Errorf("%s: empty file", path)
	}

	ifd, bo, err := parseTIFF(io.NewSectionReader(ra, 0, int64(ra.Len())))
	if err != nil {
		ra.Close()
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	dtype, err := validate(&ifd)
	if err != nil {
		ra.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	geo := parseGeoInfo(&ifd)
	if !geo.Valid() {
		if tfwPath := findTFW(path); tfwPath != "" {
			tfw, err := ReadTFW(tfwPath)
			if err != nil {
				ra.Close()
				return nil, err
			}
			epsg := geo.EPSG
			geo = tfw.GeoInfo()
			geo.EPSG = epsg
			if geo.EPSG == 0 {
				geo.EPSG = inferEPSG(geo, int(ifd.Width), int(ifd.Height))
			}
		}
	}

	return &Reader{
		ra:    ra,
		bo:    bo,
		ifd:   ifd,
		geo:   geo,
		dtype: dtype,
		path:  path,
	}, nil
}

// validate rejects layouts the reader cannot decode and returns the
// sample type.
func validate(ifd *IFD) (DataType, error) {
	if ifd.Width == 0 || ifd.Height == 0 {
		return 0, fmt.Errorf("image has zero size %dx%d", ifd.Width, ifd.Height)
	}
	if ifd.PlanarConfig != planarConfigContiguous && ifd.SamplesPerPixel > 1 {
		return 0, fmt.Errorf("planar configuration %d not supported", ifd.PlanarConfig)
	}
	if len(ifd.BitsPerSample) == 0 {
		ifd.BitsPerSample = []uint16{1}
	}
	for _, b := range ifd.BitsPerSample {
		if b != ifd.BitsPerSample[0] {
			return 0, fmt.Errorf("mixed bits per sample %v not supported", ifd.BitsPerSample)
		}
	}
	var format uint16
	if len(ifd.SampleFormat) > 0 {
		format = ifd.SampleFormat[0]
	}
	dtype, err := dataTypeFor(ifd.BitsPerSample[0], format)
	if err != nil {
		return 0, err
	}

	switch ifd.Compression {
	case compressionNone, compressionLZW, compressionDeflate, compressionDeflateOld:
	default:
		return 0, fmt.Errorf("unsupported compression: %d", ifd.Compression)
	}
	if ifd.Predictor != predictorNone && ifd.Predictor != predictorHorizontal {
		return 0, fmt.Errorf("unsupported predictor: %d", ifd.Predictor)
	}
	if ifd.Predictor == predictorHorizontal && dtype.sampleFormat() == sampleFormatFloat {
		return 0, fmt.Errorf("horizontal predictor on floating point samples not supported")
	}

	chunks := ifd.ChunksAcross() * ifd.ChunksDown()
	if len(ifd.Offsets) < chunks || len(ifd.ByteCounts) < chunks {
		return 0, fmt.Errorf("have %d offsets and %d byte counts for %d chunks",
			len(ifd.Offsets), len(ifd.ByteCounts), chunks)
	}
	return dtype, nil
}

// Close unmaps the file.
func (r *Reader) Close() error {
	if r.ra != nil {
		err := r.ra.Close()
		r.ra = nil
		return err
	}
	return nil
}

// Path returns the file path.
func (r *Reader) Path() string { return r.path }

// Width returns the image width in pixels.
func (r *Reader) Width() int { return int(r.ifd.Width) }

// Height returns the image height in pixels.
func (r *Reader) Height() int { return int(r.ifd.Height) }

// Bands returns the number of samples per pixel.
func (r *Reader) Bands() int { return int(r.ifd.SamplesPerPixel) }

// DataType returns the sample type.
func (r *Reader) DataType() DataType { return r.dtype }

// GeoInfo returns the georeference from GeoTIFF tags or a world file.
func (r *Reader) GeoInfo() GeoInfo { return r.geo }

// EPSG returns the detected EPSG code, 0 if unknown.
func (r *Reader) EPSG() int { return r.geo.EPSG }

// Compression returns the TIFF compression tag value.
func (r *Reader) Compression() int { return int(r.ifd.Compression) }

// Tiled reports whether the file stores tiles rather than strips.
func (r *Reader) Tiled() bool { return r.ifd.Tiled() }

// ChunkSize returns the dimensions of one tile or strip.
func (r *Reader) ChunkSize() (w, h int) { return r.ifd.ChunkSize() }

// RPCTag returns the 92 values of the RPCCoefficientTag, or nil.
func (r *Reader) RPCTag() []float64 { return r.ifd.RPC }

// NoDataString returns the raw GDAL_NODATA value, empty when unset.
func (r *Reader) NoDataString() string { return r.ifd.NoData }

// NoData returns the parsed GDAL_NODATA value.
func (r *Reader) NoData() (float64, bool) {
	if r.ifd.NoData == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(r.ifd.NoData), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// pixelSize is the number of bytes per pixel.
func (r *Reader) pixelSize() int {
	return r.Bands() * r.dtype.Size()
}

// chunkRows returns the number of rows stored in chunk idx. Only the last
// strip of a stripped image can be short; tiles are always full.
func (r *Reader) chunkRows(idx int) int {
	_, ch := r.ifd.ChunkSize()
	if r.ifd.Tiled() {
		return ch
	}
	rows := int(r.ifd.Height) - idx*ch
	if rows > ch {
		rows = ch
	}
	return rows
}

// ChunkIndex locates pixel (x, y) in the chunk grid.
func (r *Reader) ChunkIndex(x, y int) (idx, localX, localY int) {
	cw, ch := r.ifd.ChunkSize()
	col, row := x/cw, y/ch
	return row*r.ifd.ChunksAcross() + col, x % cw, y % ch
}

// ReadChunk reads and decodes one tile or strip. The result holds
// chunkWidth*rows pixels with little-endian samples.
func (r *Reader) ReadChunk(idx int) ([]byte, error) {
	if idx < 0 || idx >= r.ifd.ChunksAcross()*r.ifd.ChunksDown() {
		return nil, fmt.Errorf("chunk %d out of range", idx)
	}
	cw, _ := r.ifd.ChunkSize()
	rows := r.chunkRows(idx)
	want := cw * rows * r.pixelSize()

	offset, size := r.ifd.Offsets[idx], r.ifd.ByteCounts[idx]
	if size == 0 {
		// Sparse chunk.
		return make([]byte, want), nil
	}
	if offset+size > uint64(r.ra.Len()) {
		return nil, fmt.Errorf("chunk %d data [%d:%d] exceeds file size %d", idx, offset, offset+size, r.ra.Len())
	}
	raw := make([]byte, size)
	if _, err := r.ra.ReadAt(raw, int64(offset)); err != nil {
		return nil, fmt.Errorf("reading chunk %d: %w", idx, err)
	}

	var data []byte
	switch r.ifd.Compression {
	case compressionNone:
		data = raw
	case compressionLZW:
		var err error
		if data, err = lzwDecode(raw, want); err != nil {
			return nil, fmt.Errorf("decoding LZW chunk %d: %w", idx, err)
		}
	case compressionDeflate, compressionDeflateOld:
		z, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("creating zlib reader for chunk %d: %w", idx, err)
		}
		data, err = io.ReadAll(z)
		z.Close()
		if err != nil {
			return nil, fmt.Errorf("inflating chunk %d: %w", idx, err)
		}
	}

	if len(data) < want {
		return nil, fmt.Errorf("chunk %d: decoded %d bytes, want %d", idx, len(data), want)
	}
	data = data[:want]

	if r.bo != binary.LittleEndian {
		swapToLittleEndian(data, r.dtype.Size())
	}
	if r.ifd.Predictor == predictorHorizontal {
		undoHorizontalPredictor(data, cw, rows, r.Bands(), r.dtype.Size())
	}
	return data, nil
}

// ReadAll decodes the whole image into memory.
func (r *Reader) ReadAll() (*Raster, error) {
	out := New(r.Width(), r.Height(), r.Bands(), r.dtype)
	out.NoData = r.ifd.NoData
	ps := r.pixelSize()
	cw, ch := r.ifd.ChunkSize()
	across, down := r.ifd.ChunksAcross(), r.ifd.ChunksDown()

	for row := 0; row < down; row++ {
		for col := 0; col < across; col++ {
			idx := row*across + col
			chunk, err := r.ReadChunk(idx)
			if err != nil {
				return nil, err
			}
			x0, y0 := col*cw, row*ch
			w := min(cw, r.Width()-x0)
			h := min(r.chunkRows(idx), r.Height()-y0)
			for y := 0; y < h; y++ {
				src := chunk[y*cw*ps : y*cw*ps+w*ps]
				dst := out.Data[((y0+y)*r.Width()+x0)*ps:]
				copy(dst[:w*ps], src)
			}
		}
	}
	return out, nil
}

// Sample reads one sample without caching. See ChunkCache for repeated
// random access.
func (r *Reader) Sample(x, y, band int) (float64, error) {
	if x < 0 || y < 0 || x >= r.Width() || y >= r.Height() || band < 0 || band >= r.Bands() {
		return 0, fmt.Errorf("pixel (%d, %d) band %d outside %dx%dx%d", x, y, band, r.Width(), r.Height(), r.Bands())
	}
	idx, lx, ly := r.ChunkIndex(x, y)
	chunk, err := r.ReadChunk(idx)
	if err != nil {
		return 0, err
	}
	return r.sampleInChunk(chunk, lx, ly, band), nil
}

func (r *Reader) sampleInChunk(chunk []byte, lx, ly, band int) float64 {
	cw, _ := r.ifd.ChunkSize()
	off := (ly*cw+lx)*r.pixelSize() + band*r.dtype.Size()
	return decodeSample(chunk[off:], r.dtype)
}

func swapToLittleEndian(data []byte, size int) {
	if size <= 1 {
		return
	}
	for i := 0; i+size <= len(data); i += size {
		for a, b := i, i+size-1; a < b; a, b = a+1, b-1 {
			data[a], data[b] = data[b], data[a]
		}
	}
}

// undoHorizontalPredictor reverses TIFF predictor 2 on little-endian
// integer samples: each sample is stored as the difference from the same
// band of the previous pixel in the row.
func undoHorizontalPredictor(data []byte, width, rows, bands, size int) {
	le := binary.LittleEndian
	rowLen := width * bands * size
	stride := bands * size
	for y := 0; y < rows; y++ {
		row := data[y*rowLen : (y+1)*rowLen]
		for i := stride; i+size <= len(row); i += size {
			p := i - stride
			switch size {
			case 1:
				row[i] += row[p]
			case 2:
				le.PutUint16(row[i:], le.Uint16(row[i:])+le.Uint16(row[p:]))
			case 4:
				le.PutUint32(row[i:], le.Uint32(row[i:])+le.Uint32(row[p:]))
			case 8:
				le.PutUint64(row[i:], le.Uint64(row[i:])+le.Uint64(row[p:]))
			}
		}
	}
}
