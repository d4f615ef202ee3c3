package raster

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
)

// WriteOptions controls GeoTIFF output.
type WriteOptions struct {
	// Compression is "none" (default) or "deflate".
	Compression string
	// RowsPerStrip defaults to a strip of roughly 64 KiB.
	RowsPerStrip int
	// RPC, when it holds 92 values, is written as the RPCCoefficientTag.
	RPC []float64
}

// ParseCompression validates a compression name.
func ParseCompression(s string) (string, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return "none", nil
	case "deflate", "zlib":
		return "deflate", nil
	}
	return "", fmt.Errorf("unsupported compression %q (want none or deflate)", s)
}

type outEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte // little-endian payload
}

type entryList []outEntry

func (l *entryList) shorts(tag uint16, vals ...uint16) {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(b[2*i:], v)
	}
	*l = append(*l, outEntry{tag, dtShort, uint32(len(vals)), b})
}

func (l *entryList) longs(tag uint16, vals ...uint32) {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[4*i:], v)
	}
	*l = append(*l, outEntry{tag, dtLong, uint32(len(vals)), b})
}

func (l *entryList) doubles(tag uint16, vals ...float64) {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v))
	}
	*l = append(*l, outEntry{tag, dtDouble, uint32(len(vals)), b})
}

func (l *entryList) ascii(tag uint16, s string) {
	b := append([]byte(s), 0)
	*l = append(*l, outEntry{tag, dtASCII, uint32(len(b)), b})
}

// WriteGeoTIFF writes r as a little-endian, stripped, pixel-interleaved
// GeoTIFF georeferenced by geo. Files that would exceed the classic TIFF
// 4 GiB limit are rejected.
func WriteGeoTIFF(path string, r *Raster, geo GeoInfo, opts WriteOptions) error {
	compression, err := ParseCompression(opts.Compression)
	if err != nil {
		return err
	}
	if r.Width <= 0 || r.Height <= 0 || r.Bands <= 0 {
		return fmt.Errorf("invalid raster size %dx%dx%d", r.Width, r.Height, r.Bands)
	}
	if r.Type.Size() == 0 {
		return fmt.Errorf("invalid data type %v", r.Type)
	}
	ps := r.PixelSize()
	rowLen := r.Width * ps
	if len(r.Data) < rowLen*r.Height {
		return fmt.Errorf("raster data has %d bytes, want %d", len(r.Data), rowLen*r.Height)
	}

	rps := opts.RowsPerStrip
	if rps <= 0 {
		rps = max(1, (64<<10)/rowLen)
	}
	rps = min(rps, r.Height)
	nStrips := (r.Height + rps - 1) / rps

	// Encode strips up front so offsets are known before the IFD is built.
	strips := make([][]byte, nStrips)
	for i := range strips {
		lo := i * rps * rowLen
		hi := min((i+1)*rps, r.Height) * rowLen
		raw := r.Data[lo:hi]
		if compression == "deflate" {
			var buf bytes.Buffer
			zw := zlib.NewWriter(&buf)
			if _, err := zw.Write(raw); err != nil {
				return fmt.Errorf("compressing strip %d: %w", i, err)
			}
			if err := zw.Close(); err != nil {
				return fmt.Errorf("compressing strip %d: %w", i, err)
			}
			strips[i] = buf.Bytes()
		} else {
			strips[i] = raw
		}
	}

	offsets := make([]uint32, nStrips)
	counts := make([]uint32, nStrips)
	pos := uint64(8)
	for i, s := range strips {
		if pos > math.MaxUint32 {
			return fmt.Errorf("output exceeds 4 GiB; BigTIFF output is not supported")
		}
		offsets[i] = uint32(pos)
		counts[i] = uint32(len(s))
		pos += uint64(len(s))
	}
	pos += pos & 1 // IFD on a word boundary
	ifdOffset := pos

	var entries entryList
	entries.longs(tagImageWidth, uint32(r.Width))
	entries.longs(tagImageLength, uint32(r.Height))
	bits := make([]uint16, r.Bands)
	formats := make([]uint16, r.Bands)
	for i := range bits {
		bits[i] = uint16(8 * r.Type.Size())
		formats[i] = r.Type.sampleFormat()
	}
	entries.shorts(tagBitsPerSample, bits...)
	if compression == "deflate" {
		entries.shorts(tagCompression, compressionDeflate)
	} else {
		entries.shorts(tagCompression, compressionNone)
	}
	photometric, colorBands := uint16(1), 1 // MinIsBlack
	if r.Type == Uint8 && r.Bands >= 3 {
		photometric, colorBands = 2, 3 // RGB
	}
	entries.shorts(tagPhotometric, photometric)
	entries.longs(tagStripOffsets, offsets...)
	entries.shorts(tagSamplesPerPixel, uint16(r.Bands))
	entries.longs(tagRowsPerStrip, uint32(rps))
	entries.longs(tagStripByteCounts, counts...)
	entries.shorts(tagPlanarConfig, planarConfigContiguous)
	if extra := r.Bands - colorBands; extra > 0 {
		entries.shorts(tagExtraSamples, make([]uint16, extra)...)
	}
	entries.shorts(tagSampleFormat, formats...)
	if geo.Valid() {
		entries.doubles(tagModelPixelScaleTag, geo.PixelSizeX, geo.PixelSizeY, 0)
		entries.doubles(tagModelTiepointTag, 0, 0, 0, geo.OriginX, geo.OriginY, 0)
		entries.shorts(tagGeoKeyDirectoryTag, geoKeyDirectory(geo.EPSG)...)
	}
	if r.NoData != "" {
		entries.ascii(tagGDALNoData, r.NoData)
	}
	if len(opts.RPC) == RPCTagLen {
		entries.doubles(tagRPCCoefficient, opts.RPC...)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	// IFD: count, entries, next-IFD offset, then out-of-line values.
	ifdSize := uint64(2 + 12*len(entries) + 4)
	extPos := ifdOffset + ifdSize
	ifd := make([]byte, ifdSize)
	var ext []byte
	binary.LittleEndian.PutUint16(ifd, uint16(len(entries)))
	for i, e := range entries {
		b := ifd[2+12*i:]
		binary.LittleEndian.PutUint16(b[0:], e.tag)
		binary.LittleEndian.PutUint16(b[2:], e.typ)
		binary.LittleEndian.PutUint32(b[4:], e.count)
		if len(e.data) <= 4 {
			copy(b[8:12], e.data)
			continue
		}
		off := extPos + uint64(len(ext))
		if off > math.MaxUint32 {
			return fmt.Errorf("output exceeds 4 GiB; BigTIFF output is not supported")
		}
		binary.LittleEndian.PutUint32(b[8:], uint32(off))
		ext = append(ext, e.data...)
		if len(ext)%2 == 1 {
			ext = append(ext, 0)
		}
	}
	if extPos+uint64(len(ext)) > math.MaxUint32 {
		return fmt.Errorf("output exceeds 4 GiB; BigTIFF output is not supported")
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	w := bufio.NewWriterSize(f, 1<<20)

	var header [8]byte
	copy(header[:], "II")
	binary.LittleEndian.PutUint16(header[2:], 42)
	binary.LittleEndian.PutUint32(header[4:], uint32(ifdOffset))
	werr := writeAll(w, header[:])
	for _, s := range strips {
		if werr == nil {
			werr = writeAll(w, s)
		}
	}
	if werr == nil && (ifdOffset-8) > sumLen(strips) {
		werr = writeAll(w, []byte{0})
	}
	if werr == nil {
		werr = writeAll(w, ifd)
	}
	if werr == nil {
		werr = writeAll(w, ext)
	}
	if werr == nil {
		werr = w.Flush()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("writing %s: %w", path, werr)
	}
	return nil
}

func writeAll(w *bufio.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}

func sumLen(chunks [][]byte) uint64 {
	var n uint64
	for _, c := range chunks {
		n += uint64(len(c))
	}
	return n
}
