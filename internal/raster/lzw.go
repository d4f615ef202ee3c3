package raster

import (
	"errors"
	"io"
)

// TIFF LZW differs from compress/lzw: codes are MSB-first and the code
// width grows one code early ("early change"), so the standard library
// decoder rejects TIFF streams.

const (
	lzwClear    = 256
	lzwEOI      = 257
	lzwFirst    = 258
	lzwMaxWidth = 12
	lzwTableLen = 1 << lzwMaxWidth
)

var errLZWCode = errors.New("lzw: invalid code")

// msbBits reads variable-width codes most significant bit first.
type msbBits struct {
	src   []byte
	pos   int    // next byte in src
	acc   uint32 // pending bits, right-aligned
	nbits uint
}

func (b *msbBits) read(width uint) (int, error) {
	for b.nbits < width {
		if b.pos >= len(b.src) {
			return 0, io.ErrUnexpectedEOF
		}
		b.acc = b.acc<<8 | uint32(b.src[b.pos])
		b.pos++
		b.nbits += 8
	}
	b.nbits -= width
	code := int(b.acc>>b.nbits) & (1<<width - 1)
	return code, nil
}

// lzwDecode expands a TIFF LZW chunk. sizeHint pre-sizes the output.
func lzwDecode(src []byte, sizeHint int) ([]byte, error) {
	var (
		prefix [lzwTableLen]uint16
		suffix [lzwTableLen]byte
		first  [lzwTableLen]byte // first byte of each code's string
		length [lzwTableLen]uint16
	)
	for i := 0; i < 256; i++ {
		suffix[i] = byte(i)
		first[i] = byte(i)
		length[i] = 1
	}

	out := make([]byte, 0, sizeHint)
	bits := &msbBits{src: src}
	width := uint(9)
	next := lzwFirst
	prev := -1

	// emit appends the string for code, walking the prefix chain backwards.
	emit := func(code int) {
		n := int(length[code])
		start := len(out)
		for i := 0; i < n; i++ {
			out = append(out, 0)
		}
		for i := start + n - 1; i >= start; i-- {
			out[i] = suffix[code]
			code = int(prefix[code])
		}
	}

	for {
		code, err := bits.read(width)
		if err != nil {
			// Some writers omit EOI at the end of the chunk.
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return out, nil
			}
			return nil, err
		}

		switch {
		case code == lzwEOI:
			return out, nil
		case code == lzwClear:
			width, next, prev = 9, lzwFirst, -1
			continue
		case prev < 0:
			if code > 255 {
				return nil, errLZWCode
			}
			out = append(out, byte(code))
			prev = code
			continue
		}

		var head byte
		switch {
		case code < next:
			head = first[code]
			emit(code)
		case code == next:
			// The code being defined right now: prev's string plus its own
			// first byte.
			head = first[prev]
			emit(prev)
			out = append(out, head)
		default:
			return nil, errLZWCode
		}

		if next < lzwTableLen {
			prefix[next] = uint16(prev)
			suffix[next] = head
			first[next] = first[prev]
			length[next] = length[prev] + 1
			next++
		}
		if next+1 >= 1<<width && width < lzwMaxWidth {
			width++
		}
		prev = code
	}
}
