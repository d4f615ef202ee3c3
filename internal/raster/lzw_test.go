package raster

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// packCodes writes 9-bit codes MSB first. Only valid while the decoder's
// table stays below 511 entries.
func packCodes(codes ...int) []byte {
	var out []byte
	var acc uint32
	var n uint
	for _, c := range codes {
		acc = acc<<9 | uint32(c)
		n += 9
		for n >= 8 {
			n -= 8
			out = append(out, byte(acc>>n))
		}
	}
	if n > 0 {
		out = append(out, byte(acc<<(8-n)))
	}
	return out
}

func TestLZWDecode(t *testing.T) {
	tests := []struct {
		name  string
		codes []int
		want  []byte
	}{
		{"literals", []int{lzwClear, 'a', 'b', 'c', lzwEOI}, []byte("abc")},
		// 258 is defined by the code that references it.
		{"kwkwk", []int{lzwClear, 'a', 258, lzwEOI}, []byte("aaa")},
		{"table reuse", []int{lzwClear, 'a', 'b', 258, 260, lzwEOI}, []byte("abababa")},
		{"missing eoi", []int{lzwClear, 'x', 'y'}, []byte("xy")},
		{"clear resets", []int{lzwClear, 'a', 'b', lzwClear, 'c', 258, lzwEOI}, []byte("abccc")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lzwDecode(packCodes(tt.codes...), len(tt.want))
			if err != nil {
				t.Fatalf("lzwDecode: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("lzwDecode = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLZWDecodeLongLiteralRun(t *testing.T) {
	codes := []int{lzwClear}
	var want []byte
	for i := 0; i < 200; i++ {
		b := byte(i*37 + 11)
		codes = append(codes, int(b))
		want = append(want, b)
	}
	codes = append(codes, lzwEOI)
	got, err := lzwDecode(packCodes(codes...), len(want))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Error("decoded literal run differs")
	}
}

func TestLZWDecodeInvalidCode(t *testing.T) {
	if _, err := lzwDecode(packCodes(lzwClear, 'a', 300, lzwEOI), 4); err == nil {
		t.Error("code beyond the table should fail")
	}
	if _, err := lzwDecode(packCodes(lzwClear, 259), 4); err == nil {
		t.Error("first code must be a literal")
	}
}

func TestUndoHorizontalPredictor(t *testing.T) {
	// Two bands of uint16, three pixels per row, two rows.
	diffs := []uint16{
		10, 100, 1, 5, 1, 5,
		7, 0, 0xFFFF, 2, 3, 2,
	}
	want := []uint16{
		10, 100, 11, 105, 12, 110,
		7, 0, 6, 2, 9, 4,
	}
	data := make([]byte, 2*len(diffs))
	for i, v := range diffs {
		binary.LittleEndian.PutUint16(data[2*i:], v)
	}
	undoHorizontalPredictor(data, 3, 2, 2, 2)
	for i, w := range want {
		if got := binary.LittleEndian.Uint16(data[2*i:]); got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
}

func TestSwapToLittleEndian(t *testing.T) {
	data := []byte{0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC, 0xDE, 0xF0}
	swapToLittleEndian(data, 4)
	want := []byte{0x78, 0x56, 0x34, 0x12, 0xF0, 0xDE, 0xBC, 0x9A}
	if !bytes.Equal(data, want) {
		t.Errorf("swap = %x, want %x", data, want)
	}
	one := []byte{1, 2, 3}
	swapToLittleEndian(one, 1)
	if !bytes.Equal(one, []byte{1, 2, 3}) {
		t.Error("single byte samples must be untouched")
	}
}
