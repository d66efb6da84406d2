package printer

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"testing"

	"tomgalvin.uk/labelprint/internal/bitmap"
	"tomgalvin.uk/labelprint/internal/layout"
)

func aFilledBuffer(t *testing.T, width, height int, ink bool) *bitmap.Buffer {
	t.Helper()
	b, err := bitmap.New(width, height)
	if err != nil {
		t.Fatalf("Couldn't create buffer: %v", err)
	}
	for y := range height {
		for x := range width {
			b.Set(x, y, ink)
		}
	}
	return b
}

func TestEncodeHeader(t *testing.T) {
	f, err := Encode(aFilledBuffer(t, 96, 320, false), layout.New(layout.Standard))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	expected := []byte{0x1f, 0x11, 0x24, 0x00, 0x1b, 0x40, 0x1d, 0x76, 0x30, 0x00, 0x0c, 0x00, 0x40, 0x01}
	if !bytes.Equal(f[:headerLength], expected) {
		t.Errorf("Unexpected header % x", f[:headerLength])
	}

	widthBytes, height, err := DecodeHeader(f)
	if err != nil {
		t.Fatalf("DecodeHeader failed: %v", err)
	}
	if widthBytes != 12 || height != 320 {
		t.Errorf("Expected 12x320 declared, got %dx%d", widthBytes, height)
	}
}

func TestEncodeLength(t *testing.T) {
	for _, kind := range []layout.Kind{layout.Standard, layout.Fruit} {
		f, err := Encode(aFilledBuffer(t, 96, 320, true), layout.New(kind))
		if err != nil {
			t.Fatalf("Encode failed for %s: %v", kind, err)
		}
		if len(f) != 14+3840+3 {
			t.Errorf("Expected frame of %d bytes for %s, got %d", 14+3840+3, kind, len(f))
		}
		if !bytes.Equal(f[len(f)-3:], []byte{0x1b, 0x64, 0x00}) {
			t.Errorf("Unexpected trailer % x", f[len(f)-3:])
		}
	}
}

func TestEncodeUniformBitmaps(t *testing.T) {
	tests := []struct {
		ink      bool
		expected byte
	}{
		{false, 0x00},
		{true, 0xff},
	}

	for _, test := range tests {
		f, err := Encode(aFilledBuffer(t, 96, 320, test.ink), layout.New(layout.Standard))
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		data, err := f.Bitmap()
		if err != nil {
			t.Fatalf("Couldn't read bitmap back: %v", err)
		}
		if len(data) != 3840 {
			t.Fatalf("Expected 3840 bitmap bytes, got %d", len(data))
		}
		for i, d := range data {
			if d != test.expected {
				t.Fatalf("Byte %d is %#02x, expected %#02x", i, d, test.expected)
			}
		}
	}
}

func TestEncodeBitOrder(t *testing.T) {
	b := aFilledBuffer(t, 96, 320, false)
	b.Set(0, 0, true)
	b.Set(95, 319, true)

	f, err := Encode(b, layout.New(layout.Standard))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	data, _ := f.Bitmap()

	if data[0] != 0x80 {
		t.Errorf("Expected first byte 0x80, got %#02x", data[0])
	}
	if data[len(data)-1] != 0x01 {
		t.Errorf("Expected last byte 0x01, got %#02x", data[len(data)-1])
	}
}

func TestEncodeMatchesPackedRows(t *testing.T) {
	b := aFilledBuffer(t, 96, 320, false)
	for y := range 320 {
		for x := range 96 {
			b.Set(x, y, rand.IntN(2) == 1)
		}
	}

	f, err := Encode(b, layout.New(layout.Fruit))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	rows, err := b.PackRows()
	if err != nil {
		t.Fatalf("PackRows failed: %v", err)
	}
	data, _ := f.Bitmap()
	if !bytes.Equal(data, rows) {
		t.Error("Frame bitmap doesn't match packed rows")
	}
}

func TestEncodeRejectsWrongDimensions(t *testing.T) {
	for _, dims := range [][2]int{{320, 96}, {96, 319}, {88, 320}, {104, 320}} {
		_, err := Encode(aFilledBuffer(t, dims[0], dims[1], false), layout.New(layout.Standard))
		var fce *FrameConsistencyError
		if !errors.As(err, &fce) {
			t.Errorf("Expected FrameConsistencyError for %dx%d, got %v", dims[0], dims[1], err)
			continue
		}
		if fce.Declared != 3840 {
			t.Errorf("Expected 3840 bytes declared, got %d", fce.Declared)
		}
	}
}

func TestDecodeHeaderTooShort(t *testing.T) {
	if _, _, err := DecodeHeader(Frame{0x1f, 0x11}); err == nil {
		t.Error("Expected error decoding a truncated header")
	}
}

func TestDecodeHeaderRejectsBadPreamble(t *testing.T) {
	f, err := Encode(aFilledBuffer(t, 96, 320, false), layout.New(layout.Standard))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	for i := range dimensionsOffset {
		corrupt := append(Frame(nil), f...)
		corrupt[i] ^= 0xff
		if _, _, err := DecodeHeader(corrupt); err == nil {
			t.Errorf("Expected error with header byte %d corrupted", i)
		}
		if _, err := corrupt.Bitmap(); err == nil {
			t.Errorf("Expected Bitmap to fail with header byte %d corrupted", i)
		}
	}
}

func TestFrameBitmapTruncated(t *testing.T) {
	f, err := Encode(aFilledBuffer(t, 96, 320, false), layout.New(layout.Standard))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var fce *FrameConsistencyError
	if _, err := f[:100].Bitmap(); !errors.As(err, &fce) {
		t.Errorf("Expected FrameConsistencyError, got %v", err)
	}
}
