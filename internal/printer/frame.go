package printer

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"tomgalvin.uk/labelprint/internal/bitmap"
	"tomgalvin.uk/labelprint/internal/layout"
)

// A Frame is the complete byte sequence sent to the printer for one label.
type Frame []byte

// FrameConsistencyError means the bitmap handed to Encode doesn't agree with
// the dimensions declared in the frame header. It is a bug in the caller,
// never a user error.
type FrameConsistencyError struct {
	Declared, Actual int
	Reason           string
}

func (e *FrameConsistencyError) Error() string {
	return fmt.Sprintf("Frame inconsistent: %s (declared %d bytes, got %d)", e.Reason, e.Declared, e.Actual)
}

func trailer() []byte {
	return feedLines(0)
}

// Encode serialises b into a frame for the paper described by l. The buffer
// must be exactly the paper's width and height.
func Encode(b *bitmap.Buffer, l layout.Layout) (Frame, error) {
	widthBytes, height := l.PaperWidthBytes(), l.PaperHeight()
	declared := widthBytes * height

	if b.Width() != l.PaperWidth() || b.Height() != height {
		return nil, &FrameConsistencyError{
			Declared: declared,
			Actual:   (b.Width() + 7) / 8 * b.Height(),
			Reason:   fmt.Sprintf("%s doesn't match paper size %dx%d", b, l.PaperWidth(), height),
		}
	}

	packed := bitmap.Pack(b)
	if len(packed.Data()) != declared {
		return nil, &FrameConsistencyError{
			Declared: declared,
			Actual:   len(packed.Data()),
			Reason:   "packed bitmap size",
		}
	}

	t := trailer()
	f := make(Frame, 0, headerLength+declared+len(t))
	f = append(f, wakeDevice()...)
	f = append(f, initPrinter()...)
	f = append(f, printBitmapHeader(uint16(widthBytes), uint16(height))...)
	for y := range packed.Height() {
		f = append(f, packed.Row(y)...)
	}
	f = append(f, t...)

	if len(f) != headerLength+declared+len(t) {
		return nil, &FrameConsistencyError{
			Declared: headerLength + declared + len(t),
			Actual:   len(f),
			Reason:   "frame length",
		}
	}

	return f, nil
}

// preamble is the fixed part of the header, everything before the dimensions.
func preamble() []byte {
	p := append(wakeDevice(), initPrinter()...)
	return append(p, printBitmapHeader(0, 0)[:4]...)
}

// DecodeHeader reads the bitmap dimensions declared in a frame's header.
func DecodeHeader(f Frame) (widthBytes, height int, err error) {
	if len(f) < headerLength {
		return 0, 0, fmt.Errorf("Frame too short for a header: %d bytes", len(f))
	}
	if p := preamble(); !bytes.Equal(f[:dimensionsOffset], p) {
		return 0, 0, fmt.Errorf("Frame doesn't start with a bitmap header: got % x, expected % x", f[:dimensionsOffset], p)
	}
	widthBytes = int(binary.LittleEndian.Uint16(f[dimensionsOffset:]))
	height = int(binary.LittleEndian.Uint16(f[dimensionsOffset+2:]))
	return widthBytes, height, nil
}

// Bitmap returns the packed bitmap bytes carried by the frame.
func (f Frame) Bitmap() ([]byte, error) {
	widthBytes, height, err := DecodeHeader(f)
	if err != nil {
		return nil, err
	}
	end := headerLength + widthBytes*height
	if len(f) < end {
		return nil, &FrameConsistencyError{Declared: widthBytes * height, Actual: len(f) - headerLength, Reason: "truncated bitmap"}
	}
	return f[headerLength:end], nil
}
