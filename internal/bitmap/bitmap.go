// This package defines an interface for a simple bitmap structure that has a
// width, height, and can get bits from the bitmap by (x,y) coordinate.
// Buffer is the mutable monochrome grid built by the rasterizer, and
// PackedBitmap is the format the printer consumes over the wire.
package bitmap

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

var (
	ErrInvalidGeometry = errors.New("invalid bitmap geometry")
	ErrOutOfBounds     = errors.New("pixel out of bounds")
)

type Bitmap interface {
	Width() int
	Height() int
	GetBit(x int, y int) byte
}

// A Buffer is a width×height grid of pixels stored row-major, where a set
// pixel means ink on the label.
type Buffer struct {
	pixels        []bool
	width, height int
}

// New returns a blank buffer. The width must be a whole number of bytes as
// the device transmits 8 pixels per byte.
func New(width, height int) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, width, height)
	}
	if width%bitsPerWord != 0 {
		return nil, fmt.Errorf("%w: width %d is not a multiple of %d", ErrInvalidGeometry, width, bitsPerWord)
	}
	return newBuffer(width, height), nil
}

func newBuffer(width, height int) *Buffer {
	return &Buffer{
		pixels: make([]bool, width*height),
		width:  width,
		height: height,
	}
}

func (b *Buffer) Width() int {
	return b.width
}

func (b *Buffer) Height() int {
	return b.height
}

func (b *Buffer) inBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.width && y < b.height
}

// Set marks the pixel at (x, y) as ink or blank.
func (b *Buffer) Set(x, y int, ink bool) error {
	if !b.inBounds(x, y) {
		return fmt.Errorf("%w: (%d, %d) outside %s", ErrOutOfBounds, x, y, b)
	}
	b.pixels[y*b.width+x] = ink
	return nil
}

// Ink reports whether the pixel at (x, y) is inked. Pixels outside the grid
// are blank.
func (b *Buffer) Ink(x, y int) bool {
	return b.inBounds(x, y) && b.pixels[y*b.width+x]
}

func (b *Buffer) GetBit(x int, y int) byte {
	if b.Ink(x, y) {
		return 1
	}
	return 0
}

// Rotate90 returns a copy of the buffer turned 90 degrees clockwise, so the
// pixel at (x, y) ends up at (height-1-y, x).
func (b *Buffer) Rotate90() *Buffer {
	r := newBuffer(b.height, b.width)
	for y := range b.height {
		for x := range b.width {
			r.pixels[x*r.width+(b.height-1-y)] = b.pixels[y*b.width+x]
		}
	}
	return r
}

// PackRows packs each row into width/8 bytes, most significant bit first.
func (b *Buffer) PackRows() ([]byte, error) {
	if b.width%bitsPerWord != 0 {
		return nil, fmt.Errorf("%w: cannot pack %s, width is not a multiple of %d", ErrInvalidGeometry, b, bitsPerWord)
	}
	return Pack(b).Data(), nil
}

// Equal reports whether both buffers have the same size and pixels.
func (b *Buffer) Equal(o *Buffer) bool {
	if b.width != o.width || b.height != o.height {
		return false
	}
	for i := range b.pixels {
		if b.pixels[i] != o.pixels[i] {
			return false
		}
	}
	return true
}

func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer(%d,%d)", b.width, b.height)
}

// ColorModel, Bounds and At let a Buffer be encoded by the image packages,
// which is how previews are written. Ink is drawn black.
func (b *Buffer) ColorModel() color.Model {
	return color.GrayModel
}

func (b *Buffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.width, b.height)
}

func (b *Buffer) At(x, y int) color.Color {
	if b.Ink(x, y) {
		return color.Black
	}
	return color.White
}
