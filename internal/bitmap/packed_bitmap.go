// This file implements methods to pack bitmap pixel data into
// the bit structure accepted by Phomemo printers.

package bitmap

import "fmt"

// a bitmap packed in memory
type PackedBitmap struct {
	data                  []byte
	width, height, stride int
}

const bitsPerWord = 8

func (b *PackedBitmap) Width() int {
	return b.width
}

func (b *PackedBitmap) Height() int {
	return b.height
}

func (b *PackedBitmap) Data() []byte {
	return b.data
}

// Row returns the packed bytes of a single horizontal line.
func (b *PackedBitmap) Row(y int) []byte {
	return b.data[y*b.stride : (y+1)*b.stride]
}

// Gets a single bit from the bitmap at the (x, y) coordinate, returns either 0 or 1.
// Pixels are left-aligned in each byte, so pixel 8k is the most significant
// bit of byte k.
func (b *PackedBitmap) GetBit(x int, y int) byte {
	index := (y * b.stride) + (x / bitsPerWord)
	return (b.data[index] >> (bitsPerWord - 1 - x%bitsPerWord)) & 1
}

func (b *PackedBitmap) String() string {
	return fmt.Sprintf("PackedBitmap(%d,%d)", b.width, b.height)
}

// Take data from any Bitmap implementation and pack it into the Phomemo bitmap structure.
// A width that isn't a multiple of 8 leaves the trailing bits of each row clear.
func Pack(b Bitmap) *PackedBitmap {
	width, height, stride := b.Width(), b.Height(), (b.Width()+bitsPerWord-1)/bitsPerWord
	data := make([]byte, stride*height)

	for y := range height {
		row := data[y*stride : (y+1)*stride]
		for x := range width {
			if b.GetBit(x, y)&1 == 1 {
				row[x/bitsPerWord] |= 1 << (bitsPerWord - 1 - x%bitsPerWord)
			}
		}
	}

	return &PackedBitmap{data, width, height, stride}
}
