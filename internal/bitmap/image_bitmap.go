package bitmap

import (
	"fmt"
	"image"
	"image/color"
)

// FromPaletted copies a two colour paletted image (e.g. the output of a
// ditherer) into a buffer. Whichever palette colour is closest to black is
// treated as ink.
func FromPaletted(i *image.Paletted) (*Buffer, error) {
	if len(i.Palette) != 2 {
		return nil, fmt.Errorf("Image passed to FromPaletted must have only 2 colours in palette, got %d", len(i.Palette))
	}

	inkIndex := uint8(i.Palette.Index(color.Black))

	bounds := i.Bounds()
	b, err := New(bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, fmt.Errorf("Couldn't create buffer for paletted image:\n%w", err)
	}

	for y := range b.height {
		for x := range b.width {
			b.pixels[y*b.width+x] = i.ColorIndexAt(bounds.Min.X+x, bounds.Min.Y+y) == inkIndex
		}
	}

	return b, nil
}
