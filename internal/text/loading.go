package text

import (
	"fmt"

	"github.com/spf13/afero"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// DefaultFont is used when no font is given.
const DefaultFont = "goregular"

// Builtin lists the names of the fonts compiled into the binary.
var Builtin = []string{"goregular", "gobold", "goitalic", "gomono", "gomonobold"}

func builtinFontData(name string) ([]byte, bool) {
	switch name {
	case "goregular":
		return goregular.TTF, true
	case "gobold":
		return gobold.TTF, true
	case "goitalic":
		return goitalic.TTF, true
	case "gomono":
		return gomono.TTF, true
	case "gomonobold":
		return gomonobold.TTF, true
	default:
		return nil, false
	}
}

// getFontData resolves name to a builtin font, or failing that reads it as a
// TTF/OTF file.
func getFontData(fs afero.Fs, name string) ([]byte, error) {
	if name == "" {
		name = DefaultFont
	}
	if data, ok := builtinFontData(name); ok {
		return data, nil
	}
	data, err := afero.ReadFile(fs, name)
	if err != nil {
		return nil, fmt.Errorf("Couldn't read font %q (builtin fonts are %v):\n%w", name, Builtin, err)
	}
	return data, nil
}

func loadFont(fs afero.Fs, name string) (*opentype.Font, error) {
	fontData, err := getFontData(fs, name)
	if err != nil {
		return nil, fmt.Errorf("Couldn't get font data:\n%w", err)
	}
	parsedFont, err := opentype.Parse(fontData)
	if err != nil {
		return nil, fmt.Errorf("Couldn't parse font %s:\n%w", name, err)
	}
	return parsedFont, nil
}

func newFace(f *opentype.Font, size int) (font.Face, error) {
	fontFace, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("Couldn't create font face:\n%w", err)
	}
	return fontFace, nil
}
