// Package raster turns arbitrary images into the monochrome buffer the
// printer expects: scaled onto the label's usable area, brightness adjusted,
// reduced to one bit per pixel and turned to match the print head.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/makeworld-the-better-one/dither/v2"
	"golang.org/x/image/draw"

	"tomgalvin.uk/labelprint/internal/bitmap"
	"tomgalvin.uk/labelprint/internal/layout"
)

var ErrInvalidParameter = errors.New("invalid parameter")

const (
	MinBrightness = 0
	MaxBrightness = 200

	// A pixel is inked when its adjusted luminance is at or below this.
	threshold = 0.5
)

type Dither byte

const (
	Threshold Dither = iota
	FloydSteinberg
)

func (d Dither) String() string {
	switch d {
	case Threshold:
		return "threshold"
	case FloydSteinberg:
		return "floyd-steinberg"
	default:
		return fmt.Sprintf("Dither(%d)", byte(d))
	}
}

func ParseDither(s string) (Dither, error) {
	switch strings.ToLower(s) {
	case "threshold", "":
		return Threshold, nil
	case "floyd-steinberg", "fs":
		return FloydSteinberg, nil
	default:
		return Threshold, fmt.Errorf("%w: unknown dither mode %q", ErrInvalidParameter, s)
	}
}

// Fit controls how the source is scaled onto the usable area.
type Fit byte

const (
	// Stretch fills the whole area, ignoring the source aspect ratio.
	Stretch Fit = iota
	// Contain scales the source to fit inside the area, centred on white.
	Contain
)

func (f Fit) String() string {
	switch f {
	case Stretch:
		return "stretch"
	case Contain:
		return "contain"
	default:
		return fmt.Sprintf("Fit(%d)", byte(f))
	}
}

func ParseFit(s string) (Fit, error) {
	switch strings.ToLower(s) {
	case "stretch", "":
		return Stretch, nil
	case "contain":
		return Contain, nil
	default:
		return Stretch, fmt.Errorf("%w: unknown fit mode %q", ErrInvalidParameter, s)
	}
}

type Options struct {
	// Brightness scales luminance by Brightness/100 before thresholding.
	Brightness int
	Dither     Dither
	Fit        Fit
	// AutoRotate turns portrait sources clockwise so they run along the label.
	AutoRotate bool
	// AutoLevel stretches the source's luminance to the full black to white
	// range before brightness is applied.
	AutoLevel bool
}

func DefaultOptions() Options {
	return Options{
		Brightness: 100,
		Dither:     Threshold,
		Fit:        Stretch,
		AutoRotate: true,
	}
}

func (o Options) Validate() error {
	if o.Brightness < MinBrightness || o.Brightness > MaxBrightness {
		return fmt.Errorf("%w: brightness %d outside [%d, %d]", ErrInvalidParameter, o.Brightness, MinBrightness, MaxBrightness)
	}
	if o.Dither > FloydSteinberg {
		return fmt.Errorf("%w: %s", ErrInvalidParameter, o.Dither)
	}
	if o.Fit > Contain {
		return fmt.Errorf("%w: %s", ErrInvalidParameter, o.Fit)
	}
	return nil
}

// Rasterize converts src into a buffer of exactly the paper's dimensions, in
// the orientation the print head scans it.
func Rasterize(src image.Image, l layout.Layout, o Options) (*bitmap.Buffer, error) {
	b, err := Landscape(src, l, o)
	if err != nil {
		return nil, err
	}
	return b.Rotate90(), nil
}

// Landscape is Rasterize without the final rotation: the buffer is as wide as
// the paper is tall, which is how the label reads.
func Landscape(src image.Image, l layout.Layout, o Options) (*bitmap.Buffer, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if src == nil || src.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty source image", ErrInvalidParameter)
	}

	if o.AutoRotate && src.Bounds().Dx() < src.Bounds().Dy() {
		src = imaging.Rotate270(src)
	}

	usable := l.UsableRect()
	var scaled image.Image = scaleToArea(src, usable.Size(), l.ContentRect().Sub(usable.Min), o.Fit)
	if o.AutoLevel {
		scaled = autoLevel(scaled)
	}
	gray := adjustBrightness(scaled, o.Brightness)

	// index 0 is white so the margins outside the usable area stay blank
	out := image.NewPaletted(l.LandscapeRect(), color.Palette{color.White, color.Black})
	const inkIndex = 1

	switch o.Dither {
	case Threshold:
		for y := range usable.Dy() {
			for x := range usable.Dx() {
				if float64(gray.Gray16At(x, y).Y)/0xFFFF <= threshold {
					out.SetColorIndex(usable.Min.X+x, usable.Min.Y+y, inkIndex)
				}
			}
		}
	case FloydSteinberg:
		ditherer := dither.NewDitherer([]color.Color{color.Black, color.White})
		ditherer.Matrix = dither.FloydSteinberg
		ditherer.Serpentine = true
		dithered := ditherer.DitherPaletted(gray)
		black := uint8(dithered.Palette.Index(color.Black))

		for y := range usable.Dy() {
			for x := range usable.Dx() {
				if dithered.ColorIndexAt(x, y) == black {
					out.SetColorIndex(usable.Min.X+x, usable.Min.Y+y, inkIndex)
				}
			}
		}
	}

	b, err := bitmap.FromPaletted(out)
	if err != nil {
		return nil, fmt.Errorf("Couldn't convert rasterized image to bitmap:\n%w", err)
	}
	return b, nil
}

// scaleToArea draws src onto a white canvas of the given size, composing any
// transparency over white. Contain fits src inside box rather than the whole
// canvas.
func scaleToArea(src image.Image, size image.Point, box image.Rectangle, fit Fit) *image.RGBA {
	canvas := image.NewRGBA(image.Rectangle{Max: size})
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	srcSize := src.Bounds().Size()
	switch {
	case fit == Contain:
		fitted := fitSize(srcSize, box.Size())
		resized := imaging.Resize(src, fitted.X, fitted.Y, imaging.CatmullRom)
		origin := box.Min.Add(image.Pt((box.Dx()-fitted.X)/2, (box.Dy()-fitted.Y)/2))
		draw.Draw(canvas, image.Rectangle{Min: origin, Max: origin.Add(fitted)}, resized, image.Point{}, draw.Over)
	case srcSize == size:
		draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Over)
	default:
		// resize image using Catmull Rom scaling
		draw.CatmullRom.Scale(canvas, canvas.Bounds(), src, src.Bounds(), draw.Over, nil)
	}

	return canvas
}

// fitSize is the largest size with src's aspect ratio that fits in area.
func fitSize(src, area image.Point) image.Point {
	if src.X*area.Y > src.Y*area.X {
		return image.Pt(area.X, max(1, src.Y*area.X/src.X))
	}
	return image.Pt(max(1, src.X*area.Y/src.Y), area.Y)
}

func adjustBrightness(i image.Image, brightness int) *image.Gray16 {
	bounds := i.Bounds()
	gray := image.NewGray16(bounds)
	scale := float64(brightness) / 100

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			g := color.Gray16Model.Convert(i.At(x, y)).(color.Gray16)
			v := min(float64(g.Y)*scale, 0xFFFF)
			gray.SetGray16(x, y, color.Gray16{Y: uint16(v)})
		}
	}

	return gray
}

// autoLevel maps the darkest luminance in i to black and the lightest to
// white. Images of a single shade are returned unchanged.
func autoLevel(i image.Image) image.Image {
	bounds := i.Bounds()
	gray := image.NewGray16(bounds)
	darkest, lightest := uint16(0xFFFF), uint16(0)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			g := color.Gray16Model.Convert(i.At(x, y)).(color.Gray16)
			gray.SetGray16(x, y, g)
			darkest, lightest = min(darkest, g.Y), max(lightest, g.Y)
		}
	}
	if lightest <= darkest {
		return gray
	}

	span := uint32(lightest - darkest)
	for j := 0; j < len(gray.Pix); j += 2 {
		v := uint32(gray.Pix[j])<<8 | uint32(gray.Pix[j+1])
		v = (v - uint32(darkest)) * 0xFFFF / span
		gray.Pix[j], gray.Pix[j+1] = uint8(v>>8), uint8(v)
	}
	return gray
}
