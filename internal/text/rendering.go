// Package text renders label text to an image the rasterizer can consume.
package text

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"tomgalvin.uk/labelprint/internal/layout"
)

var (
	ErrNoText      = errors.New("no text to render")
	ErrTextTooLong = errors.New("text doesn't fit on the label")
)

// Smallest point size tried before giving up.
const minFontSize = 8

type Options struct {
	// Font is a builtin font name or the path of a TTF/OTF file.
	Font string
	// Lines caps the number of lines the text may wrap onto; 0 means no cap.
	Lines int
}

type Renderer struct {
	Fs afero.Fs
}

func NewRenderer(fs afero.Fs) *Renderer {
	return &Renderer{Fs: fs}
}

type Measure struct {
	Lines         []string
	Width, Height int
	lineHeight    int
}

func (m Measure) fits(area image.Point, maxLines int) bool {
	if maxLines > 0 && len(m.Lines) > maxLines {
		return false
	}
	return m.Width <= area.X && m.Height <= area.Y
}

func wrapText(text string, maxWidth int, face font.Face) []string {
	var lines []string
	words := strings.Fields(text)
	if len(words) == 0 {
		return lines
	}

	var line string
	for _, word := range words {
		testLine := line
		if len(line) > 0 {
			testLine += " "
		}
		testLine += word

		width := inkWidth(face, testLine)
		if width > maxWidth && len(line) > 0 && maxWidth > 0 {
			lines = append(lines, line)
			line = word
		} else {
			line = testLine
		}
	}

	if len(line) > 0 {
		lines = append(lines, line)
	}
	return lines
}

func inkWidth(face font.Face, s string) int {
	bounds, _ := font.BoundString(face, s)
	return (bounds.Max.X - bounds.Min.X).Ceil()
}

// measureText wraps each paragraph of text to maxWidth and works out the size
// of the resulting block.
func measureText(text string, maxWidth int, face font.Face) Measure {
	m := Measure{lineHeight: face.Metrics().Height.Ceil()}
	for _, paragraph := range strings.Split(text, "\n") {
		wrapped := wrapText(paragraph, maxWidth, face)
		if len(wrapped) == 0 {
			wrapped = []string{""}
		}
		m.Lines = append(m.Lines, wrapped...)
	}
	for _, line := range m.Lines {
		m.Width = max(m.Width, inkWidth(face, line))
	}
	m.Height = len(m.Lines) * m.lineHeight
	return m
}

// drawText draws the measured block centred in box.
func drawText(dst draw.Image, box image.Rectangle, m Measure, face font.Face) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: face,
	}
	top := box.Min.Y + (box.Dy()-m.Height)/2
	for i, line := range m.Lines {
		bounds, _ := font.BoundString(face, line)
		left := box.Min.X + (box.Dx()-inkWidth(face, line))/2
		d.Dot = fixed.Point26_6{
			X: fixed.I(left) - bounds.Min.X,
			Y: fixed.I(top+i*m.lineHeight) + face.Metrics().Ascent,
		}
		d.DrawString(line)
	}
}

// Render draws text in black on a white image the size of the layout's usable
// area, at the largest point size that fits its content box.
func (r *Renderer) Render(text string, o Options, l layout.Layout) (image.Image, error) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return nil, ErrNoText
	}
	if o.Lines < 0 {
		return nil, fmt.Errorf("Line count must not be negative, got %d", o.Lines)
	}

	f, err := loadFont(r.Fs, o.Font)
	if err != nil {
		return nil, err
	}

	usable := l.UsableRect()
	box := l.ContentRect().Sub(usable.Min)

	for size := box.Dy(); size >= minFontSize; size-- {
		face, err := newFace(f, size)
		if err != nil {
			return nil, err
		}

		m := measureText(text, box.Dx(), face)
		if !m.fits(box.Size(), o.Lines) {
			face.Close()
			continue
		}

		img := image.NewRGBA(image.Rect(0, 0, usable.Dx(), usable.Dy()))
		draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
		drawText(img, box, m, face)
		face.Close()
		return img, nil
	}

	return nil, fmt.Errorf("Couldn't fit text in %dx%d at %dpt:\n%w", box.Dx(), box.Dy(), minFontSize, ErrTextTooLong)
}
