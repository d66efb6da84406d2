// Package layout describes the printable geometry of the label stock loaded in
// a Phomemo D30.
//
// The device reports a fixed 12 byte (96 px) wide, 320 px tall paper area.
// Geometry is expressed in two orientations: paper coordinates, which are what
// the print head scans (96 wide, 320 tall), and landscape coordinates, which
// is how a label is read and composed (320 wide, 96 tall). Rotating a
// landscape image 90 degrees clockwise gives paper coordinates.
package layout

import (
	"fmt"
	"image"
	"strings"
)

const (
	PaperWidth  = 96
	PaperHeight = 320

	// Die-cut fruit labels can't be printed on for this many pixels at the
	// end of the label that feeds out last (paper rows 260-319).
	FruitOffset = 60
)

type Kind byte

const (
	Standard Kind = iota
	Fruit
)

func (k Kind) String() string {
	switch k {
	case Standard:
		return "standard"
	case Fruit:
		return "fruit"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard", "":
		return Standard, nil
	case "fruit":
		return Fruit, nil
	default:
		return Standard, fmt.Errorf("Unknown label kind %q", s)
	}
}

// Size of the text box for each label kind, in landscape coordinates.
var contentSizes = map[Kind]image.Point{
	Standard: {X: 288, Y: 88},
	Fruit:    {X: 240, Y: 80},
}

// A Layout is the immutable geometry of one print job.
type Layout struct {
	kind   Kind
	offset int
}

func New(kind Kind) Layout {
	l := Layout{kind: kind}
	if kind == Fruit {
		l.offset = -FruitOffset
	}
	return l
}

func (l Layout) Kind() Kind {
	return l.kind
}

func (l Layout) PaperWidth() int {
	return PaperWidth
}

func (l Layout) PaperHeight() int {
	return PaperHeight
}

// PaperWidthBytes is the number of packed bytes in one row of the paper.
func (l Layout) PaperWidthBytes() int {
	return PaperWidth / 8
}

// Offset is the signed shift of the usable area along the long axis. A
// positive offset leaves the first rows of the paper blank, a negative one
// the last rows.
func (l Layout) Offset() int {
	return l.offset
}

func (l Layout) UsableWidth() int {
	return PaperWidth
}

func (l Layout) UsableHeight() int {
	return PaperHeight - abs(l.offset)
}

// UsableRect is the printable area in landscape coordinates.
func (l Layout) UsableRect() image.Rectangle {
	if l.offset >= 0 {
		return image.Rect(l.offset, 0, PaperHeight, PaperWidth)
	}
	return image.Rect(0, 0, PaperHeight+l.offset, PaperWidth)
}

// LandscapeRect is the whole paper in landscape coordinates.
func (l Layout) LandscapeRect() image.Rectangle {
	return image.Rect(0, 0, PaperHeight, PaperWidth)
}

// ContentRect is the box text is laid out in, centred in the usable area.
func (l Layout) ContentRect() image.Rectangle {
	usable := l.UsableRect()
	size, ok := contentSizes[l.kind]
	if !ok {
		return usable
	}
	size.X = min(size.X, usable.Dx())
	size.Y = min(size.Y, usable.Dy())

	origin := usable.Min.Add(image.Pt((usable.Dx()-size.X)/2, (usable.Dy()-size.Y)/2))
	return image.Rectangle{Min: origin, Max: origin.Add(size)}
}

func (l Layout) String() string {
	return fmt.Sprintf("Layout(%s, %dx%d, offset %d)", l.kind, PaperWidth, PaperHeight, l.offset)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
