// Package overlay draws detection boxes, labels and a stats header onto frames.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/Kabilash01/cricket-ai/internal/detector"
)

const (
	defaultThickness = 2
	labelMinY        = 15
	labelOffsetY     = 5
)

var (
	// palette is indexed by class ID
	palette = []color.RGBA{
		{R: 0, G: 255, B: 0, A: 255},
		{R: 255, G: 64, B: 64, A: 255},
		{R: 64, G: 160, B: 255, A: 255},
		{R: 255, G: 200, B: 0, A: 255},
		{R: 200, G: 0, B: 255, A: 255},
		{R: 0, G: 230, B: 230, A: 255},
	}
	headerColor = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	shadowColor = color.RGBA{A: 255}
)

// Annotator draws onto a copy of each frame; the input image is never modified
type Annotator struct {
	Thickness int
	Face      font.Face
}

// New creates an annotator with 2px boxes and the 7x13 bitmap font
func New() *Annotator {
	return &Annotator{Thickness: defaultThickness, Face: basicfont.Face7x13}
}

// Label formats a detection label as "<class>:<score>"
func Label(d detector.Detection) string {
	name := d.ClassName
	if name == "" {
		name = detector.LabelFor(nil, d.ClassID)
	}
	return fmt.Sprintf("%s:%.2f", name, d.Score)
}

// Annotate returns img with boxes, labels and the header line drawn on it.
// Boxes are expected in img coordinates and are clamped to its bounds.
func (a *Annotator) Annotate(img image.Image, detections []detector.Detection, header string) image.Image {
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Src)

	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	for _, d := range detections {
		box := d.Box.Normalize().Clamp(w, h)
		c := colorFor(d.ClassID)

		x1 := bounds.Min.X + int(box.X1)
		y1 := bounds.Min.Y + int(box.Y1)
		x2 := bounds.Min.X + int(box.X2)
		y2 := bounds.Min.Y + int(box.Y2)
		a.drawRect(dst, image.Rect(x1, y1, x2, y2), c)

		ty := y1 - labelOffsetY
		if ty < bounds.Min.Y+labelMinY {
			ty = bounds.Min.Y + labelMinY
		}
		a.drawText(dst, Label(d), x1, ty, c)
	}

	if header != "" {
		a.drawText(dst, header, bounds.Min.X+10, bounds.Min.Y+20, headerColor)
	}
	return dst
}

func (a *Annotator) drawRect(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	t := a.Thickness
	if t <= 0 {
		t = defaultThickness
	}
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}

// drawText draws s with its baseline at (x, y) over a one-pixel shadow
func (a *Annotator) drawText(dst *image.RGBA, s string, x, y int, c color.RGBA) {
	face := a.Face
	if face == nil {
		face = basicfont.Face7x13
	}
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(shadowColor), Face: face}

	d.Dot = fixed.P(x+1, y+1)
	d.DrawString(s)

	d.Src = image.NewUniform(c)
	d.Dot = fixed.P(x, y)
	d.DrawString(s)
}

func colorFor(classID int) color.RGBA {
	if classID < 0 {
		classID = -classID
	}
	return palette[classID%len(palette)]
}
