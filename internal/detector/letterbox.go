package detector

import (
	"image"

	"github.com/nfnt/resize"
)

const letterboxPad = 114.0 / 255.0

// LetterboxInfo records how an image was fitted into the square model input
type LetterboxInfo struct {
	Scale      float64
	PadX, PadY float64
	SrcW, SrcH int
}

// Letterbox scales img to fit a size x size square keeping the aspect ratio,
// pads the rest with grey and writes the result into dst as planar RGB
// normalised to [0,1]. dst must hold 3*size*size values.
func Letterbox(img image.Image, size int, dst []float32) LetterboxInfo {
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()

	scale := float64(size) / float64(srcW)
	if s := float64(size) / float64(srcH); s < scale {
		scale = s
	}
	newW := int(float64(srcW)*scale + 0.5)
	newH := int(float64(srcH)*scale + 0.5)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	padX := (size - newW) / 2
	padY := (size - newH) / 2

	resized := resize.Resize(uint(newW), uint(newH), img, resize.Bilinear)

	plane := size * size
	for i := 0; i < 3*plane; i++ {
		dst[i] = letterboxPad
	}

	rb := resized.Bounds()
	if rgba, ok := resized.(*image.RGBA); ok {
		for y := 0; y < newH; y++ {
			row := rgba.Pix[y*rgba.Stride:]
			for x := 0; x < newW; x++ {
				idx := (y+padY)*size + (x + padX)
				dst[idx] = float32(row[4*x]) / 255
				dst[plane+idx] = float32(row[4*x+1]) / 255
				dst[2*plane+idx] = float32(row[4*x+2]) / 255
			}
		}
	} else {
		for y := 0; y < newH; y++ {
			for x := 0; x < newW; x++ {
				r, g, bl, _ := resized.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
				idx := (y+padY)*size + (x + padX)
				dst[idx] = float32(r>>8) / 255
				dst[plane+idx] = float32(g>>8) / 255
				dst[2*plane+idx] = float32(bl>>8) / 255
			}
		}
	}

	return LetterboxInfo{Scale: scale, PadX: float64(padX), PadY: float64(padY), SrcW: srcW, SrcH: srcH}
}

// Unmap converts a box from model input space back to source image space
func (l LetterboxInfo) Unmap(b Box) Box {
	out := Box{
		X1: (b.X1 - l.PadX) / l.Scale,
		Y1: (b.Y1 - l.PadY) / l.Scale,
		X2: (b.X2 - l.PadX) / l.Scale,
		Y2: (b.Y2 - l.PadY) / l.Scale,
	}
	return out.Normalize().Clamp(float64(l.SrcW), float64(l.SrcH))
}
