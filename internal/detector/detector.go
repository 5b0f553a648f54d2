// Package detector defines the object detector capability used by the
// inference stage together with its YOLOv8 post-processing helpers and
// an HTTP client for a remote inference service.
package detector

import (
	"context"
	"image"
	"math"
)

// Box is an axis-aligned bounding box in pixel coordinates of the frame it came from
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the box width
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns the box height
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Area returns the box area, 0 for degenerate boxes
func (b Box) Area() float64 {
	if b.X2 <= b.X1 || b.Y2 <= b.Y1 {
		return 0
	}
	return b.Width() * b.Height()
}

// Scale multiplies x coordinates by sx and y coordinates by sy
func (b Box) Scale(sx, sy float64) Box {
	return Box{X1: b.X1 * sx, Y1: b.Y1 * sy, X2: b.X2 * sx, Y2: b.Y2 * sy}
}

// Normalize orders the corners so that X1<=X2 and Y1<=Y2
func (b Box) Normalize() Box {
	return Box{
		X1: math.Min(b.X1, b.X2), Y1: math.Min(b.Y1, b.Y2),
		X2: math.Max(b.X1, b.X2), Y2: math.Max(b.Y1, b.Y2),
	}
}

// Clamp limits the box to [0,w]x[0,h]
func (b Box) Clamp(w, h float64) Box {
	return Box{
		X1: clamp(b.X1, 0, w), Y1: clamp(b.Y1, 0, h),
		X2: clamp(b.X2, 0, w), Y2: clamp(b.Y2, 0, h),
	}
}

// IoU returns the intersection over union of two boxes
func (b Box) IoU(o Box) float64 {
	ix1 := math.Max(b.X1, o.X1)
	iy1 := math.Max(b.Y1, o.Y1)
	ix2 := math.Min(b.X2, o.X2)
	iy2 := math.Min(b.Y2, o.Y2)
	inter := Box{X1: ix1, Y1: iy1, X2: ix2, Y2: iy2}.Area()
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Detection is one detected object
type Detection struct {
	Box       Box     `json:"box"`
	Score     float64 `json:"score"`
	ClassID   int     `json:"class_id"`
	ClassName string  `json:"class_name"`
}

// Detector runs object detection on a single image.
// Implementations are bound to one device for their whole lifetime and are
// not safe for concurrent use; the inference stage is their only caller.
type Detector interface {
	// Predict returns detections in the coordinate space of img.
	// Failures are reported as *Error or wrap ErrTimeout.
	Predict(ctx context.Context, img image.Image, confidence, iou float64) ([]Detection, error)
	// Device reports the device the detector is bound to.
	Device() Device
	Close() error
}

// Factory builds a detector bound to the given device
type Factory func(ctx context.Context, device Device) (Detector, error)
