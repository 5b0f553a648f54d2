package pipeline

import (
	"fmt"
	"image"
	"time"

	"github.com/Kabilash01/cricket-ai/internal/detector"
)

// Frame is a decoded image. It is not modified after it is produced.
type Frame struct {
	Image     image.Image
	Width     int
	Height    int
	Seq       uint64
	Timestamp time.Time
}

// NewFrame wraps img with its geometry
func NewFrame(img image.Image, seq uint64, ts time.Time) Frame {
	b := img.Bounds()
	return Frame{Image: img, Width: b.Dx(), Height: b.Dy(), Seq: seq, Timestamp: ts}
}

// FramePair carries a native frame and its downscaled copy through the pipeline
type FramePair struct {
	Original Frame
	Resized  Frame
	ScaleX   float64 // Original.Width / Resized.Width
	ScaleY   float64 // Original.Height / Resized.Height
}

// NewFramePair computes the scale factors between original and resized
func NewFramePair(original, resized Frame) (*FramePair, error) {
	if original.Width <= 0 || original.Height <= 0 || resized.Width <= 0 || resized.Height <= 0 {
		return nil, fmt.Errorf("invalid frame geometry %dx%d -> %dx%d",
			original.Width, original.Height, resized.Width, resized.Height)
	}
	return &FramePair{
		Original: original,
		Resized:  resized,
		ScaleX:   float64(original.Width) / float64(resized.Width),
		ScaleY:   float64(original.Height) / float64(resized.Height),
	}, nil
}

// InferenceResult is a FramePair plus the detections found on its resized frame
type InferenceResult struct {
	*FramePair
	Detections []detector.Detection // resized-frame coordinates
	Latency    time.Duration        // 0 when skipped or failed
	Skipped    bool
	Failed     bool
}

// RemapDetections scales detections from resized-frame to original-frame coordinates.
// The input slice is not modified.
func RemapDetections(detections []detector.Detection, scaleX, scaleY float64) []detector.Detection {
	out := make([]detector.Detection, len(detections))
	for i, d := range detections {
		d.Box = d.Box.Scale(scaleX, scaleY)
		out[i] = d
	}
	return out
}
