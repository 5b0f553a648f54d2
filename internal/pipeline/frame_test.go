package pipeline

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kabilash01/cricket-ai/internal/detector"
)

func TestNewFramePair_ScaleFactors(t *testing.T) {
	pair := solidPair(t, 7, 1280, 720, 640, 480)

	assert.Equal(t, 2.0, pair.ScaleX)
	assert.Equal(t, 1.5, pair.ScaleY)
	assert.Equal(t, uint64(7), pair.Original.Seq)
	assert.Equal(t, 640, pair.Resized.Width)
}

func TestNewFramePair_InvalidGeometry(t *testing.T) {
	empty := NewFrame(image.NewRGBA(image.Rect(0, 0, 0, 0)), 0, time.Now())
	ok := NewFrame(image.NewRGBA(image.Rect(0, 0, 10, 10)), 0, time.Now())

	_, err := NewFramePair(ok, empty)
	assert.Error(t, err)
	_, err = NewFramePair(empty, ok)
	assert.Error(t, err)
}

func TestRemapDetections(t *testing.T) {
	in := []detector.Detection{{
		Box:       detector.Box{X1: 10, Y1: 10, X2: 20, Y2: 20},
		Score:     0.9,
		ClassName: "person",
	}}

	out := RemapDetections(in, 2.0, 1.5)
	require.Len(t, out, 1)
	assert.Equal(t, detector.Box{X1: 20, Y1: 15, X2: 40, Y2: 30}, out[0].Box)
	assert.Equal(t, 0.9, out[0].Score)
	assert.Equal(t, "person", out[0].ClassName)

	assert.Equal(t, detector.Box{X1: 10, Y1: 10, X2: 20, Y2: 20}, in[0].Box, "input must not be modified")
	assert.Empty(t, RemapDetections(nil, 2, 2))
}
