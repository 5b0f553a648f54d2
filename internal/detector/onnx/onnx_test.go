package onnx

import (
	"context"
	"image"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kabilash01/cricket-ai/internal/detector"
	"github.com/Kabilash01/cricket-ai/internal/logger"
)

func TestAnchorCount(t *testing.T) {
	assert.Equal(t, 8400, anchorCount(640))
	assert.Equal(t, 2100, anchorCount(320))
}

// TestDetector_CPU runs a real model when ONNX_TEST_MODEL and ONNX_TEST_LIBRARY are set
func TestDetector_CPU(t *testing.T) {
	model := os.Getenv("ONNX_TEST_MODEL")
	library := os.Getenv("ONNX_TEST_LIBRARY")
	if model == "" || library == "" {
		t.Skip("ONNX_TEST_MODEL and ONNX_TEST_LIBRARY not set, skipping test")
	}

	det, err := New(context.Background(), Config{ModelPath: model, LibraryPath: library}, detector.CPU, logger.NewNopLogger())
	require.NoError(t, err)
	defer det.Close()

	assert.Equal(t, detector.CPU, det.Device())

	dets, err := det.Predict(context.Background(), image.NewRGBA(image.Rect(0, 0, 640, 480)), 0.35, 0.45)
	require.NoError(t, err)
	for _, d := range dets {
		assert.LessOrEqual(t, d.Box.X1, d.Box.X2)
		assert.LessOrEqual(t, d.Box.X2, 640.0)
	}
}
