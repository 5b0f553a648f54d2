package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kabilash01/cricket-ai/internal/detector"
	"github.com/Kabilash01/cricket-ai/internal/logger"
)

func TestRenderStage_RenderRemapsAndRecords(t *testing.T) {
	clock := newFakeClock()
	stats := NewStats(clock.Now)
	annotator := &nopAnnotator{}
	sink := &recordingSink{}
	stage := NewRenderStage(NewBoundedChannel[*InferenceResult](1), NewShutdownSignal(), stats,
		annotator, sink, 10*time.Millisecond, logger.NewNopLogger())

	var callbacks int
	stage.OnFrame(func(RenderedFrame) { callbacks++ })

	res := &InferenceResult{
		FramePair:  solidPair(t, 3, 1280, 720, 640, 480),
		Detections: []detector.Detection{{Box: detector.Box{X1: 10, Y1: 10, X2: 20, Y2: 20}, ClassName: "person", Score: 0.5}},
		Latency:    100 * time.Millisecond,
	}
	clock.Advance(time.Second)

	frame := stage.Render(res)

	require.Len(t, frame.Detections, 1)
	assert.Equal(t, detector.Box{X1: 20, Y1: 15, X2: 40, Y2: 30}, frame.Detections[0].Box)
	assert.Equal(t, uint64(3), frame.Seq)
	assert.Equal(t, 1280, frame.Width)
	assert.Equal(t, uint64(1), frame.Stats.Frames)
	assert.Equal(t, uint64(1), frame.Stats.InferCalls)

	assert.Equal(t, "FPS: 1.0 AvgInfer: 100.0ms", annotator.lastHeader)
	assert.Equal(t, frame.Detections, annotator.lastDets)
	assert.Equal(t, int64(1), sink.shown.Load())
	assert.Equal(t, 1, callbacks)
}

func TestRenderStage_SinkErrorsDoNotStop(t *testing.T) {
	sink := &recordingSink{showErr: errors.New("window closed")}
	signal := NewShutdownSignal()
	stage := NewRenderStage(NewBoundedChannel[*InferenceResult](1), signal, NewStats(nil),
		&nopAnnotator{}, sink, 10*time.Millisecond, logger.NewNopLogger())

	for i := 0; i < 3; i++ {
		stage.Render(&InferenceResult{FramePair: solidPair(t, uint64(i), 8, 8, 8, 8), Skipped: true})
	}
	assert.Equal(t, int64(3), sink.shown.Load())
	assert.False(t, signal.IsSet())
}

func TestRenderStage_UserStop(t *testing.T) {
	in := NewBoundedChannel[*InferenceResult](4)
	signal := NewShutdownSignal()
	sink := &recordingSink{cancelAfter: 2}
	stage := NewRenderStage(in, signal, NewStats(nil), &nopAnnotator{}, sink, 10*time.Millisecond, logger.NewNopLogger())

	for i := 0; i < 4; i++ {
		require.True(t, in.TryPut(&InferenceResult{FramePair: solidPair(t, uint64(i), 8, 8, 8, 8)}))
	}

	require.NoError(t, stage.Run(context.Background()))
	assert.ErrorIs(t, signal.Reason(), ErrUserStop)
	assert.Equal(t, int64(2), sink.shown.Load())
}

func TestRenderStage_ObservesShutdownWithoutFrames(t *testing.T) {
	signal := NewShutdownSignal()
	stage := NewRenderStage(NewBoundedChannel[*InferenceResult](1), signal, NewStats(nil),
		&nopAnnotator{}, &recordingSink{}, 10*time.Millisecond, logger.NewNopLogger())

	done := make(chan error, 1)
	go func() { done <- stage.Run(context.Background()) }()

	signal.Trigger(ErrSourceExhausted)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("render stage did not observe shutdown")
	}
}
