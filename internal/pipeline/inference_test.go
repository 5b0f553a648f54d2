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

func newTestInference(cfg InferenceConfig, factory detector.Factory) (*InferenceStage, *ShutdownSignal) {
	signal := NewShutdownSignal()
	stage := NewInferenceStage(cfg, factory,
		NewBoundedChannel[*FramePair](4),
		NewBoundedChannel[*InferenceResult](4),
		signal, logger.NewNopLogger())
	return stage, signal
}

func TestShouldDetect_SkipCadence(t *testing.T) {
	var detected []uint64
	for i := uint64(0); i < 9; i++ {
		if ShouldDetect(i, 2) {
			detected = append(detected, i)
		}
	}
	assert.Equal(t, []uint64{0, 3, 6}, detected)

	for i := uint64(0); i < 5; i++ {
		assert.True(t, ShouldDetect(i, 0), "skip 0 detects every frame")
	}
}

func TestInferenceStage_ProcessSkipsFrames(t *testing.T) {
	det := &fakeDetector{detections: []detector.Detection{{Box: detector.Box{X2: 5, Y2: 5}, Score: 0.8, ClassName: "person"}}}
	stage, _ := newTestInference(InferenceConfig{SkipInterval: 2, Device: detector.CPU}, staticFactory(det))
	require.NoError(t, stage.bind(context.Background()))

	var detectedSeqs []uint64
	for i := 0; i < 9; i++ {
		res := stage.Process(context.Background(), solidPair(t, uint64(i), 64, 48, 32, 24))
		if res.Skipped {
			assert.Empty(t, res.Detections)
			assert.Zero(t, res.Latency)
			continue
		}
		assert.Len(t, res.Detections, 1)
		assert.Positive(t, res.Latency)
		detectedSeqs = append(detectedSeqs, res.Original.Seq)
	}

	assert.Equal(t, []uint64{0, 3, 6}, detectedSeqs)
	assert.Equal(t, int64(3), det.calls.Load())
}

func TestInferenceStage_DetectorFailureForwardsFrame(t *testing.T) {
	det := &fakeDetector{err: detector.ResourceError("predict", errors.New("boom"))}
	stage, signal := newTestInference(InferenceConfig{Device: detector.CPU}, staticFactory(det))
	require.NoError(t, stage.bind(context.Background()))

	for i := 0; i < 3; i++ {
		res := stage.Process(context.Background(), solidPair(t, uint64(i), 64, 48, 32, 24))
		assert.True(t, res.Failed)
		assert.Empty(t, res.Detections)
		assert.Zero(t, res.Latency)
	}
	assert.False(t, signal.IsSet(), "detector failures must not stop the pipeline")
}

func TestInferenceStage_TimeoutIsFailure(t *testing.T) {
	det := &fakeDetector{delay: time.Second}
	stage, _ := newTestInference(InferenceConfig{Device: detector.CPU, Timeout: 20 * time.Millisecond}, staticFactory(det))
	require.NoError(t, stage.bind(context.Background()))

	start := time.Now()
	_, err := stage.predict(context.Background(), solidPair(t, 0, 8, 8, 8, 8).Resized.Image)
	assert.ErrorIs(t, err, ErrDetectorTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	res := stage.Process(context.Background(), solidPair(t, 1, 8, 8, 8, 8))
	assert.True(t, res.Failed)
}

func TestInferenceStage_ClassFilter(t *testing.T) {
	det := &fakeDetector{detections: []detector.Detection{
		{ClassName: "person", Score: 0.9},
		{ClassName: "sports ball", Score: 0.7},
	}}
	stage, _ := newTestInference(InferenceConfig{Device: detector.CPU, Classes: []string{"sports ball"}}, staticFactory(det))
	require.NoError(t, stage.bind(context.Background()))

	res := stage.Process(context.Background(), solidPair(t, 0, 8, 8, 8, 8))
	require.Len(t, res.Detections, 1)
	assert.Equal(t, "sports ball", res.Detections[0].ClassName)
}

func TestInferenceStage_FallsBackToCPU(t *testing.T) {
	var requested []detector.Device
	factory := func(ctx context.Context, device detector.Device) (detector.Detector, error) {
		requested = append(requested, device)
		if device.Kind == detector.DeviceCUDA {
			return nil, detector.DeviceError("bind", errors.New("no CUDA-capable device"))
		}
		return &fakeDetector{device: device}, nil
	}

	stage, _ := newTestInference(InferenceConfig{Device: detector.Device{Kind: detector.DeviceAuto}}, factory)

	var fallbackFrom detector.Device
	stage.OnFallback(func(preferred detector.Device, cause error) {
		fallbackFrom = preferred
		assert.True(t, detector.IsDeviceError(cause))
	})

	assert.Equal(t, detector.Device{}, stage.Device(), "unbound before start")
	require.NoError(t, stage.bind(context.Background()))

	assert.Equal(t, []detector.Device{{Kind: detector.DeviceCUDA}, detector.CPU}, requested)
	assert.Equal(t, detector.CPU, stage.Device())
	assert.Equal(t, "cuda:0", fallbackFrom.String())
}

func TestInferenceStage_RunFailsWhenNoDeviceWorks(t *testing.T) {
	factory := func(ctx context.Context, device detector.Device) (detector.Detector, error) {
		return nil, detector.ResourceError("load", errors.New("model missing"))
	}
	stage, signal := newTestInference(InferenceConfig{Device: detector.Device{Kind: detector.DeviceCUDA, Index: 1}}, factory)

	err := stage.Run(context.Background())
	require.Error(t, err)
	assert.True(t, signal.IsSet())
	assert.Equal(t, err, signal.Reason())
	assert.False(t, isCleanShutdown(signal.Reason()))
}

func TestInferenceStage_RebindsAfterRepeatedDeviceErrors(t *testing.T) {
	gpu := &fakeDetector{err: detector.DeviceError("predict", errors.New("CUDA error: out of memory"))}
	cpu := &fakeDetector{}
	factory := func(ctx context.Context, device detector.Device) (detector.Detector, error) {
		if device.Kind == detector.DeviceCUDA {
			gpu.device = device
			return gpu, nil
		}
		cpu.device = device
		return cpu, nil
	}

	stage, _ := newTestInference(InferenceConfig{Device: detector.Device{Kind: detector.DeviceCUDA}, DeviceErrorLimit: 2}, factory)
	fallbacks := 0
	stage.OnFallback(func(detector.Device, error) { fallbacks++ })
	require.NoError(t, stage.bind(context.Background()))
	assert.Equal(t, "cuda:0", stage.Device().String())

	for i := 0; i < 2; i++ {
		res := stage.Process(context.Background(), solidPair(t, uint64(i), 8, 8, 8, 8))
		assert.True(t, res.Failed)
	}

	assert.Equal(t, detector.CPU, stage.Device())
	assert.Equal(t, 1, fallbacks)
	assert.Equal(t, int64(1), gpu.closes.Load())

	res := stage.Process(context.Background(), solidPair(t, 2, 8, 8, 8, 8))
	assert.False(t, res.Failed)
	assert.Equal(t, int64(1), cpu.calls.Load())
}

func TestInferenceStage_RunForwardsAllFrames(t *testing.T) {
	det := &fakeDetector{}
	signal := NewShutdownSignal()
	in := NewBoundedChannel[*FramePair](8)
	out := NewBoundedChannel[*InferenceResult](8)
	stage := NewInferenceStage(InferenceConfig{SkipInterval: 1, Device: detector.CPU, ChannelTimeout: 10 * time.Millisecond},
		staticFactory(det), in, out, signal, logger.NewNopLogger())

	for i := 0; i < 4; i++ {
		require.True(t, in.TryPut(solidPair(t, uint64(i), 8, 8, 8, 8)))
	}

	done := make(chan error, 1)
	go func() { done <- stage.Run(context.Background()) }()

	require.Eventually(t, func() bool { return out.Len() == 4 }, time.Second, 5*time.Millisecond)
	signal.Trigger(ErrStopped)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("inference stage did not observe shutdown")
	}

	assert.Equal(t, int64(2), det.calls.Load())
	assert.Equal(t, int64(1), det.closes.Load())
}
