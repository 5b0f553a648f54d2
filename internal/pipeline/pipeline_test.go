package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kabilash01/cricket-ai/internal/capture"
	"github.com/Kabilash01/cricket-ai/internal/detector"
	"github.com/Kabilash01/cricket-ai/internal/logger"
	"github.com/Kabilash01/cricket-ai/internal/service"
)

type memoryRecorder struct {
	mu   sync.Mutex
	runs []RunSummary
}

func (r *memoryRecorder) RecordRun(ctx context.Context, run RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func testConfig() Config {
	return Config{
		Source:          SourceConfig{ResizeWidth: 32, ResizeHeight: 24},
		Inference:       InferenceConfig{SkipInterval: 2, Confidence: 0.5, IoU: 0.45, Timeout: time.Second, Device: detector.CPU},
		FrameQueueSize:  4,
		ResultQueueSize: 4,
		ChannelTimeout:  20 * time.Millisecond,
	}
}

func openerFor(src capture.Source) SourceOpener {
	return func(ctx context.Context) (capture.Source, error) { return src, nil }
}

func TestPipeline_RunsToExhaustion(t *testing.T) {
	src := newFakeSource(9, 64, 48)
	src.delay = 5 * time.Millisecond
	det := &fakeDetector{detections: []detector.Detection{{Box: detector.Box{X1: 1, Y1: 1, X2: 4, Y2: 4}, Score: 0.9, ClassName: "person"}}}
	sink := &recordingSink{}
	recorder := &memoryRecorder{}

	p, err := New(testConfig(), Deps{
		Open:      openerFor(src),
		Detector:  staticFactory(det),
		Annotator: &nopAnnotator{},
		Sink:      sink,
		Recorder:  recorder,
	}, logger.NewNopLogger())
	require.NoError(t, err)

	bus := service.NewEventBus(100)
	p.SetEventBus(bus)
	events := bus.SubscribeAll()

	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, int64(1), src.closes.Load(), "capture handle closed exactly once")
	assert.Equal(t, int64(1), det.closes.Load())
	assert.LessOrEqual(t, sink.shown.Load(), int64(9))
	assert.LessOrEqual(t, det.calls.Load(), int64(3), "only every third frame is detected")

	require.Len(t, recorder.runs, 1)
	run := recorder.runs[0]
	assert.Equal(t, "fake://source", run.Source)
	assert.Equal(t, ErrSourceExhausted.Error(), run.Reason)
	assert.Equal(t, uint64(sink.shown.Load()), run.Frames)
	assert.Equal(t, "cpu", run.Device)
	assert.NotEmpty(t, run.ID)

	status := p.Status()
	assert.False(t, status.Running)
	assert.Equal(t, run.ID, status.RunID)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, ErrSourceExhausted.Error(), status.Reason)

	var types []service.EventType
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	assert.Contains(t, types, service.EventTypePipelineStarted)
	assert.Contains(t, types, service.EventTypePipelineStopped)
}

func TestPipeline_CancelIsObservedPromptly(t *testing.T) {
	src := newFakeSource(-1, 64, 48)
	src.delay = time.Millisecond
	p, err := New(testConfig(), Deps{
		Open:      openerFor(src),
		Detector:  staticFactory(&fakeDetector{delay: 2 * time.Millisecond}),
		Annotator: &nopAnnotator{},
		Sink:      &recordingSink{},
	}, logger.NewNopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return p.Status().Stats.Frames > 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("pipeline did not stop within one second of cancellation")
	}
	assert.Equal(t, int64(1), src.closes.Load())
	assert.Equal(t, context.Canceled.Error(), p.Status().Reason)
}

func TestPipeline_UserStop(t *testing.T) {
	src := newFakeSource(-1, 64, 48)
	src.delay = time.Millisecond
	sink := &recordingSink{cancelAfter: 3}
	p, err := New(testConfig(), Deps{
		Open:      openerFor(src),
		Detector:  staticFactory(&fakeDetector{}),
		Annotator: &nopAnnotator{},
		Sink:      sink,
	}, logger.NewNopLogger())
	require.NoError(t, err)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, ErrUserStop.Error(), p.Status().LastRun.Reason)
	assert.Equal(t, int64(1), src.closes.Load())
	assert.GreaterOrEqual(t, sink.shown.Load(), int64(3))
}

func TestPipeline_SourceUnavailable(t *testing.T) {
	factoryCalls := 0
	p, err := New(testConfig(), Deps{
		Open: func(ctx context.Context) (capture.Source, error) {
			return nil, errors.New("no such file")
		},
		Detector: func(ctx context.Context, device detector.Device) (detector.Detector, error) {
			factoryCalls++
			return &fakeDetector{device: device}, nil
		},
		Annotator: &nopAnnotator{},
		Sink:      &recordingSink{},
	}, logger.NewNopLogger())
	require.NoError(t, err)

	err = p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Zero(t, factoryCalls)
	assert.Equal(t, service.StatusError, p.GetStatus().GetStatus())

	// a failed open leaves the pipeline ready for another attempt
	err = p.Run(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestPipeline_DetectorUnavailableStopsRun(t *testing.T) {
	src := newFakeSource(-1, 64, 48)
	src.delay = time.Millisecond
	p, err := New(testConfig(), Deps{
		Open: openerFor(src),
		Detector: func(ctx context.Context, device detector.Device) (detector.Detector, error) {
			return nil, detector.ResourceError("load", errors.New("model not found"))
		},
		Annotator: &nopAnnotator{},
		Sink:      &recordingSink{},
	}, logger.NewNopLogger())
	require.NoError(t, err)

	err = p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, detector.IsResourceError(err))
	assert.Equal(t, int64(1), src.closes.Load())
	assert.Equal(t, err, p.Err())
}

func TestPipeline_StartStop(t *testing.T) {
	src := newFakeSource(-1, 64, 48)
	src.delay = time.Millisecond
	p, err := New(testConfig(), Deps{
		Open:      openerFor(src),
		Detector:  staticFactory(&fakeDetector{}),
		Annotator: &nopAnnotator{},
		Sink:      &recordingSink{},
	}, logger.NewNopLogger())
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Run(context.Background()), ErrAlreadyRunning)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Stop")
	}
	assert.NoError(t, p.Err())
	assert.Equal(t, ErrStopped.Error(), p.Status().Reason)
	assert.Equal(t, int64(1), src.closes.Load())
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(testConfig(), Deps{}, logger.NewNopLogger())
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Source.ResizeWidth = 0
	_, err = New(cfg, Deps{
		Open:      openerFor(newFakeSource(1, 8, 8)),
		Detector:  staticFactory(&fakeDetector{}),
		Annotator: &nopAnnotator{},
		Sink:      &recordingSink{},
	}, logger.NewNopLogger())
	assert.Error(t, err)
}
