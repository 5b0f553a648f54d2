package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Kabilash01/cricket-ai/internal/capture"
	"github.com/Kabilash01/cricket-ai/internal/detector"
	"github.com/Kabilash01/cricket-ai/internal/logger"
	"github.com/Kabilash01/cricket-ai/internal/service"
)

// Config contains pipeline configuration
type Config struct {
	Source          SourceConfig
	Inference       InferenceConfig
	FrameQueueSize  int
	ResultQueueSize int
	ChannelTimeout  time.Duration
}

// SourceOpener opens the capture source for a run
type SourceOpener func(ctx context.Context) (capture.Source, error)

// RunSummary is the outcome of one run
type RunSummary struct {
	ID             string        `json:"id"`
	Source         string        `json:"source"`
	Device         string        `json:"device"`
	StartedAt      time.Time     `json:"started_at"`
	EndedAt        time.Time     `json:"ended_at"`
	Frames         uint64        `json:"frames"`
	InferCalls     uint64        `json:"infer_calls"`
	AvgLatency     time.Duration `json:"avg_latency_ns"`
	FPS            float64       `json:"fps"`
	FramesDropped  uint64        `json:"frames_dropped"`
	ResultsDropped uint64        `json:"results_dropped"`
	Reason         string        `json:"reason"`
	Failed         bool          `json:"failed"`
}

// RunRecorder persists run summaries
type RunRecorder interface {
	RecordRun(ctx context.Context, run RunSummary) error
}

// Status is a point-in-time view of the pipeline for status endpoints
type Status struct {
	RunID   string        `json:"run_id,omitempty"`
	Running bool          `json:"running"`
	Source  capture.Info  `json:"source"`
	Device  string        `json:"device,omitempty"`
	Stats   StatsSnapshot `json:"stats"`
	Frames  ChannelStats  `json:"frame_channel"`
	Results ChannelStats  `json:"result_channel"`
	Reason  string        `json:"shutdown_reason,omitempty"`
	LastRun *RunSummary   `json:"last_run,omitempty"`
}

// Deps are the collaborators a pipeline is assembled from
type Deps struct {
	Open      SourceOpener
	Detector  detector.Factory
	Annotator Annotator
	Sink      Sink
	Recorder  RunRecorder // optional
}

// run holds the state of a single pipeline run
type run struct {
	id        string
	info      capture.Info
	startedAt time.Time
	frames    *BoundedChannel[*FramePair]
	results   *BoundedChannel[*InferenceResult]
	signal    *ShutdownSignal
	inference *InferenceStage
	snapshot  atomic.Pointer[StatsSnapshot]
	done      chan struct{}
}

// Pipeline wires source, inference and render stages together for one or
// more consecutive runs
type Pipeline struct {
	*service.ServiceBase
	cfg    Config
	deps   Deps
	logger *logger.Logger

	running atomic.Bool
	mu      sync.RWMutex
	current *run
	lastRun *RunSummary
	lastErr error
}

// New creates a pipeline
func New(cfg Config, deps Deps, log *logger.Logger) (*Pipeline, error) {
	if deps.Open == nil || deps.Detector == nil || deps.Annotator == nil || deps.Sink == nil {
		return nil, fmt.Errorf("pipeline requires a source opener, detector factory, annotator and sink")
	}
	if cfg.Source.ResizeWidth <= 0 || cfg.Source.ResizeHeight <= 0 {
		return nil, fmt.Errorf("invalid resize dimensions %dx%d", cfg.Source.ResizeWidth, cfg.Source.ResizeHeight)
	}
	if cfg.FrameQueueSize <= 0 {
		cfg.FrameQueueSize = DefaultQueueSize
	}
	if cfg.ResultQueueSize <= 0 {
		cfg.ResultQueueSize = DefaultQueueSize
	}
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = 500 * time.Millisecond
	}
	cfg.Inference.ChannelTimeout = cfg.ChannelTimeout
	if cfg.Inference.WarmupWidth == 0 {
		cfg.Inference.WarmupWidth = cfg.Source.ResizeWidth
		cfg.Inference.WarmupHeight = cfg.Source.ResizeHeight
	}

	return &Pipeline{
		ServiceBase: service.NewServiceBase("pipeline", log),
		cfg:         cfg,
		deps:        deps,
		logger:      log,
	}, nil
}

// Run executes one run on the calling goroutine, which also drives the render
// stage. It returns nil when the run ends cleanly (source exhausted, user stop,
// frame limit, cancellation) and an error wrapping ErrSourceUnavailable when
// the source cannot be opened.
func (p *Pipeline) Run(ctx context.Context) error {
	r, src, err := p.prepare(ctx)
	if err != nil {
		return err
	}
	return p.execute(ctx, r, src)
}

// Start opens the source and runs the pipeline in the background
func (p *Pipeline) Start(ctx context.Context) error {
	r, src, err := p.prepare(ctx)
	if err != nil {
		return err
	}
	go func() {
		if err := p.execute(ctx, r, src); err != nil {
			p.LogError("Pipeline run failed", err)
		}
	}()
	return nil
}

// Stop requests shutdown of the current run and waits for it to finish
func (p *Pipeline) Stop(ctx context.Context) error {
	r := p.currentRun()
	if r == nil {
		return nil
	}
	r.signal.Trigger(ErrStopped)
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline stop: %w", ctx.Err())
	}
}

// Done is closed when the current run has finished. It returns a closed
// channel when no run is active.
func (p *Pipeline) Done() <-chan struct{} {
	if r := p.currentRun(); r != nil {
		return r.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Err returns the error of the last finished run
func (p *Pipeline) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

func (p *Pipeline) currentRun() *run {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

func (p *Pipeline) prepare(ctx context.Context) (*run, capture.Source, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, nil, ErrAlreadyRunning
	}

	src, err := p.deps.Open(ctx)
	if err != nil {
		p.running.Store(false)
		p.GetStatus().SetError(err)
		return nil, nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	r := &run{
		id:        uuid.NewString(),
		info:      src.Describe(),
		startedAt: time.Now(),
		frames:    NewBoundedChannel[*FramePair](p.cfg.FrameQueueSize),
		results:   NewBoundedChannel[*InferenceResult](p.cfg.ResultQueueSize),
		signal:    NewShutdownSignal(),
		done:      make(chan struct{}),
	}
	r.inference = NewInferenceStage(p.cfg.Inference, p.deps.Detector, r.frames, r.results, r.signal,
		p.logger.With("run_id", r.id).Named("inference"))

	p.mu.Lock()
	p.current = r
	p.mu.Unlock()

	return r, src, nil
}

func (p *Pipeline) execute(ctx context.Context, r *run, src capture.Source) (err error) {
	defer close(r.done)
	defer p.running.Store(false)

	log := p.logger.With("run_id", r.id)
	stats := NewStats(nil)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			r.signal.Trigger(ctx.Err())
		case <-r.signal.Done():
		}
		cancel()
	}()

	source := NewFrameSource(src, p.cfg.Source, r.frames, r.signal, log.Named("source"))
	r.inference.OnFallback(func(preferred detector.Device, cause error) {
		p.PublishEvent(service.EventTypeDetectorFallback, map[string]interface{}{
			"run_id":    r.id,
			"preferred": preferred.String(),
			"device":    detector.CPU.String(),
			"error":     cause.Error(),
		})
	})
	render := NewRenderStage(r.results, r.signal, stats, p.deps.Annotator, p.deps.Sink, p.cfg.ChannelTimeout, log.Named("render"))
	render.OnFrame(func(f RenderedFrame) {
		snapshot := f.Stats
		r.snapshot.Store(&snapshot)
		if len(f.Detections) > 0 {
			p.PublishEvent(service.EventTypeDetection, map[string]interface{}{
				"run_id":     r.id,
				"seq":        f.Seq,
				"timestamp":  f.Timestamp,
				"width":      f.Width,
				"height":     f.Height,
				"detections": f.Detections,
			})
		}
	})

	p.GetStatus().SetStatus(service.StatusRunning)
	p.LogInfo("Pipeline started",
		"run_id", r.id,
		"source", r.info.URI,
		"resize", fmt.Sprintf("%dx%d", p.cfg.Source.ResizeWidth, p.cfg.Source.ResizeHeight),
		"frame_skip", p.cfg.Inference.SkipInterval,
		"frame_queue", r.frames.Cap(),
		"result_queue", r.results.Cap(),
	)
	p.PublishEvent(service.EventTypePipelineStarted, map[string]interface{}{
		"run_id": r.id,
		"source": r.info.URI,
	})

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return source.Run(gctx) })
	g.Go(func() error { return r.inference.Run(gctx) })

	renderErr := render.Run(runCtx)
	r.signal.Trigger(ErrStopped)
	stageErr := g.Wait()

	summary := p.summarize(r, stats)
	p.finish(r, summary)

	reason := r.signal.Reason()
	switch {
	case renderErr != nil:
		err = renderErr
	case !isCleanShutdown(reason):
		err = fmt.Errorf("pipeline stopped: %w", reason)
	case stageErr != nil:
		err = stageErr
	}

	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()

	if err != nil {
		p.GetStatus().SetError(err)
	} else {
		p.GetStatus().SetStatus(service.StatusStopped)
	}
	return err
}

func (p *Pipeline) summarize(r *run, stats *Stats) RunSummary {
	snap := stats.Snapshot()
	reason := "stopped"
	rs := r.signal.Reason()
	if rs != nil {
		reason = rs.Error()
	}
	return RunSummary{
		ID:             r.id,
		Source:         r.info.URI,
		Device:         r.inference.Device().String(),
		StartedAt:      r.startedAt,
		EndedAt:        time.Now(),
		Frames:         snap.Frames,
		InferCalls:     snap.InferCalls,
		AvgLatency:     snap.AvgLatency,
		FPS:            snap.FPS,
		FramesDropped:  r.frames.Dropped(),
		ResultsDropped: r.results.Dropped(),
		Reason:         reason,
		Failed:         !isCleanShutdown(rs),
	}
}

func (p *Pipeline) finish(r *run, summary RunSummary) {
	p.LogInfo("Pipeline finished",
		"run_id", summary.ID,
		"frames", summary.Frames,
		"infer_calls", summary.InferCalls,
		"avg_infer_ms", float64(summary.AvgLatency)/float64(time.Millisecond),
		"fps", summary.FPS,
		"frames_dropped", summary.FramesDropped,
		"results_dropped", summary.ResultsDropped,
		"reason", summary.Reason,
	)

	if p.deps.Recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.deps.Recorder.RecordRun(ctx, summary); err != nil {
			p.LogWarn("Failed to record run history", "error", err)
		}
		cancel()
	}

	p.mu.Lock()
	p.lastRun = &summary
	p.mu.Unlock()

	p.PublishEvent(service.EventTypePipelineStopped, map[string]interface{}{
		"run_id": summary.ID,
		"frames": summary.Frames,
		"reason": summary.Reason,
	})
}

// Status returns the current or most recent run's state
func (p *Pipeline) Status() Status {
	p.mu.RLock()
	r := p.current
	last := p.lastRun
	p.mu.RUnlock()

	st := Status{Running: p.running.Load(), LastRun: last}
	if r == nil {
		return st
	}

	st.RunID = r.id
	st.Source = r.info
	st.Frames = r.frames.Stats()
	st.Results = r.results.Stats()
	if dev := r.inference.Device(); dev.Kind != "" {
		st.Device = dev.String()
	}
	if snap := r.snapshot.Load(); snap != nil {
		st.Stats = *snap
	}
	if reason := r.signal.Reason(); reason != nil {
		st.Reason = reason.Error()
	}
	return st
}
