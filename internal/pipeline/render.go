package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/Kabilash01/cricket-ai/internal/detector"
	"github.com/Kabilash01/cricket-ai/internal/logger"
)

// Annotator draws detections and a header line onto a frame
type Annotator interface {
	Annotate(img image.Image, detections []detector.Detection, header string) image.Image
}

// Sink displays annotated frames and exposes the user's stop request
type Sink interface {
	Show(img image.Image) error
	// Cancelled reports whether the user asked to stop; polled once per frame.
	Cancelled() bool
}

// RenderedFrame describes one frame handed to the sink
type RenderedFrame struct {
	Seq        uint64
	Timestamp  time.Time
	Width      int
	Height     int
	Detections []detector.Detection // original-frame coordinates
	Latency    time.Duration
	Skipped    bool
	Failed     bool
	Stats      StatsSnapshot
}

// FormatStatsLine renders the overlay header
func FormatStatsLine(s StatsSnapshot) string {
	return fmt.Sprintf("FPS: %.1f AvgInfer: %.1fms", s.FPS, s.AvgLatencyMs())
}

// RenderStage consumes results, updates the statistics, draws the overlay and
// hands frames to the sink. It is the only stage that reacts to a user stop.
type RenderStage struct {
	in        *BoundedChannel[*InferenceResult]
	signal    *ShutdownSignal
	stats     *Stats
	annotator Annotator
	sink      Sink
	timeout   time.Duration
	logger    *logger.Logger
	onFrame   func(RenderedFrame)

	showErrors uint64
}

// NewRenderStage creates a render stage
func NewRenderStage(
	in *BoundedChannel[*InferenceResult],
	signal *ShutdownSignal,
	stats *Stats,
	annotator Annotator,
	sink Sink,
	timeout time.Duration,
	log *logger.Logger,
) *RenderStage {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &RenderStage{
		in:        in,
		signal:    signal,
		stats:     stats,
		annotator: annotator,
		sink:      sink,
		timeout:   timeout,
		logger:    log,
	}
}

// OnFrame registers a callback invoked after every rendered frame
func (r *RenderStage) OnFrame(fn func(RenderedFrame)) {
	r.onFrame = fn
}

// Render processes one result: stats, remap, overlay and display
func (r *RenderStage) Render(res *InferenceResult) RenderedFrame {
	r.stats.RecordFrame()
	r.stats.RecordInference(res.Latency)
	snapshot := r.stats.Snapshot()

	remapped := RemapDetections(res.Detections, res.ScaleX, res.ScaleY)

	annotated := r.annotator.Annotate(res.Original.Image, remapped, FormatStatsLine(snapshot))
	if err := r.sink.Show(annotated); err != nil {
		r.showErrors++
		if r.showErrors == 1 || r.showErrors%failureLogInterval == 0 {
			r.logger.Warn("Display sink failed", "error", err, "failures", r.showErrors)
		}
	}

	frame := RenderedFrame{
		Seq:        res.Original.Seq,
		Timestamp:  res.Original.Timestamp,
		Width:      res.Original.Width,
		Height:     res.Original.Height,
		Detections: remapped,
		Latency:    res.Latency,
		Skipped:    res.Skipped,
		Failed:     res.Failed,
		Stats:      snapshot,
	}
	if r.onFrame != nil {
		r.onFrame(frame)
	}
	return frame
}

// Run renders results on the calling goroutine until shutdown or a user stop
func (r *RenderStage) Run(ctx context.Context) error {
	for !r.signal.IsSet() {
		if r.sink.Cancelled() {
			r.logger.Info("Stop requested from display")
			r.signal.Trigger(ErrUserStop)
			return nil
		}

		res, err := r.in.Get(r.timeout)
		if err != nil {
			continue
		}
		r.Render(res)
	}
	return nil
}
