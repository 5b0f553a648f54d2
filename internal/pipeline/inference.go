package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/Kabilash01/cricket-ai/internal/detector"
	"github.com/Kabilash01/cricket-ai/internal/logger"
)

// failureLogInterval controls how often repeated detector failures are logged
const failureLogInterval = 100

// InferenceConfig contains inference stage configuration
type InferenceConfig struct {
	SkipInterval     int // frames skipped between detections; 0 detects every frame
	Confidence       float64
	IoU              float64
	Timeout          time.Duration // per-call budget
	Device           detector.Device
	Warmup           bool
	WarmupWidth      int
	WarmupHeight     int
	DeviceErrorLimit int // consecutive device errors before rebinding to CPU; 0 disables
	ChannelTimeout   time.Duration
	Classes          []string
}

// FallbackFunc is called when the stage binds to CPU instead of the preferred device
type FallbackFunc func(preferred detector.Device, cause error)

// InferenceStage runs the detector on every (k+1)-th frame and forwards all
// frames, detected or not, to the result channel
type InferenceStage struct {
	cfg        InferenceConfig
	factory    detector.Factory
	in         *BoundedChannel[*FramePair]
	out        *BoundedChannel[*InferenceResult]
	signal     *ShutdownSignal
	logger     *logger.Logger
	onFallback FallbackFunc
	filter     detector.ClassFilter

	det           detector.Detector
	bound         atomic.Pointer[detector.Device]
	index         uint64
	failures      uint64
	deviceStreak  int
	detectedCount uint64
	skippedCount  uint64
}

// NewInferenceStage creates an inference stage; the detector is built when Run starts
func NewInferenceStage(
	cfg InferenceConfig,
	factory detector.Factory,
	in *BoundedChannel[*FramePair],
	out *BoundedChannel[*InferenceResult],
	signal *ShutdownSignal,
	log *logger.Logger,
) *InferenceStage {
	if cfg.SkipInterval < 0 {
		cfg.SkipInterval = 0
	}
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = 500 * time.Millisecond
	}
	return &InferenceStage{
		cfg:     cfg,
		factory: factory,
		in:      in,
		out:     out,
		signal:  signal,
		logger:  log,
		filter:  detector.NewClassFilter(cfg.Classes),
	}
}

// OnFallback registers a callback for device fallback
func (s *InferenceStage) OnFallback(fn FallbackFunc) {
	s.onFallback = fn
}

// ShouldDetect reports whether the frame at index is sent to the detector
func ShouldDetect(index uint64, skip int) bool {
	return index%uint64(skip+1) == 0
}

// bind builds the detector on the preferred device, falling back to CPU once
func (s *InferenceStage) bind(ctx context.Context) error {
	preferred := s.cfg.Device.Preferred()

	det, err := s.factory(ctx, preferred)
	if err == nil {
		s.setDetector(det)
		s.logger.Info("Detector bound", "device", det.Device().String())
		return nil
	}
	if preferred.IsCPU() {
		return fmt.Errorf("failed to create detector on %s: %w", preferred, err)
	}

	s.logger.Warn("Preferred device unavailable, falling back to CPU",
		"device", preferred.String(),
		"error", err,
	)
	det, cpuErr := s.factory(ctx, detector.CPU)
	if cpuErr != nil {
		return fmt.Errorf("failed to create detector on %s (%v) and on cpu: %w", preferred, err, cpuErr)
	}
	s.setDetector(det)
	if s.onFallback != nil {
		s.onFallback(preferred, err)
	}
	return nil
}

func (s *InferenceStage) setDetector(det detector.Detector) {
	s.det = det
	dev := det.Device()
	s.bound.Store(&dev)
}

// warmup runs one throw-away prediction so the first real frame does not pay
// for lazy initialisation
func (s *InferenceStage) warmup(ctx context.Context) {
	w, h := s.cfg.WarmupWidth, s.cfg.WarmupHeight
	if w <= 0 || h <= 0 {
		w, h = 640, 480
	}
	start := time.Now()
	_, err := s.predict(ctx, image.NewRGBA(image.Rect(0, 0, w, h)))
	if err != nil {
		s.logger.Debug("Detector warm-up failed", "error", err)
		return
	}
	s.logger.Debug("Detector warmed up", "duration", time.Since(start))
}

func (s *InferenceStage) predict(ctx context.Context, img image.Image) ([]detector.Detection, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	dets, err := s.det.Predict(ctx, img, s.cfg.Confidence, s.cfg.IoU)
	if err != nil {
		if errors.Is(err, detector.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrDetectorTimeout, err)
		}
		return nil, err
	}
	return s.filter.Apply(dets), nil
}

// Process turns one frame pair into a result. Detector failures never escape:
// the frame is forwarded with no detections and zero latency.
func (s *InferenceStage) Process(ctx context.Context, pair *FramePair) *InferenceResult {
	idx := s.index
	s.index++

	if !ShouldDetect(idx, s.cfg.SkipInterval) {
		s.skippedCount++
		return &InferenceResult{FramePair: pair, Skipped: true}
	}

	start := time.Now()
	dets, err := s.predict(ctx, pair.Resized.Image)
	latency := time.Since(start)

	if err != nil {
		s.recordFailure(ctx, pair, err)
		return &InferenceResult{FramePair: pair, Failed: true}
	}

	s.deviceStreak = 0
	s.detectedCount++
	if latency <= 0 {
		latency = time.Nanosecond
	}
	return &InferenceResult{FramePair: pair, Detections: dets, Latency: latency}
}

func (s *InferenceStage) recordFailure(ctx context.Context, pair *FramePair, err error) {
	s.failures++
	if s.failures == 1 || s.failures%failureLogInterval == 0 {
		s.logger.Warn("Detector failed, forwarding frame without detections",
			"seq", pair.Original.Seq,
			"failures", s.failures,
			"device_error", detector.IsDeviceError(err),
			"error", err,
		)
	}

	if !detector.IsDeviceError(err) {
		s.deviceStreak = 0
		return
	}
	s.deviceStreak++
	if s.cfg.DeviceErrorLimit > 0 && s.deviceStreak >= s.cfg.DeviceErrorLimit && !s.det.Device().IsCPU() {
		s.rebindCPU(ctx, err)
	}
}

// rebindCPU replaces a failing accelerator detector with a CPU one
func (s *InferenceStage) rebindCPU(ctx context.Context, cause error) {
	previous := s.det.Device()
	s.logger.Warn("Repeated device errors, rebuilding detector on CPU",
		"device", previous.String(),
		"consecutive_errors", s.deviceStreak,
	)

	det, err := s.factory(ctx, detector.CPU)
	if err != nil {
		s.logger.Error("Failed to rebuild detector on CPU, keeping current device", "error", err)
		s.deviceStreak = 0
		return
	}
	if cerr := s.det.Close(); cerr != nil {
		s.logger.Debug("Failed to close previous detector", "error", cerr)
	}
	s.setDetector(det)
	s.deviceStreak = 0
	if s.onFallback != nil {
		s.onFallback(previous, cause)
	}
}

// Run binds the detector and processes frames until shutdown. A detector that
// cannot be built on any device triggers shutdown and is returned as an error.
func (s *InferenceStage) Run(ctx context.Context) error {
	if err := s.bind(ctx); err != nil {
		s.signal.Trigger(err)
		return err
	}
	defer func() {
		if err := s.det.Close(); err != nil {
			s.logger.Warn("Failed to close detector", "error", err)
		}
		s.logger.Debug("Inference stage stopped",
			"frames", s.index,
			"detected", s.detectedCount,
			"skipped", s.skippedCount,
			"failures", s.failures,
		)
	}()

	if s.cfg.Warmup {
		s.warmup(ctx)
	}

	for !s.signal.IsSet() {
		pair, err := s.in.Get(s.cfg.ChannelTimeout)
		if err != nil {
			continue
		}
		result := s.Process(ctx, pair)
		if !s.out.TryPut(result) {
			s.logger.Debug("Result channel full, dropped result", "seq", pair.Original.Seq)
		}
	}
	return nil
}

// Device returns the bound device, or the zero Device before Run binds one.
// It is safe to call from any goroutine.
func (s *InferenceStage) Device() detector.Device {
	if dev := s.bound.Load(); dev != nil {
		return *dev
	}
	return detector.Device{}
}
