package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/Kabilash01/cricket-ai/internal/capture"
	"github.com/Kabilash01/cricket-ai/internal/logger"
)

// SourceConfig contains frame source configuration
type SourceConfig struct {
	ResizeWidth  int
	ResizeHeight int
	MaxFrames    int // 0 = unlimited
}

// FrameSource reads native frames, downscales them to a fixed size and
// pushes the pairs into the frame channel without ever blocking
type FrameSource struct {
	src    capture.Source
	cfg    SourceConfig
	out    *BoundedChannel[*FramePair]
	signal *ShutdownSignal
	logger *logger.Logger
	now    Clock

	seq       uint64
	closeOnce sync.Once
	closeErr  error
}

// NewFrameSource wraps an opened capture source
func NewFrameSource(src capture.Source, cfg SourceConfig, out *BoundedChannel[*FramePair], signal *ShutdownSignal, log *logger.Logger) *FrameSource {
	return &FrameSource{
		src:    src,
		cfg:    cfg,
		out:    out,
		signal: signal,
		logger: log,
		now:    time.Now,
	}
}

// Next reads one frame and returns it with its resized copy.
// It returns an error wrapping ErrEndOfStream when the source is exhausted or fails.
func (s *FrameSource) Next() (*FramePair, error) {
	img, err := s.src.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEndOfStream
		}
		return nil, fmt.Errorf("%w: %v", ErrEndOfStream, err)
	}

	ts := s.now()
	seq := s.seq
	s.seq++

	original := NewFrame(img, seq, ts)
	resized := NewFrame(imaging.Resize(img, s.cfg.ResizeWidth, s.cfg.ResizeHeight, imaging.Linear), seq, ts)

	pair, err := NewFramePair(original, resized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEndOfStream, err)
	}
	return pair, nil
}

// Produced returns how many frames have been read
func (s *FrameSource) Produced() uint64 {
	return s.seq
}

// Run pushes frames until shutdown, exhaustion or the frame limit, then
// closes the capture handle and requests shutdown
func (s *FrameSource) Run(ctx context.Context) error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Warn("Failed to close capture source", "error", err)
		}
	}()

	for !s.signal.IsSet() {
		if ctx.Err() != nil {
			return nil
		}

		pair, err := s.Next()
		if err != nil {
			if errors.Is(err, ErrEndOfStream) && err != ErrEndOfStream {
				s.logger.Warn("Capture read failed, treating as end of stream", "error", err, "frames", s.seq)
			} else {
				s.logger.Info("Capture source exhausted", "frames", s.seq)
			}
			s.signal.Trigger(ErrSourceExhausted)
			return nil
		}

		if !s.out.TryPut(pair) {
			s.logger.Debug("Frame channel full, dropped frame", "seq", pair.Original.Seq)
		}

		if s.cfg.MaxFrames > 0 && s.seq >= uint64(s.cfg.MaxFrames) {
			s.logger.Info("Frame limit reached", "frames", s.seq)
			s.signal.Trigger(ErrFrameLimit)
			return nil
		}
	}
	return nil
}

// Close releases the capture handle; only the first call reaches the source
func (s *FrameSource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.src.Close()
	})
	return s.closeErr
}
