package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Kabilash01/cricket-ai/internal/capture"
	"github.com/Kabilash01/cricket-ai/internal/detector"
)

// fakeSource yields solid frames; frames < 0 means endless
type fakeSource struct {
	width, height int
	frames        int
	delay         time.Duration
	readErr       error

	reads  atomic.Int64
	closes atomic.Int64
}

func newFakeSource(frames, width, height int) *fakeSource {
	return &fakeSource{frames: frames, width: width, height: height}
}

func (s *fakeSource) Read() (image.Image, error) {
	n := s.reads.Add(1)
	if s.readErr != nil {
		return nil, s.readErr
	}
	if s.frames >= 0 && n > int64(s.frames) {
		return nil, io.EOF
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	img.Set(0, 0, color.RGBA{R: uint8(n), A: 255})
	return img, nil
}

func (s *fakeSource) Describe() capture.Info {
	return capture.Info{URI: "fake://source", Kind: "file", Backend: "fake", Width: s.width, Height: s.height}
}

func (s *fakeSource) Close() error {
	s.closes.Add(1)
	return nil
}

var _ capture.Source = (*fakeSource)(nil)

// fakeDetector returns fixed detections after an optional delay
type fakeDetector struct {
	device     detector.Device
	detections []detector.Detection
	delay      time.Duration
	err        error

	calls  atomic.Int64
	closes atomic.Int64
}

func (d *fakeDetector) Predict(ctx context.Context, img image.Image, confidence, iou float64) ([]detector.Detection, error) {
	d.calls.Add(1)
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, errors.Join(detector.ErrTimeout, ctx.Err())
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	out := make([]detector.Detection, len(d.detections))
	copy(out, d.detections)
	return out, nil
}

func (d *fakeDetector) Device() detector.Device {
	return d.device
}

func (d *fakeDetector) Close() error {
	d.closes.Add(1)
	return nil
}

// staticFactory always returns det
func staticFactory(det *fakeDetector) detector.Factory {
	return func(ctx context.Context, device detector.Device) (detector.Detector, error) {
		det.device = device
		return det, nil
	}
}

// nopAnnotator records the last header and returns the frame unchanged
type nopAnnotator struct {
	mu         sync.Mutex
	lastHeader string
	lastDets   []detector.Detection
}

func (a *nopAnnotator) Annotate(img image.Image, detections []detector.Detection, header string) image.Image {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastHeader = header
	a.lastDets = detections
	return img
}

// recordingSink counts shown frames and cancels after cancelAfter frames (0 = never)
type recordingSink struct {
	cancelAfter int64
	showErr     error

	shown     atomic.Int64
	cancelled atomic.Bool
}

func (s *recordingSink) Show(img image.Image) error {
	n := s.shown.Add(1)
	if s.cancelAfter > 0 && n >= s.cancelAfter {
		s.cancelled.Store(true)
	}
	return s.showErr
}

func (s *recordingSink) Cancelled() bool {
	return s.cancelled.Load()
}

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func solidPair(t *testing.T, seq uint64, ow, oh, rw, rh int) *FramePair {
	t.Helper()
	ts := time.Now()
	pair, err := NewFramePair(
		NewFrame(image.NewRGBA(image.Rect(0, 0, ow, oh)), seq, ts),
		NewFrame(image.NewRGBA(image.Rect(0, 0, rw, rh)), seq, ts),
	)
	if err != nil {
		t.Fatalf("NewFramePair failed: %v", err)
	}
	return pair
}
