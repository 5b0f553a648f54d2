//go:build opencv

// Package opencv provides an OpenCV capture backend and a desktop window
// sink. It needs the OpenCV libraries and is only built with -tags opencv.
package opencv

import (
	"context"
	"fmt"
	"image"
	"io"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/Kabilash01/cricket-ai/internal/capture"
	"github.com/Kabilash01/cricket-ai/internal/logger"
)

// BackendName is the capture backend name registered by this package
const BackendName = "opencv"

func init() {
	capture.RegisterBackend(BackendName, Open)
}

// Source reads frames through cv::VideoCapture
type Source struct {
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	info   capture.Info
	opts   capture.Options
	logger *logger.Logger

	interval  time.Duration
	lastFrame time.Time
	closeOnce sync.Once
	closeErr  error
}

// Open opens a file, device index, device path or stream URL
func Open(ctx context.Context, uri string, opts capture.Options, log *logger.Logger) (capture.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var target interface{} = uri
	if idx, err := strconv.Atoi(uri); err == nil {
		target = idx
	}

	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", capture.ErrUnavailable, uri, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s: capture did not open", capture.ErrUnavailable, uri)
	}

	fps := vc.Get(gocv.VideoCaptureFPS)
	s := &Source{
		vc:  vc,
		mat: gocv.NewMat(),
		info: capture.Info{
			URI:     uri,
			Kind:    capture.Kind(uri),
			Backend: BackendName,
			Width:   int(vc.Get(gocv.VideoCaptureFrameWidth)),
			Height:  int(vc.Get(gocv.VideoCaptureFrameHeight)),
			FPS:     fps,
		},
		opts:   opts,
		logger: log,
	}
	if opts.Realtime && fps > 0 && s.info.Kind == "file" {
		s.interval = time.Duration(float64(time.Second) / fps)
	}
	return s, nil
}

// Read returns the next frame, or io.EOF when the source is exhausted
func (s *Source) Read() (image.Image, error) {
	if !s.vc.Read(&s.mat) || s.mat.Empty() {
		if !s.opts.Loop || s.info.Kind != "file" {
			return nil, io.EOF
		}
		s.vc.Set(gocv.VideoCapturePosFrames, 0)
		if !s.vc.Read(&s.mat) || s.mat.Empty() {
			return nil, io.EOF
		}
		s.logger.Debug("Capture looped", "uri", s.info.URI)
	}

	if s.interval > 0 {
		if wait := s.interval - time.Since(s.lastFrame); wait > 0 {
			time.Sleep(wait)
		}
		s.lastFrame = time.Now()
	}

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	return img, nil
}

// Describe returns the source geometry
func (s *Source) Describe() capture.Info {
	return s.info
}

// Close releases the capture device; later calls return the first result
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.mat.Close()
		s.closeErr = s.vc.Close()
	})
	return s.closeErr
}
