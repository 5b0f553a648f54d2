package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/Kabilash01/cricket-ai/internal/logger"
)

// FFmpegSource decodes a source with an ffmpeg subprocess writing raw RGBA
// frames to a pipe
type FFmpegSource struct {
	info      Info
	cmd       *exec.Cmd
	stdout    io.ReadCloser
	reader    *bufio.Reader
	stderr    *tailBuffer
	frameSize int
	frames    uint64
	cancel    context.CancelFunc
	logger    *logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// OpenFFmpeg probes uri and starts the decoder process
func OpenFFmpeg(ctx context.Context, uri string, opts Options, log *logger.Logger) (*FFmpegSource, error) {
	wrapper, err := DefaultFFmpeg(log)
	if err != nil {
		return nil, err
	}

	probeCtx, cancelProbe := context.WithTimeout(ctx, opts.Timeout)
	stream, err := wrapper.Probe(probeCtx, uri)
	cancelProbe()
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", uri, err)
	}

	kind := Kind(uri)
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if hw := wrapper.PreferredHWAccel(); hw != "" && kind != "device" {
		args = append(args, "-hwaccel", hw)
	}
	if kind == "file" {
		if opts.Realtime {
			args = append(args, "-re")
		}
		if opts.Loop {
			args = append(args, "-stream_loop", "-1")
		}
	}
	args = append(args, inputArgs(uri, kind)...)
	args = append(args, "-an", "-f", "rawvideo", "-pix_fmt", "rgba", "pipe:1")

	// The process outlives the open call, so it is bound to its own context.
	procCtx, cancel := context.WithCancel(context.Background())
	cmd := wrapper.BuildCommand(procCtx, args)
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	frameSize := stream.Width * stream.Height * 4
	log.Debug("FFmpeg decoder started", "uri", uri, "args", strings.Join(args, " "))

	return &FFmpegSource{
		info: Info{
			URI:     uri,
			Kind:    kind,
			Backend: "ffmpeg",
			Width:   stream.Width,
			Height:  stream.Height,
			FPS:     stream.FPS,
		},
		cmd:       cmd,
		stdout:    stdout,
		reader:    bufio.NewReaderSize(stdout, frameSize),
		stderr:    stderr,
		frameSize: frameSize,
		cancel:    cancel,
		logger:    log,
	}, nil
}

// Read returns the next decoded frame. Each frame owns a fresh buffer.
func (s *FFmpegSource) Read() (image.Image, error) {
	buf := make([]byte, s.frameSize)
	if _, err := io.ReadFull(s.reader, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if s.frames == 0 {
				if msg := s.stderr.String(); msg != "" {
					return nil, fmt.Errorf("ffmpeg produced no frames: %s", msg)
				}
			}
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	s.frames++

	return &image.RGBA{
		Pix:    buf,
		Stride: 4 * s.info.Width,
		Rect:   image.Rect(0, 0, s.info.Width, s.info.Height),
	}, nil
}

// Describe returns the stream geometry
func (s *FFmpegSource) Describe() Info {
	return s.info
}

// Close stops the decoder process; only the first call has an effect
func (s *FFmpegSource) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.stdout.Close()
		if err := s.cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				s.closeErr = fmt.Errorf("failed to stop ffmpeg: %w", err)
			}
		}
		s.logger.Debug("FFmpeg decoder stopped", "uri", s.info.URI, "frames", s.frames)
	})
	return s.closeErr
}

// tailBuffer keeps the last max bytes written to it
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
