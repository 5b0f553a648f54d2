// Package capture opens video sources (files, capture devices, RTSP streams
// and image sequences) and yields decoded frames one at a time.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Kabilash01/cricket-ai/internal/logger"
)

// ErrUnavailable is returned when a source cannot be opened
var ErrUnavailable = errors.New("capture source unavailable")

// Source yields decoded frames until it is exhausted.
// Read returns io.EOF once no more frames will be produced.
type Source interface {
	Read() (image.Image, error)
	Describe() Info
	Close() error
}

// Info describes an opened source
type Info struct {
	URI     string  `json:"uri"`
	Kind    string  `json:"kind"` // file, device, rtsp, images
	Backend string  `json:"backend"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	FPS     float64 `json:"fps"`
}

// Options controls how a source is opened
type Options struct {
	Backend  string        // ffmpeg (default) or a registered backend name
	Loop     bool          // restart file sources when they end
	Realtime bool          // pace file sources at their native frame rate
	Timeout  time.Duration // connection timeout for network sources
}

// Opener opens a source by URI
type Opener func(ctx context.Context, uri string, opts Options, log *logger.Logger) (Source, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]Opener{}
)

// RegisterBackend makes an additional capture backend available by name
func RegisterBackend(name string, open Opener) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = open
}

// Backends returns the names of all registered backends
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends)+1)
	names = append(names, "ffmpeg")
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names[1:])
	return names
}

// Kind classifies a URI as rtsp, device, images or file
func Kind(uri string) string {
	lower := strings.ToLower(uri)
	switch {
	case strings.HasPrefix(lower, "rtsp://") || strings.HasPrefix(lower, "rtsps://"):
		return "rtsp"
	case strings.HasPrefix(uri, "/dev/video") || isDeviceIndex(uri):
		return "device"
	case isImageSequence(uri):
		return "images"
	default:
		return "file"
	}
}

func isDeviceIndex(uri string) bool {
	if uri == "" || len(uri) > 2 {
		return false
	}
	for _, r := range uri {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Open opens uri with the configured backend. Any failure wraps ErrUnavailable.
func Open(ctx context.Context, uri string, opts Options, log *logger.Logger) (Source, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}

	kind := Kind(uri)
	var (
		src Source
		err error
	)

	switch {
	case kind == "images":
		src, err = OpenImageSequence(uri, opts)
	case opts.Backend == "" || opts.Backend == "ffmpeg":
		if kind == "rtsp" {
			if _, perr := ProbeRTSP(ctx, uri, opts.Timeout); perr != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, perr)
			}
		}
		src, err = OpenFFmpeg(ctx, uri, opts, log)
	default:
		backendsMu.RLock()
		open, ok := backends[opts.Backend]
		backendsMu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: unknown capture backend %q (available: %v)", ErrUnavailable, opts.Backend, Backends())
		}
		src, err = open(ctx, uri, opts, log)
	}

	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, uri, err)
	}

	info := src.Describe()
	log.Info("Capture source opened",
		"uri", info.URI,
		"kind", info.Kind,
		"backend", info.Backend,
		"width", info.Width,
		"height", info.Height,
		"fps", info.FPS,
	)
	return src, nil
}
