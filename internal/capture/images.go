package capture

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".gif": true, ".tif": true, ".tiff": true,
}

// isImageSequence reports whether uri names a directory, a glob or a single still image
func isImageSequence(uri string) bool {
	if strings.ContainsAny(uri, "*?[") {
		return true
	}
	if imageExtensions[strings.ToLower(filepath.Ext(uri))] {
		return true
	}
	info, err := os.Stat(uri)
	return err == nil && info.IsDir()
}

// ImageSequence replays still images in lexical order
type ImageSequence struct {
	info  Info
	files []string
	next  int
	loop  bool

	mu     sync.Mutex
	closed bool
}

// OpenImageSequence lists the images named by uri (a directory, a glob or one file)
func OpenImageSequence(uri string, opts Options) (*ImageSequence, error) {
	files, err := listImages(uri)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images found at %s", uri)
	}

	first, err := imaging.Open(files[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", files[0], err)
	}
	b := first.Bounds()

	return &ImageSequence{
		info: Info{
			URI:     uri,
			Kind:    "images",
			Backend: "imaging",
			Width:   b.Dx(),
			Height:  b.Dy(),
		},
		files: files,
		loop:  opts.Loop,
	}, nil
}

func listImages(uri string) ([]string, error) {
	var candidates []string
	switch info, err := os.Stat(uri); {
	case err == nil && info.IsDir():
		entries, err := os.ReadDir(uri)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				candidates = append(candidates, filepath.Join(uri, e.Name()))
			}
		}
	case err == nil:
		candidates = []string{uri}
	default:
		matches, gerr := filepath.Glob(uri)
		if gerr != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", uri, gerr)
		}
		if len(matches) == 0 && !strings.ContainsAny(uri, "*?[") {
			return nil, err
		}
		candidates = matches
	}

	files := candidates[:0]
	for _, f := range candidates {
		if imageExtensions[strings.ToLower(filepath.Ext(f))] {
			files = append(files, f)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Read decodes the next image
func (s *ImageSequence) Read() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, io.EOF
	}
	if s.next >= len(s.files) {
		if !s.loop {
			return nil, io.EOF
		}
		s.next = 0
	}

	path := s.files[s.next]
	s.next++

	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// Describe returns the geometry of the first image
func (s *ImageSequence) Describe() Info {
	return s.info
}

// Len returns the number of images in the sequence
func (s *ImageSequence) Len() int {
	return len(s.files)
}

// Close marks the sequence exhausted
func (s *ImageSequence) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
