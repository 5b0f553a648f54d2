package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kabilash01/cricket-ai/internal/logger"
)

func writeImages(t *testing.T, dir string, names ...string) {
	t.Helper()
	for i, name := range names {
		img := imaging.New(32, 16, color.NRGBA{R: uint8(10 * i), A: 255})
		require.NoError(t, imaging.Save(img, filepath.Join(dir, name)))
	}
}

func TestKind(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "rtsp", Kind("rtsp://cam.local/stream"))
	assert.Equal(t, "device", Kind("/dev/video0"))
	assert.Equal(t, "device", Kind("0"))
	assert.Equal(t, "images", Kind(dir))
	assert.Equal(t, "images", Kind("frames/*.png"))
	assert.Equal(t, "images", Kind("still.JPG"))
	assert.Equal(t, "file", Kind("match.mp4"))
}

func TestImageSequence_ReadsInOrder(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, "b.png", "a.png", "c.jpg")

	seq, err := OpenImageSequence(dir, Options{})
	require.NoError(t, err)
	defer seq.Close()

	assert.Equal(t, 3, seq.Len())
	info := seq.Describe()
	assert.Equal(t, 32, info.Width)
	assert.Equal(t, 16, info.Height)

	for i := 0; i < 3; i++ {
		img, err := seq.Read()
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 32, 16), img.Bounds())
	}

	_, err = seq.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestImageSequence_Loop(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, "only.png")

	seq, err := OpenImageSequence(dir, Options{Loop: true})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := seq.Read()
		require.NoError(t, err)
	}

	require.NoError(t, seq.Close())
	_, err = seq.Read()
	assert.ErrorIs(t, err, io.EOF, "closed sequence is exhausted")
}

func TestImageSequence_Empty(t *testing.T) {
	_, err := OpenImageSequence(t.TempDir(), Options{})
	assert.Error(t, err)
}

func TestOpen_ImagesAndUnavailable(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, "1.png", "2.png")
	log := logger.NewNopLogger()

	src, err := Open(context.Background(), dir, Options{}, log)
	require.NoError(t, err)
	assert.Equal(t, "images", src.Describe().Kind)
	require.NoError(t, src.Close())

	_, err = Open(context.Background(), filepath.Join(dir, "*.bmp"), Options{}, log)
	assert.True(t, errors.Is(err, ErrUnavailable))

	_, err = Open(context.Background(), "match.mp4", Options{Backend: "nope"}, log)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

type stubSource struct{ info Info }

func (s *stubSource) Read() (image.Image, error) { return nil, io.EOF }
func (s *stubSource) Describe() Info             { return s.info }
func (s *stubSource) Close() error               { return nil }

func TestRegisterBackend(t *testing.T) {
	RegisterBackend("stub", func(ctx context.Context, uri string, opts Options, log *logger.Logger) (Source, error) {
		return &stubSource{info: Info{URI: uri, Backend: "stub", Kind: Kind(uri)}}, nil
	})
	assert.Contains(t, Backends(), "stub")
	assert.Equal(t, "ffmpeg", Backends()[0])

	src, err := Open(context.Background(), "match.mp4", Options{Backend: "stub"}, logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, "stub", src.Describe().Backend)
}

func TestParseProbe(t *testing.T) {
	info, err := parseProbe([]byte(`{"streams":[{"width":1920,"height":1080,"r_frame_rate":"30/1","avg_frame_rate":"30000/1001"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.InDelta(t, 29.97, info.FPS, 0.01)

	_, err = parseProbe([]byte(`{"streams":[]}`))
	assert.Error(t, err)

	assert.Equal(t, 25.0, parseRate("25"))
	assert.Equal(t, 0.0, parseRate("0/0"))
}

func TestParseHWAccels(t *testing.T) {
	accels := parseHWAccels("Hardware acceleration methods:\nvdpau\ncuda\nvaapi\n\n")
	assert.True(t, accels["cuda"])
	assert.True(t, accels["vaapi"])
	assert.False(t, accels["Hardware acceleration methods:"])
}

func TestProbeRTSP_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := ProbeRTSP(ctx, "rtsp://127.0.0.1:1/stream", time.Second)
	assert.Error(t, err)

	_, err = ProbeRTSP(ctx, "://bad", time.Second)
	assert.Error(t, err)
}

func TestFFmpegSource_TestPattern(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available, skipping test")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not available, skipping test")
	}

	clip := filepath.Join(t.TempDir(), "clip.mp4")
	gen := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=size=160x120:rate=10", "-frames:v", "5",
		"-pix_fmt", "yuv420p", clip)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("failed to generate test clip: %v: %s", err, out)
	}

	src, err := OpenFFmpeg(context.Background(), clip, Options{Timeout: 10 * time.Second}, logger.NewNopLogger())
	require.NoError(t, err)
	defer src.Close()

	info := src.Describe()
	assert.Equal(t, 160, info.Width)
	assert.Equal(t, 120, info.Height)

	frames := 0
	for {
		img, err := src.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 160, 120), img.Bounds())
		frames++
	}
	assert.Equal(t, 5, frames)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
}
