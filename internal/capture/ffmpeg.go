package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/Kabilash01/cricket-ai/internal/logger"
)

// FFmpegWrapper locates the ffmpeg and ffprobe binaries and the hardware
// decoders they can use
type FFmpegWrapper struct {
	logger      *logger.Logger
	ffmpegPath  string
	ffprobePath string
	hwAccel     HardwareAcceleration
	mu          sync.RWMutex
}

// HardwareAcceleration represents available hardware decoding
type HardwareAcceleration struct {
	VAAPI    bool // Intel/AMD via VAAPI
	CUDA     bool // NVIDIA NVDEC
	Software bool // Software fallback (always available)
}

// StreamInfo is the geometry and frame rate of the first video stream
type StreamInfo struct {
	Width  int
	Height int
	FPS    float64
}

var (
	defaultWrapperOnce sync.Once
	defaultWrapper     *FFmpegWrapper
	defaultWrapperErr  error
)

// DefaultFFmpeg returns a process-wide wrapper, detecting binaries on first use
func DefaultFFmpeg(log *logger.Logger) (*FFmpegWrapper, error) {
	defaultWrapperOnce.Do(func() {
		defaultWrapper, defaultWrapperErr = NewFFmpegWrapper(log)
	})
	return defaultWrapper, defaultWrapperErr
}

// NewFFmpegWrapper creates a new FFmpeg wrapper
func NewFFmpegWrapper(log *logger.Logger) (*FFmpegWrapper, error) {
	wrapper := &FFmpegWrapper{logger: log}

	ffmpegPath, err := detectBinary("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	wrapper.ffmpegPath = ffmpegPath

	ffprobePath, err := detectBinary("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}
	wrapper.ffprobePath = ffprobePath

	wrapper.hwAccel = wrapper.detectHardwareAcceleration()

	log.Info("FFmpeg wrapper initialized",
		"ffmpeg", wrapper.ffmpegPath,
		"ffprobe", wrapper.ffprobePath,
		"vaapi", wrapper.hwAccel.VAAPI,
		"cuda", wrapper.hwAccel.CUDA,
	)

	return wrapper, nil
}

// detectBinary finds an executable in PATH or common locations
func detectBinary(name string) (string, error) {
	paths := []string{name, "/usr/bin/" + name, "/usr/local/bin/" + name}

	for _, path := range paths {
		cmd := exec.Command(path, "-version")
		if err := cmd.Run(); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%s not found in PATH or common locations", name)
}

// detectHardwareAcceleration checks which hwaccels ffmpeg supports and whether
// the matching driver tooling responds
func (f *FFmpegWrapper) detectHardwareAcceleration() HardwareAcceleration {
	accel := HardwareAcceleration{Software: true}

	output, err := exec.Command(f.ffmpegPath, "-hide_banner", "-hwaccels").Output()
	if err != nil {
		f.logger.Warn("Failed to list ffmpeg hwaccels, using software decoding", "error", err)
		return accel
	}
	supported := parseHWAccels(string(output))

	if supported["cuda"] && exec.Command("nvidia-smi").Run() == nil {
		accel.CUDA = true
	}
	if supported["vaapi"] && exec.Command("vainfo").Run() == nil {
		accel.VAAPI = true
	}
	return accel
}

// parseHWAccels parses the output of `ffmpeg -hwaccels`
func parseHWAccels(output string) map[string]bool {
	accels := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		accels[line] = true
	}
	return accels
}

// GetHardwareAcceleration returns available hardware acceleration
func (f *FFmpegWrapper) GetHardwareAcceleration() HardwareAcceleration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.hwAccel
}

// PreferredHWAccel returns the -hwaccel value to use, or "" for software decoding
func (f *FFmpegWrapper) PreferredHWAccel() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	switch {
	case f.hwAccel.CUDA:
		return "cuda"
	case f.hwAccel.VAAPI:
		return "vaapi"
	default:
		return ""
	}
}

// BuildCommand builds an ffmpeg command bound to ctx
func (f *FFmpegWrapper) BuildCommand(ctx context.Context, args []string) *exec.Cmd {
	return exec.CommandContext(ctx, f.ffmpegPath, args...)
}

// GetVersion returns the ffmpeg version line
func (f *FFmpegWrapper) GetVersion() (string, error) {
	output, err := exec.Command(f.ffmpegPath, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get ffmpeg version: %w", err)
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		return strings.TrimSpace(lines[0]), nil
	}
	return "unknown", nil
}

// inputArgs returns the demuxer options and -i argument for uri
func inputArgs(uri, kind string) []string {
	switch kind {
	case "rtsp":
		return []string{"-rtsp_transport", "tcp", "-i", uri}
	case "device":
		if isDeviceIndex(uri) {
			uri = "/dev/video" + uri
		}
		return []string{"-f", "v4l2", "-i", uri}
	default:
		return []string{"-i", uri}
	}
}

type ffprobeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

// Probe reads the first video stream's geometry and frame rate
func (f *FFmpegWrapper) Probe(ctx context.Context, uri string) (StreamInfo, error) {
	args := []string{"-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate",
		"-of", "json"}
	args = append(args, inputArgs(uri, Kind(uri))...)

	output, err := exec.CommandContext(ctx, f.ffprobePath, args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return StreamInfo{}, fmt.Errorf("ffprobe failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return StreamInfo{}, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbe(output)
}

func parseProbe(output []byte) (StreamInfo, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return StreamInfo{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return StreamInfo{}, fmt.Errorf("no video stream found")
	}

	s := probe.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return StreamInfo{}, fmt.Errorf("invalid video geometry %dx%d", s.Width, s.Height)
	}

	fps := parseRate(s.AvgFrameRate)
	if fps == 0 {
		fps = parseRate(s.RFrameRate)
	}
	return StreamInfo{Width: s.Width, Height: s.Height, FPS: fps}, nil
}

// parseRate parses ffprobe rates such as "30000/1001"
func parseRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
