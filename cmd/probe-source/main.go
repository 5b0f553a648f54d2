package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Kabilash01/cricket-ai/internal/app"
	"github.com/Kabilash01/cricket-ai/internal/capture"
	"github.com/Kabilash01/cricket-ai/internal/config"
	"github.com/Kabilash01/cricket-ai/internal/logger"
)

func main() {
	var (
		configPath string
		source     string
		backend    string
		frames     int
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file (optional)")
	flag.StringVar(&source, "source", "", "Source to probe (defaults to pipeline.source)")
	flag.StringVar(&backend, "backend", "", "Capture backend (defaults to pipeline.capture_backend)")
	flag.IntVar(&frames, "frames", 60, "Number of frames to read")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if source != "" {
		cfg.Pipeline.Source = source
	}
	if backend != "" {
		cfg.Pipeline.CaptureBackend = backend
	}
	if cfg.Pipeline.Source == "" {
		fmt.Fprintln(os.Stderr, "No source given; use -source or a config file")
		os.Exit(2)
	}

	log, err := logger.New(logger.LogConfig{Level: "warn", Format: "text"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	fmt.Printf("Source:   %s (%s)\n", cfg.Pipeline.Source, capture.Kind(cfg.Pipeline.Source))
	fmt.Printf("Backends: %v\n", capture.Backends())

	if ff, err := capture.DefaultFFmpeg(log); err == nil {
		if v, err := ff.GetVersion(); err == nil {
			fmt.Printf("FFmpeg:   %s\n", v)
		}
		if accel := ff.PreferredHWAccel(); accel != "" {
			fmt.Printf("HW accel: %s\n", accel)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if capture.Kind(cfg.Pipeline.Source) == "rtsp" {
		info, err := capture.ProbeRTSP(ctx, cfg.Pipeline.Source, 10*time.Second)
		if err != nil {
			fmt.Fprintf(os.Stderr, "RTSP DESCRIBE failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("RTSP:     codec=%s medias=%d\n", info.VideoCodec, info.Medias)
	}

	opts := app.CaptureOptions(cfg.Pipeline)
	opts.Realtime = false
	opts.Loop = false
	src, err := capture.Open(ctx, cfg.Pipeline.Source, opts, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open source: %v\n", err)
		os.Exit(1)
	}
	defer src.Close()

	info := src.Describe()
	fmt.Printf("Backend:  %s\n", info.Backend)
	fmt.Printf("Geometry: %dx%d @ %.2f fps (reported)\n", info.Width, info.Height, info.FPS)

	start := time.Now()
	read := 0
	for read < frames {
		img, err := src.Read()
		if errors.Is(err, io.EOF) {
			fmt.Println("Source exhausted")
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Read failed after %d frames: %v\n", read, err)
			os.Exit(1)
		}
		if read == 0 {
			b := img.Bounds()
			fmt.Printf("First frame: %dx%d, after %v\n", b.Dx(), b.Dy(), time.Since(start).Round(time.Millisecond))
		}
		read++
	}

	elapsed := time.Since(start)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(read) / elapsed.Seconds()
	}
	fmt.Printf("Read %d frames in %v (%.1f fps decode rate)\n", read, elapsed.Round(time.Millisecond), rate)
}
