package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/disintegration/imaging"

	"github.com/Kabilash01/cricket-ai/internal/app"
	"github.com/Kabilash01/cricket-ai/internal/config"
	"github.com/Kabilash01/cricket-ai/internal/detector"
	"github.com/Kabilash01/cricket-ai/internal/logger"
	"github.com/Kabilash01/cricket-ai/internal/overlay"
)

func main() {
	var (
		configPath string
		imagePath  string
		device     string
		iterations int
		outPath    string
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file (optional)")
	flag.StringVar(&imagePath, "image", "", "Image to run the detector on")
	flag.StringVar(&device, "device", "", "Override detector.device")
	flag.IntVar(&iterations, "n", 20, "Number of timed iterations")
	flag.StringVar(&outPath, "out", "", "Write the annotated image to this path")
	flag.Parse()

	if imagePath == "" {
		fmt.Fprintln(os.Stderr, "usage: bench-detector -image <file> [-config <file>] [-device cpu|cuda:N] [-n 20] [-out annotated.jpg]")
		os.Exit(2)
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if device != "" {
		cfg.Detector.Device = device
	}

	log, err := logger.New(logger.LogConfig{Level: "info", Format: "text"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	dev, err := detector.ParseDevice(cfg.Detector.Device)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid device: %v\n", err)
		os.Exit(1)
	}

	img, err := imaging.Open(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open image: %v\n", err)
		os.Exit(1)
	}

	factory, cleanup, err := app.DetectorFactory(cfg.Detector, cfg.Display.JPEGQuality, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure detector: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx := context.Background()
	det, err := factory(ctx, dev.Preferred())
	if err != nil && !dev.Preferred().IsCPU() {
		fmt.Printf("Device %s unavailable (%v), using cpu\n", dev.Preferred(), err)
		det, err = factory(ctx, detector.CPU)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create detector: %v\n", err)
		os.Exit(1)
	}
	defer det.Close()

	conf, iou := cfg.Detector.ConfidenceThreshold, cfg.Detector.IOUThreshold

	// warm-up, not timed
	dets, err := det.Predict(ctx, img, conf, iou)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warm-up prediction failed: %v\n", err)
		os.Exit(1)
	}

	latencies := make([]time.Duration, 0, iterations)
	for i := 0; i < iterations; i++ {
		start := time.Now()
		if _, err := det.Predict(ctx, img, conf, iou); err != nil {
			fmt.Fprintf(os.Stderr, "Prediction %d failed: %v\n", i, err)
			os.Exit(1)
		}
		latencies = append(latencies, time.Since(start))
	}

	b := img.Bounds()
	fmt.Printf("Backend:    %s on %s\n", cfg.Detector.Backend, det.Device())
	fmt.Printf("Image:      %s (%dx%d)\n", imagePath, b.Dx(), b.Dy())
	fmt.Printf("Detections: %d\n", len(dets))
	for _, d := range dets {
		fmt.Printf("  - %s [%.0f,%.0f,%.0f,%.0f]\n", overlay.Label(d), d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2)
	}

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var total time.Duration
		for _, l := range latencies {
			total += l
		}
		fmt.Printf("Latency:    avg %v  p50 %v  p95 %v  min %v  max %v (n=%d)\n",
			(total / time.Duration(len(latencies))).Round(time.Microsecond),
			latencies[len(latencies)/2].Round(time.Microsecond),
			latencies[len(latencies)*95/100].Round(time.Microsecond),
			latencies[0].Round(time.Microsecond),
			latencies[len(latencies)-1].Round(time.Microsecond),
			len(latencies),
		)
	}

	if outPath != "" {
		annotated := overlay.New().Annotate(img, dets, fmt.Sprintf("%s %s", cfg.Detector.Backend, det.Device()))
		if err := imaging.Save(annotated, outPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save annotated image: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Annotated:  %s\n", outPath)
	}
}
