// Package app turns configuration into the collaborators the pipeline and
// the command-line tools are assembled from.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Kabilash01/cricket-ai/internal/capture"
	"github.com/Kabilash01/cricket-ai/internal/config"
	"github.com/Kabilash01/cricket-ai/internal/detector"
	"github.com/Kabilash01/cricket-ai/internal/detector/onnx"
	"github.com/Kabilash01/cricket-ai/internal/logger"
	"github.com/Kabilash01/cricket-ai/internal/pipeline"
)

// sourceOpenTimeout bounds connection setup for network sources
const sourceOpenTimeout = 10 * time.Second

// DetectorFactory builds detectors for the configured backend. The returned
// cleanup releases process-wide runtime state and must be called once at exit.
func DetectorFactory(cfg config.DetectorConfig, jpegQuality int, log *logger.Logger) (detector.Factory, func(), error) {
	labels, err := detector.LoadLabels(cfg.LabelsPath)
	if err != nil {
		return nil, nil, err
	}
	log = log.Named("detector")

	switch cfg.Backend {
	case "onnx":
		onnxCfg := onnx.Config{
			ModelPath:   cfg.ModelPath,
			LibraryPath: cfg.LibraryPath,
			InputSize:   cfg.InputSize,
			Labels:      labels,
		}
		factory := func(ctx context.Context, device detector.Device) (detector.Detector, error) {
			det, err := onnx.New(ctx, onnxCfg, device, log)
			if err != nil {
				return nil, err
			}
			return det, nil
		}
		cleanup := func() {
			if err := onnx.Shutdown(); err != nil {
				log.Warn("Failed to shut down ONNX runtime", "error", err)
			}
		}
		return factory, cleanup, nil

	case "http":
		httpCfg := detector.HTTPConfig{
			ServiceURL:     cfg.ServiceURL,
			Timeout:        cfg.Timeout,
			JPEGQuality:    jpegQuality,
			EnabledClasses: cfg.Classes,
		}
		factory := func(ctx context.Context, device detector.Device) (detector.Detector, error) {
			det, err := detector.NewHTTPDetector(ctx, httpCfg, device, log)
			if err != nil {
				return nil, err
			}
			return det, nil
		}
		return factory, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown detector backend %q", cfg.Backend)
	}
}

// CaptureOptions maps pipeline configuration to capture options
func CaptureOptions(cfg config.PipelineConfig) capture.Options {
	return capture.Options{
		Backend:  cfg.CaptureBackend,
		Loop:     cfg.Loop,
		Realtime: cfg.Realtime,
		Timeout:  sourceOpenTimeout,
	}
}

// SourceOpener opens the configured capture source
func SourceOpener(cfg config.PipelineConfig, log *logger.Logger) pipeline.SourceOpener {
	opts := CaptureOptions(cfg)
	log = log.Named("capture")
	return func(ctx context.Context) (capture.Source, error) {
		return capture.Open(ctx, cfg.Source, opts, log)
	}
}

// PipelineConfig maps the loaded configuration onto pipeline settings
func PipelineConfig(cfg *config.Config) (pipeline.Config, error) {
	device, err := detector.ParseDevice(cfg.Detector.Device)
	if err != nil {
		return pipeline.Config{}, err
	}

	return pipeline.Config{
		Source: pipeline.SourceConfig{
			ResizeWidth:  cfg.Pipeline.ResizeWidth,
			ResizeHeight: cfg.Pipeline.ResizeHeight,
			MaxFrames:    cfg.Pipeline.MaxFrames,
		},
		Inference: pipeline.InferenceConfig{
			SkipInterval:     cfg.Pipeline.SkipInterval(),
			Confidence:       cfg.Detector.ConfidenceThreshold,
			IoU:              cfg.Detector.IOUThreshold,
			Timeout:          cfg.Detector.Timeout,
			Device:           device,
			Warmup:           cfg.Detector.WarmupEnabled(),
			DeviceErrorLimit: cfg.Detector.DeviceErrorLimit,
			Classes:          cfg.Detector.Classes,
		},
		FrameQueueSize:  cfg.Pipeline.FrameQueueSize,
		ResultQueueSize: cfg.Pipeline.ResultQueueSize,
		ChannelTimeout:  cfg.Pipeline.ChannelTimeout,
	}, nil
}
