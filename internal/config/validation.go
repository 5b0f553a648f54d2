package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const maxChannelTimeout = time.Second

var deviceSpec = regexp.MustCompile(`^(auto|cpu|cuda(:\d+)?)$`)

// Validate validates the configuration with detailed error messages
func (c *Config) Validate() error {
	var errors []string

	if strings.TrimSpace(c.Pipeline.Source) == "" {
		errors = append(errors, "pipeline.source is required")
	}

	validBackends := map[string]bool{"ffmpeg": true, "opencv": true}
	if !validBackends[c.Pipeline.CaptureBackend] {
		errors = append(errors, fmt.Sprintf("invalid pipeline.capture_backend: %s (must be: ffmpeg or opencv)", c.Pipeline.CaptureBackend))
	}

	if c.Pipeline.ResizeWidth <= 0 || c.Pipeline.ResizeHeight <= 0 {
		errors = append(errors, fmt.Sprintf("pipeline resize dimensions must be > 0, got: %dx%d", c.Pipeline.ResizeWidth, c.Pipeline.ResizeHeight))
	}

	if c.Pipeline.SkipInterval() < 0 {
		errors = append(errors, fmt.Sprintf("pipeline.frame_skip must be >= 0, got: %d", c.Pipeline.SkipInterval()))
	}

	if c.Pipeline.FrameQueueSize < 1 {
		errors = append(errors, fmt.Sprintf("pipeline.frame_queue_size must be >= 1, got: %d", c.Pipeline.FrameQueueSize))
	}

	if c.Pipeline.ResultQueueSize < 1 {
		errors = append(errors, fmt.Sprintf("pipeline.result_queue_size must be >= 1, got: %d", c.Pipeline.ResultQueueSize))
	}

	if c.Pipeline.ChannelTimeout <= 0 || c.Pipeline.ChannelTimeout > maxChannelTimeout {
		errors = append(errors, fmt.Sprintf("pipeline.channel_timeout must be in (0, %v], got: %v", maxChannelTimeout, c.Pipeline.ChannelTimeout))
	}

	if c.Pipeline.MaxFrames < 0 {
		errors = append(errors, fmt.Sprintf("pipeline.max_frames must be >= 0, got: %d", c.Pipeline.MaxFrames))
	}

	switch c.Detector.Backend {
	case "onnx":
		if c.Detector.ModelPath == "" {
			errors = append(errors, "detector.model_path is required for the onnx backend")
		}
	case "http":
		if c.Detector.ServiceURL == "" {
			errors = append(errors, "detector.service_url is required for the http backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid detector.backend: %s (must be: onnx or http)", c.Detector.Backend))
	}

	if !deviceSpec.MatchString(strings.ToLower(c.Detector.Device)) {
		errors = append(errors, fmt.Sprintf("invalid detector.device: %s (must be: auto, cpu, cuda or cuda:N)", c.Detector.Device))
	}

	if c.Detector.ConfidenceThreshold < 0 || c.Detector.ConfidenceThreshold > 1 {
		errors = append(errors, fmt.Sprintf("confidence_threshold must be between 0 and 1, got: %.2f", c.Detector.ConfidenceThreshold))
	}

	if c.Detector.IOUThreshold < 0 || c.Detector.IOUThreshold > 1 {
		errors = append(errors, fmt.Sprintf("iou_threshold must be between 0 and 1, got: %.2f", c.Detector.IOUThreshold))
	}

	if c.Detector.InputSize <= 0 || c.Detector.InputSize%32 != 0 {
		errors = append(errors, fmt.Sprintf("detector.input_size must be a positive multiple of 32, got: %d", c.Detector.InputSize))
	}

	if c.Detector.Timeout <= 0 {
		errors = append(errors, fmt.Sprintf("detector.timeout must be > 0, got: %v", c.Detector.Timeout))
	}

	if c.Detector.DeviceErrorLimit < 0 {
		errors = append(errors, fmt.Sprintf("detector.device_error_limit must be >= 0, got: %d", c.Detector.DeviceErrorLimit))
	}

	validModes := map[string]bool{"web": true, "window": true, "none": true}
	if !validModes[c.Display.Mode] {
		errors = append(errors, fmt.Sprintf("invalid display.mode: %s (must be: web, window or none)", c.Display.Mode))
	}

	if c.Display.JPEGQuality < 1 || c.Display.JPEGQuality > 100 {
		errors = append(errors, fmt.Sprintf("display.jpeg_quality must be between 1 and 100, got: %d", c.Display.JPEGQuality))
	}

	if c.Display.Mode == "web" && !c.Web.Enabled {
		errors = append(errors, "display.mode web requires web.enabled")
	}

	if c.Web.Enabled && (c.Web.Port <= 0 || c.Web.Port > 65535) {
		errors = append(errors, fmt.Sprintf("web.port must be between 1 and 65535, got: %d", c.Web.Port))
	}

	if c.History.Enabled && c.History.DBPath == "" {
		errors = append(errors, "history.db_path is required when history is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errors = append(errors, fmt.Sprintf("invalid log.level: %s (must be: debug, info, warn, error, fatal)", c.Log.Level))
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		errors = append(errors, fmt.Sprintf("invalid log.format: %s (must be: text or json)", c.Log.Format))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}
