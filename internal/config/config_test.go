package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return configPath
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, "pipeline:\n  source: match.mp4\nweb:\n  enabled: true\n")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Pipeline.ResizeWidth != 640 || cfg.Pipeline.ResizeHeight != 480 {
		t.Errorf("Expected 640x480 resize, got %dx%d", cfg.Pipeline.ResizeWidth, cfg.Pipeline.ResizeHeight)
	}
	if cfg.Pipeline.SkipInterval() != 1 {
		t.Errorf("Expected frame skip 1, got %d", cfg.Pipeline.SkipInterval())
	}
	if cfg.Pipeline.FrameQueueSize != 4 || cfg.Pipeline.ResultQueueSize != 4 {
		t.Errorf("Expected queue sizes 4/4, got %d/%d", cfg.Pipeline.FrameQueueSize, cfg.Pipeline.ResultQueueSize)
	}
	if cfg.Pipeline.ChannelTimeout != 500*time.Millisecond {
		t.Errorf("Expected channel timeout 500ms, got %v", cfg.Pipeline.ChannelTimeout)
	}
	if cfg.Detector.ConfidenceThreshold != 0.35 {
		t.Errorf("Expected confidence 0.35, got %v", cfg.Detector.ConfidenceThreshold)
	}
	if cfg.Detector.Device != "auto" {
		t.Errorf("Expected device auto, got %s", cfg.Detector.Device)
	}
	if !cfg.Detector.WarmupEnabled() {
		t.Error("Expected warmup enabled by default")
	}
	if cfg.Web.Port != 8090 {
		t.Errorf("Expected web port 8090, got %d", cfg.Web.Port)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config with a source should validate: %v", err)
	}
}

func TestLoad_ExplicitZeroFrameSkip(t *testing.T) {
	configPath := writeConfig(t, "pipeline:\n  source: match.mp4\n  frame_skip: 0\ndetector:\n  warmup: false\n")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Pipeline.SkipInterval() != 0 {
		t.Errorf("Expected frame skip 0 to be preserved, got %d", cfg.Pipeline.SkipInterval())
	}
	if cfg.Detector.WarmupEnabled() {
		t.Error("Expected warmup disabled")
	}
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "configuration file not found") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "pipeline: [unterminated")

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected parse error")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.ChannelTimeout = 2 * time.Second
	cfg.Detector.Device = "tpu"
	cfg.Detector.ConfidenceThreshold = 1.5
	cfg.Display.Mode = "none"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation error")
	}

	msg := err.Error()
	for _, want := range []string{
		"pipeline.source is required",
		"pipeline.channel_timeout",
		"invalid detector.device",
		"confidence_threshold",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected %q in validation error, got: %s", want, msg)
		}
	}
}

func TestValidate_DeviceSpecs(t *testing.T) {
	for _, device := range []string{"auto", "cpu", "cuda", "cuda:1", "CUDA:0"} {
		cfg := Default()
		cfg.Pipeline.Source = "match.mp4"
		cfg.Display.Mode = "none"
		cfg.Detector.Device = device
		if err := cfg.Validate(); err != nil {
			t.Errorf("Device %q should be valid: %v", device, err)
		}
	}
}

func TestValidate_WebModeRequiresServer(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.Source = "match.mp4"
	cfg.Display.Mode = "web"
	cfg.Web.Enabled = false

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "requires web.enabled") {
		t.Errorf("Expected web mode error, got: %v", err)
	}
}
