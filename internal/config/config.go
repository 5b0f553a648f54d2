package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Detector DetectorConfig `yaml:"detector"`
	Display  DisplayConfig  `yaml:"display"`
	Web      WebConfig      `yaml:"web"`
	History  HistoryConfig  `yaml:"history"`
	Log      LogConfig      `yaml:"log,omitempty"`
}

// PipelineConfig contains capture and queueing configuration
type PipelineConfig struct {
	Source          string        `yaml:"source"`
	CaptureBackend  string        `yaml:"capture_backend"`
	ResizeWidth     int           `yaml:"resize_width"`
	ResizeHeight    int           `yaml:"resize_height"`
	FrameSkip       *int          `yaml:"frame_skip"`
	FrameQueueSize  int           `yaml:"frame_queue_size"`
	ResultQueueSize int           `yaml:"result_queue_size"`
	ChannelTimeout  time.Duration `yaml:"channel_timeout"`
	Loop            bool          `yaml:"loop"`
	Realtime        bool          `yaml:"realtime"`
	MaxFrames       int           `yaml:"max_frames"`
}

// DetectorConfig contains object detector configuration
type DetectorConfig struct {
	Backend             string        `yaml:"backend"`
	ModelPath           string        `yaml:"model_path"`
	LabelsPath          string        `yaml:"labels_path"`
	LibraryPath         string        `yaml:"library_path"`
	Device              string        `yaml:"device"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	IOUThreshold        float64       `yaml:"iou_threshold"`
	InputSize           int           `yaml:"input_size"`
	Timeout             time.Duration `yaml:"timeout"`
	ServiceURL          string        `yaml:"service_url"`
	Warmup              *bool         `yaml:"warmup"`
	DeviceErrorLimit    int           `yaml:"device_error_limit"`
	Classes             []string      `yaml:"classes"` // Optional: keep only these class names
}

// DisplayConfig contains display sink configuration
type DisplayConfig struct {
	Mode        string `yaml:"mode"`
	WindowTitle string `yaml:"window_title"`
	JPEGQuality int    `yaml:"jpeg_quality"`
}

// WebConfig contains web server configuration
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// HistoryConfig contains run history storage configuration
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load loads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration bytes and applies defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

// Default returns a configuration populated only with defaults
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// getDefaultConfigPath returns the default configuration file path
func getDefaultConfigPath() string {
	paths := []string{
		"./config/config.dev.yaml",
		"./config/config.yaml",
		"../config/config.yaml",
		"/etc/cricket-ai/config.yaml",
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	// Return the first default if none found (will error later)
	return paths[0]
}

// SkipInterval returns the number of frames skipped between detections
func (p PipelineConfig) SkipInterval() int {
	if p.FrameSkip == nil {
		return 1
	}
	return *p.FrameSkip
}

// WarmupEnabled reports whether the detector runs a throw-away inference at start
func (d DetectorConfig) WarmupEnabled() bool {
	return d.Warmup == nil || *d.Warmup
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}

	if c.Pipeline.CaptureBackend == "" {
		c.Pipeline.CaptureBackend = "ffmpeg"
	}
	if c.Pipeline.ResizeWidth == 0 {
		c.Pipeline.ResizeWidth = 640
	}
	if c.Pipeline.ResizeHeight == 0 {
		c.Pipeline.ResizeHeight = 480
	}
	if c.Pipeline.FrameSkip == nil {
		skip := 1
		c.Pipeline.FrameSkip = &skip
	}
	if c.Pipeline.FrameQueueSize == 0 {
		c.Pipeline.FrameQueueSize = 4
	}
	if c.Pipeline.ResultQueueSize == 0 {
		c.Pipeline.ResultQueueSize = 4
	}
	if c.Pipeline.ChannelTimeout == 0 {
		c.Pipeline.ChannelTimeout = 500 * time.Millisecond
	}

	if c.Detector.Backend == "" {
		c.Detector.Backend = "onnx"
	}
	if c.Detector.ModelPath == "" {
		c.Detector.ModelPath = "yolov8n.onnx"
	}
	if c.Detector.Device == "" {
		c.Detector.Device = "auto"
	}
	if c.Detector.ConfidenceThreshold == 0 {
		c.Detector.ConfidenceThreshold = 0.35
	}
	if c.Detector.IOUThreshold == 0 {
		c.Detector.IOUThreshold = 0.45
	}
	if c.Detector.InputSize == 0 {
		c.Detector.InputSize = 640
	}
	if c.Detector.Timeout == 0 {
		c.Detector.Timeout = 2 * time.Second
	}
	if c.Detector.ServiceURL == "" {
		c.Detector.ServiceURL = "http://localhost:8080"
	}
	if c.Detector.Warmup == nil {
		warmup := true
		c.Detector.Warmup = &warmup
	}

	if c.Display.Mode == "" {
		c.Display.Mode = "web"
	}
	if c.Display.WindowTitle == "" {
		c.Display.WindowTitle = "Realtime Pipeline"
	}
	if c.Display.JPEGQuality == 0 {
		c.Display.JPEGQuality = 80
	}

	if c.Web.Host == "" {
		c.Web.Host = "0.0.0.0"
	}
	if c.Web.Port == 0 {
		c.Web.Port = 8090
	}

	if c.History.DBPath == "" {
		c.History.DBPath = "./data/runs.db"
	}
}
