package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"

	"github.com/Kabilash01/cricket-ai/internal/logger"
)

// HTTPConfig contains configuration for the remote inference service client
type HTTPConfig struct {
	ServiceURL     string
	Timeout        time.Duration
	JPEGQuality    int
	EnabledClasses []string
}

// HTTPDetector delegates detection to a remote inference service.
// The device is chosen once at construction and sent with every request.
type HTTPDetector struct {
	serviceURL     string
	httpClient     *http.Client
	logger         *logger.Logger
	device         Device
	jpegQuality    int
	enabledClasses []string
}

// inferenceRequest is the JSON body sent to the inference service
type inferenceRequest struct {
	Image               string   `json:"image"` // Base64-encoded JPEG image
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	IOUThreshold        float64  `json:"iou_threshold"`
	Device              string   `json:"device"`
	EnabledClasses      []string `json:"enabled_classes,omitempty"`
}

// boundingBox is one detection as returned by the inference service
type boundingBox struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
}

// inferenceResponse is the JSON body returned by the inference service
type inferenceResponse struct {
	BoundingBoxes   []boundingBox `json:"bounding_boxes"`
	InferenceTimeMs float64       `json:"inference_time_ms"`
	DetectionCount  int           `json:"detection_count"`
}

// errorResponse is returned by the inference service on failure
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"` // "device" or "resource"
}

// readinessResponse is returned by the inference service readiness probe
type readinessResponse struct {
	Status  string   `json:"status"`
	Devices []string `json:"devices"`
}

// NewHTTPDetector checks that the service is ready and serves the requested device
func NewHTTPDetector(ctx context.Context, cfg HTTPConfig, device Device, log *logger.Logger) (*HTTPDetector, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = 90
	}

	d := &HTTPDetector{
		serviceURL:     cfg.ServiceURL,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		logger:         log,
		device:         device,
		jpegQuality:    cfg.JPEGQuality,
		enabledClasses: cfg.EnabledClasses,
	}

	devices, err := d.ready(ctx)
	if err != nil {
		return nil, ResourceError("connect", err)
	}
	if len(devices) > 0 && !containsDevice(devices, device) {
		return nil, DeviceError("bind", fmt.Errorf("service does not offer device %s (available: %v)", device, devices))
	}

	return d, nil
}

func containsDevice(devices []string, device Device) bool {
	for _, name := range devices {
		parsed, err := ParseDevice(name)
		if err == nil && parsed == device {
			return true
		}
	}
	return false
}

// ready queries the readiness probe and returns the devices the service offers
func (d *HTTPDetector) ready(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/health/ready", d.serviceURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference service not ready: status %d", resp.StatusCode)
	}

	var ready readinessResponse
	if err := json.NewDecoder(resp.Body).Decode(&ready); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse readiness response: %w", err)
	}
	return ready.Devices, nil
}

// Device returns the bound device
func (d *HTTPDetector) Device() Device {
	return d.device
}

// Predict sends img to the inference service
func (d *HTTPDetector) Predict(ctx context.Context, img image.Image, confidence, iou float64) ([]Detection, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(d.jpegQuality)); err != nil {
		return nil, ResourceError("encode", err)
	}

	req := inferenceRequest{
		Image:               base64.StdEncoding.EncodeToString(buf.Bytes()),
		ConfidenceThreshold: confidence,
		IOUThreshold:        iou,
		Device:              d.device.String(),
		EnabledClasses:      d.enabledClasses,
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/inference", d.serviceURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, ResourceError("request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ResourceError("read", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		_ = json.Unmarshal(body, &errResp)
		failure := fmt.Errorf("inference service returned status %d: %s", resp.StatusCode, errResp.Error)
		if errResp.Kind == "device" {
			return nil, DeviceError("predict", failure)
		}
		return nil, ResourceError("predict", failure)
	}

	var inferenceResp inferenceResponse
	if err := json.Unmarshal(body, &inferenceResp); err != nil {
		return nil, ResourceError("decode", fmt.Errorf("failed to parse response: %w", err))
	}

	detections := make([]Detection, 0, len(inferenceResp.BoundingBoxes))
	for _, bb := range inferenceResp.BoundingBoxes {
		detections = append(detections, Detection{
			Box:       Box{X1: bb.X1, Y1: bb.Y1, X2: bb.X2, Y2: bb.Y2}.Normalize(),
			Score:     bb.Confidence,
			ClassID:   bb.ClassID,
			ClassName: bb.ClassName,
		})
	}

	d.logger.Debug("Inference completed",
		"detection_count", len(detections),
		"inference_time_ms", inferenceResp.InferenceTimeMs,
		"request_duration_ms", time.Since(startTime).Milliseconds(),
	)

	return detections, nil
}

// Close releases idle connections
func (d *HTTPDetector) Close() error {
	d.httpClient.CloseIdleConnections()
	return nil
}
