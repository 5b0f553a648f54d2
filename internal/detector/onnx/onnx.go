// Package onnx runs YOLOv8 models through ONNX Runtime.
package onnx

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"strconv"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Kabilash01/cricket-ai/internal/detector"
	"github.com/Kabilash01/cricket-ai/internal/logger"
)

var (
	envMu          sync.Mutex
	envInitialized bool
)

// Config contains ONNX detector configuration
type Config struct {
	ModelPath   string
	LibraryPath string
	InputSize   int
	Labels      []string
	InputName   string
	OutputName  string
}

// Detector is a YOLOv8 detector bound to one execution provider
type Detector struct {
	cfg          Config
	device       detector.Device
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	outputShape  ort.Shape
	logger       *logger.Logger
}

func initEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envInitialized {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	envInitialized = true
	return nil
}

// anchorCount returns the number of YOLOv8 anchors for a square input of size s
func anchorCount(s int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		n += (s / stride) * (s / stride)
	}
	return n
}

// New loads the model and binds it to device. CUDA provider failures are
// reported as device errors so callers can fall back to the CPU.
func New(ctx context.Context, cfg Config, device detector.Device, log *logger.Logger) (*Detector, error) {
	if cfg.InputSize == 0 {
		cfg.InputSize = 640
	}
	if len(cfg.Labels) == 0 {
		cfg.Labels = detector.COCOLabels
	}
	if cfg.InputName == "" {
		cfg.InputName = "images"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "output0"
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, detector.ResourceError("init", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, detector.ResourceError("init", fmt.Errorf("failed to create session options: %w", err))
	}
	defer options.Destroy()

	threads := runtime.NumCPU()
	if threads > 8 {
		threads = threads * 3 / 4
	}
	if err := options.SetIntraOpNumThreads(threads); err != nil {
		log.Debug("Failed to set intra-op threads", "error", err)
	}

	if device.Kind == detector.DeviceCUDA {
		if err := appendCUDA(options, device.Index); err != nil {
			return nil, detector.DeviceError("bind", err)
		}
	}

	s := int64(cfg.InputSize)
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, s, s))
	if err != nil {
		return nil, detector.ResourceError("init", fmt.Errorf("failed to create input tensor: %w", err))
	}

	outputShape := ort.NewShape(1, int64(4+len(cfg.Labels)), int64(anchorCount(cfg.InputSize)))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, detector.ResourceError("init", fmt.Errorf("failed to create output tensor: %w", err))
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		options)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		wrapped := fmt.Errorf("failed to create ONNX session for %s: %w", cfg.ModelPath, err)
		if device.Kind == detector.DeviceCUDA {
			return nil, detector.DeviceError("bind", wrapped)
		}
		return nil, detector.ResourceError("load", wrapped)
	}

	log.Info("ONNX detector ready",
		"model", cfg.ModelPath,
		"device", device.String(),
		"input_size", cfg.InputSize,
		"classes", len(cfg.Labels),
	)

	return &Detector{
		cfg:          cfg,
		device:       device,
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		outputShape:  outputShape,
		logger:       log,
	}, nil
}

func appendCUDA(options *ort.SessionOptions, deviceID int) error {
	cudaOptions, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("failed to create CUDA options: %w", err)
	}
	defer cudaOptions.Destroy()

	if err := cudaOptions.Update(map[string]string{"device_id": strconv.Itoa(deviceID)}); err != nil {
		return fmt.Errorf("failed to update CUDA options: %w", err)
	}
	if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
		return fmt.Errorf("CUDA execution provider unavailable: %w", err)
	}
	return nil
}

// Device returns the bound device
func (d *Detector) Device() detector.Device {
	return d.device
}

// Predict runs the model on img and returns detections in img coordinates.
// ONNX Runtime cannot be interrupted mid-run, so the context is checked before
// and after the session executes.
func (d *Detector) Predict(ctx context.Context, img image.Image, confidence, iou float64) ([]detector.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", detector.ErrTimeout, err)
	}

	info := detector.Letterbox(img, d.cfg.InputSize, d.inputTensor.GetData())

	if err := d.session.Run(); err != nil {
		if d.device.Kind == detector.DeviceCUDA {
			return nil, detector.DeviceError("predict", err)
		}
		return nil, detector.ResourceError("predict", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", detector.ErrTimeout, err)
	}

	raw, err := detector.ParseYOLOv8(d.outputTensor.GetData(), d.outputShape, confidence, d.cfg.Labels)
	if err != nil {
		return nil, detector.ResourceError("decode", err)
	}

	kept := detector.NonMaxSuppression(raw, iou)
	for i := range kept {
		kept[i].Box = info.Unmap(kept[i].Box)
	}
	return kept, nil
}

// Close destroys the session and its tensors. The ONNX environment stays
// initialised for detectors rebuilt later in the process.
func (d *Detector) Close() error {
	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
		d.session = nil
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
		d.inputTensor = nil
	}
	if d.outputTensor != nil {
		d.outputTensor.Destroy()
		d.outputTensor = nil
	}
	return nil
}

// Shutdown tears down the ONNX environment; call once at process exit
func Shutdown() error {
	envMu.Lock()
	defer envMu.Unlock()

	if !envInitialized {
		return nil
	}
	envInitialized = false
	return ort.DestroyEnvironment()
}
