package detector

import (
	"fmt"
	"strconv"
	"strings"
)

// DeviceKind identifies a class of compute device
type DeviceKind string

const (
	DeviceAuto DeviceKind = "auto"
	DeviceCPU  DeviceKind = "cpu"
	DeviceCUDA DeviceKind = "cuda"
)

// Device is a compute device a detector can be bound to
type Device struct {
	Kind  DeviceKind
	Index int
}

// CPU is the default device every backend supports
var CPU = Device{Kind: DeviceCPU}

func (d Device) String() string {
	if d.Kind == DeviceCUDA {
		return fmt.Sprintf("cuda:%d", d.Index)
	}
	return string(d.Kind)
}

// IsCPU reports whether d is the default CPU device
func (d Device) IsCPU() bool {
	return d.Kind == DeviceCPU
}

// ParseDevice parses "auto", "cpu", "cuda" or "cuda:N"
func ParseDevice(s string) (Device, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "" || s == string(DeviceAuto):
		return Device{Kind: DeviceAuto}, nil
	case s == string(DeviceCPU):
		return CPU, nil
	case s == string(DeviceCUDA):
		return Device{Kind: DeviceCUDA}, nil
	case strings.HasPrefix(s, "cuda:"):
		idx, err := strconv.Atoi(strings.TrimPrefix(s, "cuda:"))
		if err != nil || idx < 0 {
			return Device{}, fmt.Errorf("invalid cuda device index in %q", s)
		}
		return Device{Kind: DeviceCUDA, Index: idx}, nil
	default:
		return Device{}, fmt.Errorf("unknown device %q", s)
	}
}

// Preferred resolves "auto" to the first accelerator; other devices are returned unchanged
func (d Device) Preferred() Device {
	if d.Kind == DeviceAuto {
		return Device{Kind: DeviceCUDA}
	}
	return d
}
