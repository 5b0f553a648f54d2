package detector

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned when a prediction exceeds its time budget
var ErrTimeout = errors.New("detector: time budget exceeded")

// ErrorKind classifies detector failures
type ErrorKind int

const (
	// KindResource covers transient failures such as memory pressure or an unreachable service
	KindResource ErrorKind = iota
	// KindDevice covers failures of the compute device or its driver
	KindDevice
)

func (k ErrorKind) String() string {
	switch k {
	case KindDevice:
		return "device"
	case KindResource:
		return "resource"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a typed detector failure
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("detector %s error during %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DeviceError wraps err as a device failure
func DeviceError(op string, err error) error {
	return &Error{Kind: KindDevice, Op: op, Err: err}
}

// ResourceError wraps err as a resource failure
func ResourceError(op string, err error) error {
	return &Error{Kind: KindResource, Op: op, Err: err}
}

// IsDeviceError reports whether err is a device failure
func IsDeviceError(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == KindDevice
}

// IsResourceError reports whether err is a resource failure
func IsResourceError(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == KindResource
}
