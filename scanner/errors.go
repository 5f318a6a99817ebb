package scanner

import (
	"errors"
	"fmt"
)

// Device faults. Each maps to operator guidance via Hint.
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoCamera         = errors.New("no camera found")
	ErrCameraBusy       = errors.New("camera is already in use")
	ErrTorchUnsupported = errors.New("torch is not supported on this camera")
)

var (
	ErrNotRunning = errors.New("scanner is not running")
	ErrNoCode     = errors.New("no code found in frame")
)

// DeviceError ties a device fault to the camera that raised it.
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Device == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("camera %s: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Hint returns user-displayable guidance for a device fault, or "" when err
// is not one.
func Hint(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Camera access was denied. Allow camera permission for this site and try again, or enter codes manually."
	case errors.Is(err, ErrCameraBusy):
		return "The camera is being used by another app or tab. Close it and try again, or enter codes manually."
	case errors.Is(err, ErrNoCamera):
		return "No camera was found on this device. Enter ticket codes manually."
	case errors.Is(err, ErrTorchUnsupported):
		return "This camera has no flashlight."
	default:
		return ""
	}
}

// IsDeviceFault reports whether err is one of the camera faults.
func IsDeviceFault(err error) bool {
	return errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrCameraBusy) ||
		errors.Is(err, ErrNoCamera)
}
