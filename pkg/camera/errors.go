package camera

import (
	"errors"
	"fmt"
)

var (
	ErrNoCamera         = errors.New("no camera available")
	ErrNoCapability     = errors.New("camera advertises no output sizes")
	ErrNoCompatibleSize = errors.New("no compatible output size")
	ErrCameraClosed     = errors.New("camera is closed")
	ErrSessionClosed    = errors.New("capture session is closed")
)

// ErrorCode enumerates why a device could not be opened or configured.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota
	ErrorCameraInUse
	ErrorMaxCamerasInUse
	ErrorCameraDisabled
	ErrorCameraDevice
	ErrorCameraService
	ErrorSessionConfiguration
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCameraDevice:
		return "Fatal (device)"
	case ErrorCameraDisabled:
		return "Device policy"
	case ErrorCameraInUse:
		return "Camera in use"
	case ErrorCameraService:
		return "Fatal (service)"
	case ErrorMaxCamerasInUse:
		return "Maximum cameras in use"
	case ErrorSessionConfiguration:
		return "Session configuration failed"
	default:
		return "Unknown"
	}
}

type DeviceError struct {
	DeviceID string
	Code     ErrorCode
	Err      error
}

func (e *DeviceError) Error() string {
	msg := fmt.Sprintf("camera %s error: (%d) %s", e.DeviceID, int(e.Code), e.Code)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeviceError) Unwrap() error { return e.Err }

// IsDeviceError reports whether err carries a DeviceError and returns it.
func IsDeviceError(err error) (*DeviceError, bool) {
	var de *DeviceError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
