//go:build !linux

package camera

import (
	"context"
	"fmt"
	"runtime"
)

// V4L2Manager is only functional on linux.
type V4L2Manager struct {
	opts Options
}

func NewV4L2Manager(opts Options) *V4L2Manager {
	return &V4L2Manager{opts: opts.withDefaults()}
}

func (m *V4L2Manager) ScanDevices() ([]Device, error) {
	return nil, fmt.Errorf("camera enumeration is not supported on %s", runtime.GOOS)
}

func (m *V4L2Manager) Capabilities(deviceID string) ([]Capability, error) {
	return nil, &DeviceError{DeviceID: deviceID, Code: ErrorCameraService, Err: fmt.Errorf("unsupported platform %s", runtime.GOOS)}
}

func (m *V4L2Manager) OpenCamera(_ context.Context, deviceID string, _ StreamConfig) (Camera, error) {
	return nil, &DeviceError{DeviceID: deviceID, Code: ErrorCameraService, Err: fmt.Errorf("unsupported platform %s", runtime.GOOS)}
}
