package camera

import (
	"fmt"
	"sort"
	"strconv"
)

// Capability is one output size a device can produce for recording, with
// the frame rate it sustains at that size.
type Capability struct {
	Size Size
	FPS  int
}

func (c Capability) FPSLabel() string {
	if c.FPS > 0 {
		return strconv.Itoa(c.FPS)
	}
	return "N/A"
}

// FPSFromFrameDuration converts a minimum frame duration in nanoseconds to
// whole frames per second. Non-positive durations yield 0.
func FPSFromFrameDuration(nanos int64) int {
	if nanos <= 0 {
		return 0
	}
	return int(1 / (float64(nanos) / 1e9))
}

// SortCapabilities orders capabilities by area, largest first.
func SortCapabilities(caps []Capability) {
	sort.SliceStable(caps, func(i, j int) bool {
		return caps[i].Size.Area() > caps[j].Size.Area()
	})
}

// CameraInfo is the device and recording configuration picked at startup.
type CameraInfo struct {
	Name       string
	DeviceName string
	DeviceID   string
	Size       Size
	FPS        int
}

func (c CameraInfo) StreamConfig() StreamConfig {
	return StreamConfig{Width: c.Size.Width, Height: c.Size.Height, Framerate: c.FPS}
}

// SelectCameraInfo takes the first enumerated device and the largest
// capability fitting under 1080p.
func SelectCameraInfo(m Manager) (CameraInfo, error) {
	devices, err := m.ScanDevices()
	if err != nil {
		return CameraInfo{}, fmt.Errorf("error scanning for cameras: %w", err)
	}
	if len(devices) == 0 {
		return CameraInfo{}, ErrNoCamera
	}
	return SelectCameraInfoFor(m, devices[0])
}

// SelectCameraInfoFor is SelectCameraInfo for a known device.
func SelectCameraInfoFor(m Manager, dev Device) (CameraInfo, error) {
	caps, err := m.Capabilities(dev.ID)
	if err != nil {
		return CameraInfo{}, fmt.Errorf("error querying camera %s: %w", dev.ID, err)
	}
	if len(caps) == 0 {
		return CameraInfo{}, fmt.Errorf("camera %s: %w", dev.ID, ErrNoCapability)
	}

	sizes := make([]Size, len(caps))
	for i, c := range caps {
		sizes[i] = c.Size
	}
	size, err := SelectOutputSizeCapped(Size1080p, sizes)
	if err != nil {
		return CameraInfo{}, fmt.Errorf("camera %s: %w", dev.ID, err)
	}

	chosen := caps[0]
	for _, c := range caps {
		if c.Size == size {
			chosen = c
			break
		}
	}

	return CameraInfo{
		Name:       fmt.Sprintf("%s (%s) %s %s FPS", dev.Facing, dev.ID, chosen.Size, chosen.FPSLabel()),
		DeviceName: dev.Name,
		DeviceID:   dev.ID,
		Size:       chosen.Size,
		FPS:        chosen.FPS,
	}, nil
}
