//go:build linux

package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/blackjack/webcam"
	"golang.org/x/sys/unix"
)

const devicePrefix = "/dev/video"

// V4L2Manager enumerates cameras through V4L2 and captures through gocv.
type V4L2Manager struct {
	opts Options
}

func NewV4L2Manager(opts Options) *V4L2Manager {
	return &V4L2Manager{opts: opts.withDefaults()}
}

func (m *V4L2Manager) ScanDevices() ([]Device, error) {
	paths, err := filepath.Glob(devicePrefix + "*")
	if err != nil {
		return nil, fmt.Errorf("error listing video devices: %w", err)
	}

	type indexed struct {
		index int
		path  string
	}
	var nodes []indexed
	for _, p := range paths {
		idx, err := strconv.Atoi(strings.TrimPrefix(p, devicePrefix))
		if err != nil {
			continue
		}
		nodes = append(nodes, indexed{index: idx, path: p})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].index < nodes[j].index })

	var devices []Device
	for _, node := range nodes {
		cam, err := webcam.Open(node.path)
		if err != nil {
			m.opts.Logger.Debug("Skipping video node", "path", node.path, "error", err)
			continue
		}
		// Metadata nodes advertise no pixel formats.
		if len(cam.GetSupportedFormats()) == 0 {
			cam.Close()
			continue
		}
		name, err := cam.GetName()
		if err != nil || name == "" {
			name = fmt.Sprintf("Camera %d", node.index)
		}
		cam.Close()

		devices = append(devices, Device{
			ID:          strconv.Itoa(node.index),
			Name:        name,
			Path:        node.path,
			IsAvailable: true,
			Facing:      facingFor(node.path),
		})
	}
	return devices, nil
}

// facingFor guesses lens facing from the sysfs device link. USB cameras
// are external; everything else is unknown.
func facingFor(path string) Facing {
	link, err := os.Readlink(filepath.Join("/sys/class/video4linux", filepath.Base(path), "device"))
	if err != nil {
		return FacingUnknown
	}
	if strings.Contains(link, "usb") {
		return FacingExternal
	}
	return FacingUnknown
}

func (m *V4L2Manager) Capabilities(deviceID string) ([]Capability, error) {
	path, err := devicePath(deviceID)
	if err != nil {
		return nil, err
	}
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, classifyOpenError(deviceID, err)
	}
	defer cam.Close()

	best := make(map[Size]int)
	for format := range cam.GetSupportedFormats() {
		for _, fs := range cam.GetSupportedFrameSizes(format) {
			size := Size{Width: int(fs.MaxWidth), Height: int(fs.MaxHeight)}
			fps := 0
			for _, rate := range cam.GetSupportedFramerates(format, fs.MaxWidth, fs.MaxHeight) {
				fps = max(fps, FPSFromFrameDuration(minFrameDuration(rate)))
			}
			if cur, ok := best[size]; !ok || fps > cur {
				best[size] = fps
			}
		}
	}

	caps := make([]Capability, 0, len(best))
	for size, fps := range best {
		caps = append(caps, Capability{Size: size, FPS: fps})
	}
	SortCapabilities(caps)
	return caps, nil
}

// minFrameDuration is the shortest frame interval a rate allows, in
// nanoseconds. Discrete rates carry the same fraction in Min and Max;
// stepwise rates put the shortest interval in the Min fraction.
func minFrameDuration(rate webcam.FrameRate) int64 {
	if rate.MinDenominator == 0 {
		return 0
	}
	return int64(rate.MinNumerator) * 1_000_000_000 / int64(rate.MinDenominator)
}

func (m *V4L2Manager) OpenCamera(ctx context.Context, deviceID string, config StreamConfig) (Camera, error) {
	type result struct {
		cam *gocvCamera
		err error
	}
	ch := make(chan result, 1)
	go func() {
		cam, err := m.open(deviceID, config)
		ch <- result{cam: cam, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return r.cam, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.cam != nil {
				_ = r.cam.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (m *V4L2Manager) open(deviceID string, config StreamConfig) (*gocvCamera, error) {
	path, err := devicePath(deviceID)
	if err != nil {
		return nil, err
	}

	// Open through V4L2 first so open failures carry an errno.
	dev, err := webcam.Open(path)
	if err != nil {
		return nil, classifyOpenError(deviceID, err)
	}
	dev.Close()

	index, _ := strconv.Atoi(deviceID)
	return openGocvCamera(deviceID, index, config, m.opts)
}

func devicePath(deviceID string) (string, error) {
	if _, err := strconv.Atoi(deviceID); err != nil {
		return "", &DeviceError{DeviceID: deviceID, Code: ErrorCameraDevice, Err: fmt.Errorf("invalid device ID: %s", deviceID)}
	}
	return devicePrefix + deviceID, nil
}

func classifyOpenError(deviceID string, err error) error {
	code := ErrorUnknown
	switch {
	case errors.Is(err, unix.EBUSY):
		code = ErrorCameraInUse
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		code = ErrorCameraDisabled
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENODEV), errors.Is(err, unix.ENXIO):
		code = ErrorCameraDevice
	case errors.Is(err, unix.EMFILE), errors.Is(err, unix.ENFILE):
		code = ErrorMaxCamerasInUse
	case errors.Is(err, unix.EIO):
		code = ErrorCameraService
	}
	return &DeviceError{DeviceID: deviceID, Code: code, Err: err}
}

var _ Manager = (*V4L2Manager)(nil)
