package camera_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlverezYari/moviecam/pkg/camera"
	"github.com/AlverezYari/moviecam/pkg/camera/cameratest"
)

func TestSelectCameraInfo(t *testing.T) {
	m := cameratest.NewManager()

	info, err := camera.SelectCameraInfo(m)
	require.NoError(t, err)

	assert.Equal(t, "0", info.DeviceID)
	assert.Equal(t, "Test Camera", info.DeviceName)
	assert.Equal(t, camera.Size{Width: 1920, Height: 1080}, info.Size)
	assert.Equal(t, 30, info.FPS)
	assert.Equal(t, "External (0) 1920x1080 30 FPS", info.Name)
	assert.Equal(t, camera.StreamConfig{Width: 1920, Height: 1080, Framerate: 30}, info.StreamConfig())
}

func TestSelectCameraInfoNoCamera(t *testing.T) {
	m := cameratest.NewManager()
	m.Devices = nil

	_, err := camera.SelectCameraInfo(m)
	assert.ErrorIs(t, err, camera.ErrNoCamera)
}

func TestSelectCameraInfoNoCapability(t *testing.T) {
	m := cameratest.NewManager()
	m.Caps["0"] = nil

	_, err := camera.SelectCameraInfo(m)
	assert.ErrorIs(t, err, camera.ErrNoCapability)
}

func TestSelectCameraInfoOnlyOversized(t *testing.T) {
	m := cameratest.NewManager()
	m.Caps["0"] = []camera.Capability{{Size: camera.Size{Width: 3840, Height: 2160}, FPS: 30}}

	_, err := camera.SelectCameraInfo(m)
	assert.ErrorIs(t, err, camera.ErrNoCompatibleSize)
}

func TestSelectCameraInfoScanError(t *testing.T) {
	m := cameratest.NewManager()
	m.ScanErr = errors.New("boom")

	_, err := camera.SelectCameraInfo(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestCapabilityFPSLabel(t *testing.T) {
	assert.Equal(t, "30", camera.Capability{FPS: 30}.FPSLabel())
	assert.Equal(t, "N/A", camera.Capability{}.FPSLabel())
}

func TestFPSFromFrameDuration(t *testing.T) {
	assert.Equal(t, 30, camera.FPSFromFrameDuration(33_333_333))
	assert.Equal(t, 60, camera.FPSFromFrameDuration(16_666_666))
	assert.Equal(t, 0, camera.FPSFromFrameDuration(0))
	assert.Equal(t, 0, camera.FPSFromFrameDuration(-5))
}

func TestDeviceErrorMessage(t *testing.T) {
	err := &camera.DeviceError{DeviceID: "2", Code: camera.ErrorCameraInUse}
	assert.Equal(t, "camera 2 error: (1) Camera in use", err.Error())

	wrapped := errors.New("open failed")
	err = &camera.DeviceError{DeviceID: "0", Code: camera.ErrorCameraDevice, Err: wrapped}
	assert.ErrorIs(t, err, wrapped)

	de, ok := camera.IsDeviceError(errors.Join(errors.New("ctx"), err))
	require.True(t, ok)
	assert.Equal(t, camera.ErrorCameraDevice, de.Code)
}

func TestValidateRequest(t *testing.T) {
	preview := cameratest.NewSurface("preview")
	record := cameratest.NewSurface("record")

	err := camera.ValidateRequest([]camera.Surface{preview}, camera.CaptureRequest{Targets: []camera.Surface{preview}})
	assert.NoError(t, err)

	err = camera.ValidateRequest([]camera.Surface{preview}, camera.CaptureRequest{Targets: []camera.Surface{preview, record}})
	assert.Error(t, err)

	err = camera.ValidateRequest([]camera.Surface{preview}, camera.CaptureRequest{})
	assert.Error(t, err)
}
