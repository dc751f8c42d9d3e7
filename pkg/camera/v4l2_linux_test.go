//go:build linux

package camera

import (
	"fmt"
	"testing"

	"github.com/blackjack/webcam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestMinFrameDuration(t *testing.T) {
	tests := []struct {
		name    string
		rate    webcam.FrameRate
		wantFPS int
	}{
		{
			"discrete 1/30",
			webcam.FrameRate{MinNumerator: 1, MinDenominator: 30, MaxNumerator: 1, MaxDenominator: 30},
			30,
		},
		{
			"stepwise 1/30 to 1/1",
			webcam.FrameRate{MinNumerator: 1, MinDenominator: 30, MaxNumerator: 1, MaxDenominator: 1, StepNumerator: 1, StepDenominator: 30},
			30,
		},
		{
			"continuous 1/60 to 1/5",
			webcam.FrameRate{MinNumerator: 1, MinDenominator: 60, MaxNumerator: 1, MaxDenominator: 5},
			60,
		},
		{
			"ntsc 1001/30000",
			webcam.FrameRate{MinNumerator: 1001, MinDenominator: 30000, MaxNumerator: 1001, MaxDenominator: 30000},
			29,
		},
		{"zero denominator", webcam.FrameRate{MinNumerator: 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantFPS, FPSFromFrameDuration(minFrameDuration(tt.rate)))
		})
	}
}

func TestClassifyOpenError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{unix.EBUSY, ErrorCameraInUse},
		{unix.EACCES, ErrorCameraDisabled},
		{unix.EPERM, ErrorCameraDisabled},
		{unix.ENOENT, ErrorCameraDevice},
		{unix.ENODEV, ErrorCameraDevice},
		{unix.ENXIO, ErrorCameraDevice},
		{unix.EMFILE, ErrorMaxCamerasInUse},
		{unix.ENFILE, ErrorMaxCamerasInUse},
		{unix.EIO, ErrorCameraService},
		{unix.EINVAL, ErrorUnknown},
		{fmt.Errorf("open /dev/video0: %w", unix.EBUSY), ErrorCameraInUse},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			err := classifyOpenError("0", tt.err)
			de, ok := IsDeviceError(err)
			require.True(t, ok)
			assert.Equal(t, "0", de.DeviceID)
			assert.Equal(t, tt.want, de.Code)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
