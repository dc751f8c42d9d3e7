// pkg/camera/camera.go
package camera

import (
	"context"
	"fmt"
)

type Facing int

const (
	FacingUnknown Facing = iota
	FacingBack
	FacingFront
	FacingExternal
)

func (f Facing) String() string {
	switch f {
	case FacingBack:
		return "Back"
	case FacingFront:
		return "Front"
	case FacingExternal:
		return "External"
	default:
		return "Unknown"
	}
}

// Device describes an enumerated camera. It is not opened.
type Device struct {
	ID          string
	Name        string
	Path        string
	IsAvailable bool
	Facing      Facing
}

type StreamConfig struct {
	Width     int
	Height    int
	Framerate int
}

// Template selects how a capture request is tuned by the backend.
type Template int

const (
	TemplatePreview Template = iota
	TemplateRecord
)

func (t Template) String() string {
	if t == TemplateRecord {
		return "record"
	}
	return "preview"
}

// FPSRange bounds the frame rate requested from the device. A zero range
// leaves the device default in place.
type FPSRange struct {
	Min int
	Max int
}

func (r FPSRange) String() string {
	return fmt.Sprintf("[%d, %d]", r.Min, r.Max)
}

// CaptureRequest is issued against a session. Targets must be a subset of the
// surfaces the session was configured with.
type CaptureRequest struct {
	Template Template
	Targets  []Surface
	FPSRange FPSRange
}

// Surface receives frames produced by a capture session.
type Surface interface {
	Name() string
	// Format is the pixel encoding the surface wants to receive.
	Format() FrameFormat
	// Size is the frame size the surface wants; zero means native size.
	Size() Size
	WriteFrame(f Frame) error
}

type Manager interface {
	// Discovery
	ScanDevices() ([]Device, error)
	Capabilities(deviceID string) ([]Capability, error)

	// OpenCamera blocks until the device is ready or fails. A cancelled
	// context abandons the open and closes the device once it completes.
	OpenCamera(ctx context.Context, deviceID string, config StreamConfig) (Camera, error)
}

// Camera is an opened device. At most one capture session is alive per
// camera; creating a new one closes the previous one.
type Camera interface {
	ID() string
	CreateCaptureSession(ctx context.Context, targets []Surface) (CaptureSession, error)
	Close() error
}

type CaptureSession interface {
	ID() string
	SetRepeatingRequest(req CaptureRequest) error
	StopRepeating() error
	// AbortCaptures drops in-flight frames and waits for delivery to stop.
	AbortCaptures() error
	// Failed receives at most one error, when the device stops producing
	// frames for a repeating request on its own.
	Failed() <-chan error
	Close() error
}

func containsSurface(list []Surface, s Surface) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}

// ValidateRequest reports whether every request target was configured on the session.
func ValidateRequest(configured []Surface, req CaptureRequest) error {
	if len(req.Targets) == 0 {
		return fmt.Errorf("capture request has no targets")
	}
	for _, t := range req.Targets {
		if !containsSurface(configured, t) {
			return fmt.Errorf("surface %q is not configured on this session", t.Name())
		}
	}
	return nil
}
