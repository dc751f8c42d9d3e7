// Package cameratest provides an in-memory camera.Manager for tests.
package cameratest

import (
	"context"
	"fmt"
	"sync"

	"github.com/AlverezYari/moviecam/pkg/camera"
)

// Manager records every call made against it. Sessions are not closed
// implicitly, so callers that leak a session show up in MaxOpenSessions.
type Manager struct {
	Devices      []camera.Device
	Caps         map[string][]camera.Capability
	ScanErr      error
	OpenErr      error
	SessionErr   error
	RepeatingErr error

	mu              sync.Mutex
	openCameras     int
	openSessions    int
	maxOpenSessions int
	sessions        []*Session
	events          []string
}

func NewManager() *Manager {
	return &Manager{
		Devices: []camera.Device{{ID: "0", Name: "Test Camera", Path: "/dev/video0", IsAvailable: true, Facing: camera.FacingExternal}},
		Caps: map[string][]camera.Capability{
			"0": {
				{Size: camera.Size{Width: 3840, Height: 2160}, FPS: 15},
				{Size: camera.Size{Width: 1920, Height: 1080}, FPS: 30},
				{Size: camera.Size{Width: 1280, Height: 720}, FPS: 60},
			},
		},
	}
}

func (m *Manager) record(event string) {
	m.events = append(m.events, event)
}

// Events returns the ordered call log, e.g. "open 0", "session 1", "close-session 1".
func (m *Manager) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

func (m *Manager) OpenSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openSessions
}

func (m *Manager) MaxOpenSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxOpenSessions
}

func (m *Manager) OpenCameras() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCameras
}

// Sessions returns every session created so far, oldest first.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Session(nil), m.sessions...)
}

// LastSession returns the most recently created session or nil.
func (m *Manager) LastSession() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) == 0 {
		return nil
	}
	return m.sessions[len(m.sessions)-1]
}

func (m *Manager) ScanDevices() ([]camera.Device, error) {
	if m.ScanErr != nil {
		return nil, m.ScanErr
	}
	return append([]camera.Device(nil), m.Devices...), nil
}

func (m *Manager) Capabilities(deviceID string) ([]camera.Capability, error) {
	caps, ok := m.Caps[deviceID]
	if !ok {
		return nil, &camera.DeviceError{DeviceID: deviceID, Code: camera.ErrorCameraDevice}
	}
	return append([]camera.Capability(nil), caps...), nil
}

func (m *Manager) OpenCamera(ctx context.Context, deviceID string, _ camera.StreamConfig) (camera.Camera, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("open " + deviceID)
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	m.openCameras++
	return &Camera{id: deviceID, m: m}, nil
}

type Camera struct {
	id     string
	m      *Manager
	closed bool
}

func (c *Camera) ID() string { return c.id }

func (c *Camera) CreateCaptureSession(ctx context.Context, targets []camera.Surface) (camera.CaptureSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if c.closed {
		return nil, &camera.DeviceError{DeviceID: c.id, Code: camera.ErrorCameraDevice, Err: camera.ErrCameraClosed}
	}
	if c.m.SessionErr != nil {
		return nil, c.m.SessionErr
	}

	s := &Session{id: fmt.Sprintf("%d", len(c.m.sessions)+1), m: c.m, targets: targets, failed: make(chan error, 1)}
	c.m.sessions = append(c.m.sessions, s)
	c.m.openSessions++
	c.m.maxOpenSessions = max(c.m.maxOpenSessions, c.m.openSessions)
	c.m.record("session " + s.id)
	return s, nil
}

func (c *Camera) Close() error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.m.openCameras--
	c.m.record("close-camera " + c.id)
	return nil
}

type Session struct {
	id      string
	m       *Manager
	targets []camera.Surface

	request   *camera.CaptureRequest
	repeating bool
	closed    bool
	failed    chan error
}

func (s *Session) ID() string { return s.id }

func (s *Session) Targets() []camera.Surface { return s.targets }

// Request returns the last repeating request issued on the session.
func (s *Session) Request() *camera.CaptureRequest {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.request
}

func (s *Session) Closed() bool {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.closed
}

func (s *Session) SetRepeatingRequest(req camera.CaptureRequest) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.closed {
		return camera.ErrSessionClosed
	}
	if s.m.RepeatingErr != nil {
		return s.m.RepeatingErr
	}
	if err := camera.ValidateRequest(s.targets, req); err != nil {
		return err
	}
	s.request = &req
	s.repeating = true
	s.m.record("repeat " + s.id + " " + req.Template.String())
	return nil
}

func (s *Session) StopRepeating() error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.closed {
		return camera.ErrSessionClosed
	}
	s.repeating = false
	s.m.record("stop " + s.id)
	return nil
}

func (s *Session) AbortCaptures() error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.record("abort " + s.id)
	return nil
}

func (s *Session) Failed() <-chan error { return s.failed }

// Fail ends the repeating request as a lost device would and reports err on
// Failed.
func (s *Session) Fail(err error) {
	s.m.mu.Lock()
	s.repeating = false
	s.m.record("fail " + s.id)
	s.m.mu.Unlock()

	select {
	case s.failed <- err:
	default:
	}
}

func (s *Session) Close() error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.repeating = false
	s.m.openSessions--
	s.m.record("close-session " + s.id)
	return nil
}

// Deliver pushes a frame to every target of the active repeating request.
func (s *Session) Deliver(f camera.Frame) error {
	s.m.mu.Lock()
	req, active := s.request, s.repeating && !s.closed
	s.m.mu.Unlock()
	if !active || req == nil {
		return fmt.Errorf("session %s has no active repeating request", s.id)
	}
	for _, t := range req.Targets {
		if err := t.WriteFrame(f); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ camera.Manager        = (*Manager)(nil)
	_ camera.Camera         = (*Camera)(nil)
	_ camera.CaptureSession = (*Session)(nil)
)

// Surface is a recording camera.Surface.
type Surface struct {
	SurfaceName string
	SurfaceSize camera.Size
	Fmt         camera.FrameFormat

	mu     sync.Mutex
	frames []camera.Frame
}

func NewSurface(name string) *Surface {
	return &Surface{SurfaceName: name, Fmt: camera.FormatJPEG}
}

func (s *Surface) Name() string { return s.SurfaceName }
func (s *Surface) Format() camera.FrameFormat { return s.Fmt }
func (s *Surface) Size() camera.Size { return s.SurfaceSize }

func (s *Surface) WriteFrame(f camera.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *Surface) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}
