// Package session sequences the camera device, its capture sessions and the
// recorder: open, preview, record, stop, close.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AlverezYari/moviecam/internal/recorder"
	"github.com/AlverezYari/moviecam/pkg/camera"
)

type State int

const (
	StateClosed State = iota
	StateOpening
	StatePreviewActive
	StateRecording
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StatePreviewActive:
		return "preview"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return "closed"
	}
}

var ErrInvalidState = errors.New("invalid session state")

type Config struct {
	Camera    camera.CameraInfo
	Preview   camera.Surface
	OutputDir string
	// Now stamps output file names; defaults to time.Now.
	Now func() time.Time
}

// Controller owns the opened camera, the single live capture session and the
// recorder. Operations are serialized; Close may be called at any time and
// abandons a pending open or configure.
type Controller struct {
	manager camera.Manager
	rec     *recorder.Recorder
	cfg     Config
	logger  *slog.Logger

	opMu sync.Mutex

	mu        sync.Mutex
	state     State
	cam       camera.Camera
	session   camera.CaptureSession
	watchStop chan struct{}
	lifetime  context.Context
	cancel    context.CancelFunc

	listenersMu sync.Mutex
	listeners   []func(State)
}

func NewController(manager camera.Manager, rec *recorder.Recorder, cfg Config, logger *slog.Logger) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		manager: manager,
		rec:     rec,
		cfg:     cfg,
		logger:  logger.With("device", cfg.Camera.DeviceID),
	}
}

// Subscribe registers fn to be called after every state change.
func (c *Controller) Subscribe(fn func(State)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) CameraInfo() camera.CameraInfo { return c.cfg.Camera }

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev == s {
		return
	}

	c.logger.Debug("Session state changed", "from", prev, "to", s)
	c.listenersMu.Lock()
	listeners := append([](func(State))(nil), c.listeners...)
	c.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
}

// operationContext derives a context that also ends when Close is called.
func (c *Controller) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	c.mu.Lock()
	lifetime := c.lifetime
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	if lifetime == nil {
		return ctx, cancel
	}
	stop := context.AfterFunc(lifetime, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Open opens the camera and starts the preview.
func (c *Controller) Open(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state != StateClosed {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: open in state %s", ErrInvalidState, st)
	}
	c.lifetime, c.cancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	c.setState(StateOpening)
	ctx, cancel := c.operationContext(ctx)
	defer cancel()

	info := c.cfg.Camera
	cam, err := c.manager.OpenCamera(ctx, info.DeviceID, info.StreamConfig())
	if err != nil {
		c.endLifetime()
		c.setState(StateClosed)
		c.logger.Error("Failed to open camera", "error", err)
		return err
	}

	c.mu.Lock()
	c.cam = cam
	c.mu.Unlock()

	if err := c.startPreview(ctx); err != nil {
		c.closeCamera()
		c.endLifetime()
		c.setState(StateClosed)
		c.logger.Error("Failed to start preview", "error", err)
		return err
	}

	c.setState(StatePreviewActive)
	c.logger.Info("Preview started", "camera", info.Name)
	return nil
}

// StartRecording replaces the preview session with a preview+record session
// and starts the recorder. It returns the output file path.
func (c *Controller) StartRecording(ctx context.Context) (string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if st := c.State(); st != StatePreviewActive {
		return "", fmt.Errorf("%w: start recording in state %s", ErrInvalidState, st)
	}
	ctx, cancel := c.operationContext(ctx)
	defer cancel()

	path, err := recorder.NewOutputFile(c.cfg.OutputDir, c.cfg.Now())
	if err != nil {
		return "", &recorder.ResourceError{Op: "output", Err: err}
	}
	if err := c.rec.Configure(path); err != nil {
		return "", err
	}

	if err := c.startRecordSession(ctx); err != nil {
		c.recoverPreview(ctx)
		return "", err
	}

	if err := c.rec.Prepare(ctx); err != nil {
		c.recoverPreview(ctx)
		return "", err
	}
	if err := c.rec.Start(ctx); err != nil {
		c.recoverPreview(ctx)
		return "", err
	}

	c.setState(StateRecording)
	return path, nil
}

func (c *Controller) startRecordSession(ctx context.Context) error {
	c.closeSession()

	info := c.cfg.Camera
	targets := []camera.Surface{c.cfg.Preview, c.rec.Surface()}
	session, err := c.createSession(ctx, targets)
	if err != nil {
		return err
	}

	req := camera.CaptureRequest{
		Template: camera.TemplateRecord,
		Targets:  targets,
	}
	if info.FPS > 0 {
		req.FPSRange = camera.FPSRange{Min: info.FPS, Max: info.FPS}
	}
	if err := session.SetRepeatingRequest(req); err != nil {
		c.closeSession()
		return c.configureError(err)
	}
	return nil
}

// StopRecording finalizes the current recording and returns to preview.
func (c *Controller) StopRecording(ctx context.Context) (recorder.Result, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if st := c.State(); st != StateRecording {
		return recorder.Result{}, fmt.Errorf("%w: stop recording in state %s", ErrInvalidState, st)
	}
	c.setState(StateStopping)
	ctx, cancel := c.operationContext(ctx)
	defer cancel()

	c.stopCaptures()
	res, stopErr := c.rec.Stop(ctx)
	if stopErr != nil {
		c.logger.Error("Failed to finalize recording", "output", res.Path, "error", stopErr)
	}

	if err := c.startPreview(ctx); err != nil {
		c.closeCamera()
		c.setState(StateClosed)
		return res, errors.Join(stopErr, err)
	}
	c.setState(StatePreviewActive)
	return res, stopErr
}

// Close tears everything down. Errors are logged, never returned. A
// recording in progress is finalized first.
func (c *Controller) Close() {
	c.endLifetime()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.State() == StateClosed {
		return
	}
	c.teardown()
	c.logger.Info("Camera session closed")
}

// endLifetime cancels every operation context derived since Open.
func (c *Controller) endLifetime() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// teardown finalizes a running recording, then closes the session and the
// camera. Callers hold opMu.
func (c *Controller) teardown() {
	c.stopCaptures()
	if c.rec.Recording() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if _, err := c.rec.Stop(ctx); err != nil {
			c.logger.Warn("Error finalizing recording on close", "error", err)
		}
		cancel()
	} else {
		c.rec.Release()
	}
	c.closeCamera()
	c.setState(StateClosed)
}

// watch tears the camera down when s reports that capture failed. The
// watcher ends when s is closed.
func (c *Controller) watch(s camera.CaptureSession, stop <-chan struct{}) {
	select {
	case err := <-s.Failed():
		c.captureFailed(s, err)
	case <-stop:
	}
}

func (c *Controller) captureFailed(s camera.CaptureSession, err error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	current := c.session == s
	c.mu.Unlock()
	if !current {
		return
	}

	c.logger.Error("Capture failed, closing camera", "session", s.ID(), "state", c.State(), "error", err)
	c.endLifetime()
	c.teardown()
}

func (c *Controller) startPreview(ctx context.Context) error {
	c.closeSession()

	targets := []camera.Surface{c.cfg.Preview}
	session, err := c.createSession(ctx, targets)
	if err != nil {
		return err
	}
	if err := session.SetRepeatingRequest(camera.CaptureRequest{
		Template: camera.TemplatePreview,
		Targets:  targets,
	}); err != nil {
		c.closeSession()
		return c.configureError(err)
	}
	return nil
}

// recoverPreview drops a half-built recording and goes back to preview, or
// closes the camera when even that fails.
func (c *Controller) recoverPreview(ctx context.Context) {
	c.rec.Release()
	if err := c.startPreview(ctx); err != nil {
		c.logger.Error("Failed to restore preview", "error", err)
		c.closeCamera()
		c.setState(StateClosed)
		return
	}
	c.setState(StatePreviewActive)
}

func (c *Controller) createSession(ctx context.Context, targets []camera.Surface) (camera.CaptureSession, error) {
	c.mu.Lock()
	cam := c.cam
	c.mu.Unlock()
	if cam == nil {
		return nil, &camera.DeviceError{DeviceID: c.cfg.Camera.DeviceID, Code: camera.ErrorCameraDevice, Err: camera.ErrCameraClosed}
	}

	session, err := cam.CreateCaptureSession(ctx, targets)
	if err != nil {
		return nil, c.configureError(err)
	}

	stop := make(chan struct{})
	c.mu.Lock()
	c.session = session
	c.watchStop = stop
	c.mu.Unlock()

	go c.watch(session, stop)
	return session, nil
}

func (c *Controller) configureError(err error) error {
	if _, ok := camera.IsDeviceError(err); ok || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &camera.DeviceError{DeviceID: c.cfg.Camera.DeviceID, Code: camera.ErrorSessionConfiguration, Err: err}
}

// stopCaptures stops the repeating request, drops in-flight captures and
// closes the session.
func (c *Controller) stopCaptures() {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return
	}
	if err := session.StopRepeating(); err != nil {
		c.logger.Warn("Error stopping repeating request", "session", session.ID(), "error", err)
	}
	if err := session.AbortCaptures(); err != nil {
		c.logger.Warn("Error aborting captures", "session", session.ID(), "error", err)
	}
	c.closeSession()
}

func (c *Controller) closeSession() {
	c.mu.Lock()
	session := c.session
	c.session = nil
	if c.watchStop != nil {
		close(c.watchStop)
		c.watchStop = nil
	}
	c.mu.Unlock()
	if session == nil {
		return
	}
	if err := session.Close(); err != nil {
		c.logger.Warn("Error closing capture session", "session", session.ID(), "error", err)
	}
}

func (c *Controller) closeCamera() {
	c.closeSession()

	c.mu.Lock()
	cam := c.cam
	c.cam = nil
	c.mu.Unlock()
	if cam == nil {
		return
	}
	if err := cam.Close(); err != nil {
		c.logger.Warn("Error closing camera", "error", err)
	}
}
