package camera

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

const maxEmptyFrameCount = 5

// Options configures the capture backend.
type Options struct {
	Logger *slog.Logger
	// OnFrame is called after every delivery attempt to a surface.
	OnFrame func(surface string, err error)
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.OnFrame == nil {
		o.OnFrame = func(string, error) {}
	}
	return o
}

type gocvCamera struct {
	id   string
	opts Options

	// captureMu serializes access to capture, which is not safe for
	// concurrent use.
	captureMu sync.Mutex
	capture   *gocv.VideoCapture

	mu      sync.Mutex
	session *gocvSession
	closed  bool
}

func openGocvCamera(deviceID string, index int, config StreamConfig, opts Options) (*gocvCamera, error) {
	capture, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, &DeviceError{DeviceID: deviceID, Code: ErrorCameraService, Err: err}
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, &DeviceError{DeviceID: deviceID, Code: ErrorCameraDevice, Err: fmt.Errorf("camera %s is not open", deviceID)}
	}

	if config.Width > 0 && config.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(config.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(config.Height))
	}
	if config.Framerate > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(config.Framerate))
	}

	opts.Logger.Info("Camera opened", "device", deviceID, "size", Size{config.Width, config.Height}, "fps", config.Framerate)
	return &gocvCamera{id: deviceID, opts: opts, capture: capture}, nil
}

func (c *gocvCamera) ID() string { return c.id }

func (c *gocvCamera) CreateCaptureSession(ctx context.Context, targets []Surface) (CaptureSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, &DeviceError{DeviceID: c.id, Code: ErrorSessionConfiguration, Err: fmt.Errorf("no output surfaces")}
	}
	for i, t := range targets {
		if containsSurface(targets[i+1:], t) {
			return nil, &DeviceError{DeviceID: c.id, Code: ErrorSessionConfiguration, Err: fmt.Errorf("surface %q configured twice", t.Name())}
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, &DeviceError{DeviceID: c.id, Code: ErrorCameraDevice, Err: ErrCameraClosed}
	}
	prev := c.session
	c.session = nil
	c.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}

	s := &gocvSession{
		id:      uuid.NewString(),
		camera:  c,
		targets: append([]Surface(nil), targets...),
		failed:  make(chan error, 1),
	}

	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	c.opts.Logger.Debug("Capture session configured", "device", c.id, "session", s.id, "targets", len(targets))
	return s, nil
}

func (c *gocvCamera) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	s := c.session
	c.session = nil
	c.mu.Unlock()

	if s != nil {
		_ = s.Close()
	}

	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	if err := c.capture.Close(); err != nil {
		return fmt.Errorf("error closing camera %s: %w", c.id, err)
	}
	c.opts.Logger.Info("Camera closed", "device", c.id)
	return nil
}

func (c *gocvCamera) read(dst *gocv.Mat) bool {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	return c.capture.Read(dst)
}

func (c *gocvCamera) setFPS(fps int) {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
}

func (c *gocvCamera) detach(s *gocvSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == s {
		c.session = nil
	}
}

type gocvSession struct {
	id      string
	camera  *gocvCamera
	targets []Surface
	failed  chan error

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

func (s *gocvSession) ID() string { return s.id }

func (s *gocvSession) Failed() <-chan error { return s.failed }

func (s *gocvSession) fail(err error) {
	select {
	case s.failed <- err:
	default:
	}
}

func (s *gocvSession) SetRepeatingRequest(req CaptureRequest) error {
	if err := ValidateRequest(s.targets, req); err != nil {
		return &DeviceError{DeviceID: s.camera.id, Code: ErrorSessionConfiguration, Err: err}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.mu.Unlock()

	// A new repeating request replaces the current one.
	s.AbortCaptures()

	if req.FPSRange.Max > 0 {
		s.camera.setFPS(req.FPSRange.Max)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.run(ctx, req, done)
	return nil
}

func (s *gocvSession) StopRepeating() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *gocvSession) AbortCaptures() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return nil
}

func (s *gocvSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.AbortCaptures()
	s.camera.detach(s)
	s.camera.opts.Logger.Debug("Capture session closed", "device", s.camera.id, "session", s.id)
	return nil
}

func (s *gocvSession) run(ctx context.Context, req CaptureRequest, done chan struct{}) {
	defer close(done)
	log := s.camera.opts.Logger.With("device", s.camera.id, "session", s.id, "template", req.Template)

	img := gocv.NewMat()
	defer img.Close()
	scaled := gocv.NewMat()
	defer scaled.Close()

	empty := 0
	for ctx.Err() == nil {
		if ok := s.camera.read(&img); !ok || img.Empty() {
			empty++
			if empty >= maxEmptyFrameCount {
				log.Error("Failed to read frames, stopping repeating request", "attempts", empty)
				s.fail(&DeviceError{
					DeviceID: s.camera.id,
					Code:     ErrorCameraDevice,
					Err:      fmt.Errorf("no frames after %d reads", empty),
				})
				return
			}
			continue
		}
		empty = 0

		now := time.Now()
		for _, target := range req.Targets {
			// Aborted captures are dropped mid-delivery.
			if ctx.Err() != nil {
				return
			}
			frame, err := convertFrame(img, &scaled, target, now)
			if err == nil {
				err = target.WriteFrame(frame)
			}
			if err != nil {
				log.Debug("Frame delivery failed", "surface", target.Name(), "error", err)
			}
			s.camera.opts.OnFrame(target.Name(), err)
		}
	}
}

func convertFrame(src gocv.Mat, scratch *gocv.Mat, target Surface, ts time.Time) (Frame, error) {
	m := src
	if size := target.Size(); !size.IsZero() && (size.Width != src.Cols() || size.Height != src.Rows()) {
		gocv.Resize(src, scratch, image.Pt(size.Width, size.Height), 0, 0, gocv.InterpolationLinear)
		m = *scratch
	}

	frame := Frame{Width: m.Cols(), Height: m.Rows(), Format: target.Format(), Timestamp: ts}
	switch target.Format() {
	case FormatJPEG:
		buf, err := gocv.IMEncode(gocv.JPEGFileExt, m)
		if err != nil {
			return Frame{}, fmt.Errorf("failed to encode frame: %w", err)
		}
		frame.Data = append([]byte(nil), buf.GetBytes()...)
		buf.Close()
	default:
		frame.Data = m.ToBytes()
	}
	return frame, nil
}
