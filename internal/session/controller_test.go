package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlverezYari/moviecam/internal/recorder"
	"github.com/AlverezYari/moviecam/pkg/camera"
	"github.com/AlverezYari/moviecam/pkg/camera/cameratest"
)

// fileEncoder writes its output file on Stop.
type fileEncoder struct {
	path       string
	prepareErr error

	mu     sync.Mutex
	frames int
}

func (e *fileEncoder) Prepare(context.Context) error { return e.prepareErr }

func (e *fileEncoder) Start(context.Context) error { return nil }

func (e *fileEncoder) Stop(context.Context) error {
	return os.WriteFile(e.path, []byte("mp4"), 0644)
}

func (e *fileEncoder) Release() error { return nil }

func (e *fileEncoder) WriteFrame(camera.Frame) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames++
	return nil
}

type fixture struct {
	manager  *cameratest.Manager
	preview  *cameratest.Surface
	ctrl     *Controller
	dir      string
	encoders []*fileEncoder
	// set on every encoder created after it is assigned
	prepareErr error

	mu     sync.Mutex
	states []State
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		manager: cameratest.NewManager(),
		preview: cameratest.NewSurface("preview"),
		dir:     t.TempDir(),
	}

	info, err := camera.SelectCameraInfo(f.manager)
	require.NoError(t, err)

	factory := func(cfg recorder.EncoderConfig) (recorder.Encoder, error) {
		enc := &fileEncoder{path: cfg.OutputPath, prepareErr: f.prepareErr}
		f.encoders = append(f.encoders, enc)
		return enc, nil
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := recorder.New(recorder.Config{Size: info.Size, FPS: info.FPS}, factory, nil, logger)

	f.ctrl = NewController(f.manager, rec, Config{
		Camera:    info,
		Preview:   f.preview,
		OutputDir: f.dir,
		Now:       func() time.Time { return time.Date(2024, time.March, 9, 14, 5, 7, 0, time.UTC) },
	}, logger)
	f.ctrl.Subscribe(func(s State) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.states = append(f.states, s)
	})
	return f
}

func (f *fixture) seenStates() []State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]State(nil), f.states...)
}

func TestControllerRecordingCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ctrl.Open(ctx))
	assert.Equal(t, StatePreviewActive, f.ctrl.State())
	preview := f.manager.LastSession()
	require.NotNil(t, preview)
	assert.Equal(t, camera.TemplatePreview, preview.Request().Template)

	path, err := f.ctrl.StartRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.dir, "VID_14:05:07 09-03-2024.mp4"), path)
	assert.Equal(t, StateRecording, f.ctrl.State())
	assert.True(t, preview.Closed())

	record := f.manager.LastSession()
	req := record.Request()
	require.NotNil(t, req)
	assert.Equal(t, camera.TemplateRecord, req.Template)
	assert.Equal(t, camera.FPSRange{Min: 30, Max: 30}, req.FPSRange)
	require.Len(t, req.Targets, 2)
	assert.Equal(t, "preview", req.Targets[0].Name())
	assert.Equal(t, "recorder", req.Targets[1].Name())

	require.NoError(t, record.Deliver(camera.Frame{Width: 1920, Height: 1080}))
	assert.Equal(t, 1, f.preview.Frames())
	assert.Equal(t, 1, f.encoders[0].frames)

	res, err := f.ctrl.StopRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, path, res.Path)
	assert.Equal(t, StatePreviewActive, f.ctrl.State())

	// One live session and exactly one finished file.
	assert.Equal(t, 1, f.manager.OpenSessions())
	assert.Equal(t, 1, f.manager.MaxOpenSessions())
	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "VID_14:05:07 09-03-2024.mp4", entries[0].Name())

	f.ctrl.Close()
	assert.Equal(t, StateClosed, f.ctrl.State())
	assert.Equal(t, 0, f.manager.OpenSessions())
	assert.Equal(t, 0, f.manager.OpenCameras())

	assert.Equal(t, []string{
		"open 0", "session 1", "repeat 1 preview",
		"close-session 1", "session 2", "repeat 2 record",
		"stop 2", "abort 2", "close-session 2", "session 3", "repeat 3 preview",
		"stop 3", "abort 3", "close-session 3", "close-camera 0",
	}, f.manager.Events())

	assert.Equal(t, []State{
		StateOpening, StatePreviewActive, StateRecording, StateStopping, StatePreviewActive, StateClosed,
	}, f.seenStates())
}

func TestControllerRepeatedCyclesKeepOneSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Open(ctx))

	for i := 0; i < 3; i++ {
		_, err := f.ctrl.StartRecording(ctx)
		require.NoError(t, err)
		_, err = f.ctrl.StopRecording(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.manager.MaxOpenSessions())
	assert.Equal(t, 1, f.manager.OpenCameras())
	assert.Len(t, f.encoders, 3)
}

func TestControllerInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.StartRecording(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.ctrl.StopRecording(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, f.ctrl.Open(ctx))
	assert.ErrorIs(t, f.ctrl.Open(ctx), ErrInvalidState)
	_, err = f.ctrl.StopRecording(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestControllerOpenDeviceError(t *testing.T) {
	f := newFixture(t)
	f.manager.OpenErr = &camera.DeviceError{DeviceID: "0", Code: camera.ErrorCameraInUse}

	err := f.ctrl.Open(context.Background())
	de, ok := camera.IsDeviceError(err)
	require.True(t, ok)
	assert.Equal(t, camera.ErrorCameraInUse, de.Code)
	assert.Equal(t, StateClosed, f.ctrl.State())
	assert.Equal(t, []State{StateOpening, StateClosed}, f.seenStates())
}

func TestControllerSessionConfigurationError(t *testing.T) {
	f := newFixture(t)
	f.manager.SessionErr = errors.New("unsupported surface combination")

	err := f.ctrl.Open(context.Background())
	de, ok := camera.IsDeviceError(err)
	require.True(t, ok)
	assert.Equal(t, camera.ErrorSessionConfiguration, de.Code)
	assert.Equal(t, StateClosed, f.ctrl.State())
	assert.Equal(t, 0, f.manager.OpenCameras())
}

func TestControllerOpenCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, f.ctrl.Open(ctx), context.Canceled)
	assert.Equal(t, StateClosed, f.ctrl.State())
	assert.Empty(t, f.manager.Events())
}

func TestControllerEncoderFailureRestoresPreview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Open(ctx))

	f.prepareErr = errors.New("no encoder")
	_, err := f.ctrl.StartRecording(ctx)
	var re *recorder.ResourceError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "prepare", re.Op)

	assert.Equal(t, StatePreviewActive, f.ctrl.State())
	assert.Equal(t, 1, f.manager.OpenSessions())
	assert.Equal(t, 1, f.manager.MaxOpenSessions())
	assert.Equal(t, camera.TemplatePreview, f.manager.LastSession().Request().Template)

	// A later attempt succeeds once the encoder works again.
	f.prepareErr = nil
	_, err = f.ctrl.StartRecording(ctx)
	require.NoError(t, err)
}

func TestControllerCloseWhileRecordingFinalizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Open(ctx))
	path, err := f.ctrl.StartRecording(ctx)
	require.NoError(t, err)

	f.ctrl.Close()
	assert.Equal(t, StateClosed, f.ctrl.State())
	assert.FileExists(t, path)
	assert.Equal(t, 0, f.manager.OpenSessions())
	assert.Equal(t, 0, f.manager.OpenCameras())

	// Closing twice is harmless and the controller can be reopened.
	f.ctrl.Close()
	require.NoError(t, f.ctrl.Open(ctx))
	assert.Equal(t, StatePreviewActive, f.ctrl.State())
}

func TestControllerCaptureFailureWhileRecordingCloses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Open(ctx))
	path, err := f.ctrl.StartRecording(ctx)
	require.NoError(t, err)

	f.manager.LastSession().Fail(&camera.DeviceError{DeviceID: "0", Code: camera.ErrorCameraDevice})

	require.Eventually(t, func() bool {
		states := f.seenStates()
		return states[len(states)-1] == StateClosed
	}, time.Second, 5*time.Millisecond)

	// The recording is finalized and the encoder given back.
	assert.FileExists(t, path)
	assert.False(t, f.ctrl.rec.Recording())
	assert.Equal(t, 0, f.manager.OpenSessions())
	assert.Equal(t, 0, f.manager.OpenCameras())

	// Reopening and recording again works.
	require.NoError(t, f.ctrl.Open(ctx))
	_, err = f.ctrl.StartRecording(ctx)
	require.NoError(t, err)
}

func TestControllerCaptureFailureDuringPreviewCloses(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.Open(context.Background()))

	f.manager.LastSession().Fail(errors.New("device unplugged"))

	require.Eventually(t, func() bool { return f.ctrl.State() == StateClosed }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, f.manager.OpenCameras())
	assert.Empty(t, f.encoders)
}

func TestControllerIgnoresFailureOfReplacedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Open(ctx))
	preview := f.manager.LastSession()
	_, err := f.ctrl.StartRecording(ctx)
	require.NoError(t, err)

	preview.Fail(errors.New("late failure"))

	assert.Never(t, func() bool { return f.ctrl.State() != StateRecording }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, 1, f.manager.OpenCameras())
}

func TestControllerFailedOpenEndsLifetime(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *cameratest.Manager)
	}{
		{"open error", func(m *cameratest.Manager) {
			m.OpenErr = &camera.DeviceError{DeviceID: "0", Code: camera.ErrorCameraInUse}
		}},
		{"preview error", func(m *cameratest.Manager) {
			m.SessionErr = errors.New("unsupported surface combination")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f.manager)

			require.Error(t, f.ctrl.Open(context.Background()))

			f.ctrl.mu.Lock()
			lifetime := f.ctrl.lifetime
			f.ctrl.mu.Unlock()
			require.NotNil(t, lifetime)
			assert.ErrorIs(t, lifetime.Err(), context.Canceled)
		})
	}
}
