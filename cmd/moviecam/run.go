package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/AlverezYari/moviecam/internal/config"
	"github.com/AlverezYari/moviecam/internal/logging"
	"github.com/AlverezYari/moviecam/internal/media"
	"github.com/AlverezYari/moviecam/internal/metrics"
	"github.com/AlverezYari/moviecam/internal/permission"
	"github.com/AlverezYari/moviecam/internal/recorder"
	"github.com/AlverezYari/moviecam/internal/server"
	"github.com/AlverezYari/moviecam/internal/session"
	"github.com/AlverezYari/moviecam/internal/tui"
	"github.com/AlverezYari/moviecam/pkg/camera"
)

// selectCamera picks the device configured by id, then by name, or the
// first one when neither is set.
func selectCamera(m camera.Manager, sel config.CameraConfig) (camera.CameraInfo, camera.Device, error) {
	devices, err := m.ScanDevices()
	if err != nil {
		return camera.CameraInfo{}, camera.Device{}, fmt.Errorf("error scanning for cameras: %w", err)
	}
	if len(devices) == 0 {
		return camera.CameraInfo{}, camera.Device{}, camera.ErrNoCamera
	}

	var match func(camera.Device) bool
	switch {
	case sel.DeviceID != "":
		match = func(d camera.Device) bool { return d.ID == sel.DeviceID }
	case sel.DeviceName != "":
		match = func(d camera.Device) bool { return strings.EqualFold(d.Name, sel.DeviceName) }
	default:
		info, err := camera.SelectCameraInfoFor(m, devices[0])
		return info, devices[0], err
	}
	for _, dev := range devices {
		if match(dev) {
			info, err := camera.SelectCameraInfoFor(m, dev)
			return info, dev, err
		}
	}

	want := sel.DeviceID
	if want == "" {
		want = fmt.Sprintf("%q", sel.DeviceName)
	}
	return camera.CameraInfo{}, camera.Device{}, fmt.Errorf("camera %s: %w", want, camera.ErrNoCamera)
}

// previewSize is the largest capability that fits the display, falling back
// to the recording size.
func previewSize(m camera.Manager, info camera.CameraInfo, display camera.Size) camera.Size {
	caps, err := m.Capabilities(info.DeviceID)
	if err != nil {
		return info.Size
	}
	sizes := make([]camera.Size, len(caps))
	for i, c := range caps {
		sizes[i] = c.Size
	}
	size, err := camera.SelectOutputSize(display, sizes)
	if err != nil || size.Area() > info.Size.Area() {
		return info.Size
	}
	return size
}

func run(ctx context.Context, cfg *config.AppConfig) error {
	configDir, err := config.Dir()
	if err != nil {
		return err
	}
	if err := logging.Setup(logging.Config{Level: cfg.LogLevel, File: filepath.Join(configDir, "moviecam.log")}); err != nil {
		return err
	}
	defer logging.Close()
	logger := logging.Module("app")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	display, err := cfg.DisplaySize()
	if err != nil {
		return err
	}
	outputDir := cfg.Recording.OutputDir

	manager := managerFactory(camera.Options{Logger: logging.Module("camera"), OnFrame: metrics.ObserveFrame})

	index := media.NewIndex(outputDir, logging.Module("media"))
	index.OnChange(func(list []media.Recording) {
		logger.Debug("Recordings updated", "count", len(list))
	})
	go func() {
		if err := index.Watch(ctx); err != nil {
			logger.Warn("Media watcher stopped", "error", err)
		}
	}()

	var ctrl *session.Controller
	info, dev, setupErr := selectCamera(manager, cfg.CameraConfig)
	devicePath := cfg.DevicePath()
	if setupErr != nil {
		logger.Error("No usable camera", "error", setupErr)
	} else {
		devicePath = dev.Path
		logger.Info("Camera selected", "camera", info.Name, "device", dev.Name)
	}

	srv := server.New(server.Options{
		Addr:       cfg.Addr(),
		Recordings: index.List,
		Logger:     logging.Module("server"),
		Status: func() server.Status {
			st := server.Status{State: session.StateClosed.String(), Camera: info.Name}
			if ctrl != nil {
				st.State = ctrl.State().String()
				st.Recording = ctrl.State() == session.StateRecording
			}
			return st
		},
	})
	if setupErr == nil {
		ctrl = newController(manager, info, display, srv, index, cfg, logger)
		defer ctrl.Close()
	}

	previewURL := ""
	if err := srv.Start(); err != nil {
		logger.Error("Error starting server", "error", err)
	} else {
		previewURL = "http://" + srv.Addr() + "/"
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if err := srv.Stop(stopCtx); err != nil {
				logger.Warn("Error stopping server", "error", err)
			}
		}()
	}

	requirements := permission.Requirements(devicePath, cfg.Recording.AudioDevice, outputDir)
	checker := permission.NewChecker()

	opts := tui.Options{
		Ctx:         ctx,
		SetupErr:    setupErr,
		Permissions: func() permission.Result { return checker.Check(requirements) },
		Recordings:  index.List,
		Logs:        logging.Buffer().ReadAll,
		PreviewURL:  previewURL,
		OutputDir:   outputDir,
	}
	if ctrl != nil {
		opts.Controller = ctrl
	}

	p := tea.NewProgram(
		tui.New(opts),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	if ctrl != nil {
		ctrl.Subscribe(func(s session.State) {
			p.Send(tui.SessionStateMsg(s))
		})
	}

	// Records may be logged from inside Update, so entries reach the
	// program through a buffered pump and are dropped when it is full.
	entries := make(chan logging.Entry, 256)
	logging.SetCallback(func(e logging.Entry) {
		select {
		case entries <- e:
		default:
		}
	})
	defer logging.SetCallback(nil)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-entries:
				p.Send(tui.LogMsg(e))
			}
		}
	}()

	_, err = p.Run()
	cancel()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func newController(manager camera.Manager, info camera.CameraInfo, display camera.Size, srv *server.Server,
	index *media.Index, cfg *config.AppConfig, logger *slog.Logger) *session.Controller {
	rec := recorder.New(recorder.Config{
		Size:         info.Size,
		FPS:          info.FPS,
		VideoBitrate: cfg.Recording.VideoBitrate,
		AudioDevice:  cfg.Recording.AudioDevice,
	}, recorder.NewFFmpegFactory(cfg.Recording.FFmpegBinary, logging.Module("encoder")), index, logging.Module("recorder"))
	rec.OnFinalized = func(r recorder.Result) {
		metrics.ObserveRecording(r.Duration, nil)
	}
	rec.OnFailed = func(r recorder.Result, err error) {
		metrics.ObserveRecording(r.Duration, err)
	}

	preview := previewSize(manager, info, display)
	logger.Info("Output sizes selected", "record", info.Size, "preview", preview, "display", display)

	ctrl := session.NewController(manager, rec, session.Config{
		Camera:    info,
		Preview:   srv.PreviewSurface(preview),
		OutputDir: cfg.Recording.OutputDir,
	}, logging.Module("session"))
	ctrl.Subscribe(func(s session.State) {
		metrics.SetSessionState(s.String())
		metrics.SetRecordingActive(s == session.StateRecording)
	})
	return ctrl
}
