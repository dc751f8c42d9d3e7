package tui

import (
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/AlverezYari/moviecam/internal/logging"
	"github.com/AlverezYari/moviecam/internal/permission"
	"github.com/AlverezYari/moviecam/internal/recorder"
	"github.com/AlverezYari/moviecam/internal/session"
	"github.com/AlverezYari/moviecam/pkg/camera"
)

// Msg types
type tickMsg time.Time

type permissionsMsg permission.Result

type openedMsg struct{ err error }

type recordingStartedMsg struct {
	path string
	err  error
}

type recordingStoppedMsg struct {
	result recorder.Result
	err    error
}

// SessionStateMsg reports a controller state change. Send it from the
// controller's state listener with Program.Send.
type SessionStateMsg session.State

// LogMsg delivers a new log entry to the Logs tab.
type LogMsg logging.Entry

// Helper command for time updates
func timeTickCmd() tea.Cmd {
	return tea.Every(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) checkPermissionsCmd() tea.Cmd {
	check := m.opts.Permissions
	return func() tea.Msg {
		if check == nil {
			return permissionsMsg{}
		}
		return permissionsMsg(check())
	}
}

func (m Model) openCmd() tea.Cmd {
	ctrl, ctx := m.opts.Controller, m.opts.Ctx
	return func() tea.Msg {
		return openedMsg{err: ctrl.Open(ctx)}
	}
}

func (m Model) startCmd() tea.Cmd {
	ctrl, ctx := m.opts.Controller, m.opts.Ctx
	return func() tea.Msg {
		path, err := ctrl.StartRecording(ctx)
		return recordingStartedMsg{path: path, err: err}
	}
}

func (m Model) stopCmd() tea.Cmd {
	ctrl, ctx := m.opts.Controller, m.opts.Ctx
	return func() tea.Msg {
		res, err := ctrl.StopRecording(ctx)
		return recordingStoppedMsg{result: res, err: err}
	}
}

// errorText turns controller errors into status line text.
func errorText(err error) string {
	if errors.Is(err, camera.ErrNoCamera) {
		return "No camera found"
	}
	if errors.Is(err, camera.ErrNoCapability) || errors.Is(err, camera.ErrNoCompatibleSize) {
		return fmt.Sprintf("Camera not supported: %v", err)
	}
	if de, ok := camera.IsDeviceError(err); ok {
		return fmt.Sprintf("Camera error: %s", de.Code)
	}
	var re *recorder.ResourceError
	if errors.As(err, &re) {
		return fmt.Sprintf("Recorder error (%s): %v", re.Op, re.Err)
	}
	return fmt.Sprintf("Error: %v", err)
}
