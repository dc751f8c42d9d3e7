// internal/tui/update.go
package tui

import (
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/AlverezYari/moviecam/internal/logging"
	"github.com/AlverezYari/moviecam/internal/permission"
	"github.com/AlverezYari/moviecam/internal/session"
)

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logViewport.Width = msg.Width
		m.logViewport.Height = max(msg.Height-6, 3)
		return m, nil

	case tickMsg:
		m.currentTime = time.Time(msg)
		return m, timeTickCmd()

	case permissionsMsg:
		return m.handlePermissions(permission.Result(msg))

	case openedMsg:
		m.busy = false
		if msg.err != nil {
			m.status = StatusUnknown
			m.setStatusText(errorText(msg.err), true)
			return m, nil
		}
		m.status = StatusReady
		m.setStatusText("Ready: "+m.opts.Controller.CameraInfo().Name, false)
		return m, nil

	case recordingStartedMsg:
		m.busy = false
		if msg.err != nil {
			m.status = statusFor(m.opts.Controller.State(), m.status)
			m.setStatusText(errorText(msg.err), true)
			return m, nil
		}
		m.status = StatusRecording
		m.output = msg.path
		m.recordStart = time.Now()
		m.setStatusText("Recording "+filepath.Base(msg.path), false)
		return m, nil

	case recordingStoppedMsg:
		m.busy = false
		if m.opts.Controller.State() == session.StatePreviewActive {
			m.status = StatusStopped
		} else {
			m.status = StatusUnknown
		}
		if msg.err != nil {
			m.setStatusText(errorText(msg.err), true)
			return m, nil
		}
		m.setStatusText("Recording saved "+filepath.Base(msg.result.Path), false)
		return m, nil

	case SessionStateMsg:
		if m.busy {
			// The pending operation's result sets the status.
			return m, nil
		}
		prev := m.status
		m.status = statusFor(session.State(msg), prev)
		if m.status == StatusUnknown && prev != StatusUnknown {
			m.setStatusText("Camera closed", true)
		}
		return m, nil

	case LogMsg:
		m.appendLog(logging.Entry(msg))
		m.logViewport.SetContent(strings.Join(m.logs, "\n"))
		m.logViewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handlePermissions(res permission.Result) (tea.Model, tea.Cmd) {
	m.permissions = res
	m.checked = true
	if !res.Granted() {
		m.status = StatusUnknown
		m.setStatusText("Permissions required", true)
		return m, nil
	}
	if m.opts.Controller == nil {
		m.status = StatusUnknown
		if m.opts.SetupErr != nil {
			m.setStatusText(errorText(m.opts.SetupErr), true)
		} else {
			m.setStatusText("No camera found", true)
		}
		return m, nil
	}
	if m.busy || m.opts.Controller.State() != session.StateClosed {
		return m, nil
	}
	m.busy = true
	m.setStatusText("Opening camera...", false)
	return m, m.openCmd()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "1":
		m.activeTab = cameraTab
	case "2":
		m.activeTab = libraryTab
	case "3":
		m.activeTab = logsTab
		m.logViewport.SetContent(strings.Join(m.logs, "\n"))
	case "tab":
		// Cycle through tabs
		m.activeTab = (m.activeTab + 1) % tabType(len(m.tabs))

	case "g":
		if m.checked && !m.permissions.Granted() {
			m.setStatusText("Checking permissions...", false)
			return m, m.checkPermissionsCmd()
		}

	case "o":
		// Reopen after a device error.
		if m.permissionsGranted() && m.opts.Controller != nil && !m.busy &&
			m.opts.Controller.State() == session.StateClosed {
			m.busy = true
			m.setStatusText("Opening camera...", false)
			return m, m.openCmd()
		}

	case "r", " ":
		if m.busy || !m.status.CanStart() || m.opts.Controller == nil {
			return m, nil
		}
		m.busy = true
		m.setStatusText("Starting recording...", false)
		return m, m.startCmd()

	case "s":
		if m.busy || !m.status.CanStop() || m.opts.Controller == nil {
			return m, nil
		}
		m.busy = true
		m.setStatusText("Stopping recording...", false)
		return m, m.stopCmd()

	default:
		if m.activeTab == logsTab {
			var cmd tea.Cmd
			m.logViewport, cmd = m.logViewport.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m Model) permissionsGranted() bool {
	return m.checked && m.permissions.Granted()
}
