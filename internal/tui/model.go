// internal/tui/model.go
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/AlverezYari/moviecam/internal/logging"
	"github.com/AlverezYari/moviecam/internal/media"
	"github.com/AlverezYari/moviecam/internal/permission"
	"github.com/AlverezYari/moviecam/internal/recorder"
	"github.com/AlverezYari/moviecam/internal/session"
	"github.com/AlverezYari/moviecam/pkg/camera"
)

type tabType int

const (
	cameraTab tabType = iota
	libraryTab
	logsTab
)

type tab struct {
	title string
	id    tabType
}

const maxLogLines = 1000

// Controller is the part of the session controller the UI drives.
type Controller interface {
	Open(ctx context.Context) error
	StartRecording(ctx context.Context) (string, error)
	StopRecording(ctx context.Context) (recorder.Result, error)
	State() session.State
	CameraInfo() camera.CameraInfo
}

type Options struct {
	// Ctx bounds controller calls; cancel it to abandon a pending open.
	Ctx context.Context
	// Controller is nil when no camera could be selected; SetupErr says why.
	Controller  Controller
	SetupErr    error
	Permissions func() permission.Result
	Recordings  func() []media.Recording
	Logs        func() []logging.Entry
	PreviewURL  string
	OutputDir   string
}

// Model holds our application state
type Model struct {
	opts Options

	width       int
	height      int
	currentTime time.Time
	activeTab   tabType
	tabs        []tab

	permissions permission.Result
	checked     bool

	status      RecordingStatus
	statusText  string
	isError     bool
	busy        bool
	output      string
	recordStart time.Time

	logViewport viewport.Model
	logs        []string
}

// New returns a Model with initial state
func New(opts Options) Model {
	if opts.Ctx == nil {
		opts.Ctx = context.Background()
	}
	m := Model{
		opts:        opts,
		currentTime: time.Now(),
		activeTab:   cameraTab,
		tabs: []tab{
			{title: "Camera", id: cameraTab},
			{title: "Library", id: libraryTab},
			{title: "Logs", id: logsTab},
		},
		statusText: "Starting up...",
		logViewport: func() viewport.Model {
			vp := viewport.New(0, 10)
			vp.MouseWheelEnabled = true
			return vp
		}(),
	}
	if opts.Logs != nil {
		for _, e := range opts.Logs() {
			m.appendLog(e)
		}
	}
	return m
}

// Init runs any initial IO
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.checkPermissionsCmd(), timeTickCmd())
}

// Status returns the current record control status.
func (m Model) Status() RecordingStatus { return m.status }

// StatusText returns the status line message.
func (m Model) StatusText() string { return m.statusText }

func (m *Model) setStatusText(text string, isError bool) {
	m.statusText = text
	m.isError = isError
}

func (m *Model) appendLog(e logging.Entry) {
	m.logs = append(m.logs, logging.FormatLine(e))
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
}
