package tui

import "github.com/AlverezYari/moviecam/internal/session"

// RecordingStatus is what the record controls show.
type RecordingStatus int

const (
	StatusUnknown RecordingStatus = iota
	StatusReady
	StatusRecording
	StatusStopped
)

func (s RecordingStatus) String() string {
	switch s {
	case StatusReady:
		return "Ready"
	case StatusRecording:
		return "Recording"
	case StatusStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

func (s RecordingStatus) CanStart() bool {
	return s == StatusReady || s == StatusStopped
}

func (s RecordingStatus) CanStop() bool {
	return s == StatusRecording
}

// statusFor maps a session state onto the record controls. A finished
// recording keeps showing Stopped once the preview is back.
func statusFor(state session.State, prev RecordingStatus) RecordingStatus {
	switch state {
	case session.StatePreviewActive:
		if prev == StatusStopped {
			return StatusStopped
		}
		return StatusReady
	case session.StateRecording:
		return StatusRecording
	case session.StateStopping:
		return prev
	default:
		return StatusUnknown
	}
}
