// Package metrics provides Prometheus metrics for capture, sessions and
// recordings.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviecam",
		Subsystem: "capture",
		Name:      "frames_total",
		Help:      "Frames delivered to capture targets",
	}, []string{"surface"})

	frameErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviecam",
		Subsystem: "capture",
		Name:      "frame_errors_total",
		Help:      "Frames a capture target failed to accept",
	}, []string{"surface"})

	sessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviecam",
		Subsystem: "session",
		Name:      "transitions_total",
		Help:      "Session state transitions by target state",
	}, []string{"state"})

	sessionOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "moviecam",
		Subsystem: "session",
		Name:      "open",
		Help:      "1 while the camera is open",
	})

	recordings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviecam",
		Subsystem: "recorder",
		Name:      "recordings_total",
		Help:      "Finished recordings by result",
	}, []string{"result"})

	recordingActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "moviecam",
		Subsystem: "recorder",
		Name:      "active",
		Help:      "1 while a recording is in progress",
	})

	recordingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "moviecam",
		Subsystem: "recorder",
		Name:      "duration_seconds",
		Help:      "Length of finished recordings",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	})

	previewClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "moviecam",
		Subsystem: "preview",
		Name:      "clients",
		Help:      "Connected browser preview clients",
	})

	// Local copy for the status API and the TUI.
	snap   = Snapshot{Frames: make(map[string]uint64)}
	snapMu sync.RWMutex
)

// Snapshot holds the current metric values.
type Snapshot struct {
	Frames            map[string]uint64 `json:"frames"`
	FrameErrors       uint64            `json:"frameErrors"`
	SessionState      string            `json:"sessionState"`
	Recording         bool              `json:"recording"`
	Recordings        uint64            `json:"recordings"`
	FailedRecordings  uint64            `json:"failedRecordings"`
	LastRecordingSecs float64           `json:"lastRecordingSeconds"`
	PreviewClients    int               `json:"previewClients"`
}

// ObserveFrame counts one delivery to surface. Its signature matches the
// capture backend's frame callback.
func ObserveFrame(surface string, err error) {
	snapMu.Lock()
	defer snapMu.Unlock()
	if err != nil {
		frameErrors.WithLabelValues(surface).Inc()
		snap.FrameErrors++
		return
	}
	framesDelivered.WithLabelValues(surface).Inc()
	snap.Frames[surface]++
}

// SetSessionState records a session state change; "closed" marks the camera
// as not open.
func SetSessionState(state string) {
	sessionTransitions.WithLabelValues(state).Inc()
	if state == "closed" {
		sessionOpen.Set(0)
	} else {
		sessionOpen.Set(1)
	}

	snapMu.Lock()
	snap.SessionState = state
	snapMu.Unlock()
}

func SetRecordingActive(active bool) {
	if active {
		recordingActive.Set(1)
	} else {
		recordingActive.Set(0)
	}
	snapMu.Lock()
	snap.Recording = active
	snapMu.Unlock()
}

// ObserveRecording records a finished recording.
func ObserveRecording(d time.Duration, err error) {
	snapMu.Lock()
	defer snapMu.Unlock()
	if err != nil {
		recordings.WithLabelValues("error").Inc()
		snap.FailedRecordings++
		return
	}
	recordings.WithLabelValues("ok").Inc()
	recordingDuration.Observe(d.Seconds())
	snap.Recordings++
	snap.LastRecordingSecs = d.Seconds()
}

func SetPreviewClients(n int) {
	previewClients.Set(float64(n))
	snapMu.Lock()
	snap.PreviewClients = n
	snapMu.Unlock()
}

// Current returns a copy of the current values.
func Current() Snapshot {
	snapMu.RLock()
	defer snapMu.RUnlock()
	s := snap
	s.Frames = make(map[string]uint64, len(snap.Frames))
	for k, v := range snap.Frames {
		s.Frames[k] = v
	}
	return s
}
