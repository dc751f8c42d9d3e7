package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlverezYari/moviecam/internal/media"
	"github.com/AlverezYari/moviecam/pkg/camera"
)

func newTestServer() *Server {
	return New(Options{
		Addr: "127.0.0.1:0",
		Status: func() Status {
			return Status{State: "recording", Camera: "External (0) 1920x1080 30 FPS", Recording: true, Output: "VID_a.mp4"}
		},
		Recordings: func() []media.Recording {
			return []media.Recording{{Path: "/v/VID_a.mp4", Name: "VID_a.mp4", Size: 2048}}
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestStatusEndpoint(t *testing.T) {
	w := get(t, newTestServer().Handler(), "/api/status")
	require.Equal(t, http.StatusOK, w.Code)

	var status Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "recording", status.State)
	assert.True(t, status.Recording)
	assert.NotNil(t, status.Metrics.Frames)
}

func TestRecordingsEndpoint(t *testing.T) {
	w := get(t, newTestServer().Handler(), "/api/recordings")
	require.Equal(t, http.StatusOK, w.Code)

	var list []media.Recording
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "VID_a.mp4", list[0].Name)

	empty := New(Options{})
	w = get(t, empty.Handler(), "/api/recordings")
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestIndexAndMetrics(t *testing.T) {
	h := newTestServer().Handler()

	w := get(t, h, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "External (0) 1920x1080 30 FPS")

	assert.Equal(t, http.StatusNotFound, get(t, h, "/nope").Code)

	w = get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "moviecam_")
}

func TestSnapshot(t *testing.T) {
	s := newTestServer()
	h := s.Handler()
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/snapshot.jpg").Code)

	preview := s.PreviewSurface(camera.Size{Width: 640, Height: 360})
	require.NoError(t, preview.WriteFrame(camera.Frame{Format: camera.FormatJPEG, Data: []byte{0xff, 0xd8}}))
	assert.Error(t, preview.WriteFrame(camera.Frame{Format: camera.FormatBGR24}))

	w := get(t, h, "/snapshot.jpg")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0xff, 0xd8}, w.Body.Bytes())
}

func TestPreviewBroadcast(t *testing.T) {
	s := newTestServer()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/camera"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	preview := s.PreviewSurface(camera.Size{Width: 640, Height: 360})
	assert.Equal(t, "preview", preview.Name())
	assert.Equal(t, camera.FormatJPEG, preview.Format())
	require.NoError(t, preview.WriteFrame(camera.Frame{Format: camera.FormatJPEG, Data: []byte("jpeg-bytes")}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, typ)
	assert.Equal(t, "jpeg-bytes", string(data))

	conn.Close()
	assert.Eventually(t, func() bool { return s.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStartStop(t *testing.T) {
	s := newTestServer()
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start())

	resp, err := http.Get("http://" + s.Addr() + "/api/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.IsRunning())
	assert.Error(t, s.Stop(context.Background()))
}
