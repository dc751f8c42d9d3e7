// internal/server/server.go
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AlverezYari/moviecam/internal/media"
	"github.com/AlverezYari/moviecam/internal/metrics"
)

//go:embed web/index.html
var webFS embed.FS

var indexTemplate = template.Must(template.ParseFS(webFS, "web/index.html"))

const writeTimeout = 2 * time.Second

// Status is served on /api/status.
type Status struct {
	State     string           `json:"state"`
	Camera    string           `json:"camera"`
	Recording bool             `json:"recording"`
	Output    string           `json:"output,omitempty"`
	Metrics   metrics.Snapshot `json:"metrics"`
}

type Options struct {
	// Addr is host:port; port 0 picks a free port.
	Addr       string
	Status     func() Status
	Recordings func() []media.Recording
	Logger     *slog.Logger
}

type Server struct {
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	server    *http.Server
	addr      string
	isRunning bool

	upgrader        websocket.Upgrader
	wsConnections   map[*websocket.Conn]bool
	wsConnectionsMu sync.Mutex

	lastFrameMu sync.RWMutex
	lastFrame   []byte
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		opts:   opts,
		logger: opts.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		wsConnections: make(map[*websocket.Conn]bool),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/camera", s.handleWebSocketCamera)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/recordings", s.handleRecordings)
	mux.HandleFunc("/snapshot.jpg", s.handleSnapshot)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", s.handleIndex)
	return mux
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return fmt.Errorf("server is already running on %s", s.addr)
	}

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	s.addr = ln.Addr().String()
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.isRunning = true
	s.logger.Info("Preview server running", "addr", s.addr)
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return errors.New("server is not running")
	}

	s.closeConnections()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.isRunning = false
	s.logger.Info("Preview server stopped")
	return nil
}

func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	var status Status
	if s.opts.Status != nil {
		status = s.opts.Status()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, status); err != nil {
		s.logger.Error("Error rendering index", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := Status{Metrics: metrics.Current()}
	if s.opts.Status != nil {
		status = s.opts.Status()
		status.Metrics = metrics.Current()
	}
	writeJSON(w, status)
}

func (s *Server) handleRecordings(w http.ResponseWriter, _ *http.Request) {
	list := []media.Recording{}
	if s.opts.Recordings != nil {
		list = append(list, s.opts.Recordings()...)
	}
	writeJSON(w, list)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.lastFrameMu.RLock()
	frame := s.lastFrame
	s.lastFrameMu.RUnlock()
	if frame == nil {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(frame)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleWebSocketCamera(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Error upgrading websocket connection", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.logger.Info("Preview client connected", "remote", r.RemoteAddr)

	s.wsConnectionsMu.Lock()
	s.wsConnections[conn] = true
	metrics.SetPreviewClients(len(s.wsConnections))
	s.wsConnectionsMu.Unlock()

	defer func() {
		s.wsConnectionsMu.Lock()
		delete(s.wsConnections, conn)
		metrics.SetPreviewClients(len(s.wsConnections))
		s.wsConnectionsMu.Unlock()
		conn.Close()
		s.logger.Info("Preview client disconnected", "remote", r.RemoteAddr)
	}()

	// Clients only send control frames; reading keeps pings and close
	// handshakes flowing.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// BroadcastFrame sends one JPEG frame to every preview client. A client that
// cannot keep up is dropped.
func (s *Server) BroadcastFrame(frameBytes []byte) {
	s.lastFrameMu.Lock()
	s.lastFrame = frameBytes
	s.lastFrameMu.Unlock()

	s.wsConnectionsMu.Lock()
	defer s.wsConnectionsMu.Unlock()
	for conn := range s.wsConnections {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, frameBytes); err != nil {
			s.logger.Warn("Error writing frame to websocket", "remote", conn.RemoteAddr(), "error", err)
			conn.Close()
			delete(s.wsConnections, conn)
		}
	}
	metrics.SetPreviewClients(len(s.wsConnections))
}

// ClientCount returns the number of connected preview clients.
func (s *Server) ClientCount() int {
	s.wsConnectionsMu.Lock()
	defer s.wsConnectionsMu.Unlock()
	return len(s.wsConnections)
}

func (s *Server) closeConnections() {
	s.wsConnectionsMu.Lock()
	defer s.wsConnectionsMu.Unlock()
	for conn := range s.wsConnections {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"),
			time.Now().Add(time.Second))
		conn.Close()
		delete(s.wsConnections, conn)
	}
	metrics.SetPreviewClients(0)
}
