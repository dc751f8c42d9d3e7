// internal/logging/logging.go

// Package logging writes the application log to a file, since the terminal
// belongs to the UI, and keeps recent entries in memory for display.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const defaultBufferSize = 500

type Config struct {
	// Level is debug, info, warn or error.
	Level string
	// File is the log file path; empty logs to the buffer only.
	File       string
	BufferSize int
}

var (
	mu       sync.RWMutex
	levelVar = &slog.LevelVar{}
	buffer   = NewRingBuffer(defaultBufferSize)
	callback Callback
	logFile  *os.File
)

// Setup installs the default slog logger.
func Setup(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	levelVar.Set(level)
	buffer = NewRingBuffer(cfg.BufferSize)
	handlers := []slog.Handler{NewBufferHandler(buffer, levelVar)}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return fmt.Errorf("error creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		if logFile != nil {
			logFile.Close()
		}
		logFile = f
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: levelVar}))
	}

	slog.SetDefault(slog.New(NewMultiHandler(handlers...)))
	return nil
}

// Close closes the log file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return err
}

// Module returns the default logger tagged with a module name.
func Module(name string) *slog.Logger {
	return slog.Default().With("module", name)
}

func SetLevel(level slog.Level) { levelVar.Set(level) }

func Buffer() *RingBuffer {
	mu.RLock()
	defer mu.RUnlock()
	return buffer
}

// SetCallback registers fn to receive every new entry; nil removes it.
func SetCallback(fn Callback) {
	mu.Lock()
	defer mu.Unlock()
	callback = fn
}

func currentCallback() Callback {
	mu.RLock()
	defer mu.RUnlock()
	return callback
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
