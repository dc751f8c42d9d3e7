// Package recorder drives the encoder that turns recording-surface frames
// into an MP4 file.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AlverezYari/moviecam/pkg/camera"
)

// Indexer makes finished recordings visible to file browsers.
type Indexer interface {
	Scan(ctx context.Context, path string) error
}

type Config struct {
	Size         camera.Size
	FPS          int
	VideoBitrate int
	AudioBitrate int
	AudioDevice  string
}

// Result describes a finalized recording.
type Result struct {
	Path      string
	StartedAt time.Time
	Duration  time.Duration
}

type state int

const (
	stateIdle state = iota
	stateConfigured
	statePrepared
	stateRecording
	stateStopping
)

func (s state) String() string {
	switch s {
	case stateConfigured:
		return "configured"
	case statePrepared:
		return "prepared"
	case stateRecording:
		return "recording"
	case stateStopping:
		return "stopping"
	default:
		return "idle"
	}
}

// Recorder owns at most one encoder at a time. An encoder is acquired by
// Configure and given back by Release; Stop releases on its own.
type Recorder struct {
	cfg     Config
	surface *PersistentSurface
	factory EncoderFactory
	indexer Indexer
	logger  *slog.Logger

	mu        sync.Mutex
	state     state
	enc       Encoder
	output    string
	startedAt time.Time

	// OnFinalized runs after a recording is finalized and released.
	OnFinalized func(Result)
	// OnFailed runs when finalizing fails; the encoder is released already.
	OnFailed func(Result, error)
}

func New(cfg Config, factory EncoderFactory, indexer Indexer, logger *slog.Logger) *Recorder {
	if cfg.VideoBitrate == 0 {
		cfg.VideoBitrate = DefaultVideoBitrate
	}
	if cfg.AudioBitrate == 0 {
		cfg.AudioBitrate = DefaultAudioBitrate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		cfg:     cfg,
		surface: NewPersistentSurface(cfg.Size),
		factory: factory,
		indexer: indexer,
		logger:  logger,
	}
}

// Surface returns the persistent input surface capture sessions record into.
func (r *Recorder) Surface() *PersistentSurface { return r.surface }

// OutputPath returns the file of the current or last recording.
func (r *Recorder) OutputPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.output
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateRecording
}

// Configure creates the encoder for outputPath. The previous encoder must
// have been released.
func (r *Recorder) Configure(outputPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateIdle {
		return fmt.Errorf("%w (state %s)", ErrBusy, r.state)
	}

	enc, err := r.factory(EncoderConfig{
		OutputPath:   outputPath,
		Size:         r.cfg.Size,
		FPS:          r.cfg.FPS,
		VideoBitrate: r.cfg.VideoBitrate,
		AudioBitrate: r.cfg.AudioBitrate,
		AudioDevice:  r.cfg.AudioDevice,
	})
	if err != nil {
		return &ResourceError{Op: "configure", Err: err}
	}

	r.enc = enc
	r.output = outputPath
	r.state = stateConfigured
	r.logger.Debug("Encoder configured", "output", outputPath, "size", r.cfg.Size, "fps", r.cfg.FPS)
	return nil
}

// Prepare readies the encoder. On failure the encoder is released.
func (r *Recorder) Prepare(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateConfigured {
		return fmt.Errorf("%w (state %s)", ErrNotConfigured, r.state)
	}
	if err := r.enc.Prepare(ctx); err != nil {
		r.releaseLocked()
		return &ResourceError{Op: "prepare", Err: err}
	}
	r.state = statePrepared
	return nil
}

// Start begins encoding and routes the persistent surface into the
// encoder. On failure the encoder is released.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != statePrepared {
		return fmt.Errorf("%w (state %s)", ErrNotPrepared, r.state)
	}
	if err := r.enc.Start(ctx); err != nil {
		r.releaseLocked()
		return &ResourceError{Op: "start", Err: err}
	}
	r.surface.attach(r.enc)
	r.startedAt = time.Now()
	r.state = stateRecording
	r.logger.Info("Recording started", "output", r.output)
	return nil
}

// Stop finalizes the output file, releases the encoder and hands the file
// to the indexer. The encoder is released even when stopping fails. The
// recorder is not locked while the encoder finishes the file.
func (r *Recorder) Stop(ctx context.Context) (Result, error) {
	r.mu.Lock()
	if r.state != stateRecording {
		st := r.state
		r.mu.Unlock()
		return Result{}, fmt.Errorf("%w (state %s)", ErrNotRecording, st)
	}
	r.surface.detach()
	r.state = stateStopping
	enc := r.enc
	res := Result{Path: r.output, StartedAt: r.startedAt}
	r.mu.Unlock()

	stopErr := enc.Stop(ctx)
	res.Duration = time.Since(res.StartedAt)

	r.mu.Lock()
	r.releaseLocked()
	onFinalized, onFailed := r.OnFinalized, r.OnFailed
	r.mu.Unlock()

	if stopErr != nil {
		err := &ResourceError{Op: "stop", Err: stopErr}
		if onFailed != nil {
			onFailed(res, err)
		}
		return res, err
	}

	r.logger.Info("Recording finalized", "output", res.Path, "duration", res.Duration.Round(time.Millisecond))
	r.notify(res.Path)
	if onFinalized != nil {
		onFinalized(res)
	}
	return res, nil
}

// Release gives the encoder back whatever state it is in. Errors are logged
// and swallowed. While Stop is finishing a file it releases the encoder
// itself, so Release does nothing.
func (r *Recorder) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateStopping {
		return
	}
	r.releaseLocked()
}

func (r *Recorder) releaseLocked() {
	if r.enc == nil {
		r.state = stateIdle
		return
	}
	r.surface.detach()
	if err := r.enc.Release(); err != nil {
		r.logger.Warn("Error releasing encoder", "output", r.output, "error", err)
	}
	r.enc = nil
	r.state = stateIdle
}

// notify is fire-and-forget.
func (r *Recorder) notify(path string) {
	if r.indexer == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.indexer.Scan(ctx, path); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("Media index scan failed", "path", path, "error", err)
		}
	}()
}
