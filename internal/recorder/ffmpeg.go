package recorder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/AlverezYari/moviecam/pkg/camera"
)

// FFmpegEncoder encodes raw BGR24 frames from stdin plus ALSA audio into an
// H.264/AAC MP4 with an ffmpeg subprocess.
type FFmpegEncoder struct {
	cfg    EncoderConfig
	binary string
	logger *slog.Logger

	gracefulTimeout time.Duration // wait after closing stdin before SIGINT
	killTimeout     time.Duration // wait after SIGINT before SIGKILL

	mu       sync.Mutex
	args     []string
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	done     chan error
	lastLine string
	started  bool
}

// NewFFmpegFactory returns an EncoderFactory spawning binary (usually "ffmpeg").
func NewFFmpegFactory(binary string, logger *slog.Logger) EncoderFactory {
	return func(cfg EncoderConfig) (Encoder, error) {
		return NewFFmpegEncoder(binary, cfg, logger)
	}
}

func NewFFmpegEncoder(binary string, cfg EncoderConfig, logger *slog.Logger) (*FFmpegEncoder, error) {
	if cfg.OutputPath == "" {
		return nil, errors.New("output path is required")
	}
	if cfg.Size.Width <= 0 || cfg.Size.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %s", cfg.Size)
	}
	if binary == "" {
		binary = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegEncoder{
		cfg:             cfg,
		binary:          binary,
		logger:          logger.With("output", filepath.Base(cfg.OutputPath)),
		gracefulTimeout: 10 * time.Second,
		killTimeout:     5 * time.Second,
	}, nil
}

// BuildArgs returns the ffmpeg arguments for cfg, without the binary.
func BuildArgs(cfg EncoderConfig) []string {
	fps := cfg.FPS
	if fps <= 0 {
		fps = 30
	}
	videoBitrate := cfg.VideoBitrate
	if videoBitrate <= 0 {
		videoBitrate = DefaultVideoBitrate
	}
	audioBitrate := cfg.AudioBitrate
	if audioBitrate <= 0 {
		audioBitrate = DefaultAudioBitrate
	}

	args := []string{"-hide_banner", "-loglevel", "warning", "-y"}

	// Raw video from stdin, stamped with arrival time since capture does
	// not run at an exact rate.
	args = append(args,
		"-use_wallclock_as_timestamps", "1",
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-video_size", cfg.Size.String(),
		"-framerate", strconv.Itoa(fps),
		"-i", "pipe:0",
	)

	if cfg.AudioDevice != "" {
		args = append(args,
			"-thread_queue_size", "1024",
			"-f", "alsa", "-sample_fmt", "s16", "-ar", "48000", "-ac", "2",
			"-i", cfg.AudioDevice,
			"-map", "0:v", "-map", "1:a",
		)
	}

	args = append(args,
		"-fps_mode", "cfr", "-r", strconv.Itoa(fps),
		"-c:v", VideoCodec,
		"-pix_fmt", "yuv420p",
		"-profile:v", "high",
		"-b:v", strconv.Itoa(videoBitrate),
		"-maxrate", strconv.Itoa(videoBitrate),
		"-bufsize", strconv.Itoa(videoBitrate*2),
		"-g", strconv.Itoa(fps*2),
	)

	if cfg.AudioDevice != "" {
		args = append(args, "-c:a", AudioCodec, "-b:a", strconv.Itoa(audioBitrate), "-ar", "48000")
	}

	args = append(args, "-movflags", "+faststart", "-f", "mp4", cfg.OutputPath)
	return args
}

func (e *FFmpegEncoder) Prepare(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := exec.LookPath(e.binary); err != nil {
		return fmt.Errorf("encoder binary %q not found: %w", e.binary, err)
	}
	dir := filepath.Dir(e.cfg.OutputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.args = BuildArgs(e.cfg)
	return nil
}

func (e *FFmpegEncoder) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.args == nil {
		return ErrNotPrepared
	}
	if e.started {
		return errors.New("encoder already started")
	}

	cmd := exec.Command(e.binary, e.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start encoder: %w", err)
	}

	outputDone := make(chan struct{})
	go func() {
		e.streamOutput(stderr)
		close(outputDone)
	}()

	done := make(chan error, 1)
	go func() {
		<-outputDone
		done <- cmd.Wait()
	}()

	e.cmd = cmd
	e.stdin = stdin
	e.done = done
	e.started = true
	e.logger.Info("Encoder started", "pid", cmd.Process.Pid)
	return nil
}

func (e *FFmpegEncoder) streamOutput(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		e.logger.Debug(line, "module", "ffmpeg")
		e.mu.Lock()
		e.lastLine = line
		e.mu.Unlock()
	}
}

func (e *FFmpegEncoder) WriteFrame(f camera.Frame) error {
	e.mu.Lock()
	stdin, started := e.stdin, e.started
	e.mu.Unlock()
	if !started || stdin == nil {
		return ErrNotStarted
	}
	if f.Format != camera.FormatBGR24 {
		return fmt.Errorf("unsupported frame format %s", f.Format)
	}
	if f.Width != e.cfg.Size.Width || f.Height != e.cfg.Size.Height {
		return fmt.Errorf("frame size %dx%d does not match encoder size %s", f.Width, f.Height, e.cfg.Size)
	}
	if want := f.Width * f.Height * 3; len(f.Data) != want {
		return fmt.Errorf("frame has %d bytes, want %d", len(f.Data), want)
	}
	_, err := stdin.Write(f.Data)
	return err
}

// Stop closes stdin so ffmpeg writes the trailer, escalating to SIGINT and
// then SIGKILL if it does not exit in time.
func (e *FFmpegEncoder) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return ErrNotStarted
	}
	stdin, done, cmd := e.stdin, e.done, e.cmd
	e.stdin = nil
	e.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}

	err := e.wait(ctx, done, cmd)

	e.mu.Lock()
	e.started = false
	e.cmd = nil
	last := e.lastLine
	e.mu.Unlock()

	if err != nil {
		if last != "" {
			return fmt.Errorf("%w: %s", err, last)
		}
		return err
	}
	e.logger.Info("Encoder stopped")
	return nil
}

func (e *FFmpegEncoder) wait(ctx context.Context, done <-chan error, cmd *exec.Cmd) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	case <-time.After(e.gracefulTimeout):
	}

	e.logger.Warn("Encoder did not exit, sending interrupt")
	_ = cmd.Process.Signal(os.Interrupt)
	select {
	case err := <-done:
		return err
	case <-time.After(e.killTimeout):
	}

	e.logger.Error("Encoder did not exit after interrupt, killing")
	_ = cmd.Process.Kill()
	return <-done
}

// Release kills a running encoder. Safe to call more than once.
func (e *FFmpegEncoder) Release() error {
	e.mu.Lock()
	cmd, done, stdin := e.cmd, e.done, e.stdin
	e.cmd, e.stdin, e.args = nil, nil, nil
	started := e.started
	e.started = false
	e.mu.Unlock()

	if !started || cmd == nil {
		return nil
	}
	if stdin != nil {
		_ = stdin.Close()
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("error killing encoder: %w", err)
	}
	<-done
	return nil
}

var _ Encoder = (*FFmpegEncoder)(nil)
