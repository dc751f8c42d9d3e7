// internal/config/config.go

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/AlverezYari/moviecam/internal/recorder"
	"github.com/AlverezYari/moviecam/pkg/camera"
)

const (
	appName   = "moviecam"
	envPrefix = "MOVIECAM_"
)

// CameraConfig selects the capture device: by DeviceID when set, else by
// DeviceName as listed by `moviecam devices`, else the first device found.
type CameraConfig struct {
	DeviceName string `json:"device_name" toml:"device_name"`
	DeviceID   string `json:"device_id" toml:"device_id"`
}

type RecordingConfig struct {
	OutputDir string `json:"output_dir" toml:"output_dir"`
	// AudioDevice is an ALSA device; empty records without sound.
	AudioDevice  string `json:"audio_device" toml:"audio_device"`
	VideoBitrate int    `json:"video_bitrate" toml:"video_bitrate"`
	FFmpegBinary string `json:"ffmpeg_binary" toml:"ffmpeg_binary"`
}

type AppConfig struct {
	ServerPort string `json:"server_port" toml:"server_port"`
	ServerIP   string `json:"server_ip" toml:"server_ip"`
	// Display is the preview display size as WxH; it caps the output size.
	Display      string          `json:"display" toml:"display"`
	LogLevel     string          `json:"log_level" toml:"log_level"`
	CameraConfig CameraConfig    `json:"camera" toml:"camera"`
	Recording    RecordingConfig `json:"recording" toml:"recording"`

	path string
}

// Default config
func defaultConfig() *AppConfig {
	return &AppConfig{
		ServerIP:   "localhost",
		ServerPort: "8080",
		Display:    "1920x1080",
		LogLevel:   "info",
		Recording: RecordingConfig{
			OutputDir:    defaultVideoDir(),
			AudioDevice:  "default",
			VideoBitrate: recorder.DefaultVideoBitrate,
			FFmpegBinary: "ffmpeg",
		},
	}
}

// Path returns the file the config was loaded from or will be saved to.
func (c *AppConfig) Path() string { return c.path }

// DisplaySize parses Display.
func (c *AppConfig) DisplaySize() (camera.Size, error) {
	return ParseSize(c.Display)
}

// DevicePath returns the V4L2 node of the configured camera.
func (c *AppConfig) DevicePath() string {
	id := c.CameraConfig.DeviceID
	if id == "" {
		id = "0"
	}
	return "/dev/video" + id
}

func (c *AppConfig) Addr() string {
	return c.ServerIP + ":" + c.ServerPort
}

func (c *AppConfig) Validate() error {
	var errs []error
	if p, err := strconv.Atoi(c.ServerPort); err != nil || p <= 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port %q", c.ServerPort))
	}
	if _, err := c.DisplaySize(); err != nil {
		errs = append(errs, err)
	}
	if c.Recording.OutputDir == "" {
		errs = append(errs, errors.New("recording output directory is required"))
	}
	if c.Recording.VideoBitrate <= 0 {
		errs = append(errs, fmt.Errorf("invalid video bitrate %d", c.Recording.VideoBitrate))
	}
	return errors.Join(errs...)
}

// ParseSize parses "WxH".
func ParseSize(s string) (camera.Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return camera.Size{}, fmt.Errorf("invalid size %q, want WxH", s)
	}
	width, err1 := strconv.Atoi(w)
	height, err2 := strconv.Atoi(h)
	if err1 != nil || err2 != nil || width <= 0 || height <= 0 {
		return camera.Size{}, fmt.Errorf("invalid size %q, want WxH", s)
	}
	return camera.Size{Width: width, Height: height}, nil
}

func defaultVideoDir() string {
	if dir := os.Getenv("XDG_VIDEOS_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "Videos"
	}
	return filepath.Join(home, "Videos")
}

// Dir returns the config directory, creating it if needed.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("unable to determine user config directory: %w", err)
	}
	dir := filepath.Join(base, appName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("error creating config directory: %w", err)
	}
	return dir, nil
}

// getConfigPath prefers an existing config.toml over config.json.
func getConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	tomlPath := filepath.Join(dir, "config.toml")
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from the user config directory.
func Load() (*AppConfig, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, fmt.Errorf("error getting config path: %w", err)
	}
	return LoadFile(configPath)
}

// LoadFile reads path, JSON or TOML by extension, over the defaults. A
// missing file yields the defaults.
func LoadFile(path string) (*AppConfig, error) {
	config := defaultConfig()
	config.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if isTOML(path) {
		err = toml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("error unmarshalling config file: %w", err)
	}
	return config, nil
}

// Save writes the config back to its file.
func Save(config *AppConfig) error {
	configPath := config.path
	if configPath == "" {
		p, err := getConfigPath()
		if err != nil {
			return fmt.Errorf("error getting config path: %w", err)
		}
		configPath = p
	}

	var data []byte
	var err error
	if isTOML(configPath) {
		data, err = toml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("error marshalling config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	config.path = configPath
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
