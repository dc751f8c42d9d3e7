package config

import (
	"fmt"
	"strconv"

	"github.com/spf13/pflag"
)

// Each override names a CLI flag, the env suffix after MOVIECAM_ and the
// field it sets.
type override struct {
	flag  string
	env   string
	usage string
	field func(c *AppConfig) any
}

var overrides = []override{
	{"ip", "SERVER_IP", "preview server listen address", func(c *AppConfig) any { return &c.ServerIP }},
	{"port", "SERVER_PORT", "preview server port", func(c *AppConfig) any { return &c.ServerPort }},
	{"device", "DEVICE", "camera device id (N in /dev/videoN)", func(c *AppConfig) any { return &c.CameraConfig.DeviceID }},
	{"device-name", "DEVICE_NAME", "camera name, used when no device id is set", func(c *AppConfig) any { return &c.CameraConfig.DeviceName }},
	{"display", "DISPLAY_SIZE", "preview display size WxH, caps the recording size", func(c *AppConfig) any { return &c.Display }},
	{"output-dir", "OUTPUT_DIR", "directory recordings are saved to", func(c *AppConfig) any { return &c.Recording.OutputDir }},
	{"audio-device", "AUDIO_DEVICE", "ALSA capture device, empty disables audio", func(c *AppConfig) any { return &c.Recording.AudioDevice }},
	{"bitrate", "VIDEO_BITRATE", "video bitrate in bit/s", func(c *AppConfig) any { return &c.Recording.VideoBitrate }},
	{"ffmpeg", "FFMPEG", "ffmpeg binary", func(c *AppConfig) any { return &c.Recording.FFmpegBinary }},
	{"log-level", "LOG_LEVEL", "debug, info, warn or error", func(c *AppConfig) any { return &c.LogLevel }},
}

// BindFlags registers one flag per overridable field. Defaults shown in help
// come from the built-in config.
func BindFlags(fs *pflag.FlagSet) {
	def := defaultConfig()
	for _, o := range overrides {
		switch p := o.field(def).(type) {
		case *string:
			fs.String(o.flag, *p, o.usage)
		case *int:
			fs.Int(o.flag, *p, o.usage)
		}
	}
}

// ApplyEnv applies MOVIECAM_* variables. getenv is usually os.Getenv.
func ApplyEnv(c *AppConfig, getenv func(string) string) error {
	for _, o := range overrides {
		v := getenv(envPrefix + o.env)
		if v == "" {
			continue
		}
		if err := setValue(o.field(c), v); err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, o.env, err)
		}
	}
	return nil
}

// ApplyFlags applies only the flags the user set, so an unset flag never
// hides a value from the file or the environment.
func ApplyFlags(c *AppConfig, fs *pflag.FlagSet) error {
	for _, o := range overrides {
		f := fs.Lookup(o.flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := setValue(o.field(c), f.Value.String()); err != nil {
			return fmt.Errorf("--%s: %w", o.flag, err)
		}
	}
	return nil
}

func setValue(field any, value string) error {
	switch p := field.(type) {
	case *string:
		*p = value
	case *int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid number %q", value)
		}
		*p = n
	}
	return nil
}

// Resolve loads the config with precedence flags > env > file > defaults.
// An empty path uses the user config directory.
func Resolve(path string, fs *pflag.FlagSet, getenv func(string) string) (*AppConfig, error) {
	var (
		c   *AppConfig
		err error
	)
	if path == "" {
		c, err = Load()
	} else {
		c, err = LoadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(c, getenv); err != nil {
		return nil, err
	}
	if fs != nil {
		if err := ApplyFlags(c, fs); err != nil {
			return nil, err
		}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}
