package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlverezYari/moviecam/pkg/camera"
)

func noEnv(string) string { return "" }

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_VIDEOS_DIR", "/srv/videos")
	path := filepath.Join(t.TempDir(), "config.json")

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "8080", c.ServerPort)
	assert.Equal(t, "/srv/videos", c.Recording.OutputDir)
	assert.Equal(t, 10_000_000, c.Recording.VideoBitrate)
	assert.Equal(t, "/dev/video0", c.DevicePath())
	assert.Empty(t, c.CameraConfig.DeviceName)
	assert.Equal(t, path, c.Path())
	assert.NoError(t, c.Validate())
}

func TestLoadJSONKeepsDefaultsForMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server_port":"9000","camera":{"device_id":"2"}}`), 0644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "9000", c.ServerPort)
	assert.Equal(t, "localhost", c.ServerIP)
	assert.Equal(t, "/dev/video2", c.DevicePath())
	assert.Equal(t, "ffmpeg", c.Recording.FFmpegBinary)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
display = "2400x1080"

[recording]
output_dir = "/tmp/clips"
audio_device = ""
video_bitrate = 4000000
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	size, err := c.DisplaySize()
	require.NoError(t, err)
	assert.Equal(t, camera.Size{Width: 2400, Height: 1080}, size)
	assert.Equal(t, "/tmp/clips", c.Recording.OutputDir)
	assert.Equal(t, "", c.Recording.AudioDevice)
	assert.Equal(t, 4_000_000, c.Recording.VideoBitrate)
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0644))
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			c, err := LoadFile(path)
			require.NoError(t, err)
			c.ServerPort = "9100"
			c.Recording.AudioDevice = "hw:1,0"
			require.NoError(t, Save(c))

			loaded, err := LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "9100", loaded.ServerPort)
			assert.Equal(t, "hw:1,0", loaded.Recording.AudioDevice)
		})
	}
}

func TestLoadFromUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "config.json", filepath.Base(c.Path()))
	require.NoError(t, Save(c))
	assert.FileExists(t, c.Path())
}

func TestResolvePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server_port":"9000","server_ip":"0.0.0.0","log_level":"warn"}`), 0644))

	env := map[string]string{
		"MOVIECAM_SERVER_PORT":   "9001",
		"MOVIECAM_LOG_LEVEL":     "debug",
		"MOVIECAM_VIDEO_BITRATE": "2000000",
		"MOVIECAM_DEVICE_NAME":   "Desk Cam",
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--port", "9002"}))

	c, err := Resolve(path, fs, func(k string) string { return env[k] })
	require.NoError(t, err)
	// flag > env > file > default
	assert.Equal(t, "9002", c.ServerPort)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, 2_000_000, c.Recording.VideoBitrate)
	assert.Equal(t, "0.0.0.0", c.ServerIP)
	assert.Equal(t, "1920x1080", c.Display)
	assert.Equal(t, "Desk Cam", c.CameraConfig.DeviceName)
}

func TestResolveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	_, err := Resolve(path, nil, func(k string) string {
		if k == "MOVIECAM_VIDEO_BITRATE" {
			return "fast"
		}
		return ""
	})
	assert.Error(t, err)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--display", "wide", "--port", "0"}))
	_, err = Resolve(path, fs, noEnv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid size")
	assert.Contains(t, err.Error(), "invalid server port")
}

func TestParseSize(t *testing.T) {
	s, err := ParseSize(" 1280X720 ")
	require.NoError(t, err)
	assert.Equal(t, camera.Size{Width: 1280, Height: 720}, s)

	for _, bad := range []string{"", "1280", "x720", "0x720", "axb"} {
		_, err := ParseSize(bad)
		assert.Error(t, err, bad)
	}
}
