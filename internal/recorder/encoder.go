package recorder

import (
	"context"

	"github.com/AlverezYari/moviecam/pkg/camera"
)

const (
	DefaultVideoBitrate = 10_000_000
	DefaultAudioBitrate = 128_000
	VideoCodec          = "libx264"
	AudioCodec          = "aac"
)

// EncoderConfig holds the fixed encoding parameters of one recording.
type EncoderConfig struct {
	OutputPath   string
	Size         camera.Size
	FPS          int
	VideoBitrate int
	AudioBitrate int
	// AudioDevice is an ALSA device name such as "default" or "hw:1,0".
	// Empty disables audio.
	AudioDevice string
}

// Encoder is a single-use audio/video encoder writing one file. Start must
// follow Prepare, and Release must be called once the encoder is no longer
// needed whatever happened before.
type Encoder interface {
	FrameSink
	Prepare(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Release() error
}

type EncoderFactory func(cfg EncoderConfig) (Encoder, error)
