package camera

import "time"

type FrameFormat int

const (
	// FormatBGR24 is packed 8-bit BGR, three bytes per pixel.
	FormatBGR24 FrameFormat = iota
	FormatJPEG
)

func (f FrameFormat) String() string {
	if f == FormatJPEG {
		return "jpeg"
	}
	return "bgr24"
}

type Frame struct {
	Width     int
	Height    int
	Format    FrameFormat
	Data      []byte
	Timestamp time.Time
}
