package recorder

import (
	"sync"
	"sync/atomic"

	"github.com/AlverezYari/moviecam/pkg/camera"
)

// FrameSink consumes raw frames.
type FrameSink interface {
	WriteFrame(f camera.Frame) error
}

// PersistentSurface is the recording target handed to capture sessions. It
// outlives encoders: frames go to whichever encoder is attached and are
// dropped while none is.
type PersistentSurface struct {
	size camera.Size

	mu      sync.RWMutex
	sink    FrameSink
	written atomic.Uint64
	dropped atomic.Uint64
}

func NewPersistentSurface(size camera.Size) *PersistentSurface {
	return &PersistentSurface{size: size}
}

func (s *PersistentSurface) Name() string { return "recorder" }

func (s *PersistentSurface) Format() camera.FrameFormat { return camera.FormatBGR24 }

func (s *PersistentSurface) Size() camera.Size { return s.size }

func (s *PersistentSurface) WriteFrame(f camera.Frame) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sink == nil {
		s.dropped.Add(1)
		return nil
	}
	if err := s.sink.WriteFrame(f); err != nil {
		return err
	}
	s.written.Add(1)
	return nil
}

func (s *PersistentSurface) attach(sink FrameSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// detach waits for an in-flight write to finish before returning.
func (s *PersistentSurface) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = nil
}

// Stats returns frames written to an encoder and frames dropped.
func (s *PersistentSurface) Stats() (written, dropped uint64) {
	return s.written.Load(), s.dropped.Load()
}

var _ camera.Surface = (*PersistentSurface)(nil)
