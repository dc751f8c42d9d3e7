package server

import (
	"fmt"

	"github.com/AlverezYari/moviecam/pkg/camera"
)

// PreviewSurface is the preview capture target: JPEG frames at the preview
// size, broadcast to browser clients.
type PreviewSurface struct {
	server *Server
	size   camera.Size
}

func (s *Server) PreviewSurface(size camera.Size) *PreviewSurface {
	return &PreviewSurface{server: s, size: size}
}

func (p *PreviewSurface) Name() string { return "preview" }

func (p *PreviewSurface) Format() camera.FrameFormat { return camera.FormatJPEG }

func (p *PreviewSurface) Size() camera.Size { return p.size }

func (p *PreviewSurface) WriteFrame(f camera.Frame) error {
	if f.Format != camera.FormatJPEG {
		return fmt.Errorf("preview expects jpeg frames, got %s", f.Format)
	}
	p.server.BroadcastFrame(f.Data)
	return nil
}

var _ camera.Surface = (*PreviewSurface)(nil)
