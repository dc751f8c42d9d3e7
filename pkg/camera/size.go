package camera

import (
	"fmt"
	"sort"
)

type Size struct {
	Width  int
	Height int
}

func (s Size) Area() int { return s.Width * s.Height }

func (s Size) IsZero() bool { return s.Width == 0 && s.Height == 0 }

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// SmartSize is a resolution normalized to long and short edge so that
// portrait and landscape sizes compare equally.
type SmartSize struct {
	Size  Size
	Long  int
	Short int
}

func NewSmartSize(width, height int) SmartSize {
	return SmartSize{
		Size:  Size{Width: width, Height: height},
		Long:  max(width, height),
		Short: min(width, height),
	}
}

func (s SmartSize) String() string {
	return fmt.Sprintf("SmartSize(%dx%d)", s.Long, s.Short)
}

// Fits reports whether s fits under limit edge by edge.
func (s SmartSize) Fits(limit SmartSize) bool {
	return s.Long <= limit.Long && s.Short <= limit.Short
}

var Size1080p = NewSmartSize(1920, 1080)

// MaxOutputSize returns the reference size used to cap output sizes for a
// display: 1080p when the display reaches 1080p on either edge, otherwise
// the display itself.
func MaxOutputSize(display Size) SmartSize {
	screen := NewSmartSize(display.Width, display.Height)
	if screen.Long >= Size1080p.Long || screen.Short >= Size1080p.Short {
		return Size1080p
	}
	return screen
}

// SelectOutputSize picks the largest candidate fitting under the cap derived
// from display.
func SelectOutputSize(display Size, candidates []Size) (Size, error) {
	return SelectOutputSizeCapped(MaxOutputSize(display), candidates)
}

// SelectOutputSizeCapped sorts candidates by area, largest first, and returns
// the first one whose long and short edges fit under limit.
func SelectOutputSizeCapped(limit SmartSize, candidates []Size) (Size, error) {
	sorted := make([]SmartSize, 0, len(candidates))
	for _, c := range candidates {
		sorted = append(sorted, NewSmartSize(c.Width, c.Height))
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Size.Area() > sorted[j].Size.Area()
	})

	for _, s := range sorted {
		if s.Fits(limit) {
			return s.Size, nil
		}
	}
	return Size{}, fmt.Errorf("%w: %d candidates, limit %s", ErrNoCompatibleSize, len(candidates), limit)
}
