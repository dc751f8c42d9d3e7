package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// OutputTimeLayout formats timestamps as HH:mm:ss dd-MM-yyyy.
const OutputTimeLayout = "15:04:05 02-01-2006"

// OutputFileName returns VID_<HH:mm:ss dd-MM-yyyy>.<ext>.
func OutputFileName(now time.Time, ext string) string {
	return fmt.Sprintf("VID_%s.%s", now.Format(OutputTimeLayout), ext)
}

// NewOutputFile builds the path of the next recording in dir, creating dir
// if needed. The file itself is created by the encoder.
func NewOutputFile(dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("error creating output directory: %w", err)
	}
	return filepath.Join(dir, OutputFileName(now, "mp4")), nil
}
