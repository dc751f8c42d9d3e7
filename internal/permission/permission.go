// Package permission checks the device and filesystem access recording needs.
package permission

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

type Kind int

const (
	Camera Kind = iota
	Microphone
	Storage
)

func (k Kind) String() string {
	switch k {
	case Camera:
		return "camera"
	case Microphone:
		return "microphone"
	default:
		return "storage"
	}
}

// Hint tells the user how to grant the permission.
func (k Kind) Hint() string {
	switch k {
	case Camera:
		return "add your user to the 'video' group"
	case Microphone:
		return "add your user to the 'audio' group"
	default:
		return "choose a writable output directory"
	}
}

type Requirement struct {
	Kind Kind
	Path string
	Mode uint32 // unix.R_OK, unix.W_OK, ...
}

type Denied struct {
	Requirement
	Err error
}

func (d Denied) String() string {
	return fmt.Sprintf("%s: %s (%v)", d.Kind, d.Path, d.Err)
}

type Result struct {
	Denied []Denied
}

func (r Result) Granted() bool { return len(r.Denied) == 0 }

// Summary lists the denied permissions on one line each.
func (r Result) Summary() string {
	lines := make([]string, 0, len(r.Denied))
	for _, d := range r.Denied {
		lines = append(lines, fmt.Sprintf("%s access to %s denied: %s", d.Kind, d.Path, d.Kind.Hint()))
	}
	return strings.Join(lines, "\n")
}

const soundDir = "/dev/snd"

// Requirements lists what a recording session needs. Audio is skipped when
// audioDevice is empty.
func Requirements(cameraPath, audioDevice, outputDir string) []Requirement {
	reqs := []Requirement{{Kind: Camera, Path: cameraPath, Mode: unix.R_OK | unix.W_OK}}
	if audioDevice != "" {
		reqs = append(reqs, Requirement{Kind: Microphone, Path: soundDir, Mode: unix.R_OK | unix.X_OK})
	}
	reqs = append(reqs, Requirement{Kind: Storage, Path: outputDir, Mode: unix.W_OK | unix.X_OK})
	return reqs
}

type Checker struct {
	access func(path string, mode uint32) error
}

func NewChecker() *Checker {
	return &Checker{access: unix.Access}
}

func (c *Checker) Check(reqs []Requirement) Result {
	var res Result
	for _, req := range reqs {
		path := req.Path
		if req.Kind == Storage {
			// A missing output directory is created later; what matters is
			// whether its nearest existing parent is writable.
			path = existingAncestor(path)
		}
		if err := c.access(path, req.Mode); err != nil {
			res.Denied = append(res.Denied, Denied{Requirement: req, Err: err})
		}
	}
	return res
}

func existingAncestor(path string) string {
	path = filepath.Clean(path)
	for {
		_, err := os.Stat(path)
		if err == nil || !errors.Is(err, fs.ErrNotExist) {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}
