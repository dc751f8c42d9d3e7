package permission

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestRequirements(t *testing.T) {
	reqs := Requirements("/dev/video0", "default", "/home/u/Videos")
	require.Len(t, reqs, 3)
	assert.Equal(t, Camera, reqs[0].Kind)
	assert.Equal(t, Microphone, reqs[1].Kind)
	assert.Equal(t, "/dev/snd", reqs[1].Path)
	assert.Equal(t, Storage, reqs[2].Kind)

	reqs = Requirements("/dev/video0", "", "/home/u/Videos")
	require.Len(t, reqs, 2)
	assert.Equal(t, Storage, reqs[1].Kind)
}

func TestCheckReportsDenied(t *testing.T) {
	var checked []string
	c := &Checker{access: func(path string, mode uint32) error {
		checked = append(checked, path)
		if path == "/dev/video0" {
			return unix.EACCES
		}
		return nil
	}}

	out := filepath.Join(t.TempDir(), "a", "b")
	res := c.Check(Requirements("/dev/video0", "default", out))

	assert.False(t, res.Granted())
	require.Len(t, res.Denied, 1)
	assert.Equal(t, Camera, res.Denied[0].Kind)
	assert.ErrorIs(t, res.Denied[0].Err, unix.EACCES)
	assert.Contains(t, res.Summary(), "camera access to /dev/video0 denied: add your user to the 'video' group")

	// The missing output directory is checked through its existing parent.
	assert.Equal(t, filepath.Dir(filepath.Dir(out)), checked[2])
}

func TestCheckGranted(t *testing.T) {
	c := &Checker{access: func(string, uint32) error { return nil }}
	res := c.Check(Requirements("/dev/video0", "", t.TempDir()))
	assert.True(t, res.Granted())
	assert.Empty(t, res.Summary())
}

func TestCheckRealTempDir(t *testing.T) {
	res := NewChecker().Check([]Requirement{{Kind: Storage, Path: filepath.Join(t.TempDir(), "new"), Mode: unix.W_OK}})
	assert.True(t, res.Granted())
}
