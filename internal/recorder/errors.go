package recorder

import (
	"errors"
	"fmt"
)

var (
	ErrBusy          = errors.New("recorder already holds an encoder")
	ErrNotConfigured = errors.New("recorder is not configured")
	ErrNotPrepared   = errors.New("recorder is not prepared")
	ErrNotRecording  = errors.New("recorder is not recording")
	ErrNotStarted    = errors.New("encoder is not started")
)

// ResourceError reports an encoder prepare, start or stop failure.
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("recorder %s failed: %v", e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }
