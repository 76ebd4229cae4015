package demux

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateHandle is returned when a handle is registered twice
	ErrDuplicateHandle = errors.New("handle already registered")
	// ErrUnknownHandle is returned when a handle is not in the registry
	ErrUnknownHandle = errors.New("handle not registered")
	// ErrWoken is returned by a Waiter whose wait was interrupted by Wakeup
	ErrWoken = errors.New("wait interrupted by wakeup")
)

// SetupError reports a failure before the loop started: a bad registration
// or a stream the spawner could not hand over.
type SetupError struct {
	Op     string
	Handle Handle
	Err    error
}

func (e *SetupError) Error() string {
	if e.Handle < 0 {
		return fmt.Sprintf("setup %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("setup %s fd %d: %v", e.Op, e.Handle, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// WaitError reports a failure of the readiness primitive itself.
type WaitError struct {
	Handles []Handle
	Err     error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("wait on %v: %v", e.Handles, e.Err)
}

func (e *WaitError) Unwrap() error { return e.Err }

// ReadError reports a read that failed with something other than end-of-stream.
type ReadError struct {
	Handle Handle
	Tag    Tag
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s (fd %d): %v", e.Tag, e.Handle, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// SinkError reports a Sink that refused a chunk.
type SinkError struct {
	Tag Tag
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Tag, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }
