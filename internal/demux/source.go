package demux

import (
	"errors"
	"io"
	"os"
)

// Source is what a spawner hands to the loop: one readable stream, the
// handle its readiness is watched on, and its origin.
type Source struct {
	Handle Handle
	Reader io.Reader
	Tag    Tag
}

// FileSource wraps an *os.File. The descriptor is taken through SyscallConn
// so the file keeps its non-blocking mode, unlike with (*os.File).Fd.
func FileSource(f *os.File, tag Tag) (Source, error) {
	return FileSourceReader(f, f, tag)
}

// FileSourceReader is FileSource with a custom reader in front of f, for
// streams whose reads need translating (a pty reporting EIO at hang-up).
func FileSourceReader(f *os.File, reader io.Reader, tag Tag) (Source, error) {
	rawConn, err := f.SyscallConn()
	if err != nil {
		return Source{}, &SetupError{Op: "acquire " + string(tag), Handle: -1, Err: err}
	}
	var fd uintptr
	if err := rawConn.Control(func(u uintptr) { fd = u }); err != nil {
		return Source{}, &SetupError{Op: "acquire " + string(tag), Handle: -1, Err: err}
	}
	if reader == nil {
		return Source{}, &SetupError{Op: "acquire " + string(tag), Handle: Handle(fd), Err: errors.New("nil reader")}
	}
	return Source{Handle: Handle(fd), Reader: reader, Tag: tag}, nil
}
