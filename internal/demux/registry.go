package demux

import (
	"fmt"
	"io"
	"maps"
	"slices"
)

// Handle identifies one readable stream, normally its file descriptor.
type Handle int

// RegisteredStream pairs a handle with the reader the loop drains it through.
type RegisteredStream struct {
	Handle Handle
	Reader io.Reader
	Tag    Tag
}

// Registry owns the set of streams that have not reached end-of-stream yet.
// It is not safe for concurrent use; the loop is its only mutator.
type Registry struct {
	entries map[Handle]*RegisteredStream
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Handle]*RegisteredStream)}
}

// Register adds a stream. Registering a handle twice is a programming error
// and leaves the registry unchanged.
func (r *Registry) Register(h Handle, reader io.Reader, tag Tag) error {
	if reader == nil {
		return &SetupError{Op: "register", Handle: h, Err: fmt.Errorf("nil reader for %s", tag)}
	}
	if _, ok := r.entries[h]; ok {
		return &SetupError{Op: "register", Handle: h, Err: ErrDuplicateHandle}
	}
	r.entries[h] = &RegisteredStream{Handle: h, Reader: reader, Tag: tag}
	return nil
}

// Unregister removes a stream. Removing an absent handle signals a logic bug
// in the caller and leaves the registry unchanged.
func (r *Registry) Unregister(h Handle) error {
	if _, ok := r.entries[h]; !ok {
		return fmt.Errorf("unregister fd %d: %w", h, ErrUnknownHandle)
	}
	delete(r.entries, h)
	return nil
}

// Get looks up a registered stream.
func (r *Registry) Get(h Handle) (*RegisteredStream, error) {
	s, ok := r.entries[h]
	if !ok {
		return nil, fmt.Errorf("lookup fd %d: %w", h, ErrUnknownHandle)
	}
	return s, nil
}

func (r *Registry) Len() int { return len(r.entries) }

func (r *Registry) IsEmpty() bool { return len(r.entries) == 0 }

// Snapshot returns a fresh, ascending copy of the registered handles. The
// caller owns the slice and may hand it to a Waiter that mutates its input.
func (r *Registry) Snapshot() []Handle {
	return slices.Sorted(maps.Keys(r.entries))
}
