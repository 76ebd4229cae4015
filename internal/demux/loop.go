package demux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// DefaultBufferSize is the size of the loop's single reusable read buffer
const DefaultBufferSize = 8192

// State of a Loop. There is no pause; a loop only ever goes from running to done.
type State int

const (
	StateRunning State = iota
	StateDone
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// StreamStats counts what the loop delivered for one tag
type StreamStats struct {
	Chunks int
	Bytes  int64
}

// Stats summarises one loop run
type Stats struct {
	Waits   int
	Streams map[Tag]StreamStats
}

// Loop drains every registered stream on the calling goroutine, routing each
// chunk to the Sink, until all streams reached end-of-stream.
type Loop struct {
	registry   *Registry
	waiter     Waiter
	sink       Sink
	bufferSize int
	logger     *slog.Logger
	state      State
	stats      Stats
}

type Option func(*Loop)

// WithWaiter replaces the default PollWaiter. The caller keeps ownership and
// closes it.
func WithWaiter(w Waiter) Option {
	return func(l *Loop) { l.waiter = w }
}

func WithBufferSize(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.bufferSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New registers all sources up front. No source can be added once the loop
// exists.
func New(sources []Source, sink Sink, opts ...Option) (*Loop, error) {
	if sink == nil {
		return nil, &SetupError{Op: "new loop", Handle: -1, Err: errors.New("nil sink")}
	}
	l := &Loop{
		registry:   NewRegistry(),
		sink:       sink,
		bufferSize: DefaultBufferSize,
		logger:     slog.Default(),
		stats:      Stats{Streams: make(map[Tag]StreamStats)},
	}
	for _, opt := range opts {
		opt(l)
	}
	for _, src := range sources {
		if err := l.registry.Register(src.Handle, src.Reader, src.Tag); err != nil {
			return nil, err
		}
		l.logger.Debug("registered stream", "fd", int(src.Handle), "tag", src.Tag)
	}
	return l, nil
}

func (l *Loop) State() State { return l.state }

// Pending returns the number of streams that have not reached end-of-stream
func (l *Loop) Pending() int { return l.registry.Len() }

// Stats returns a copy of the counters gathered so far
func (l *Loop) Stats() Stats {
	out := Stats{Waits: l.stats.Waits, Streams: make(map[Tag]StreamStats, len(l.stats.Streams))}
	for tag, st := range l.stats.Streams {
		out.Streams[tag] = st
	}
	return out
}

// Run blocks until every stream has reached end-of-stream, a read or the sink
// fails, or ctx is cancelled. Streams still open at cancellation stay open.
func (l *Loop) Run(ctx context.Context) error {
	if l.state == StateDone {
		return nil
	}
	if l.waiter == nil {
		w, err := NewPollWaiter()
		if err != nil {
			return &SetupError{Op: "new waiter", Handle: -1, Err: err}
		}
		l.waiter = w
		defer func() {
			_ = w.Close()
			l.waiter = nil
		}()
	}
	stop := context.AfterFunc(ctx, l.waiter.Wakeup)
	defer stop()

	buf := make([]byte, l.bufferSize)
	var closed []Handle
	for !l.registry.IsEmpty() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("demux stopped with %d open streams: %w", l.registry.Len(), err)
		}
		candidates := l.registry.Snapshot()
		ready, err := l.waiter.Wait(candidates)
		if errors.Is(err, ErrWoken) {
			continue
		}
		if err != nil {
			var waitErr *WaitError
			if !errors.As(err, &waitErr) {
				err = &WaitError{Handles: l.registry.Snapshot(), Err: err}
			}
			return err
		}
		l.stats.Waits++
		l.logger.Debug("streams ready", "ready", ready, "watched", len(candidates))

		closed = closed[:0]
		for _, h := range ready {
			eof, err := l.service(h, buf)
			if err != nil {
				return err
			}
			if eof {
				closed = append(closed, h)
			}
		}
		for _, h := range closed {
			if err := l.registry.Unregister(h); err != nil {
				return err
			}
			l.logger.Debug("stream reached end", "fd", int(h), "remaining", l.registry.Len())
		}
	}
	l.state = StateDone
	l.logger.Debug("all streams closed", "waits", l.stats.Waits, "streams", l.stats.Streams)
	return nil
}

// service performs one read on a ready handle and forwards what it got.
func (l *Loop) service(h Handle, buf []byte) (eof bool, err error) {
	s, err := l.registry.Get(h)
	if err != nil {
		return false, fmt.Errorf("ready handle outside the registry: %w", err)
	}
	n, readErr := s.Reader.Read(buf)
	l.logger.Debug("read", "fd", int(h), "tag", s.Tag, "bytes", n)
	if n > 0 {
		sinkErr := l.sink.Write(s.Tag, buf[:n])
		clear(buf[:n])
		if sinkErr != nil {
			return false, &SinkError{Tag: s.Tag, Err: sinkErr}
		}
		st := l.stats.Streams[s.Tag]
		st.Chunks++
		st.Bytes += int64(n)
		l.stats.Streams[s.Tag] = st
	}
	switch {
	case readErr == nil:
		return n == 0, nil
	case errors.Is(readErr, io.EOF):
		return true, nil
	default:
		return false, &ReadError{Handle: h, Tag: s.Tag, Err: readErr}
	}
}
