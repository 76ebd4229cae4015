package demux

import (
	"io"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type call struct {
	Tag  Tag
	Data string
}

// recordingSink remembers every call. It copies the data since the loop
// reuses its buffer.
type recordingSink struct {
	mu    sync.Mutex
	calls []call
	hook  func(tag Tag, data []byte) error
}

func (s *recordingSink) Write(tag Tag, data []byte) error {
	s.mu.Lock()
	s.calls = append(s.calls, call{Tag: tag, Data: string(data)})
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		return hook(tag, data)
	}
	return nil
}

func (s *recordingSink) Calls() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...)
}

func (s *recordingSink) ByTag(tag Tag) []string {
	var out []string
	for _, c := range s.Calls() {
		if c.Tag == tag {
			out = append(out, c.Data)
		}
	}
	return out
}

// newPipe returns a pipe whose ends are closed at test cleanup (closing twice is harmless).
func newPipe(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = r.Close()
		_ = w.Close()
	})
	return r, w
}

func pipeSource(t *testing.T, r *os.File, tag Tag) Source {
	t.Helper()
	src, err := FileSource(r, tag)
	require.NoError(t, err)
	return src
}

// scriptedWaiter answers every Wait through fn and records a copy of what it was asked.
type scriptedWaiter struct {
	fn    func(call int, candidates []Handle) ([]Handle, error)
	asked [][]Handle
}

func (w *scriptedWaiter) Wait(candidates []Handle) ([]Handle, error) {
	w.asked = append(w.asked, append([]Handle(nil), candidates...))
	return w.fn(len(w.asked)-1, candidates)
}

func (w *scriptedWaiter) Wakeup() {}

func (w *scriptedWaiter) Close() error { return nil }

// allReady reports every candidate as ready, scribbling over the input to
// prove the loop does not depend on it afterwards.
func allReady(_ int, candidates []Handle) ([]Handle, error) {
	ready := append([]Handle(nil), candidates...)
	for i := range candidates {
		candidates[i] = -1
	}
	return ready, nil
}

// chunkReader yields its chunks in order, then end-of-stream.
type chunkReader struct {
	chunks   [][]byte
	final    error // returned once the chunks run out; nil means a (0, nil) read
	sizes    []int
	dirty    bool
	withData bool // return the last chunk together with final
}

func (r *chunkReader) Read(p []byte) (int, error) {
	r.sizes = append(r.sizes, len(p))
	for _, b := range p {
		if b != 0 {
			r.dirty = true
		}
	}
	if len(r.chunks) == 0 {
		return 0, r.final
	}
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	if r.withData && len(r.chunks) == 0 {
		return n, r.final
	}
	return n, nil
}

var _ io.Reader = (*chunkReader)(nil)
