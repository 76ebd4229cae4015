package outputlog

import (
	"io"
	"sync"
	"time"
)

// Writer records chunks to an io.Writer, one frame per call.
// It is safe for concurrent use; frames never interleave.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	buf []byte
	now func() time.Time
}

// NewWriter returns a Writer that stamps chunks with the current time
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, now: time.Now}
}

// Write records data as one chunk of stream. Empty data writes nothing.
// data is not retained.
func (o *Writer) Write(stream string, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return o.writeChunk(Chunk{Stream: stream, Timestamp: o.now(), Data: data})
}

func (o *Writer) writeChunk(chunk Chunk) error {
	if err := ValidStream(chunk.Stream); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buf = AppendChunk(o.buf[:0], chunk)
	_, err := o.w.Write(o.buf)
	return err
}
