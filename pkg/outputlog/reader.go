package outputlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// maxChunk bounds the length field so a corrupt log cannot make us allocate wildly
const maxChunk = 64 << 20

// Reader parses frames from an io.Reader
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next chunk. It returns io.EOF at a clean end of input and
// io.ErrUnexpectedEOF (wrapped) when the last frame is cut short.
func (o *Reader) Next() (Chunk, error) {
	var chunk Chunk

	stream, err := o.r.ReadString(' ')
	if err != nil {
		if errors.Is(err, io.EOF) && stream == "" {
			return chunk, io.EOF
		}
		return chunk, fmt.Errorf("reading stream: %w", unexpected(err))
	}
	chunk.Stream = strings.TrimSuffix(stream, " ")
	if err := ValidStream(chunk.Stream); err != nil {
		return chunk, err
	}

	ts, err := o.r.ReadString(' ')
	if err != nil {
		return chunk, fmt.Errorf("reading timestamp: %w", unexpected(err))
	}
	chunk.Timestamp, err = time.Parse(time.RFC3339Nano, strings.TrimSuffix(ts, " "))
	if err != nil {
		return chunk, fmt.Errorf("parsing timestamp: %w", err)
	}

	length, err := o.r.ReadString(':')
	if err != nil {
		return chunk, fmt.Errorf("reading length: %w", unexpected(err))
	}
	n, err := strconv.Atoi(strings.TrimSuffix(length, ":"))
	if err != nil || n < 0 || n > maxChunk {
		return chunk, fmt.Errorf("parsing length %q: invalid", length)
	}

	if b, err := o.r.ReadByte(); err != nil {
		return chunk, fmt.Errorf("reading space after colon: %w", unexpected(err))
	} else if b != ' ' {
		return chunk, fmt.Errorf("expected space after colon, got %q", b)
	}

	chunk.Data = make([]byte, n)
	if _, err := io.ReadFull(o.r, chunk.Data); err != nil {
		return chunk, fmt.Errorf("reading content (%d bytes): %w", n, unexpected(err))
	}

	if b, err := o.r.ReadByte(); err != nil {
		return chunk, fmt.Errorf("reading final newline: %w", unexpected(err))
	} else if b != '\n' {
		return chunk, fmt.Errorf("expected newline separator, got %q", b)
	}
	return chunk, nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// All reads everything and concatenates the data per stream. Timestamps get ignored.
func (o *Reader) All() (map[string][]byte, error) {
	result := make(map[string][]byte)
	for {
		chunk, err := o.Next()
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		if err != nil {
			return result, err
		}
		result[chunk.Stream] = append(result[chunk.Stream], chunk.Data...)
	}
}

// StreamReader returns an io.Reader over the data of one stream, skipping all others.
// It consumes the Reader.
func (o *Reader) StreamReader(stream string) io.Reader {
	return &streamReader{src: o, stream: stream}
}

type streamReader struct {
	src     *Reader
	stream  string
	pending []byte
}

func (sr *streamReader) Read(p []byte) (int, error) {
	for len(sr.pending) == 0 {
		chunk, err := sr.src.Next()
		if err != nil {
			return 0, err
		}
		if chunk.Stream == sr.stream {
			sr.pending = chunk.Data
		}
	}
	n := copy(p, sr.pending)
	sr.pending = sr.pending[n:]
	return n, nil
}
