package outputlog

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// TimestampFormat is used when writing frames
const TimestampFormat = "2006-01-02T15:04:05.000000000Z"

// ErrInvalidStream is returned for stream names the format cannot carry
var ErrInvalidStream = errors.New("invalid stream name")

var streamPattern = regexp.MustCompile(`^[a-zA-Z0-9_./-]{1,64}$`)

// Chunk is one frame: the bytes a stream produced in one go
type Chunk struct {
	Stream    string
	Timestamp time.Time // UTC
	Data      []byte
}

// ValidStream reports whether name can be used as a stream name
func ValidStream(name string) error {
	if !streamPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidStream, name)
	}
	return nil
}

// AppendChunk appends the frame for chunk to dst.
func AppendChunk(dst []byte, chunk Chunk) []byte {
	dst = append(dst, chunk.Stream...)
	dst = append(dst, ' ')
	dst = chunk.Timestamp.UTC().AppendFormat(dst, TimestampFormat)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(len(chunk.Data)), 10)
	dst = append(dst, ':', ' ')
	dst = append(dst, chunk.Data...)
	return append(dst, '\n')
}

// FormatChunk returns the frame for chunk
func FormatChunk(chunk Chunk) []byte {
	return AppendChunk(nil, chunk)
}
