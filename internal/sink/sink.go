// Package sink holds the presentation side of pipedemux: demux.Sink
// implementations that colour, label, route or record chunks.
package sink

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"pipedemux/internal/demux"
	"pipedemux/pkg/outputlog"
)

// ErrUnknownTag is returned by sinks that route by tag and got one they do not know
var ErrUnknownTag = errors.New("unknown stream tag")

// Flusher is implemented by sinks that hold back data, such as an unterminated line.
type Flusher interface {
	Flush() error
}

// Flush flushes s if it holds anything back.
func Flush(s demux.Sink) error {
	if f, ok := s.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// tagColors: green for stdout, red for stderr.
var tagColors = map[demux.Tag]lipgloss.Color{
	demux.TagStdout: lipgloss.Color("2"),
	demux.TagStderr: lipgloss.Color("1"),
}

// Color writes every chunk to one writer, coloured by origin. Whether escape
// codes are emitted at all is decided by the renderer's colour profile.
type Color struct {
	w      io.Writer
	styles map[demux.Tag]lipgloss.Style
	out    []byte
}

var _ demux.Sink = (*Color)(nil)

// NewColor returns a Color sink. A nil renderer detects the profile from w.
func NewColor(w io.Writer, r *lipgloss.Renderer) *Color {
	if r == nil {
		r = lipgloss.NewRenderer(w)
	}
	styles := make(map[demux.Tag]lipgloss.Style, len(tagColors))
	for tag, c := range tagColors {
		styles[tag] = r.NewStyle().Foreground(c).TabWidth(lipgloss.NoTabConversion)
	}
	return &Color{w: w, styles: styles}
}

func (c *Color) Write(tag demux.Tag, data []byte) error {
	style, ok := c.styles[tag]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
	// Render one line at a time: lipgloss pads multi-line blocks to equal width.
	c.out = c.out[:0]
	for len(data) > 0 {
		line, rest, found := bytes.Cut(data, []byte{'\n'})
		if len(line) > 0 {
			c.out = append(c.out, style.Render(string(line))...)
		}
		if found {
			c.out = append(c.out, '\n')
		}
		data = rest
	}
	_, err := c.w.Write(c.out)
	return err
}

// Passthrough writes each tag to its own writer untouched, like running the
// command directly.
type Passthrough struct {
	writers map[demux.Tag]io.Writer
}

func NewPassthrough(stdout, stderr io.Writer) *Passthrough {
	return &Passthrough{writers: map[demux.Tag]io.Writer{
		demux.TagStdout: stdout,
		demux.TagStderr: stderr,
	}}
}

func (p *Passthrough) Write(tag demux.Tag, data []byte) error {
	w, ok := p.writers[tag]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
	_, err := w.Write(data)
	return err
}

// OutputLog records every chunk as one outputlog frame
type OutputLog struct {
	w *outputlog.Writer
}

func NewOutputLog(w io.Writer) *OutputLog {
	return &OutputLog{w: outputlog.NewWriter(w)}
}

func (o *OutputLog) Write(tag demux.Tag, data []byte) error {
	return o.w.Write(string(tag), data)
}

// Tee hands every chunk to all sinks in order and stops at the first error.
type Tee []demux.Sink

func (t Tee) Write(tag demux.Tag, data []byte) error {
	for _, s := range t {
		if err := s.Write(tag, data); err != nil {
			return err
		}
	}
	return nil
}

func (t Tee) Flush() error {
	var errs []error
	for _, s := range t {
		errs = append(errs, Flush(s))
	}
	return errors.Join(errs...)
}
