package sink

import (
	"bytes"
	"io"

	"github.com/charmbracelet/lipgloss"

	"pipedemux/internal/demux"
)

// Label prefixes every line with the name of the stream it came from:
//
//	stdout: building...
//	stderr: warning: unused variable
//
// A chunk that ends mid-line is held back per tag until the rest of the line
// arrives, so lines of different tags never mix. Flush writes what is held.
// A lone '\r' ends a line too, so progress bars redraw as they arrive, and a
// held line longer than MaxLineLength is written out split.
type Label struct {
	w        io.Writer
	prefixes map[demux.Tag]string
	partial  map[demux.Tag][]byte
	order    []demux.Tag
	out      []byte
}

var _ Flusher = (*Label)(nil)

// MaxLineLength is the most a Label holds back for one tag
const MaxLineLength = 4096

// NewLabel returns a Label sink. A nil renderer detects the colour profile from w;
// only the prefixes are coloured.
func NewLabel(w io.Writer, r *lipgloss.Renderer) *Label {
	if r == nil {
		r = lipgloss.NewRenderer(w)
	}
	l := &Label{
		w:        w,
		prefixes: make(map[demux.Tag]string),
		partial:  make(map[demux.Tag][]byte),
	}
	for _, tag := range []demux.Tag{demux.TagStdout, demux.TagStderr} {
		l.prefixes[tag] = r.NewStyle().Foreground(tagColors[tag]).Render(string(tag)+":") + " "
	}
	return l
}

func (l *Label) prefix(tag demux.Tag) string {
	if p, ok := l.prefixes[tag]; ok {
		return p
	}
	return string(tag) + ": "
}

func (l *Label) Write(tag demux.Tag, data []byte) error {
	l.out = l.out[:0]
	// A held '\r' only ends the line if no '\n' follows it.
	if p := l.partial[tag]; len(p) > 0 && p[len(p)-1] == '\r' && len(data) > 0 && data[0] != '\n' {
		l.emit(tag, nil)
	}
	for len(data) > 0 {
		i := lineEnd(data)
		if i < 0 {
			if _, held := l.partial[tag]; !held {
				l.order = append(l.order, tag)
			}
			l.partial[tag] = append(l.partial[tag], data...)
			if len(l.partial[tag]) >= MaxLineLength {
				l.emit(tag, []byte{'\n'})
			}
			break
		}
		l.emit(tag, data[:i+1])
		data = data[i+1:]
	}
	if len(l.out) == 0 {
		return nil
	}
	_, err := l.w.Write(l.out)
	return err
}

// emit appends one prefixed line to the output: what is held for tag, then rest
func (l *Label) emit(tag demux.Tag, rest []byte) {
	l.out = append(l.out, l.prefix(tag)...)
	l.out = append(l.out, l.take(tag)...)
	l.out = append(l.out, rest...)
}

// lineEnd returns the index of the byte ending the first line of data, or -1.
// A '\r' as the last byte does not count yet: a '\n' may follow in the next chunk.
func lineEnd(data []byte) int {
	i := bytes.IndexAny(data, "\r\n")
	if i < 0 || data[i] == '\n' {
		return i
	}
	switch {
	case i+1 == len(data):
		return -1
	case data[i+1] == '\n':
		return i + 1
	default:
		return i
	}
}

// take returns and forgets the partial line held for tag
func (l *Label) take(tag demux.Tag) []byte {
	p, ok := l.partial[tag]
	if !ok {
		return nil
	}
	delete(l.partial, tag)
	for i, t := range l.order {
		if t == tag {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return p
}

// Flush terminates and writes every held partial line, oldest first.
func (l *Label) Flush() error {
	l.out = l.out[:0]
	for _, tag := range append([]demux.Tag(nil), l.order...) {
		l.emit(tag, []byte{'\n'})
	}
	if len(l.out) == 0 {
		return nil
	}
	_, err := l.w.Write(l.out)
	return err
}
