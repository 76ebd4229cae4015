package sink

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"pipedemux/internal/demux"
)

func TestLabel_CompleteLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewLabel(&buf, plainRenderer(&buf))

	require.NoError(t, l.Write(demux.TagStdout, []byte("one\ntwo\n")))
	require.NoError(t, l.Write(demux.TagStderr, []byte("oops\n")))
	require.Equal(t, "stdout: one\nstdout: two\nstderr: oops\n", buf.String())
}

func TestLabel_PartialLinesDoNotMix(t *testing.T) {
	var buf bytes.Buffer
	l := NewLabel(&buf, plainRenderer(&buf))

	require.NoError(t, l.Write(demux.TagStdout, []byte("progr")))
	require.NoError(t, l.Write(demux.TagStderr, []byte("warn")))
	require.NoError(t, l.Write(demux.TagStderr, []byte("ing\n")))
	require.NoError(t, l.Write(demux.TagStdout, []byte("ess\ndone")))

	require.Equal(t, "stderr: warning\nstdout: progress\n", buf.String())

	require.NoError(t, l.Flush())
	require.Equal(t, "stderr: warning\nstdout: progress\nstdout: done\n", buf.String())

	// Nothing left to flush.
	require.NoError(t, l.Flush())
	require.Equal(t, "stderr: warning\nstdout: progress\nstdout: done\n", buf.String())
}

func TestLabel_CopiesHeldData(t *testing.T) {
	var buf bytes.Buffer
	l := NewLabel(&buf, plainRenderer(&buf))

	chunk := []byte("abc")
	require.NoError(t, l.Write(demux.TagStdout, chunk))
	copy(chunk, "XYZ")
	require.NoError(t, l.Write(demux.TagStdout, []byte("\n")))
	require.Equal(t, "stdout: abc\n", buf.String())
}

func TestLabel_FlushOldestFirst(t *testing.T) {
	var buf bytes.Buffer
	l := NewLabel(&buf, plainRenderer(&buf))

	require.NoError(t, l.Write(demux.TagStderr, []byte("e")))
	require.NoError(t, l.Write(demux.TagStdout, []byte("o")))
	require.NoError(t, l.Flush())
	require.Equal(t, "stderr: e\nstdout: o\n", buf.String())
}

func TestLabel_UnknownTagGetsPlainPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := NewLabel(&buf, ansiRenderer(&buf))
	require.NoError(t, l.Write("stdin", []byte("typed\n")))
	require.Equal(t, "stdin: typed\n", buf.String())
}

func TestLabel_ColouredPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := NewLabel(&buf, ansiRenderer(&buf))
	require.NoError(t, l.Write(demux.TagStderr, []byte("x\n")))
	require.Equal(t, "\x1b[31mstderr:\x1b[0m x\n", buf.String())
}

func TestLabel_CarriageReturnEndsALine(t *testing.T) {
	var buf bytes.Buffer
	l := NewLabel(&buf, plainRenderer(&buf))

	require.NoError(t, l.Write(demux.TagStderr, []byte("10%\r20%\r30")))
	require.Equal(t, "stderr: 10%\rstderr: 20%\r", buf.String())

	require.NoError(t, l.Write(demux.TagStderr, []byte("%\n")))
	require.Equal(t, "stderr: 10%\rstderr: 20%\rstderr: 30%\n", buf.String())
}

func TestLabel_CRLFStaysOneLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewLabel(&buf, plainRenderer(&buf))

	require.NoError(t, l.Write(demux.TagStdout, []byte("one\r\ntwo\r")))
	require.Equal(t, "stdout: one\r\n", buf.String())

	// The held '\r' is resolved by the next chunk.
	require.NoError(t, l.Write(demux.TagStdout, []byte("\nthree\r")))
	require.Equal(t, "stdout: one\r\nstdout: two\r\n", buf.String())

	require.NoError(t, l.Write(demux.TagStdout, []byte("four\n")))
	require.Equal(t, "stdout: one\r\nstdout: two\r\nstdout: three\rstdout: four\n", buf.String())
}

func TestLabel_LongLineIsSplit(t *testing.T) {
	var buf bytes.Buffer
	l := NewLabel(&buf, plainRenderer(&buf))

	chunk := bytes.Repeat([]byte("x"), 1000)
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Write(demux.TagStdout, chunk))
	}
	require.Zero(t, buf.Len())

	require.NoError(t, l.Write(demux.TagStdout, chunk))
	require.Equal(t, "stdout: "+strings.Repeat("x", 5000)+"\n", buf.String())

	// Nothing is held any more.
	require.NoError(t, l.Flush())
	require.Equal(t, "stdout: "+strings.Repeat("x", 5000)+"\n", buf.String())
}
