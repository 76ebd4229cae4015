package spawn

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pipedemux/internal/demux"
)

type collected struct {
	out, err bytes.Buffer
	order    []demux.Tag
}

func (c *collected) Write(tag demux.Tag, data []byte) error {
	c.order = append(c.order, tag)
	switch tag {
	case demux.TagStdout:
		c.out.Write(data)
	case demux.TagStderr:
		c.err.Write(data)
	}
	return nil
}

// runShell spawns sh -c script, drains it and returns what came out plus the exit status.
func runShell(t *testing.T, script string, pty bool) (*collected, ExitStatus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	proc, err := Start(ctx, Params{Path: "sh", Args: []string{"-c", script}, PTY: pty})
	require.NoError(t, err)
	t.Cleanup(func() { _ = proc.Close() })

	sources := proc.Sources()
	require.Len(t, sources, 2)
	require.Equal(t, demux.TagStdout, sources[0].Tag)
	require.Equal(t, demux.TagStderr, sources[1].Tag)

	sink := &collected{}
	loop, err := demux.New(sources, sink)
	require.NoError(t, err)
	require.NoError(t, loop.Run(ctx))

	status, err := proc.Wait()
	require.NoError(t, err)
	return sink, status
}

func TestStart_StdoutAndStderrAreSeparated(t *testing.T) {
	sink, status := runShell(t, "echo out; echo err >&2; echo more", false)

	require.Equal(t, "out\nmore\n", sink.out.String())
	require.Equal(t, "err\n", sink.err.String())
	require.Equal(t, ExitStatus{Code: 0}, status)
}

func TestStart_NoOutputAtAll(t *testing.T) {
	sink, status := runShell(t, "true", false)
	require.Empty(t, sink.order)
	require.Zero(t, status.Code)
}

func TestStart_ExitCodeIsReported(t *testing.T) {
	_, status := runShell(t, "echo failing >&2; exit 3", false)
	require.Equal(t, 3, status.Code)
	require.Empty(t, status.Signal)
}

func TestStart_SignalIsReported(t *testing.T) {
	_, status := runShell(t, "kill -TERM $$", false)
	require.Equal(t, 128+15, status.Code)
	require.Equal(t, "terminated", status.Signal)
}

func TestStart_LargeOutput(t *testing.T) {
	// More than a pipe buffer on each stream, so the child blocks unless both are drained.
	sink, status := runShell(t, "i=0; while [ $i -lt 3000 ]; do echo line$i; echo err$i >&2; i=$((i+1)); done", false)
	require.Zero(t, status.Code)

	outLines := strings.Split(strings.TrimSuffix(sink.out.String(), "\n"), "\n")
	errLines := strings.Split(strings.TrimSuffix(sink.err.String(), "\n"), "\n")
	require.Len(t, outLines, 3000)
	require.Len(t, errLines, 3000)
	require.Equal(t, "line0", outLines[0])
	require.Equal(t, "line2999", outLines[2999])
	require.Equal(t, "err2999", errLines[2999])
}

func TestStart_PTY(t *testing.T) {
	sink, status := runShell(t, "if [ -t 1 ]; then echo tty; else echo notty; fi; [ -t 2 ] || echo pipe >&2", true)
	require.Zero(t, status.Code)
	// The line discipline turns \n into \r\n.
	require.Equal(t, "tty\r\n", sink.out.String())
	require.Equal(t, "pipe\n", sink.err.String())
}

func TestStart_Stdin(t *testing.T) {
	ctx := context.Background()
	proc, err := Start(ctx, Params{Path: "cat", Stdin: strings.NewReader("fed through stdin")})
	require.NoError(t, err)
	defer proc.Close()

	sink := &collected{}
	loop, err := demux.New(proc.Sources(), sink)
	require.NoError(t, err)
	require.NoError(t, loop.Run(ctx))
	_, err = proc.Wait()
	require.NoError(t, err)
	require.Equal(t, "fed through stdin", sink.out.String())
}

func TestStart_WorkingDir(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	proc, err := Start(ctx, Params{Path: "pwd", Dir: dir})
	require.NoError(t, err)
	defer proc.Close()

	sink := &collected{}
	loop, err := demux.New(proc.Sources(), sink)
	require.NoError(t, err)
	require.NoError(t, loop.Run(ctx))
	_, err = proc.Wait()
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(strings.TrimSpace(sink.out.String()))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestStart_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{"empty path", Params{}},
		{"missing command", Params{Path: "definitely-not-a-command-pipedemux"}},
		{"missing dir", Params{Path: "sh", Dir: "/does/not/exist"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			proc, err := Start(context.Background(), tc.params)
			require.Nil(t, proc)
			var setupErr *demux.SetupError
			require.True(t, errors.As(err, &setupErr), "got %v", err)
		})
	}
}

func TestProcess_CloseKillsRunningChild(t *testing.T) {
	proc, err := Start(context.Background(), Params{Path: "sleep", Args: []string{"30"}})
	require.NoError(t, err)
	require.Positive(t, proc.Pid())

	done := make(chan error, 1)
	go func() { done <- proc.Close() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	status, err := proc.Wait()
	require.NoError(t, err)
	require.Equal(t, "killed", status.Signal)
}

func TestProcess_SignalReachesTrap(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	script := "trap 'echo caught; exit 7' TERM; echo ready; while :; do sleep 0.05; done"
	proc, err := Start(ctx, Params{Path: "sh", Args: []string{"-c", script}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = proc.Close() })
	require.False(t, proc.OwnSession())

	sources := proc.Sources()
	ready := make([]byte, len("ready\n"))
	_, err = io.ReadFull(sources[0].Reader, ready)
	require.NoError(t, err)
	require.Equal(t, "ready\n", string(ready))

	require.NoError(t, proc.Signal(syscall.SIGTERM))

	sink := &collected{}
	loop, err := demux.New(sources, sink)
	require.NoError(t, err)
	require.NoError(t, loop.Run(ctx))
	require.Equal(t, "caught\n", sink.out.String())

	status, err := proc.Wait()
	require.NoError(t, err)
	require.Equal(t, ExitStatus{Code: 7}, status)

	// Too late is fine.
	require.NoError(t, proc.Signal(syscall.SIGTERM))
}

func TestProcess_PTYChildOwnsItsSession(t *testing.T) {
	proc, err := Start(context.Background(), Params{Path: "sleep", Args: []string{"30"}, PTY: true})
	require.NoError(t, err)
	require.True(t, proc.OwnSession())
	require.NoError(t, proc.Close())
}

func TestParams_Defaults(t *testing.T) {
	p := Params{Path: "sh"}
	require.NoError(t, p.Validate())
	require.Equal(t, uint16(24), p.PTYSize.Rows)
	require.Equal(t, uint16(80), p.PTYSize.Cols)
}
