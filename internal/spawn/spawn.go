package spawn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"pipedemux/internal/demux"
)

// ExitStatus is how the child ended
type ExitStatus struct {
	// Code is the exit code; 128+N when the child was killed by signal N,
	// the way shells report it.
	Code   int
	Signal string
}

// Process is a started child whose stdout and stderr are ready to be demultiplexed.
type Process struct {
	cmd        *exec.Cmd
	ownSession bool
	sources    []demux.Source
	readers    []*os.File
	closeOnce  sync.Once
	waitOnce   sync.Once
	status     ExitStatus
	waitErr    error
}

// Start launches the child described by p. The parent's copies of the write
// ends are closed before Start returns, so the read ends report end-of-stream
// as soon as the child (and anything it forked) is gone.
func Start(ctx context.Context, p Params) (*Process, error) {
	if err := p.Validate(); err != nil {
		return nil, &demux.SetupError{Op: "spawn", Handle: -1, Err: err}
	}

	cmd := exec.CommandContext(ctx, p.Path, p.Args...)
	cmd.Dir = p.Dir
	cmd.Env = p.Env
	cmd.Stdin = p.Stdin

	var opened []*os.File
	fail := func(op string, err error) (*Process, error) {
		for _, f := range opened {
			_ = f.Close()
		}
		return nil, &demux.SetupError{Op: op, Handle: -1, Err: err}
	}

	var stdoutR, stdoutW *os.File
	var err error
	if p.PTY {
		stdoutR, stdoutW, err = pty.Open()
		if err != nil {
			return fail("open pty", err)
		}
		opened = append(opened, stdoutR, stdoutW)
		if err := pty.Setsize(stdoutR, &p.PTYSize); err != nil {
			return fail("size pty", err)
		}
		// The child leads a new session with the pty (its fd 1) as controlling terminal.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true, Ctty: 1}
	} else {
		stdoutR, stdoutW, err = os.Pipe()
		if err != nil {
			return fail("create stdout pipe", err)
		}
		opened = append(opened, stdoutR, stdoutW)
	}

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		return fail("create stderr pipe", err)
	}
	opened = append(opened, stderrR, stderrW)

	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		return fail("start "+p.Path, err)
	}
	_ = stdoutW.Close()
	_ = stderrW.Close()

	var reader io.Reader = stdoutR
	if p.PTY {
		reader = ptyReader{stdoutR}
	}
	out, err := demux.FileSourceReader(stdoutR, reader, demux.TagStdout)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fail("acquire stdout", err)
	}
	errSrc, err := demux.FileSource(stderrR, demux.TagStderr)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fail("acquire stderr", err)
	}

	slog.Debug("spawned process", "path", p.Path, "args", p.Args, "pid", cmd.Process.Pid, "pty", p.PTY)
	return &Process{
		cmd:        cmd,
		ownSession: p.PTY,
		sources:    []demux.Source{out, errSrc},
		readers:    []*os.File{stdoutR, stderrR},
	}, nil
}

// Sources returns stdout then stderr
func (p *Process) Sources() []demux.Source {
	return append([]demux.Source(nil), p.sources...)
}

func (p *Process) Pid() int { return p.cmd.Process.Pid }

// OwnSession reports whether the child leads its own session (pty mode), out
// of reach of the signals a terminal sends to its foreground process group.
func (p *Process) OwnSession() bool { return p.ownSession }

// Signal sends sig to the child. A child that already exited is not an error.
func (p *Process) Signal(sig os.Signal) error {
	err := p.cmd.Process.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to signal %d: %w", p.cmd.Process.Pid, err)
	}
	return nil
}

// Wait reaps the child and releases the read ends. Call it once the demux
// loop is done; it reports the exit status even for a non-zero exit.
func (p *Process) Wait() (ExitStatus, error) {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		p.closeReaders()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			p.waitErr = fmt.Errorf("failed to wait for %s: %w", p.cmd.Path, err)
			return
		}
		p.status = exitStatus(p.cmd.ProcessState)
		slog.Debug("process exited", "pid", p.cmd.Process.Pid, "code", p.status.Code, "signal", p.status.Signal)
	})
	return p.status, p.waitErr
}

// Close tears everything down: a still running child is killed and reaped.
func (p *Process) Close() error {
	if p.cmd.ProcessState == nil {
		_ = p.cmd.Process.Kill()
	}
	p.closeReaders()
	_, err := p.Wait()
	return err
}

func (p *Process) closeReaders() {
	p.closeOnce.Do(func() {
		for _, f := range p.readers {
			_ = f.Close()
		}
	})
}

func exitStatus(state *os.ProcessState) ExitStatus {
	if state == nil {
		return ExitStatus{Code: 1}
	}
	status := ExitStatus{Code: state.ExitCode()}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Code = 128 + int(ws.Signal())
		status.Signal = ws.Signal().String()
	}
	return status
}

// ptyReader reports the EIO a pty master returns once the slave side is
// closed as a clean end-of-stream.
type ptyReader struct {
	f *os.File
}

func (r ptyReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if err != nil && errors.Is(err, unix.EIO) {
		return n, io.EOF
	}
	return n, err
}
