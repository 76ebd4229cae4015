package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"pipedemux/internal/config"
	"pipedemux/internal/demux"
	"pipedemux/internal/sink"
	"pipedemux/internal/spawn"
	"pipedemux/pkg/outputlog"
)

// ioStreams are the terminal the demultiplexed output goes to
type ioStreams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// exitCodeError carries the child's exit status up to main
type exitCodeError struct {
	status spawn.ExitStatus
}

func (e *exitCodeError) Error() string {
	if e.status.Signal != "" {
		return fmt.Sprintf("child killed by signal %s", e.status.Signal)
	}
	return fmt.Sprintf("child exited with code %d", e.status.Code)
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// newRenderer returns the renderer for out according to the colour choice.
// In auto mode colour is only used when out is a terminal.
func newRenderer(out io.Writer, choice string) *lipgloss.Renderer {
	r := lipgloss.NewRenderer(out)
	switch choice {
	case config.ColorAlways:
		r.SetColorProfile(termenv.ANSI)
	case config.ColorNever:
		r.SetColorProfile(termenv.Ascii)
	default:
		f, ok := out.(*os.File)
		if !ok || !term.IsTerminal(int(f.Fd())) {
			r.SetColorProfile(termenv.Ascii)
		}
	}
	return r
}

// newSink returns the presentation sink for cfg.Mode
func newSink(cfg config.Config, streams ioStreams) (demux.Sink, error) {
	switch cfg.Mode {
	case config.ModeColor:
		return sink.NewColor(streams.Out, newRenderer(streams.Out, cfg.Color)), nil
	case config.ModeLabel:
		return sink.NewLabel(streams.Out, newRenderer(streams.Out, cfg.Color)), nil
	case config.ModePlain:
		return sink.NewPassthrough(streams.Out, streams.Err), nil
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

// execute runs the command in args, demultiplexes its output into the sink
// selected by cfg and returns how the child ended.
//
// The first signal received on signals is passed on to the child and the
// output keeps being drained, so whatever the child prints while shutting
// down is shown and its exit status is returned. A second signal kills it.
func execute(ctx context.Context, cfg config.Config, dir string, args []string, streams ioStreams, signals <-chan os.Signal) (spawn.ExitStatus, error) {
	present, err := newSink(cfg, streams)
	if err != nil {
		return spawn.ExitStatus{}, err
	}
	out := present
	if cfg.OutputLog != "" {
		f, err := os.Create(cfg.OutputLog)
		if err != nil {
			return spawn.ExitStatus{}, fmt.Errorf("failed to create output log: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = sink.Tee{present, sink.NewOutputLog(f)}
	}

	ctx, teardown := context.WithCancel(ctx)
	defer teardown()

	proc, err := spawn.Start(ctx, spawn.Params{
		Path:  args[0],
		Args:  args[1:],
		Dir:   dir,
		Stdin: streams.In,
		PTY:   cfg.PTY,
	})
	if err != nil {
		return spawn.ExitStatus{}, err
	}
	defer func() { _ = proc.Close() }()

	loop, err := demux.New(proc.Sources(), out,
		demux.WithBufferSize(cfg.BufferSize),
		demux.WithLogger(slog.Default()),
	)
	if err != nil {
		return spawn.ExitStatus{}, err
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		forwardSignals(proc, signals, done, teardown)
	}()
	runErr := loop.Run(ctx)
	close(done)
	wg.Wait()

	if err := errors.Join(runErr, sink.Flush(out)); err != nil {
		return spawn.ExitStatus{}, err
	}
	// The streams may have closed because the child was killed.
	if err := ctx.Err(); err != nil {
		return spawn.ExitStatus{}, fmt.Errorf("child torn down: %w", err)
	}
	return proc.Wait()
}

// forwardSignals passes the first signal on to proc and calls teardown on the
// second. It returns when done is closed.
//
// A SIGINT from the terminal already reaches a child in our process group;
// it is only forwarded to a child that leads its own session.
func forwardSignals(proc *spawn.Process, signals <-chan os.Signal, done <-chan struct{}, teardown context.CancelFunc) {
	forwarded := false
	for {
		select {
		case <-done:
			return
		case sig := <-signals:
			if forwarded {
				slog.Warn("second signal, killing child", "signal", sig, "pid", proc.Pid())
				teardown()
				return
			}
			forwarded = true
			if sig == os.Interrupt && !proc.OwnSession() {
				slog.Debug("child got the interrupt from the terminal", "pid", proc.Pid())
				continue
			}
			slog.Debug("forwarding signal", "signal", sig, "pid", proc.Pid())
			if err := proc.Signal(sig); err != nil {
				slog.Warn("failed to forward signal", "signal", sig, "error", err)
			}
		}
	}
}

// replay reads a recorded output log. With a stream name the raw bytes of
// that stream are copied to raw; otherwise every chunk goes through out.
func replay(r io.Reader, stream string, out demux.Sink, raw io.Writer) error {
	records := outputlog.NewReader(r)
	if stream != "" {
		if _, err := io.Copy(raw, records.StreamReader(stream)); err != nil {
			return fmt.Errorf("failed to replay stream %s: %w", stream, err)
		}
		return nil
	}
	for {
		chunk, err := records.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to replay: %w", err)
		}
		if err := out.Write(demux.Tag(chunk.Stream), chunk.Data); err != nil {
			return &demux.SinkError{Tag: demux.Tag(chunk.Stream), Err: err}
		}
	}
	return sink.Flush(out)
}
