package demux

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sys/unix"
)

// Waiter blocks until at least one candidate handle is readable or has hit
// end-of-stream.
//
// Implementations may treat the candidates slice as scratch space, so callers
// pass a fresh copy on every call.
type Waiter interface {
	// Wait returns the ready subset of candidates in ascending order.
	// It returns ErrWoken if Wakeup was called before or during the wait.
	Wait(candidates []Handle) ([]Handle, error)
	// Wakeup makes a pending or the next Wait return ErrWoken.
	// It is safe to call from any goroutine.
	Wakeup()
	Close() error
}

// PollWaiter implements Waiter with poll(2). A self-pipe is watched next to
// the candidates so that Wakeup can interrupt an otherwise unbounded wait.
type PollWaiter struct {
	mutex   sync.Mutex
	closed  bool
	pipeFDs [2]int
	fds     []unix.PollFd
}

var _ Waiter = (*PollWaiter)(nil)

func NewPollWaiter() (*PollWaiter, error) {
	var pipeFDs [2]int
	if err := unix.Pipe(pipeFDs[:]); err != nil {
		return nil, fmt.Errorf("failed to create wakeup pipe: %w", err)
	}
	for _, fd := range pipeFDs {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(pipeFDs[0])
			unix.Close(pipeFDs[1])
			return nil, fmt.Errorf("failed to set wakeup pipe non-blocking: %w", err)
		}
	}
	return &PollWaiter{pipeFDs: pipeFDs}, nil
}

func (w *PollWaiter) Wait(candidates []Handle) ([]Handle, error) {
	if len(candidates) == 0 {
		return nil, &WaitError{Err: errors.New("no handles to wait on")}
	}
	w.mutex.Lock()
	if w.closed {
		w.mutex.Unlock()
		return nil, &WaitError{Handles: candidates, Err: unix.EBADF}
	}
	wakeFD := w.pipeFDs[0]
	w.mutex.Unlock()

	fds := append(w.fds[:0], unix.PollFd{Fd: int32(wakeFD), Events: unix.POLLIN})
	for _, h := range candidates {
		fds = append(fds, unix.PollFd{Fd: int32(h), Events: unix.POLLIN})
	}
	w.fds = fds

	for {
		_, err := unix.Poll(fds, -1)
		if err == nil {
			break
		}
		if err == unix.EINTR {
			continue
		}
		return nil, &WaitError{Handles: candidates, Err: err}
	}

	if fds[0].Revents&unix.POLLIN != 0 {
		w.drain(wakeFD)
		return nil, ErrWoken
	}
	var ready []Handle
	for _, pfd := range fds[1:] {
		if pfd.Revents&unix.POLLNVAL != 0 {
			return nil, &WaitError{Handles: candidates, Err: fmt.Errorf("fd %d: %w", pfd.Fd, unix.EBADF)}
		}
		// POLLHUP without POLLIN is how a drained pipe reports a closed writer.
		if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			ready = append(ready, Handle(pfd.Fd))
		}
	}
	slices.Sort(ready)
	return ready, nil
}

func (w *PollWaiter) drain(fd int) {
	var buffer [16]byte
	for {
		n, err := unix.Read(fd, buffer[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (w *PollWaiter) Wakeup() {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.closed {
		return
	}
	// EAGAIN means a wakeup is already pending.
	unix.Write(w.pipeFDs[1], []byte{0})
}

func (w *PollWaiter) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := unix.Close(w.pipeFDs[0])
	if err2 := unix.Close(w.pipeFDs[1]); err == nil {
		err = err2
	}
	w.pipeFDs = [2]int{-1, -1}
	return err
}
