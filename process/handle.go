package process

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// ErrInputClosed is returned by Handle writes after CloseInput.
var ErrInputClosed = errors.New("process: stdin is closed")

// Handle is the live process of a streaming invocation. All methods are safe
// for concurrent use.
type Handle struct {
	cmd  *exec.Cmd
	pid  int
	done chan struct{}

	mu    sync.Mutex
	stdin io.WriteCloser

	exitCode int
	err      error
}

func newHandle(cmd *exec.Cmd, stdin io.WriteCloser) *Handle {
	return &Handle{
		cmd:      cmd,
		pid:      cmd.Process.Pid,
		done:     make(chan struct{}),
		stdin:    stdin,
		exitCode: -1,
	}
}

// PID returns the OS process id.
func (h *Handle) PID() int { return h.pid }

// Write writes p to the process stdin.
func (h *Handle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stdin == nil {
		return 0, ErrInputClosed
	}
	return h.stdin.Write(p)
}

// WriteLine writes line followed by a newline.
func (h *Handle) WriteLine(line string) error {
	_, err := h.Write([]byte(line + "\n"))
	return err
}

// CloseInput closes stdin. Closing twice is a no-op.
func (h *Handle) CloseInput() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stdin == nil {
		return nil
	}
	err := h.stdin.Close()
	h.stdin = nil
	return err
}

// Signal sends sig to the process. It returns os.ErrProcessDone once the
// process has exited.
func (h *Handle) Signal(sig os.Signal) error {
	if h.exited() {
		return os.ErrProcessDone
	}
	return h.cmd.Process.Signal(sig)
}

// Terminate sends SIGTERM to the whole process group.
func (h *Handle) Terminate() error { return h.signalGroup(syscall.SIGTERM) }

// Kill sends SIGKILL to the whole process group.
func (h *Handle) Kill() error { return h.signalGroup(syscall.SIGKILL) }

func (h *Handle) signalGroup(sig syscall.Signal) error {
	if h.exited() {
		return os.ErrProcessDone
	}
	return syscall.Kill(-h.pid, sig)
}

// Done is closed after the exit (or error) event has been delivered.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the process exits or ctx is done. It returns the exit
// code, or -1 with the wait error when the process could not be observed to
// completion. A non-zero exit is not an error.
func (h *Handle) Wait(ctx context.Context) (int, error) {
	select {
	case <-h.done:
		return h.exitCode, h.err
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

func (h *Handle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Handle) finish(exitCode int, err error) {
	h.exitCode = exitCode
	h.err = err
	h.mu.Lock()
	h.stdin = nil
	h.mu.Unlock()
	close(h.done)
}
