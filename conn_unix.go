//go:build !windows

package portapty

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	ptylib "github.com/creack/pty"
	"github.com/hashicorp/go-multierror"
	"github.com/olebedev/emitter"
	"golang.org/x/sys/unix"

	"github.com/tomlm/portapty/metrics"
)

// killGracePeriod is how long hangup handlers get between SIGHUP and
// the SIGKILL escalation.
const killGracePeriod = 50 * time.Millisecond

// unixConn owns the controller side of the pty and the child pid.
//
// mu guards the disposed flag and serializes Resize against Close. It
// is deliberately not held across blocking reads or writes: closing
// the controller fd is what unblocks them.
type unixConn struct {
	id  string
	pid int
	cmd *exec.Cmd

	mu       sync.RWMutex
	ptmx     *os.File
	disposed bool

	events *emitter.Emitter
	logger *slog.Logger
	met    *metrics.Provider

	exitOnce    sync.Once
	exited      chan struct{}
	watchFailed chan struct{}
	exitCode    int

	closeOnce sync.Once
}

func (c *unixConn) ID() string { return c.id }
func (c *unixConn) Pid() int   { return c.pid }

func (c *unixConn) Events() *emitter.Emitter { return c.events }

func (c *unixConn) Reader() io.Reader { return ptyReader{c} }
func (c *unixConn) Writer() io.Writer { return ptyWriter{c} }

// snapshot returns the controller file unless the connection has been
// disposed.
func (c *unixConn) snapshot() (*os.File, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ptmx, !c.disposed
}

type ptyReader struct{ c *unixConn }

func (r ptyReader) Read(p []byte) (int, error) {
	f, ok := r.c.snapshot()
	if !ok {
		return 0, io.EOF
	}
	n, err := f.Read(p)
	return n, ptyReadError(err)
}

// The Linux kernel reports EIO on a controller read once the follower
// side is gone; surface that as a normal end of stream. A concurrent
// Close has the same effect through the closed-file error.
func ptyReadError(err error) error {
	if err == nil {
		return nil
	}
	if pathErr, ok := err.(*os.PathError); ok && pathErr.Err == syscall.EIO {
		return io.EOF
	}
	if errors.Is(err, os.ErrClosed) {
		return io.EOF
	}
	return err
}

type ptyWriter struct{ c *unixConn }

func (w ptyWriter) Write(p []byte) (int, error) {
	f, ok := w.c.snapshot()
	if !ok {
		return 0, ErrConnDisposed
	}
	return f.Write(p)
}

func (c *unixConn) Resize(cols, rows uint16) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.disposed {
		return ErrConnDisposed
	}
	if err := ptylib.Setsize(c.ptmx, &ptylib.Winsize{Rows: rows, Cols: cols}); err != nil {
		return &ResizeError{OSError: err}
	}
	return nil
}

// Kill hangs up the foreground process group first so shells get to
// run their SIGHUP handlers, then escalates to SIGKILL for the group
// and the leader. The negative pid is what reaches children the shell
// spawned; signalling the leader alone leaks them.
func (c *unixConn) Kill() error {
	c.mu.RLock()
	disposed := c.disposed
	c.mu.RUnlock()
	if disposed {
		return ErrConnDisposed
	}

	_ = unix.Kill(-c.pid, unix.SIGHUP)
	time.Sleep(killGracePeriod)

	var result error
	if err := unix.Kill(-c.pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		result = multierror.Append(result, err)
	}
	if err := unix.Kill(c.pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		result = multierror.Append(result, err)
	}
	return result
}

// Signal delivers an arbitrary signal to the child, the generic
// counterpart to Kill's fixed escalation.
func (c *unixConn) Signal(sig syscall.Signal) error {
	c.mu.RLock()
	disposed := c.disposed
	c.mu.RUnlock()
	if disposed {
		return ErrConnDisposed
	}
	return unix.Kill(c.pid, sig)
}

func (c *unixConn) WaitForExit(timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-c.exited:
			return true
		case <-c.watchFailed:
			return false
		}
	}
	select {
	case <-c.exited:
		return true
	case <-c.watchFailed:
		return false
	case <-time.After(timeout):
		return false
	}
}

func (c *unixConn) ExitCode() (int, bool) {
	select {
	case <-c.exited:
		return c.exitCode, true
	default:
		return 0, false
	}
}

// watch reaps the child and delivers the exit event. Errors mean the
// child went away in a way we cannot observe; the watcher just stops.
func (c *unixConn) watch() {
	code, err := waitChild(c.cmd)
	if err != nil {
		c.logger.Debug("exit watcher stopped", "id", c.id, "pid", c.pid, "err", err)
		close(c.watchFailed)
		return
	}
	c.exitOnce.Do(func() {
		c.exitCode = code
		close(c.exited)

		c.mu.RLock()
		disposed := c.disposed
		c.mu.RUnlock()
		if !disposed {
			c.logger.Debug("child exited", "id", c.id, "pid", c.pid, "code", code)
			<-c.events.Emit(EventExited, code)
		}
	})
}

// Close disposes the connection: the watcher's event delivery is cut
// off first, then the streams and the controller fd go away. A live
// child is not waited on; closing the controller hangs up its terminal
// and the group exits on its own.
func (c *unixConn) Close() error {
	var result error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.disposed = true
		ptmx := c.ptmx
		c.mu.Unlock()

		if err := ptmx.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		c.met.ConnClosed()
		c.logger.Debug("connection disposed", "id", c.id, "pid", c.pid)
	})
	return result
}
