//go:build windows

package portapty

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/olebedev/emitter"
	"golang.org/x/sys/windows"

	"github.com/tomlm/portapty/metrics"
)

// disposeState tracks how far teardown has progressed. The order is
// load-bearing: the pseudo console must go first so conhost flushes
// and shuts down, the pipes next so pending I/O ends in EOF rather
// than a broken pipe, and the job handle strictly last because
// KILL_ON_JOB_CLOSE is what reaps surviving grandchildren.
type disposeState int

const (
	stateRunning disposeState = iota
	statePseudoConsoleClosed
	statePipesClosed
	stateProcessHandlesClosed
	stateJobClosed
	stateDisposed
)

// windowsConn owns the local pipe ends, the pseudo console, the
// process and thread handles, and the job object.
type windowsConn struct {
	id  string
	pid int

	hpc     windows.Handle
	inWrite windows.Handle
	outRead windows.Handle
	process windows.Handle
	thread  windows.Handle
	job     windows.Handle

	mu       sync.RWMutex
	state    disposeState
	disposed bool

	events *emitter.Emitter
	logger *slog.Logger
	met    *metrics.Provider

	exitOnce sync.Once
	exited   chan struct{}
	exitCode int
}

func (c *windowsConn) ID() string { return c.id }
func (c *windowsConn) Pid() int   { return c.pid }

func (c *windowsConn) Events() *emitter.Emitter { return c.events }

func (c *windowsConn) Reader() io.Reader { return pipeReader{c} }
func (c *windowsConn) Writer() io.Writer { return pipeWriter{c} }

// Reads and writes go through the raw handles synchronously and
// unbuffered; anything buffered at this layer adds latency the
// interactive session can feel, and Go's async pipe layer does not get
// along with anonymous pipe handles.

type pipeReader struct{ c *windowsConn }

func (r pipeReader) Read(p []byte) (int, error) {
	r.c.mu.RLock()
	disposed := r.c.disposed
	h := r.c.outRead
	r.c.mu.RUnlock()
	if disposed {
		return 0, io.EOF
	}

	var n uint32
	err := windows.ReadFile(h, p, &n, nil)
	if err != nil {
		if err == windows.ERROR_BROKEN_PIPE || err == windows.ERROR_INVALID_HANDLE {
			return int(n), io.EOF
		}
		return int(n), err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return int(n), nil
}

type pipeWriter struct{ c *windowsConn }

func (w pipeWriter) Write(p []byte) (int, error) {
	w.c.mu.RLock()
	disposed := w.c.disposed
	h := w.c.inWrite
	w.c.mu.RUnlock()
	if disposed {
		return 0, ErrConnDisposed
	}

	var n uint32
	if err := windows.WriteFile(h, p, &n, nil); err != nil {
		return int(n), err
	}
	return int(n), nil
}

func (c *windowsConn) Resize(cols, rows uint16) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.disposed {
		return ErrConnDisposed
	}
	size := windows.Coord{X: int16(cols), Y: int16(rows)}
	if err := windows.ResizePseudoConsole(c.hpc, size); err != nil {
		return &PseudoConsoleError{HResult: hresultOf(err), Op: "ResizePseudoConsole"}
	}
	return nil
}

// Kill terminates the leader; anything it spawned stays bound to the
// job and dies when the job handle closes on disposal.
func (c *windowsConn) Kill() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.disposed {
		return ErrConnDisposed
	}

	select {
	case <-c.exited:
		return nil
	default:
	}
	return windows.TerminateProcess(c.process, 1)
}

func (c *windowsConn) WaitForExit(timeout time.Duration) bool {
	c.mu.RLock()
	disposed := c.disposed
	h := c.process
	c.mu.RUnlock()

	if disposed {
		select {
		case <-c.exited:
			return true
		default:
			return false
		}
	}

	ms := uint32(windows.INFINITE)
	if timeout > 0 {
		ms = uint32(timeout.Milliseconds())
	}
	event, err := windows.WaitForSingleObject(h, ms)
	return err == nil && event == windows.WAIT_OBJECT_0
}

func (c *windowsConn) ExitCode() (int, bool) {
	select {
	case <-c.exited:
		return c.exitCode, true
	default:
		return 0, false
	}
}

func (c *windowsConn) watch() {
	event, err := windows.WaitForSingleObject(c.process, windows.INFINITE)
	if err != nil || event != windows.WAIT_OBJECT_0 {
		// Disposal closed the handle under us; nothing to deliver.
		return
	}
	var code uint32
	if err := windows.GetExitCodeProcess(c.process, &code); err != nil {
		return
	}
	c.exitOnce.Do(func() {
		c.exitCode = int(code)
		close(c.exited)

		c.mu.RLock()
		disposed := c.disposed
		c.mu.RUnlock()
		if !disposed {
			c.logger.Debug("child exited", "id", c.id, "pid", c.pid, "code", c.exitCode)
			<-c.events.Emit(EventExited, c.exitCode)
		}
	})
}

// Close walks the teardown state machine in its only legal order.
func (c *windowsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateDisposed {
		return nil
	}

	var result error
	c.disposed = true

	windows.ClosePseudoConsole(c.hpc)
	c.state = statePseudoConsoleClosed

	for _, h := range []windows.Handle{c.inWrite, c.outRead} {
		if err := windows.CloseHandle(h); err != nil {
			result = multierror.Append(result, err)
		}
	}
	c.state = statePipesClosed

	for _, h := range []windows.Handle{c.thread, c.process} {
		if err := windows.CloseHandle(h); err != nil {
			result = multierror.Append(result, err)
		}
	}
	c.state = stateProcessHandlesClosed

	if err := windows.CloseHandle(c.job); err != nil {
		result = multierror.Append(result, err)
	}
	c.state = stateJobClosed

	c.state = stateDisposed
	c.met.ConnClosed()
	c.logger.Debug("connection disposed", "id", c.id, "pid", c.pid)
	return result
}
