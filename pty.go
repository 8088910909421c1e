// Package portapty spawns child programs attached to a freshly
// allocated pseudo terminal and hands back the controller side as a
// pair of byte streams. It uses forkpty-style allocation on Unix and
// ConPTY plus a kill-on-close job object on Windows, and guarantees
// the child and its grandchildren are gone once the connection is
// disposed.
package portapty

import (
	"context"
	"io"
	"time"

	"github.com/olebedev/emitter"
)

const (
	// EventExited fires at most once per connection when the child is
	// reaped. The first event argument is the exit code.
	EventExited = "pty.exited"
)

// Conn is the handle to one spawned terminal. It owns every OS
// resource behind it; Close releases them exactly once, in the order
// the platform requires. A Conn is safe for one concurrent reader and
// one concurrent writer; the two directions are independent.
type Conn interface {
	// ID is a unique identifier for log correlation.
	ID() string

	// Pid is the child process ID. Always positive.
	Pid() int

	// Reader yields bytes the child writes to its terminal. It reports
	// io.EOF once the child closes its side or the connection is
	// disposed.
	Reader() io.Reader

	// Writer delivers bytes to the child's terminal input.
	Writer() io.Writer

	// Resize changes the terminal window size.
	Resize(cols, rows uint16) error

	// Kill terminates the child and, where the platform allows, its
	// process group.
	Kill() error

	// WaitForExit blocks until the child is reaped or the timeout
	// elapses. A non-positive timeout waits indefinitely. It returns
	// false on timeout and when the child cannot be waited on.
	WaitForExit(timeout time.Duration) bool

	// ExitCode returns the child's exit code. The boolean is false
	// until the child has been reaped.
	ExitCode() (int, bool)

	// Events exposes the connection's event emitter. Subscribe to
	// EventExited with Once; the event fires at most once and is
	// suppressed after disposal.
	Events() *emitter.Emitter

	// Close disposes the connection and all owned OS handles. It is
	// idempotent and never blocks on a live child.
	Close() error
}

// Spawn launches opts.App inside a new pseudo terminal and returns the
// connection to it. Argument validation errors are returned before any
// OS resource is allocated. Cancelling ctx before the native spawn
// begins aborts it; afterwards cancellation is advisory and the caller
// should Close the returned connection instead.
func Spawn(ctx context.Context, opts SpawnOptions) (Conn, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t0 := time.Now()
	conn, err := spawn(ctx, opts)
	if err != nil {
		opts.Metrics.SpawnFailed()
		return nil, err
	}
	opts.Metrics.SpawnSucceeded(t0)
	opts.logger().Debug("spawned child in pty",
		"id", conn.ID(), "pid", conn.Pid(), "app", opts.App, "name", opts.Name)
	return conn, nil
}

func newEventEmitter() *emitter.Emitter {
	// Capacity 1 so an unconsumed exit event never blocks the watcher.
	return emitter.New(1)
}
