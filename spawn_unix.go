//go:build !windows

package portapty

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	ptylib "github.com/creack/pty"
	"github.com/rs/xid"
	"golang.org/x/sys/unix"
)

const defaultTerm = "xterm-256color"

// spawn allocates a pty pair, applies terminal settings to the
// follower, and starts the child with the follower as its controlling
// terminal. Everything between fork and exec is raw syscalls inside
// the runtime's start-process path; no Go code runs in the child.
func spawn(_ context.Context, opts SpawnOptions) (Conn, error) {
	ptmx, tts, err := ptylib.Open()
	if err != nil {
		return nil, &SpawnError{OSError: err, Message: "open pty pair"}
	}

	closeBoth := func() {
		_ = tts.Close()
		_ = ptmx.Close()
	}

	tio := defaultTermios()
	if opts.Termios != nil {
		tio = convertTermios(opts.Termios)
	}
	if err := unix.IoctlSetTermios(int(tts.Fd()), setTermiosIoctl, tio); err != nil {
		closeBoth()
		return nil, &SpawnError{OSError: err, Message: "apply termios"}
	}
	if err := ptylib.Setsize(ptmx, &ptylib.Winsize{Rows: opts.Rows, Cols: opts.Cols}); err != nil {
		closeBoth()
		return nil, &SpawnError{OSError: err, Message: "apply winsize"}
	}

	// execvp semantics for App: bare names search PATH here; paths with
	// a slash are left for exec to resolve against the child's cwd.
	path := opts.App
	if !strings.Contains(path, "/") {
		resolved, err := exec.LookPath(path)
		if err != nil {
			closeBoth()
			return nil, &SpawnError{OSError: err, Message: fmt.Sprintf("resolve %q", opts.App)}
		}
		path = resolved
	}

	cmd := exec.Command(path)
	cmd.Args = append([]string{opts.App}, opts.CommandLine...)
	cmd.Dir = opts.Cwd
	cmd.Env = composeEnv(os.Environ(), opts.Environment)
	cmd.Stdin = tts
	cmd.Stdout = tts
	cmd.Stderr = tts
	// forkpty semantics: new session, follower becomes the controlling
	// terminal, child leads its own process group.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}

	if err := cmd.Start(); err != nil {
		closeBoth()
		return nil, &SpawnError{OSError: err, Message: fmt.Sprintf("start %q", opts.App)}
	}

	// The child owns the follower now.
	_ = tts.Close()

	c := &unixConn{
		id:          xid.New().String(),
		pid:         cmd.Process.Pid,
		cmd:         cmd,
		ptmx:        ptmx,
		events:      newEventEmitter(),
		logger:      opts.logger(),
		met:         opts.Metrics,
		exited:      make(chan struct{}),
		watchFailed: make(chan struct{}),
	}
	go c.watch()

	return c, nil
}

// composeEnv overlays the caller's environment on the parent's. An
// empty value unsets the variable. TERM gets a default only when the
// merged result has none.
func composeEnv(parent []string, overlay map[string]string) []string {
	merged := make(map[string]string, len(parent)+len(overlay))
	order := make([]string, 0, len(parent)+len(overlay))
	for _, kv := range parent {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if _, seen := merged[k]; !seen {
			order = append(order, k)
		}
		merged[k] = v
	}
	for k, v := range overlay {
		if v == "" {
			delete(merged, k)
			continue
		}
		if _, seen := merged[k]; !seen {
			order = append(order, k)
		}
		merged[k] = v
	}
	if _, ok := merged["TERM"]; !ok {
		merged["TERM"] = defaultTerm
		order = append(order, "TERM")
	}

	env := make([]string, 0, len(merged))
	for _, k := range order {
		if v, ok := merged[k]; ok {
			env = append(env, k+"="+v)
		}
	}
	return env
}
