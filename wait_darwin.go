//go:build darwin

package portapty

import (
	"errors"
	"os/exec"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sys/unix"
)

const waitPollInterval = 100 * time.Millisecond

var errStillRunning = errors.New("child still running")

// waitChild polls with WNOHANG until the child is reaped. Blocking
// waitpid can wedge on arm64 macOS when pty teardown races signal
// delivery, so this never blocks in the kernel.
func waitChild(cmd *exec.Cmd) (int, error) {
	pid := cmd.Process.Pid

	var ws unix.WaitStatus
	err := retry.Do(
		func() error {
			wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
			switch {
			case err == unix.EINTR:
				return errStillRunning
			case err != nil:
				return retry.Unrecoverable(err)
			case wpid == pid:
				return nil
			default:
				return errStillRunning
			}
		},
		retry.UntilSucceeded(),
		retry.Delay(waitPollInterval),
		retry.MaxDelay(waitPollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return 0, err
	}
	return decodeWaitStatus(ws), nil
}

func decodeWaitStatus(ws unix.WaitStatus) int {
	if ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ws.ExitStatus()
}
