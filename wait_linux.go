//go:build linux

package portapty

import (
	"os/exec"
	"syscall"
)

// waitChild blocks in waitpid until the child is reaped and decodes
// its status. Linux blocking waits are reliable; macOS gets a polling
// variant instead.
func waitChild(cmd *exec.Cmd) (int, error) {
	state, err := cmd.Process.Wait()
	if err != nil {
		return 0, err
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return state.ExitCode(), nil
	}
	return decodeWaitStatus(ws), nil
}

func decodeWaitStatus(ws syscall.WaitStatus) int {
	if ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ws.ExitStatus()
}
