//go:build windows

package portapty

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spawnCmd(t *testing.T, args []string, env map[string]string) Conn {
	t.Helper()

	if env == nil {
		env = map[string]string{}
	}
	cwd, err := os.Getwd()
	require.NoError(t, err)

	conn, err := Spawn(context.Background(), SpawnOptions{
		App:         "cmd.exe",
		Cwd:         cwd,
		Cols:        120,
		Rows:        25,
		CommandLine: args,
		Environment: env,
	})
	require.NoError(t, err, "failed to spawn cmd.exe")
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func TestSpawn_EchoReachesReaderWindows(t *testing.T) {
	conn := spawnCmd(t, []string{"/c", "echo test"}, nil)

	assert.Positive(t, conn.Pid())
	out := readUntil(t, conn, 10*time.Second, "test")
	assert.Contains(t, out, "test")
}

func TestSpawn_ExitCodeZeroWindows(t *testing.T) {
	conn := spawnCmd(t, []string{"/c", "echo test"}, nil)

	require.True(t, conn.WaitForExit(10*time.Second))
	code, ok := conn.ExitCode()
	require.True(t, ok)
	assert.Equal(t, 0, code)
}

func TestSpawn_EnvironmentReachesChildWindows(t *testing.T) {
	conn := spawnCmd(t,
		[]string{"/c", "echo %MY_TEST_VAR%"},
		map[string]string{"MY_TEST_VAR": "custom_value_12345"},
	)

	out := readUntil(t, conn, 10*time.Second, "custom_value_12345")
	assert.Contains(t, out, "custom_value_12345")
}

func TestSpawn_SequentialCommandsOrderedWindows(t *testing.T) {
	conn := spawnCmd(t, []string{"/c", "echo first && echo second"}, nil)

	readUntil(t, conn, 10*time.Second, "first", "second")
}

func TestConn_ResizeSucceedsWhileRunningWindows(t *testing.T) {
	conn := spawnCmd(t, []string{}, nil)

	require.NoError(t, conn.Resize(120, 40))
	require.NoError(t, conn.Resize(40, 10))

	require.NoError(t, conn.Kill())
	require.True(t, conn.WaitForExit(10*time.Second))
}

func TestConn_KillTerminatesInteractiveShellWindows(t *testing.T) {
	conn := spawnCmd(t, []string{}, nil)

	time.Sleep(500 * time.Millisecond)
	require.NoError(t, conn.Kill())
	assert.True(t, conn.WaitForExit(10*time.Second))
}

func TestConn_WaitForExitTimesOutWindows(t *testing.T) {
	conn := spawnCmd(t, []string{}, nil)

	assert.False(t, conn.WaitForExit(100*time.Millisecond))

	require.NoError(t, conn.Kill())
	require.True(t, conn.WaitForExit(10*time.Second))
}

func TestConn_DisposalOrderIsIdempotentWindows(t *testing.T) {
	conn := spawnCmd(t, []string{"/c", "echo done"}, nil)
	conn.WaitForExit(10 * time.Second)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	assert.ErrorIs(t, conn.Resize(80, 24), ErrConnDisposed)
	assert.ErrorIs(t, conn.Kill(), ErrConnDisposed)
}
