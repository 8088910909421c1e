//go:build !windows

package portapty

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func spawnShell(t *testing.T, args []string, env map[string]string) Conn {
	t.Helper()

	if env == nil {
		env = map[string]string{}
	}
	conn, err := Spawn(context.Background(), SpawnOptions{
		App:         "/bin/sh",
		Cwd:         t.TempDir(),
		Cols:        120,
		Rows:        25,
		CommandLine: args,
		Environment: env,
	})
	require.NoError(t, err, "failed to spawn shell")
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func TestSpawn_EchoReachesReader(t *testing.T) {
	conn := spawnShell(t, []string{"-c", "echo test"}, nil)

	assert.Positive(t, conn.Pid())
	out := readUntil(t, conn, 5*time.Second, "test")
	assert.Contains(t, out, "test")
}

func TestSpawn_ExitedEventCarriesZeroExitCode(t *testing.T) {
	// The child sleeps long enough for the subscription below to be in
	// place before the watcher reaps it.
	conn := spawnShell(t, []string{"-c", "sleep 1; exit 0"}, nil)

	exitCh := conn.Events().Once(EventExited)

	require.True(t, conn.WaitForExit(10*time.Second))
	code, ok := conn.ExitCode()
	require.True(t, ok, "exit code should be readable after WaitForExit")
	assert.Equal(t, 0, code)

	select {
	case evt := <-exitCh:
		assert.Equal(t, 0, evt.Int(0))
	case <-time.After(5 * time.Second):
		t.Fatal("exited event did not fire")
	}
}

func TestSpawn_EnvironmentReachesChild(t *testing.T) {
	conn := spawnShell(t,
		[]string{"-c", "echo $MY_TEST_VAR"},
		map[string]string{"MY_TEST_VAR": "custom_value_12345"},
	)

	out := readUntil(t, conn, 5*time.Second, "custom_value_12345")
	assert.Contains(t, out, "custom_value_12345")
}

func TestSpawn_EmptyEnvironmentValueUnsets(t *testing.T) {
	t.Setenv("PORTAPTY_UNSET_ME", "should_not_appear")

	conn := spawnShell(t,
		[]string{"-c", `echo "[${PORTAPTY_UNSET_ME:-unset}]"`},
		map[string]string{"PORTAPTY_UNSET_ME": ""},
	)

	out := readUntil(t, conn, 5*time.Second, "[unset]")
	assert.NotContains(t, out, "should_not_appear")
}

func TestSpawn_TermDefaultsWithoutOverriding(t *testing.T) {
	conn := spawnShell(t,
		[]string{"-c", "echo TERM=$TERM"},
		map[string]string{"TERM": "vt100"},
	)

	out := readUntil(t, conn, 5*time.Second, "TERM=vt100")
	assert.Contains(t, out, "TERM=vt100")
}

func TestSpawn_SequentialCommandsOrdered(t *testing.T) {
	conn := spawnShell(t, []string{"-c", "echo first && echo second"}, nil)

	out := readUntil(t, conn, 5*time.Second, "first", "second")
	first := strings.Index(out, "first")
	second := strings.Index(out, "second")
	require.GreaterOrEqual(t, first, 0)
	require.Greater(t, second, first)
}

func TestConn_ResizeSucceedsWhileRunning(t *testing.T) {
	conn := spawnShell(t, []string{}, nil)

	require.NoError(t, conn.Resize(120, 40))
	require.NoError(t, conn.Resize(40, 10))

	require.NoError(t, conn.Kill())
	require.True(t, conn.WaitForExit(5*time.Second))
}

func TestConn_KillTerminatesInteractiveShell(t *testing.T) {
	conn := spawnShell(t, []string{}, nil)

	time.Sleep(500 * time.Millisecond)
	require.NoError(t, conn.Kill())
	assert.True(t, conn.WaitForExit(5*time.Second))
}

func TestConn_KillReachesGrandchildren(t *testing.T) {
	conn := spawnShell(t, []string{"-c", "sleep 300"}, nil)

	time.Sleep(500 * time.Millisecond)
	require.NoError(t, conn.Kill())
	assert.True(t, conn.WaitForExit(5*time.Second))
}

func TestConn_WaitForExitTimesOut(t *testing.T) {
	conn := spawnShell(t, []string{}, nil)

	assert.False(t, conn.WaitForExit(100*time.Millisecond))

	require.NoError(t, conn.Kill())
	require.True(t, conn.WaitForExit(5*time.Second))
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	conn := spawnShell(t, []string{"-c", "true"}, nil)
	conn.WaitForExit(5 * time.Second)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
}

func TestConn_ResizeAfterCloseFails(t *testing.T) {
	conn := spawnShell(t, []string{"-c", "true"}, nil)
	conn.WaitForExit(5 * time.Second)
	require.NoError(t, conn.Close())

	assert.ErrorIs(t, conn.Resize(80, 24), ErrConnDisposed)
	assert.ErrorIs(t, conn.Kill(), ErrConnDisposed)
}

func TestConn_ReaderReportsEOFAfterClose(t *testing.T) {
	conn := spawnShell(t, []string{"-c", "true"}, nil)
	conn.WaitForExit(5 * time.Second)
	require.NoError(t, conn.Close())

	buf := make([]byte, 16)
	_, err := conn.Reader().Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestConn_ExitCodeUndefinedBeforeExit(t *testing.T) {
	conn := spawnShell(t, []string{}, nil)

	_, ok := conn.ExitCode()
	assert.False(t, ok, "exit code must not be readable before exit")

	require.NoError(t, conn.Kill())
	require.True(t, conn.WaitForExit(5*time.Second))
	_, ok = conn.ExitCode()
	assert.True(t, ok)
}

func TestConn_NonZeroExitCode(t *testing.T) {
	conn := spawnShell(t, []string{"-c", "exit 3"}, nil)

	require.True(t, conn.WaitForExit(5*time.Second))
	code, ok := conn.ExitCode()
	require.True(t, ok)
	assert.Equal(t, 3, code)
}

func TestSpawn_TermiosOverride(t *testing.T) {
	// Cooked settings with ECHO stripped; stty reports it as -echo.
	tio := &Termios{
		Iflag:  uint32(unix.ICRNL),
		Oflag:  uint32(unix.OPOST | unix.ONLCR),
		Cflag:  uint32(unix.CREAD | unix.CS8 | unix.HUPCL),
		Lflag:  uint32(unix.ICANON | unix.ISIG | unix.IEXTEN),
		Ispeed: uint32(unix.B38400),
		Ospeed: uint32(unix.B38400),
	}
	tio.Cc[unix.VMIN] = 1

	conn, err := Spawn(context.Background(), SpawnOptions{
		App:         "/bin/sh",
		Cwd:         t.TempDir(),
		Cols:        120,
		Rows:        25,
		CommandLine: []string{"-c", "stty -a"},
		Environment: map[string]string{},
		Termios:     tio,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// The regexp keeps "-echo" from matching "-echonl" and friends.
	out := readAll(t, conn, 5*time.Second)
	require.Contains(t, out, "speed")
	require.Regexp(t, `(^|[\s;])-echo([\s;]|$)`, out)
}

func TestComposeEnv(t *testing.T) {
	parent := []string{"A=1", "B=2", "TERM=screen"}

	env := composeEnv(parent, map[string]string{"B": "", "C": "3"})
	assert.Contains(t, env, "A=1")
	assert.Contains(t, env, "C=3")
	assert.Contains(t, env, "TERM=screen")
	assert.NotContains(t, env, "B=2")

	env = composeEnv([]string{"A=1"}, map[string]string{})
	assert.Contains(t, env, "TERM="+defaultTerm)
}
