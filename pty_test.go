package portapty

import (
	"strings"
	"testing"
	"time"
)

// readUntil drains the connection until every substring has appeared,
// in order, or the deadline passes.
func readUntil(t *testing.T, conn Conn, deadline time.Duration, subs ...string) string {
	t.Helper()

	done := make(chan string, 1)
	go func() {
		var out strings.Builder
		buf := make([]byte, 4096)
		for {
			n, err := conn.Reader().Read(buf)
			if n > 0 {
				out.Write(buf[:n])
				rest := out.String()
				ok := true
				for _, sub := range subs {
					i := strings.Index(rest, sub)
					if i < 0 {
						ok = false
						break
					}
					rest = rest[i+len(sub):]
				}
				if ok {
					done <- out.String()
					return
				}
			}
			if err != nil {
				done <- out.String()
				return
			}
		}
	}()

	select {
	case out := <-done:
		return out
	case <-time.After(deadline):
		t.Fatalf("timed out waiting for %q in pty output", subs)
		return ""
	}
}

// readAll drains the connection until EOF or the deadline passes.
func readAll(t *testing.T, conn Conn, deadline time.Duration) string {
	t.Helper()

	done := make(chan string, 1)
	go func() {
		var out strings.Builder
		buf := make([]byte, 4096)
		for {
			n, err := conn.Reader().Read(buf)
			if n > 0 {
				out.Write(buf[:n])
			}
			if err != nil {
				done <- out.String()
				return
			}
		}
	}()

	select {
	case out := <-done:
		return out
	case <-time.After(deadline):
		t.Fatal("timed out draining pty output")
		return ""
	}
}
