//go:build !windows

package command

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/oklog/run"
	"golang.org/x/term"

	"github.com/tomlm/portapty"
)

// setupResizeForwarding mirrors the attached terminal's size onto the
// pty via SIGWINCH.
func setupResizeForwarding(g *run.Group, parent context.Context, stdin *os.File, conn portapty.Conn) {
	if !term.IsTerminal(int(stdin.Fd())) {
		return
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGWINCH)
	ctx, cancel := context.WithCancel(parent)
	g.Add(func() error {
		for {
			select {
			case <-ctx.Done():
				signal.Stop(ch)
				close(ch)
				return ctx.Err()
			case <-ch:
				w, h, err := term.GetSize(int(stdin.Fd()))
				if err != nil || w <= 0 || h <= 0 {
					continue
				}
				_ = conn.Resize(uint16(w), uint16(h))
			}
		}
	}, func(err error) {
		cancel()
	})
}
