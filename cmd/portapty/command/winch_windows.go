//go:build windows

package command

import (
	"context"
	"os"
	"time"

	"github.com/oklog/run"
	"golang.org/x/term"

	"github.com/tomlm/portapty"
)

// setupResizeForwarding polls the console size; Windows has no
// SIGWINCH equivalent for console applications.
func setupResizeForwarding(g *run.Group, parent context.Context, stdin *os.File, conn portapty.Conn) {
	if !term.IsTerminal(int(stdin.Fd())) {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	g.Add(func() error {
		var prevW, prevH int
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				w, h, err := term.GetSize(int(stdin.Fd()))
				if err != nil || w <= 0 || h <= 0 {
					continue
				}
				if w != prevW || h != prevH {
					_ = conn.Resize(uint16(w), uint16(h))
					prevW, prevH = w, h
				}
			}
		}
	}, func(err error) {
		cancel()
	})
}
