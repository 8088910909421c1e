package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tomlm/portapty"
	"github.com/tomlm/portapty/internal/logging"
	uio "github.com/tomlm/portapty/io"
)

var (
	flagCwd     string
	flagCols    uint16
	flagRows    uint16
	flagEnv     []string
	flagRecord  string
	flagLogFile string
	flagDebug   bool
)

func Root() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "portapty [flags] [--] [command] [args...]",
		Short: "Run a command inside a pseudo terminal",
		Long:  "Portapty runs a command attached to a freshly allocated pseudo terminal and bridges it to the current terminal.",
		Example: `  # Run $SHELL in a pty
  $ portapty

  # Run a one-off command
  $ portapty -- ls -la

  # Record terminal output while running
  $ portapty --record session.out`,
		RunE: runHost,
	}

	rootCmd.PersistentFlags().StringVar(&flagCwd, "cwd", "", "child working directory (defaults to the current directory)")
	rootCmd.PersistentFlags().Uint16Var(&flagCols, "cols", 0, "terminal columns (defaults to the attached terminal's)")
	rootCmd.PersistentFlags().Uint16Var(&flagRows, "rows", 0, "terminal rows (defaults to the attached terminal's)")
	rootCmd.PersistentFlags().StringArrayVarP(&flagEnv, "env", "e", nil, "extra environment NAME=VALUE (NAME= unsets on Unix)")
	rootCmd.PersistentFlags().StringVar(&flagRecord, "record", "", "append terminal output to this file")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "write logs to this file instead of stderr")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func runHost(c *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	app, cmdline := commandFromArgs(args)

	cwd := flagCwd
	if cwd == "" {
		if cwd, err = os.Getwd(); err != nil {
			return err
		}
	}

	cols, rows := flagCols, flagRows
	if cols == 0 || rows == 0 {
		if w, h, err := term.GetSize(int(os.Stdin.Fd())); err == nil && w > 0 && h > 0 {
			cols, rows = uint16(w), uint16(h)
		} else {
			cols, rows = 80, 24
		}
	}

	env := make(map[string]string, len(flagEnv))
	for _, kv := range flagEnv {
		k, v, _ := strings.Cut(kv, "=")
		env[k] = v
	}

	conn, err := portapty.Spawn(c.Context(), portapty.SpawnOptions{
		App:         app,
		Cwd:         cwd,
		Cols:        cols,
		Rows:        rows,
		CommandLine: cmdline,
		Environment: env,
		Name:        "portapty",
		Logger:      logger.Logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	logger.Info("session started", "id", conn.ID(), "pid", conn.Pid(), "app", app)

	if term.IsTerminal(int(os.Stdin.Fd())) {
		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("unable to set terminal to raw mode: %w", err)
		}
		defer func() { _ = term.Restore(int(os.Stdin.Fd()), oldState) }()
	}

	writers := uio.NewMultiWriter(os.Stdout)
	if flagRecord != "" {
		f, err := os.OpenFile(flagRecord, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("unable to open record file: %w", err)
		}
		defer func() { _ = f.Close() }()
		if err := writers.Append(f); err != nil {
			return err
		}
	}

	var g run.Group
	setupResizeForwarding(&g, c.Context(), os.Stdin, conn)
	{
		// input
		ctx, cancel := context.WithCancel(c.Context())
		g.Add(func() error {
			_, err := io.Copy(conn.Writer(), uio.NewContextReader(ctx, os.Stdin))
			return err
		}, func(err error) {
			cancel()
		})
	}
	{
		// output
		ctx, cancel := context.WithCancel(c.Context())
		g.Add(func() error {
			_, err := io.Copy(writers, uio.NewContextReader(ctx, conn.Reader()))
			return err
		}, func(err error) {
			cancel()
		})
	}
	{
		// child exit. The ticker backstops the event in case the child
		// exited before the subscription was in place.
		exitCh := conn.Events().Once(portapty.EventExited)
		ctx, cancel := context.WithCancel(c.Context())
		g.Add(func() error {
			ticker := time.NewTicker(250 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case evt := <-exitCh:
					if code := evt.Int(0); code != 0 {
						return fmt.Errorf("exit status %d", code)
					}
					return nil
				case <-ticker.C:
					if code, ok := conn.ExitCode(); ok {
						if code != 0 {
							return fmt.Errorf("exit status %d", code)
						}
						return nil
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}, func(err error) {
			_ = conn.Kill()
			cancel()
		})
	}

	return g.Run()
}

func newLogger() (*logging.Logger, error) {
	opts := []logging.Option{}
	if flagDebug {
		opts = append(opts, logging.Debug())
	}
	if flagLogFile != "" {
		opts = append(opts, logging.File(flagLogFile))
	} else {
		opts = append(opts, logging.Console())
	}
	if dsn := os.Getenv("PORTAPTY_SENTRY_DSN"); dsn != "" {
		opts = append(opts, logging.Sentry(dsn))
	}
	return logging.New(opts...)
}

func commandFromArgs(args []string) (string, []string) {
	if len(args) > 0 {
		return args[0], args[1:]
	}
	if runtime.GOOS == "windows" {
		if comspec := os.Getenv("COMSPEC"); comspec != "" {
			return comspec, []string{}
		}
		return "cmd.exe", []string{}
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell, []string{}
	}
	return "/bin/sh", []string{}
}
