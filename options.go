package portapty

import (
	"io"
	"log/slog"

	"github.com/tomlm/portapty/metrics"
)

// Termios carries caller-supplied terminal settings for the Unix
// provider. Flag words use the platform's <termios.h> bit values; Cc is
// indexed by the platform's V* constants and trimmed to the platform's
// NCCS on apply. Leave the SpawnOptions field nil to get the default
// cooked-terminal settings.
type Termios struct {
	Iflag  uint32
	Oflag  uint32
	Cflag  uint32
	Lflag  uint32
	Cc     [32]uint8
	Ispeed uint32
	Ospeed uint32
}

// SpawnOptions describes the child program and the terminal it runs in.
type SpawnOptions struct {
	// App is the executable to run, absolute or PATH-resolvable.
	App string

	// Cwd is the child's working directory. Required.
	Cwd string

	// Cols and Rows are the initial window size. Both must be nonzero.
	Cols uint16
	Rows uint16

	// CommandLine is the ordered argument list, not including App
	// itself. Must be non-nil; may be empty.
	CommandLine []string

	// Environment is overlaid on the parent environment. On Unix an
	// empty value unsets the variable; on Windows empty values are
	// passed through to the child verbatim. Must be non-nil.
	Environment map[string]string

	// VerbatimCommandLine skips argument quoting on Windows and joins
	// CommandLine with single spaces as-is. Ignored on Unix.
	VerbatimCommandLine bool

	// Name is an optional label used in logs.
	Name string

	// Termios overrides the default terminal settings on Unix.
	Termios *Termios

	// Logger receives provider and connection lifecycle logs. Defaults
	// to a discarding logger.
	Logger *slog.Logger

	// Metrics, when set, records spawn latency, failures and active
	// connection counts.
	Metrics *metrics.Provider
}

// Validate checks the required fields. It runs before any OS call.
func (o *SpawnOptions) Validate() error {
	if o.App == "" {
		return &InvalidArgumentsError{Field: "App", Reason: "must not be empty"}
	}
	if o.Cwd == "" {
		return &InvalidArgumentsError{Field: "Cwd", Reason: "must not be empty"}
	}
	if o.Cols == 0 {
		return &InvalidArgumentsError{Field: "Cols", Reason: "must be positive"}
	}
	if o.Rows == 0 {
		return &InvalidArgumentsError{Field: "Rows", Reason: "must be positive"}
	}
	if o.CommandLine == nil {
		return &InvalidArgumentsError{Field: "CommandLine", Reason: "must not be nil"}
	}
	if o.Environment == nil {
		return &InvalidArgumentsError{Field: "Environment", Reason: "must not be nil"}
	}
	return nil
}

func (o *SpawnOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
