//go:build windows

package portapty

import (
	"context"
	"os"
	"strings"
	"syscall"
	"unsafe"

	"github.com/rs/xid"
	"golang.org/x/sys/windows"

	"github.com/tomlm/portapty/internal/wincmd"
)

var (
	kernel32                = windows.NewLazySystemDLL("kernel32.dll")
	procCreatePseudoConsole = kernel32.NewProc("CreatePseudoConsole")
)

// pseudoConsoleSupported reports whether kernel32 exports the ConPTY
// entry points (Windows 10 1809 or later).
func pseudoConsoleSupported() bool {
	return procCreatePseudoConsole.Find() == nil
}

func hresultOf(err error) uint32 {
	if e, ok := err.(syscall.Errno); ok {
		return uint32(e)
	}
	return 0
}

// spawn builds the ConPTY plumbing in the only order that does not
// leak on failure: job object first (so the child dies with it from
// the instant it is assigned), then pipes, pseudo console, attribute
// list and finally the process itself.
func spawn(_ context.Context, opts SpawnOptions) (Conn, error) {
	if !pseudoConsoleSupported() {
		return nil, ErrNotSupported
	}

	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return nil, &SpawnError{OSError: err, Message: "CreateJobObject"}
	}
	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)), uint32(unsafe.Sizeof(info))); err != nil {
		_ = windows.CloseHandle(job)
		return nil, &SpawnError{OSError: err, Message: "SetInformationJobObject"}
	}

	// in-pipe: we write, the console reads. out-pipe: the console
	// writes, we read.
	var inRead, inWrite, outRead, outWrite windows.Handle
	if err := windows.CreatePipe(&inRead, &inWrite, nil, 0); err != nil {
		_ = windows.CloseHandle(job)
		return nil, &SpawnError{OSError: err, Message: "CreatePipe (input)"}
	}
	if err := windows.CreatePipe(&outRead, &outWrite, nil, 0); err != nil {
		closeHandles(inRead, inWrite, job)
		return nil, &SpawnError{OSError: err, Message: "CreatePipe (output)"}
	}

	var hpc windows.Handle
	size := windows.Coord{X: int16(opts.Cols), Y: int16(opts.Rows)}
	if err := windows.CreatePseudoConsole(size, inRead, outWrite, 0, &hpc); err != nil {
		closeHandles(inRead, inWrite, outRead, outWrite, job)
		return nil, &PseudoConsoleError{HResult: hresultOf(err), Op: "CreatePseudoConsole"}
	}

	// The pseudo console owns the console-side ends now; our duplicates
	// would keep the pipes from draining correctly.
	closeHandles(inRead, outWrite)

	attrs, err := windows.NewProcThreadAttributeList(1)
	if err != nil {
		windows.ClosePseudoConsole(hpc)
		closeHandles(inWrite, outRead, job)
		return nil, &SpawnError{OSError: err, Message: "InitializeProcThreadAttributeList"}
	}
	// The attribute value is the HPCON itself, not a pointer to it.
	if err := attrs.Update(windows.PROC_THREAD_ATTRIBUTE_PSEUDOCONSOLE,
		unsafe.Pointer(hpc), unsafe.Sizeof(hpc)); err != nil {
		attrs.Delete()
		windows.ClosePseudoConsole(hpc)
		closeHandles(inWrite, outRead, job)
		return nil, &SpawnError{OSError: err, Message: "UpdateProcThreadAttribute"}
	}

	app := wincmd.ResolveApp(opts.App, opts.Cwd, opts.Environment)
	cmdline := wincmd.FormatCommandLine(app, opts.CommandLine, opts.VerbatimCommandLine)
	envBlock := wincmd.EnvironmentBlock(windowsEnv(opts.Environment))

	failSpawn := func(step string, cause error) (Conn, error) {
		attrs.Delete()
		windows.ClosePseudoConsole(hpc)
		closeHandles(inWrite, outRead, job)
		return nil, &SpawnError{OSError: cause, Message: step}
	}

	cmdlinep, err := windows.UTF16PtrFromString(cmdline)
	if err != nil {
		return failSpawn("encode command line", err)
	}
	cwdp, err := windows.UTF16PtrFromString(opts.Cwd)
	if err != nil {
		return failSpawn("encode working directory", err)
	}

	si := new(windows.StartupInfoEx)
	si.Cb = uint32(unsafe.Sizeof(*si))
	si.ProcThreadAttributeList = attrs.List()

	pi := new(windows.ProcessInformation)
	flags := uint32(windows.EXTENDED_STARTUPINFO_PRESENT | windows.CREATE_UNICODE_ENVIRONMENT)
	if err := windows.CreateProcess(nil, cmdlinep, nil, nil, false, flags,
		&envBlock[0], cwdp, &si.StartupInfo, pi); err != nil {
		return failSpawn("CreateProcess", err)
	}

	// Bind the whole tree to the job before anything else happens; from
	// here on, closing the job handle reaps every descendant.
	if err := windows.AssignProcessToJobObject(job, pi.Process); err != nil {
		_ = windows.TerminateProcess(pi.Process, 1)
		closeHandles(pi.Thread, pi.Process)
		return failSpawn("AssignProcessToJobObject", err)
	}

	attrs.Delete()

	c := &windowsConn{
		id:      xid.New().String(),
		pid:     int(pi.ProcessId),
		hpc:     hpc,
		inWrite: inWrite,
		outRead: outRead,
		process: pi.Process,
		thread:  pi.Thread,
		job:     job,
		events:  newEventEmitter(),
		logger:  opts.logger(),
		met:     opts.Metrics,
		exited:  make(chan struct{}),
	}
	go c.watch()

	return c, nil
}

// windowsEnv overlays the caller's environment on the parent's. Empty
// values pass through verbatim; unset semantics are a Unix-only
// convention. TERM has no meaning to ConPTY and gets no default.
func windowsEnv(overlay map[string]string) map[string]string {
	merged := make(map[string]string, len(overlay))
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

func closeHandles(handles ...windows.Handle) {
	for _, h := range handles {
		if h != 0 {
			_ = windows.CloseHandle(h)
		}
	}
}
