package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/sakif/sandboxd/internal/apperror"
)

// Launcher starts worker processes. The supervisor never assumes a specific
// evaluation mechanism — it only sees the stream bundle and the wire
// protocol — so workers can run as plain subprocesses, inside containers, or
// anything else that exposes line-buffered stdio.
type Launcher interface {
	Start(ctx context.Context) (*Process, error)
}

// Process is a started worker with attached streams. ID identifies the
// underlying process (PID or container ID) so restarts are observable.
// Wait blocks until the process exits; Kill terminates it forcibly. Both
// must be safe to call after the process has already exited.
type Process struct {
	ID     string
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser
	Wait   func() error
	Kill   func() error
}

// LocalConfig configures a worker spawned directly on the host. This backend
// provides no OS-level sandboxing of its own — it is for deployments where
// the whole service already runs inside an isolated environment.
type LocalConfig struct {
	// PythonBin is the interpreter to run. Defaults to "python3".
	PythonBin string
	// KeepSearchPath disables sys.path restoration inside the worker
	// (the PersistentUnsafe tier).
	KeepSearchPath bool
}

// LocalLauncher spawns the worker loop as a child process on the host.
type LocalLauncher struct {
	path   string
	config LocalConfig
}

// NewLocalLauncher resolves the interpreter binary up front so a missing
// interpreter surfaces as a configuration error at construction, not as a
// startup failure on the first execute.
func NewLocalLauncher(cfg LocalConfig) (*LocalLauncher, error) {
	bin := cfg.PythonBin
	if bin == "" {
		bin = "python3"
	}

	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, apperror.InvalidConfiguration(
			fmt.Sprintf("python interpreter %q not found in PATH", bin))
	}

	return &LocalLauncher{path: path, config: cfg}, nil
}

// Start spawns `python -u -c <worker loop>` with piped stdio. The -u flag is
// load-bearing: without unbuffered output the supervisor's blocking response
// read would starve.
func (l *LocalLauncher) Start(ctx context.Context) (*Process, error) {
	cmd := exec.Command(l.path, "-u", "-c", WorkerScript)
	cmd.Env = append(os.Environ(), keepSysPathEnv(l.config.KeepSearchPath))

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, apperror.StartupFailed(fmt.Sprintf("opening stdin pipe: %v", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, apperror.StartupFailed(fmt.Sprintf("opening stdout pipe: %v", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, apperror.StartupFailed(fmt.Sprintf("opening stderr pipe: %v", err))
	}

	if err := cmd.Start(); err != nil {
		return nil, apperror.StartupFailed(fmt.Sprintf("spawning %s: %v", l.path, err))
	}

	return &Process{
		ID:     strconv.Itoa(cmd.Process.Pid),
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		Wait:   cmd.Wait,
		Kill: func() error {
			return cmd.Process.Kill()
		},
	}, nil
}

// keepSysPathEnv renders the flag the worker script reads at startup.
// Search-path hygiene is fixed per worker lifetime, so it travels in the
// environment rather than on the per-request wire record.
func keepSysPathEnv(keep bool) string {
	if keep {
		return "WORKER_KEEP_SYS_PATH=1"
	}
	return "WORKER_KEEP_SYS_PATH=0"
}
