package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sakif/sandboxd/internal/apperror"
)

// maxLineSize bounds a single protocol line. Bindings of large values are
// stringified by the worker, so response lines can get big, but anything
// past this is assumed to be a runaway snippet.
const maxLineSize = 8 * 1024 * 1024

// worker owns one live worker process and its streams. It is the only type
// that touches the pipes; the supervisor above it deals in requests and
// outcomes. A worker is not safe for concurrent use — the supervisor's lock
// provides exclusivity.
type worker struct {
	proc   *Process
	stdout *bufio.Reader
	stderr *tailBuffer

	exited  chan struct{}
	waitErr error

	killOnce sync.Once
}

// startWorker spawns a process via the launcher and blocks until the READY
// sentinel arrives. Any other first line, an early EOF, or a timeout fails
// the start attempt; the process is killed and the caller is left in the
// Unstarted state for a retry on the next call.
func startWorker(ctx context.Context, launcher Launcher, timeout time.Duration) (*worker, error) {
	proc, err := launcher.Start(ctx)
	if err != nil {
		return nil, err
	}

	w := &worker{
		proc:   proc,
		stdout: bufio.NewReaderSize(proc.Stdout, 64*1024),
		stderr: newTailBuffer(4 * 1024),
		exited: make(chan struct{}),
	}

	go func() {
		io.Copy(w.stderr, proc.Stderr)
	}()
	go func() {
		w.waitErr = proc.Wait()
		close(w.exited)
	}()

	type handshake struct {
		line string
		err  error
	}
	ch := make(chan handshake, 1)
	go func() {
		line, err := w.readLine()
		ch <- handshake{line, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case hs := <-ch:
		if hs.err != nil {
			w.kill()
			return nil, apperror.StartupFailed(fmt.Sprintf(
				"worker exited before READY: %v%s", hs.err, w.stderr.suffix()))
		}
		if hs.line != readySentinel {
			w.kill()
			return nil, apperror.StartupFailed(fmt.Sprintf(
				"unexpected startup line %q", hs.line))
		}
		return w, nil

	case <-timer.C:
		w.kill()
		return nil, apperror.StartupFailed(fmt.Sprintf(
			"no READY sentinel within %s%s", timeout, w.stderr.suffix()))

	case <-ctx.Done():
		w.kill()
		return nil, apperror.StartupFailed(fmt.Sprintf(
			"startup abandoned: %v", ctx.Err()))
	}
}

// roundTrip writes one request line and blocks for one response line. If the
// caller abandons the wait (context cancelled or expired), the worker's
// position in the protocol is unknown, so it is killed before returning —
// the next call gets a fresh worker.
func (w *worker) roundTrip(ctx context.Context, requestLine []byte) ([]byte, error) {
	if _, err := w.proc.Stdin.Write(requestLine); err != nil {
		return nil, apperror.ProcessDied(fmt.Sprintf("writing request: %v", err))
	}

	type read struct {
		line string
		err  error
	}
	ch := make(chan read, 1)
	go func() {
		line, err := w.readLine()
		ch <- read{line, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, apperror.ProcessDied(fmt.Sprintf(
				"reading response: %v%s", r.err, w.stderr.suffix()))
		}
		return []byte(r.line), nil

	case <-ctx.Done():
		w.kill()
		return nil, apperror.ProcessDied(fmt.Sprintf(
			"abandoned in-flight execution: %v", ctx.Err()))
	}
}

// readLine reads one newline-terminated line, rejecting lines past
// maxLineSize so a hostile snippet cannot wedge the supervisor in an
// unbounded read. ReadSlice (not ReadString) so the cap is enforced one
// buffer at a time instead of after the fact.
func (w *worker) readLine() (string, error) {
	var b []byte
	for {
		chunk, err := w.stdout.ReadSlice('\n')
		b = append(b, chunk...)
		if err == nil {
			return string(bytes.TrimRight(b, "\r\n")), nil
		}
		if err != bufio.ErrBufferFull {
			return "", err
		}
		if len(b) > maxLineSize {
			return "", fmt.Errorf("response line exceeds %d bytes", maxLineSize)
		}
	}
}

// alive is the cheap liveness probe: has the process exited?
func (w *worker) alive() bool {
	select {
	case <-w.exited:
		return false
	default:
		return true
	}
}

// id identifies the underlying process, for logs and restart observability.
func (w *worker) id() string {
	return w.proc.ID
}

// close performs the scoped shutdown sequence: close the write side of the
// pipe (the worker loop exits on stdin EOF), wait up to grace for a clean
// exit, and kill if it does not oblige. With grace zero it kills immediately.
func (w *worker) close(grace time.Duration) {
	_ = w.proc.Stdin.Close()

	if grace > 0 {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-w.exited:
			return
		case <-timer.C:
		}
	}

	w.kill()

	// Bound the reap wait: a kill that cannot take effect should not hang
	// the supervisor.
	timer := time.NewTimer(2 * time.Second)
	defer timer.Stop()
	select {
	case <-w.exited:
	case <-timer.C:
	}
}

func (w *worker) kill() {
	w.killOnce.Do(func() {
		_ = w.proc.Kill()
	})
}

// tailBuffer retains the last max bytes written to it. The worker's stderr
// is drained into one so startup failures and crashes can report what the
// interpreter said, without holding unbounded output in memory.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// suffix renders the tail as an error-message suffix, empty when nothing
// was captured.
func (t *tailBuffer) suffix() string {
	s := strings.TrimSpace(t.String())
	if s == "" {
		return ""
	}
	return "; stderr: " + s
}
