package proc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/randalmurphal/runtimekit/runtime"
)

// Worker process state.
type workerState int

const (
	workerStopped workerState = iota
	workerStarting
	workerRunning
	workerStopping
)

// Readiness polling cadence and per-probe dial bound.
const (
	readyPollInterval = 100 * time.Millisecond
	probeDialTimeout  = 2 * time.Second
)

// worker manages one runtime's subprocess: spawn, socket readiness,
// termination, and socket file cleanup. Not reentrant — the supervisor
// serializes start/stop.
type worker struct {
	id             string
	argv           []string
	dir            string
	env            map[string]string
	socketPath     string
	startupTimeout time.Duration
	stopGrace      time.Duration

	mu      sync.RWMutex
	state   workerState
	cmd     *exec.Cmd
	stderr  io.ReadCloser
	done    chan struct{} // Closed when the process exits
	exitErr error
}

// start spawns the worker and blocks until its socket accepts connections.
// On any failure the process is torn down before returning, so a failed
// start leaves nothing behind.
func (w *worker) start(ctx context.Context) error {
	w.mu.Lock()
	if w.state != workerStopped {
		state := w.stateString()
		w.mu.Unlock()
		return fmt.Errorf("worker already %s", state)
	}
	w.state = workerStarting
	w.mu.Unlock()

	// A stale socket file from a crashed run would shadow the new
	// worker's bind.
	if err := os.Remove(w.socketPath); err != nil && !os.IsNotExist(err) {
		w.setState(workerStopped)
		return fmt.Errorf("remove stale socket %s: %w", w.socketPath, err)
	}

	cmd := exec.Command(w.argv[0], w.argv[1:]...)
	cmd.Dir = w.dir
	cmd.Env = os.Environ()
	for k, v := range w.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		w.setState(workerStopped)
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stderr.Close()
		w.setState(workerStopped)
		return fmt.Errorf("spawn worker: %w", err)
	}

	w.mu.Lock()
	w.cmd = cmd
	w.stderr = stderr
	w.done = make(chan struct{})
	w.exitErr = nil
	w.mu.Unlock()

	go w.waitForExit()
	go w.drainStderr()

	if err := w.waitReady(ctx); err != nil {
		_ = w.stop(context.Background())
		return err
	}

	w.setState(workerRunning)
	slog.Debug("worker started",
		slog.String("runtime", w.id),
		slog.String("socket", w.socketPath))
	return nil
}

// stop terminates the worker: SIGTERM, a bounded grace wait, then SIGKILL.
// The socket file is removed regardless of how the process went down.
// Stopping a stopped worker is a no-op.
func (w *worker) stop(ctx context.Context) error {
	w.mu.Lock()
	if w.state == workerStopped || w.state == workerStopping {
		w.mu.Unlock()
		return nil
	}
	w.state = workerStopping
	cmd := w.cmd
	done := w.done
	w.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			slog.Debug("could not signal worker", slog.String("runtime", w.id), slog.Any("error", err))
		}

		select {
		case <-done:
		case <-time.After(w.stopGrace):
			slog.Warn("worker did not exit in grace period, killing",
				slog.String("runtime", w.id))
			_ = cmd.Process.Kill()
			<-done
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			<-done
		}
	}

	if err := os.Remove(w.socketPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not remove worker socket",
			slog.String("socket", w.socketPath),
			slog.Any("error", err))
	}

	w.setState(workerStopped)
	slog.Debug("worker stopped", slog.String("runtime", w.id))
	return nil
}

// waitReady polls the socket until it accepts a connection, the process
// dies, or the startup window closes. A closed window yields a timeout
// error, never a connection-refused one.
func (w *worker) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(w.startupTimeout)
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	w.mu.RLock()
	done := w.done
	w.mu.RUnlock()

	for {
		dialer := net.Dialer{Timeout: probeDialTimeout}
		conn, err := dialer.DialContext(ctx, "unix", w.socketPath)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s not connectable after %v",
				runtime.ErrStartupTimeout, w.socketPath, w.startupTimeout)
		}

		select {
		case <-done:
			if exitErr := w.exitError(); exitErr != nil {
				return fmt.Errorf("worker exited before becoming ready: %w", exitErr)
			}
			return fmt.Errorf("worker exited before becoming ready")
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *worker) isRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state == workerRunning
}

func (w *worker) exitError() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.exitErr
}

func (w *worker) waitForExit() {
	w.mu.RLock()
	cmd := w.cmd
	done := w.done
	w.mu.RUnlock()

	if cmd == nil {
		return
	}

	err := cmd.Wait()

	w.mu.Lock()
	w.exitErr = err
	w.mu.Unlock()

	close(done)
}

func (w *worker) drainStderr() {
	w.mu.RLock()
	stderr := w.stderr
	w.mu.RUnlock()

	if stderr == nil {
		return
	}

	buf := make([]byte, 4096)
	for {
		n, err := stderr.Read(buf)
		if n > 0 {
			slog.Debug("worker stderr",
				slog.String("runtime", w.id),
				slog.String("output", string(buf[:n])))
		}
		if err != nil {
			break
		}
	}
}

func (w *worker) setState(state workerState) {
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()
}

func (w *worker) stateString() string {
	switch w.state {
	case workerStopped:
		return "stopped"
	case workerStarting:
		return "starting"
	case workerRunning:
		return "running"
	case workerStopping:
		return "stopping"
	default:
		return "unknown"
	}
}
