package runtime

import (
	"errors"
	"fmt"
)

// Sentinel errors for runtime operations.
var (
	// ErrUnknownRuntime indicates the requested runtime is not registered.
	ErrUnknownRuntime = errors.New("unknown runtime")

	// ErrAlreadyRegistered indicates a runtime with the same id is
	// already in the registry.
	ErrAlreadyRegistered = errors.New("runtime already registered")

	// ErrNoActiveRuntime indicates no runtime is currently active, either
	// because the supervisor was never started or because a swap failed
	// beyond rollback.
	ErrNoActiveRuntime = errors.New("no active runtime")

	// ErrSwapInProgress indicates a runtime swap is in flight; no calls
	// may be issued until it completes.
	ErrSwapInProgress = errors.New("runtime swap in progress")

	// ErrStartupTimeout indicates the worker did not bind its socket
	// within the startup window. Distinct from setup failures: the worker
	// may simply be slow, so retrying is reasonable.
	ErrStartupTimeout = errors.New("worker not ready before startup timeout")

	// ErrNotRunning indicates a call was issued against a stopped worker.
	ErrNotRunning = errors.New("worker not running")

	// ErrStreamEnded indicates the worker closed a streaming connection
	// before sending a terminal frame.
	ErrStreamEnded = errors.New("stream ended before completion")

	// ErrProtocol indicates a malformed or out-of-order wire exchange.
	// Protocol errors are fatal for the exchange they occur on.
	ErrProtocol = errors.New("protocol error")

	// ErrWorker carries an error reported by the worker itself, verbatim.
	ErrWorker = errors.New("worker error")

	// ErrStreamingUnsupported indicates the runtime cannot stream chat
	// responses.
	ErrStreamingUnsupported = errors.New("streaming not supported by runtime")

	// ErrInvalidMessage indicates a message or content block violates the
	// wire envelope rules.
	ErrInvalidMessage = errors.New("invalid message")
)

// Error wraps runtime errors with context.
type Error struct {
	Runtime   string // Runtime id ("node-worker", "python-worker", etc.)
	Op        string // Operation that failed ("start", "chat", "swap")
	Err       error  // Underlying error
	Retryable bool   // Whether the error is likely transient
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Runtime != "" {
		return fmt.Sprintf("%s %s: %v", e.Runtime, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new runtime error.
func NewError(runtime, op string, err error, retryable bool) *Error {
	return &Error{
		Runtime:   runtime,
		Op:        op,
		Err:       err,
		Retryable: retryable,
	}
}

// IsRetryable checks if an error is likely transient and worth retrying.
// Startup timeouts are retryable; setup and validation failures are not,
// so callers can suggest "retry" vs "check configuration".
func IsRetryable(err error) bool {
	var rtErr *Error
	if errors.As(err, &rtErr) {
		return rtErr.Retryable
	}

	return errors.Is(err, ErrStartupTimeout)
}

// IsWorkerError checks if an error was reported by the worker itself
// (an application error, as opposed to a transport or protocol failure).
func IsWorkerError(err error) bool {
	return errors.Is(err, ErrWorker)
}

func errInvalidBlock(detail string) error {
	return fmt.Errorf("%w: %s", ErrInvalidMessage, detail)
}
