package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Supervisor swap state.
type swapState int

const (
	stateIdle swapState = iota
	stateStopping
	stateStarting
	stateFailed
)

// Supervisor tracks which runtime is active and performs safe swaps between
// them: stop the old worker, start the new one, and restart the old one if
// the new one fails to come up.
//
// At most one swap is in flight at a time. While a swap is running no
// runtime is active and Active returns ErrSwapInProgress — the front-end is
// expected to suspend interaction for that window; in-flight calls are not
// queued across a swap.
type Supervisor struct {
	reg *Registry
	cfg Config

	mu       sync.Mutex
	state    swapState
	active   Adapter
	lastGood Adapter
	swapErr  error
}

// NewSupervisor creates a supervisor over the given registry.
func NewSupervisor(reg *Registry, cfg Config) *Supervisor {
	return &Supervisor{
		reg: reg,
		cfg: cfg.WithDefaults(),
	}
}

// Start selects the initial runtime and starts its worker. Selection walks
// the configured preference order and falls back to the first registered
// adapter when none match.
func (s *Supervisor) Start(ctx context.Context) error {
	initial, err := s.initialAdapter()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != stateIdle || s.active != nil {
		state := s.stateString()
		s.mu.Unlock()
		return fmt.Errorf("supervisor already %s", state)
	}
	s.state = stateStarting
	s.mu.Unlock()

	if err := initial.Start(ctx); err != nil {
		s.fail(err)
		return fmt.Errorf("start %s: %w", initial.ID(), err)
	}

	s.setActive(initial)
	slog.Debug("runtime started", slog.String("runtime", initial.ID()))
	return nil
}

// Active returns the currently active adapter. It returns
// ErrSwapInProgress while a swap is running and ErrNoActiveRuntime when the
// supervisor has not been started or the last swap failed beyond rollback.
func (s *Supervisor) Active() (Adapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateStopping, stateStarting:
		return nil, ErrSwapInProgress
	case stateFailed:
		if s.swapErr != nil {
			return nil, fmt.Errorf("%w: last swap failed: %v", ErrNoActiveRuntime, s.swapErr)
		}
		return nil, ErrNoActiveRuntime
	}
	if s.active == nil {
		return nil, ErrNoActiveRuntime
	}
	return s.active, nil
}

// Swap switches the active runtime to the adapter with the given id: the
// old worker is stopped, the new one started. If the new worker fails to
// start, the old one is restarted; if even that fails the supervisor enters
// a persistent failed state until a later Swap succeeds.
//
// Swapping to the already-active runtime is a no-op.
func (s *Supervisor) Swap(ctx context.Context, id string) error {
	next, err := s.reg.Get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == stateStopping || s.state == stateStarting {
		s.mu.Unlock()
		return ErrSwapInProgress
	}
	prev := s.active
	if prev != nil && prev.ID() == id {
		s.mu.Unlock()
		return nil
	}
	s.state = stateStopping
	s.active = nil
	s.mu.Unlock()

	slog.Debug("runtime swap",
		slog.String("to", id),
		slog.String("from", adapterID(prev)))

	if prev != nil {
		if err := prev.Stop(ctx); err != nil {
			slog.Warn("error stopping runtime during swap",
				slog.String("runtime", prev.ID()),
				slog.Any("error", err))
		}
	}

	s.setState(stateStarting)

	if err := next.Start(ctx); err != nil {
		startErr := NewError(id, "start", err, IsRetryable(err))
		if prev == nil {
			s.fail(startErr)
			return startErr
		}

		slog.Warn("runtime failed to start, restarting previous",
			slog.String("runtime", id),
			slog.String("previous", prev.ID()),
			slog.Any("error", err))

		if rbErr := prev.Start(ctx); rbErr != nil {
			s.fail(startErr)
			return fmt.Errorf("start %s failed (%v); restart of %s also failed: %w",
				id, err, prev.ID(), rbErr)
		}
		s.setActive(prev)
		return startErr
	}

	s.setActive(next)
	slog.Debug("runtime swap complete", slog.String("runtime", id))
	return nil
}

// Shutdown stops the active worker, if any.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateIdle || s.active == nil {
		s.mu.Unlock()
		return nil
	}
	active := s.active
	s.state = stateStopping
	s.active = nil
	s.mu.Unlock()

	err := active.Stop(ctx)
	s.setState(stateIdle)
	slog.Debug("runtime stopped", slog.String("runtime", active.ID()))
	return err
}

// State returns a human-readable supervisor state, for diagnostics.
func (s *Supervisor) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateString()
}

// initialAdapter picks the startup runtime: first match in the preference
// order, else the first registered.
func (s *Supervisor) initialAdapter() (Adapter, error) {
	for _, id := range s.cfg.Prefer {
		if a, err := s.reg.Get(id); err == nil {
			return a, nil
		}
	}
	all := s.reg.List()
	if len(all) == 0 {
		return nil, fmt.Errorf("no runtimes registered")
	}
	return all[0], nil
}

func (s *Supervisor) setActive(a Adapter) {
	s.mu.Lock()
	s.state = stateIdle
	s.active = a
	s.lastGood = a
	s.swapErr = nil
	s.mu.Unlock()
}

func (s *Supervisor) fail(err error) {
	s.mu.Lock()
	s.state = stateFailed
	s.active = nil
	s.swapErr = err
	s.mu.Unlock()
}

func (s *Supervisor) setState(state swapState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Supervisor) stateString() string {
	switch s.state {
	case stateIdle:
		if s.active == nil {
			return "stopped"
		}
		return "idle"
	case stateStopping:
		return "stopping"
	case stateStarting:
		return "starting"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func adapterID(a Adapter) string {
	if a == nil {
		return ""
	}
	return a.ID()
}
