package runtime

import (
	"context"
	"errors"
	"testing"
)

func newTestSupervisor(t *testing.T, adapters ...*fakeAdapter) (*Supervisor, *Registry) {
	t.Helper()
	reg := NewRegistry()
	for _, a := range adapters {
		if err := reg.Add(a); err != nil {
			t.Fatal(err)
		}
	}
	return NewSupervisor(reg, Config{}), reg
}

func TestSupervisor_StartPrefersConfiguredRuntime(t *testing.T) {
	ctx := context.Background()
	a := newFakeAdapter("a")
	b := newFakeAdapter("b")

	reg := NewRegistry()
	_ = reg.Add(a)
	_ = reg.Add(b)

	sup := NewSupervisor(reg, Config{Prefer: []string{"missing", "b"}})
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	active, err := sup.Active()
	if err != nil {
		t.Fatal(err)
	}
	if active.ID() != "b" {
		t.Errorf("active = %s, want preferred b", active.ID())
	}
	if !b.isRunning() || a.isRunning() {
		t.Error("only the preferred runtime should be running")
	}
}

func TestSupervisor_StartFallsBackToFirstRegistered(t *testing.T) {
	ctx := context.Background()
	a := newFakeAdapter("a")
	sup, _ := newTestSupervisor(t, a, newFakeAdapter("b"))

	if err := sup.Start(ctx); err != nil {
		t.Fatal(err)
	}
	active, _ := sup.Active()
	if active.ID() != "a" {
		t.Errorf("active = %s, want first registered a", active.ID())
	}
}

func TestSupervisor_StartEmptyRegistry(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	if err := sup.Start(context.Background()); err == nil {
		t.Error("expected error with no runtimes registered")
	}
}

func TestSupervisor_ActiveBeforeStart(t *testing.T) {
	sup, _ := newTestSupervisor(t, newFakeAdapter("a"))
	if _, err := sup.Active(); !errors.Is(err, ErrNoActiveRuntime) {
		t.Errorf("Active() error = %v, want ErrNoActiveRuntime", err)
	}
}

func TestSupervisor_SwapSuccess(t *testing.T) {
	ctx := context.Background()
	a := newFakeAdapter("a")
	b := newFakeAdapter("b")
	sup, _ := newTestSupervisor(t, a, b)

	if err := sup.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := sup.Swap(ctx, "b"); err != nil {
		t.Fatalf("Swap() error = %v", err)
	}

	active, err := sup.Active()
	if err != nil {
		t.Fatal(err)
	}
	if active.ID() != "b" {
		t.Errorf("active = %s, want b", active.ID())
	}
	if a.isRunning() {
		t.Error("old runtime still running after swap")
	}
	if a.stops != 1 {
		t.Errorf("old runtime stops = %d, want 1", a.stops)
	}
	if !b.isRunning() {
		t.Error("new runtime not running after swap")
	}
}

func TestSupervisor_SwapToActiveIsNoop(t *testing.T) {
	ctx := context.Background()
	a := newFakeAdapter("a")
	sup, _ := newTestSupervisor(t, a)

	if err := sup.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := sup.Swap(ctx, "a"); err != nil {
		t.Fatalf("Swap() to active error = %v", err)
	}
	if a.starts != 1 || a.stops != 0 {
		t.Errorf("starts/stops = %d/%d, want 1/0 (no restart)", a.starts, a.stops)
	}
}

func TestSupervisor_SwapUnknownRuntime(t *testing.T) {
	ctx := context.Background()
	sup, _ := newTestSupervisor(t, newFakeAdapter("a"))
	_ = sup.Start(ctx)

	if err := sup.Swap(ctx, "missing"); !errors.Is(err, ErrUnknownRuntime) {
		t.Errorf("Swap() error = %v, want ErrUnknownRuntime", err)
	}

	// The active runtime is untouched by a rejected swap.
	active, err := sup.Active()
	if err != nil || active.ID() != "a" {
		t.Errorf("Active() = %v, %v after rejected swap", active, err)
	}
}

func TestSupervisor_SwapFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	a := newFakeAdapter("a")
	b := newFakeAdapter("b")
	b.startErr = errors.New("worker binary missing")
	sup, _ := newTestSupervisor(t, a, b)

	if err := sup.Start(ctx); err != nil {
		t.Fatal(err)
	}

	// Chat works against a before the swap attempt.
	if _, err := a.Chat(ctx, "p", nil); err != nil {
		t.Fatal(err)
	}

	err := sup.Swap(ctx, "b")
	if err == nil {
		t.Fatal("Swap() to failing runtime must report an error")
	}

	// a must be active and running again.
	active, actErr := sup.Active()
	if actErr != nil {
		t.Fatalf("Active() error = %v after rollback", actErr)
	}
	if active.ID() != "a" {
		t.Errorf("active = %s, want rolled-back a", active.ID())
	}
	if !a.isRunning() {
		t.Error("a not running after rollback")
	}
	if a.starts != 2 {
		t.Errorf("a.starts = %d, want 2 (initial + rollback restart)", a.starts)
	}

	reply, chatErr := active.Chat(ctx, "p", nil)
	if chatErr != nil {
		t.Fatalf("Chat() after rollback error = %v", chatErr)
	}
	if reply.Text() != "reply from a" {
		t.Errorf("Chat() = %q", reply.Text())
	}
}

func TestSupervisor_RollbackFailureEntersFailedState(t *testing.T) {
	ctx := context.Background()
	a := newFakeAdapter("a")
	b := newFakeAdapter("b")
	b.startErr = errors.New("b is broken")
	sup, _ := newTestSupervisor(t, a, b)

	if err := sup.Start(ctx); err != nil {
		t.Fatal(err)
	}

	// Make a's restart fail once, so the rollback fails too.
	a.mu.Lock()
	a.failNextStarts = 1
	a.mu.Unlock()

	if err := sup.Swap(ctx, "b"); err == nil {
		t.Fatal("expected swap + rollback failure")
	}

	if _, err := sup.Active(); !errors.Is(err, ErrNoActiveRuntime) {
		t.Errorf("Active() error = %v, want ErrNoActiveRuntime in failed state", err)
	}
	if sup.State() != "failed" {
		t.Errorf("State() = %q, want failed", sup.State())
	}

	// A later successful swap recovers the supervisor.
	if err := sup.Swap(ctx, "a"); err != nil {
		t.Fatalf("recovery Swap() error = %v", err)
	}
	active, err := sup.Active()
	if err != nil || active.ID() != "a" {
		t.Errorf("Active() = %v, %v after recovery", active, err)
	}
}

func TestSupervisor_SwapFailureWithoutPrevious(t *testing.T) {
	ctx := context.Background()
	b := newFakeAdapter("b")
	b.startErr = errors.New("broken")
	sup, _ := newTestSupervisor(t, newFakeAdapter("a"), b)

	_ = sup.Start(ctx)
	_ = sup.Shutdown(ctx)

	// No previous runtime to roll back to: the supervisor fails outright.
	if err := sup.Swap(ctx, "b"); err == nil {
		t.Fatal("expected swap failure")
	}
	if _, err := sup.Active(); !errors.Is(err, ErrNoActiveRuntime) {
		t.Errorf("Active() error = %v, want ErrNoActiveRuntime", err)
	}
}

func TestSupervisor_Shutdown(t *testing.T) {
	ctx := context.Background()
	a := newFakeAdapter("a")
	sup, _ := newTestSupervisor(t, a)

	if err := sup.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := sup.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if a.isRunning() {
		t.Error("runtime still running after shutdown")
	}
	if _, err := sup.Active(); !errors.Is(err, ErrNoActiveRuntime) {
		t.Errorf("Active() error = %v after shutdown", err)
	}

	// Shutdown again is a no-op.
	if err := sup.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestSupervisor_StartTwice(t *testing.T) {
	ctx := context.Background()
	sup, _ := newTestSupervisor(t, newFakeAdapter("a"))

	if err := sup.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := sup.Start(ctx); err == nil {
		t.Error("second Start() must fail while a runtime is active")
	}
}
