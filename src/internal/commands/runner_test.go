package commands

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func waitDone(t *testing.T, r *RestartableRunner) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Runner did not stop")
	}
}

func TestRestartableRunner_RestartsUntilSuccess(t *testing.T) {
	calls := 0
	r := NewRestartableRunner(RunnerConfig{Name: "test", RestartBackoff: time.Millisecond}, func(context.Context) error {
		calls++
		switch calls {
		case 1:
			return fmt.Errorf("boom")
		case 2:
			panic("kaboom")
		}
		return nil
	})

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, r)

	if calls != 3 || r.RestartCount() != 2 {
		t.Errorf("Expected 3 calls and 2 restarts, got %d and %d", calls, r.RestartCount())
	}
	if r.LastError() != nil || r.IsRunning() {
		t.Errorf("Expected a clean stop, got err=%v running=%v", r.LastError(), r.IsRunning())
	}
}

func TestRestartableRunner_MaxRestarts(t *testing.T) {
	r := NewRestartableRunner(RunnerConfig{Name: "test", MaxRestarts: 3, RestartBackoff: time.Millisecond}, func(context.Context) error {
		return fmt.Errorf("always failing")
	})

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, r)

	if r.RestartCount() != 3 {
		t.Errorf("Expected 3 restarts, got %d", r.RestartCount())
	}
	if r.LastError() == nil {
		t.Error("Expected the last error to be kept")
	}
}

func TestRestartableRunner_Stop(t *testing.T) {
	r := NewRestartableRunner(RunnerConfig{Name: "test"}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err == nil {
		t.Error("Expected an error when starting twice")
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if r.IsRunning() {
		t.Error("Expected the runner to be stopped")
	}
	if r.RestartCount() != 0 {
		t.Errorf("Expected no restarts on cancellation, got %d", r.RestartCount())
	}
}
