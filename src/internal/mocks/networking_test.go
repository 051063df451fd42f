package mocks

import (
	"context"
	"errors"
	"testing"

	"github.com/maksimkurb/keen-netstate/src/internal/reconcile"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// TestMockStateProvider_DefaultBehavior tests default mock behavior
func TestMockStateProvider_DefaultBehavior(t *testing.T) {
	s := state.New()
	s.Interfaces.Push(state.NewInterface("eth0", state.InterfaceTypeEthernet))
	mock := NewMockStateProvider(s)

	got, err := mock.CurrentState(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got.Interfaces.Len() != 1 {
		t.Errorf("Expected 1 interface, got %d", got.Interfaces.Len())
	}

	// The returned state is a copy
	got.Interfaces.Push(state.NewInterface("eth1", state.InterfaceTypeEthernet))
	if s.Interfaces.Len() != 1 {
		t.Error("Expected the configured state to stay untouched")
	}
	if mock.CurrentStateCalls != 1 {
		t.Errorf("Expected 1 call, got %d", mock.CurrentStateCalls)
	}

	empty, err := (&MockStateProvider{}).CurrentState(context.Background())
	if err != nil || empty == nil || empty.Interfaces.Len() != 0 {
		t.Errorf("Expected an empty state, got %v / %v", empty, err)
	}
}

// TestMockApplier_CustomBehavior tests custom function behavior
func TestMockApplier_CustomBehavior(t *testing.T) {
	wantErr := errors.New("busy")
	mock := NewMockApplier()
	mock.ApplyPlanFunc = func(ctx context.Context, plan *reconcile.Plan) error {
		return wantErr
	}

	plan := &reconcile.Plan{}
	if err := mock.ApplyPlan(context.Background(), plan); err != wantErr {
		t.Errorf("Expected custom error, got: %v", err)
	}
	if mock.ApplyPlanCalls != 1 || len(mock.Plans) != 1 || mock.Plans[0] != plan {
		t.Error("Expected the plan to be recorded")
	}
}

func TestMockSettler(t *testing.T) {
	mock := NewMockSettler(2, "eth0")

	for i := 1; i <= 2; i++ {
		pending, _ := mock.Pending(context.Background())
		if len(pending) != 1 {
			t.Errorf("poll %d: expected eth0 pending, got %v", i, pending)
		}
	}
	if pending, _ := mock.Pending(context.Background()); len(pending) != 0 {
		t.Errorf("Expected nothing pending after 2 polls, got %v", pending)
	}
}
