package mocks

import (
	"context"

	"github.com/maksimkurb/keen-netstate/src/internal/reconcile"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// MockStateProvider is a mock implementation of the StateProvider interface.
//
// This allows testing services without reading the kernel.
type MockStateProvider struct {
	// CurrentStateFunc is called by CurrentState if not nil
	CurrentStateFunc func(ctx context.Context) (*state.NetworkState, error)

	// State is returned (as a copy) when CurrentStateFunc is nil
	State *state.NetworkState

	// Track calls for verification in tests
	CurrentStateCalls int
}

// CurrentState returns the configured state.
func (m *MockStateProvider) CurrentState(ctx context.Context) (*state.NetworkState, error) {
	m.CurrentStateCalls++
	if m.CurrentStateFunc != nil {
		return m.CurrentStateFunc(ctx)
	}
	if m.State == nil {
		return state.New(), nil
	}
	return m.State.Clone(), nil
}

// NewMockStateProvider creates a mock provider returning s.
func NewMockStateProvider(s *state.NetworkState) *MockStateProvider {
	return &MockStateProvider{State: s}
}

// MockApplier is a mock implementation of the Applier interface.
//
// Every plan passed to ApplyPlan is recorded in Plans.
type MockApplier struct {
	// ApplyPlanFunc is called by ApplyPlan if not nil
	ApplyPlanFunc func(ctx context.Context, plan *reconcile.Plan) error

	Plans          []*reconcile.Plan
	ApplyPlanCalls int
}

// ApplyPlan records plan.
func (m *MockApplier) ApplyPlan(ctx context.Context, plan *reconcile.Plan) error {
	m.ApplyPlanCalls++
	m.Plans = append(m.Plans, plan)
	if m.ApplyPlanFunc != nil {
		return m.ApplyPlanFunc(ctx, plan)
	}
	return nil
}

// NewMockApplier creates a new mock applier that accepts every plan.
func NewMockApplier() *MockApplier {
	return &MockApplier{}
}

// MockSettler is a mock implementation of the Settler interface.
type MockSettler struct {
	// PendingFunc is called by Pending if not nil
	PendingFunc func(ctx context.Context) ([]string, error)

	PendingCalls int
}

// Pending reports nothing pending by default.
func (m *MockSettler) Pending(ctx context.Context) ([]string, error) {
	m.PendingCalls++
	if m.PendingFunc != nil {
		return m.PendingFunc(ctx)
	}
	return nil, nil
}

// NewMockSettler creates a settler that reports the given interfaces as
// pending for the first polls calls and settled afterwards.
func NewMockSettler(polls int, pending ...string) *MockSettler {
	m := &MockSettler{}
	m.PendingFunc = func(context.Context) ([]string, error) {
		if m.PendingCalls <= polls {
			return pending, nil
		}
		return nil, nil
	}
	return m
}
