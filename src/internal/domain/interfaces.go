// Package domain defines the collaborator interfaces of the reconciliation
// engine and a container wiring their production implementations.
//
// The engine itself is pure: it reads a desired and a current state and
// emits a plan. Everything that touches the system sits behind the
// interfaces below so services can be tested with the doubles in
// internal/mocks.
package domain

import (
	"context"
	"time"

	"github.com/maksimkurb/keen-netstate/src/internal/checkpoint"
	"github.com/maksimkurb/keen-netstate/src/internal/reconcile"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// StateProvider reads the current network state of the system.
type StateProvider interface {
	// CurrentState returns a full snapshot: every interface with all of its
	// properties, the static routes and the policy rules.
	CurrentState(ctx context.Context) (*state.NetworkState, error)
}

// Applier applies a plan to the system.
//
// ApplyPlan must be idempotent: a plan that failed half way is applied again
// as a whole on retry.
type Applier interface {
	ApplyPlan(ctx context.Context, plan *reconcile.Plan) error
}

// Settler reports interfaces that are still in transition after an apply.
type Settler interface {
	// Pending returns the names of interfaces that have not settled yet.
	Pending(ctx context.Context) ([]string, error)
}

// Checkpointer creates rollback points.
type Checkpointer interface {
	// Create takes a checkpoint that rolls back on its own after timeout
	// unless it is committed or extended first.
	Create(ctx context.Context, timeout time.Duration) (checkpoint.Checkpoint, error)
}
