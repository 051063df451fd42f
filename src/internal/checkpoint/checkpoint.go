// Package checkpoint provides rollback points taken before a plan is applied.
//
// A checkpoint is created before any mutation. It is committed once the
// applied state is verified and rolled back on any failure. A checkpoint
// that is neither committed nor extended before its deadline rolls back on
// its own.
//
// Two backends exist:
//   - Memory: snapshots the current state and restores it through the same
//     planner and applier that made the change
//   - NetworkManager: delegates to the NetworkManager checkpoint API over
//     the system D-Bus
package checkpoint

import (
	"context"
	"time"

	"github.com/maksimkurb/keen-netstate/src/internal/reconcile"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// Checkpoint is a rollback point.
type Checkpoint interface {
	// ID identifies the checkpoint in logs.
	ID() string

	// Timeout is the length of the current rollback window.
	Timeout() time.Duration

	// Deadline is the moment the checkpoint rolls back on its own.
	Deadline() time.Time

	// Extend restarts the rollback window: the new deadline is d from now.
	Extend(ctx context.Context, d time.Duration) error

	// Commit keeps the applied state and discards the checkpoint.
	Commit(ctx context.Context) error

	// Rollback restores the state the checkpoint was taken at.
	Rollback(ctx context.Context) error
}

// StateReader reads the current network state.
type StateReader interface {
	CurrentState(ctx context.Context) (*state.NetworkState, error)
}

// PlanApplier applies a plan.
type PlanApplier interface {
	ApplyPlan(ctx context.Context, plan *reconcile.Plan) error
}

// Planner computes the plan that moves current to desired.
type Planner interface {
	Plan(ctx context.Context, desired, current *state.NetworkState) (*reconcile.Plan, error)
}

// Elapsed returns the share of the rollback window of cp that has passed,
// from 0 right after creation or extension to 1 at the deadline.
func Elapsed(cp Checkpoint, now time.Time) float64 {
	timeout := cp.Timeout()
	if timeout <= 0 {
		return 0
	}
	left := cp.Deadline().Sub(now)
	return float64(timeout-left) / float64(timeout)
}
