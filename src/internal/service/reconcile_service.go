package service

import (
	"context"
	"sync"
	"time"

	"github.com/maksimkurb/keen-netstate/src/internal/checkpoint"
	"github.com/maksimkurb/keen-netstate/src/internal/domain"
	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/log"
	"github.com/maksimkurb/keen-netstate/src/internal/metrics"
	"github.com/maksimkurb/keen-netstate/src/internal/reconcile"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// rollbackTimeout bounds a rollback after a failed apply. It runs on a fresh
// context so that a cancelled apply still rolls back.
const rollbackTimeout = 2 * time.Minute

// ApplyOptions configures a single Apply call.
type ApplyOptions struct {
	// DryRun computes the plan without touching the system.
	DryRun bool
	// NoVerify skips verification even when the settings enable it.
	NoVerify bool
}

// ApplyResult describes a finished Apply.
type ApplyResult struct {
	// Plan is the computed plan.
	Plan *reconcile.Plan
	// Applied is false for dry runs and empty plans.
	Applied bool
	// Checkpoint is the id of the checkpoint the apply ran under, if any.
	Checkpoint string
	// Attempts is the number of times the plan was applied.
	Attempts int
	// Verified is true when the applied state passed verification.
	Verified bool
}

// ReconcileService orchestrates planning, applying and verifying.
//
// An apply follows a fixed sequence: create a checkpoint, apply the plan
// with bounded retries, wait for interfaces to settle, verify and commit.
// Any failure after the checkpoint exists rolls it back.
type ReconcileService struct {
	provider     domain.StateProvider
	applier      domain.Applier
	settler      domain.Settler
	checkpointer domain.Checkpointer
	engine       *reconcile.Engine
	settings     ApplySettings
	metrics      *metrics.Recorder
	log          *log.Logger

	// mu serializes applies.
	mu sync.Mutex

	// sleep waits between settle polls; tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewReconcileService creates a new reconcile service.
//
// Parameters:
//   - deps: provider, applier, settler, checkpointer, engine and logger
//   - settings: retry, checkpoint, settle and verification settings
//   - recorder: metrics recorder (optional, can be nil)
func NewReconcileService(deps *domain.AppDependencies, settings ApplySettings, recorder *metrics.Recorder) *ReconcileService {
	if settings.RetryAttempts < 1 {
		settings.RetryAttempts = 1
	}
	logger := deps.Logger()
	if logger == nil {
		logger = log.Discard()
	}
	return &ReconcileService{
		provider:     deps.StateProvider(),
		applier:      deps.Applier(),
		settler:      deps.Settler(),
		checkpointer: deps.Checkpointer(),
		engine:       deps.Engine(),
		settings:     settings,
		metrics:      recorder,
		log:          logger,
		sleep:        sleepContext,
	}
}

// CurrentState returns the current state of the system.
func (s *ReconcileService) CurrentState(ctx context.Context) (*state.NetworkState, error) {
	return s.provider.CurrentState(ctx)
}

// Plan computes the plan that moves the system to desired.
func (s *ReconcileService) Plan(ctx context.Context, desired *state.NetworkState) (*reconcile.Plan, error) {
	plan, err := s.plan(ctx, desired)
	s.metrics.ObserveOperation(metrics.OperationPlan, err)
	return plan, err
}

func (s *ReconcileService) plan(ctx context.Context, desired *state.NetworkState) (*reconcile.Plan, error) {
	current, err := s.provider.CurrentState(ctx)
	if err != nil {
		return nil, err
	}
	plan, err := s.engine.Plan(ctx, desired, current)
	if err != nil {
		return nil, err
	}
	s.metrics.ObservePlan(plan)
	return plan, nil
}

// Verify checks that the current state satisfies desired.
func (s *ReconcileService) Verify(ctx context.Context, desired *state.NetworkState) error {
	err := s.verify(ctx, desired)
	s.metrics.ObserveOperation(metrics.OperationVerify, err)
	return err
}

func (s *ReconcileService) verify(ctx context.Context, desired *state.NetworkState) error {
	observed, err := s.provider.CurrentState(ctx)
	if err != nil {
		return err
	}
	return s.engine.Verify(desired, observed, s.settings.IgnoredInterfaces)
}

// Apply moves the system to desired.
//
// Validation and planning errors abort before anything is touched. Once a
// checkpoint exists, any error rolls it back and is returned unchanged; a
// failed rollback is logged. Concurrent calls run one after another.
func (s *ReconcileService) Apply(ctx context.Context, desired *state.NetworkState, opts ApplyOptions) (*ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.apply(ctx, desired, opts)
	s.metrics.ObserveOperation(metrics.OperationApply, err)
	return result, err
}

func (s *ReconcileService) apply(ctx context.Context, desired *state.NetworkState, opts ApplyOptions) (*ApplyResult, error) {
	plan, err := s.plan(ctx, desired)
	if err != nil {
		return nil, err
	}
	result := &ApplyResult{Plan: plan}

	if plan.Empty() {
		s.log.Infof("Nothing to do, the system is in the desired state")
		return result, nil
	}
	if opts.DryRun {
		s.log.Infof("Dry run: %s", plan.Summary())
		return result, nil
	}

	s.log.Infof("Applying: %s", plan.Summary())
	started := time.Now()

	cp, err := s.createCheckpoint(ctx)
	if err != nil {
		return nil, err
	}
	if cp != nil {
		result.Checkpoint = cp.ID()
	}

	err = s.run(ctx, cp, desired, plan, opts, result)
	if err != nil {
		s.log.Errorf("Apply failed: %v", err)
		s.rollback(ctx, cp, err)
	} else if cp != nil {
		if err = cp.Commit(ctx); err != nil {
			s.log.Errorf("Failed to commit checkpoint %s: %v", cp.ID(), err)
		}
	}
	s.metrics.ObserveApply(time.Since(started), result.Attempts, err)
	if err != nil {
		return result, err
	}

	result.Applied = true
	s.log.Infof("Applied in %s", time.Since(started).Round(time.Millisecond))
	return result, nil
}

// run is the part of an apply that happens under the checkpoint.
func (s *ReconcileService) run(ctx context.Context, cp checkpoint.Checkpoint, desired *state.NetworkState, plan *reconcile.Plan, opts ApplyOptions, result *ApplyResult) error {
	attempts, err := s.applyWithRetry(ctx, plan)
	result.Attempts = attempts
	if err != nil {
		return err
	}

	if err := s.extendIfNeeded(ctx, cp); err != nil {
		return err
	}
	if err := s.waitSettled(ctx, cp); err != nil {
		return err
	}

	if s.settings.Verify && !opts.NoVerify {
		if err := s.verify(ctx, desired); err != nil {
			return err
		}
		result.Verified = true
	}

	return s.extendIfNeeded(ctx, cp)
}

func (s *ReconcileService) rollback(ctx context.Context, cp checkpoint.Checkpoint, cause error) {
	if cp == nil {
		s.log.Warnf("No checkpoint to roll back, the system may be partially configured")
		return
	}
	s.metrics.ObserveRollback(cause)

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	s.log.WithField("checkpoint", cp.ID()).Warnf("Rolling back")
	if err := cp.Rollback(rctx); err != nil {
		s.log.WithField("checkpoint", cp.ID()).Errorf("Rollback failed: %v", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return errors.Wrap(errors.KindTimeout, "wait cancelled", ctx.Err())
	case <-t.C:
		return nil
	}
}
