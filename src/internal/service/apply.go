package service

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/maksimkurb/keen-netstate/src/internal/checkpoint"
	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/reconcile"
)

// extendThreshold is the share of the rollback window after which the
// checkpoint is extended.
const extendThreshold = 0.5

// createCheckpoint returns nil when checkpoints are disabled.
func (s *ReconcileService) createCheckpoint(ctx context.Context) (checkpoint.Checkpoint, error) {
	if s.checkpointer == nil {
		s.log.Warnf("Checkpoints are disabled, a failed apply will not be rolled back")
		return nil, nil
	}
	cp, err := s.checkpointer.Create(ctx, s.settings.CheckpointTimeout)
	if err != nil {
		return nil, err
	}
	s.log.WithField("checkpoint", cp.ID()).Debugf("Checkpoint created")
	return cp, nil
}

// applyWithRetry applies plan, repeating the whole plan on BackendError with
// a fixed delay. Other errors are final. It returns the number of attempts.
func (s *ReconcileService) applyWithRetry(ctx context.Context, plan *reconcile.Plan) (int, error) {
	attempts := 0
	op := func() error {
		attempts++
		err := s.applier.ApplyPlan(ctx, plan)
		if err == nil {
			return nil
		}
		if !errors.IsKind(err, errors.KindBackend) {
			return backoff.Permanent(err)
		}
		if attempts < s.settings.RetryAttempts {
			s.log.WithField("attempt", attempts).Warnf("Apply failed, retrying in %s: %v", s.settings.RetryInterval, err)
		}
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.settings.RetryInterval), uint64(s.settings.RetryAttempts-1)),
		ctx,
	)
	err := backoff.Retry(op, b)
	if err != nil && ctx.Err() != nil && !errors.IsKind(err, errors.KindTimeout) {
		err = errors.Wrap(errors.KindTimeout, "apply cancelled", ctx.Err())
	}
	return attempts, err
}

// extendIfNeeded extends cp by a full window once more than half of the
// current window has passed.
func (s *ReconcileService) extendIfNeeded(ctx context.Context, cp checkpoint.Checkpoint) error {
	if cp == nil {
		return nil
	}
	if checkpoint.Elapsed(cp, time.Now()) <= extendThreshold {
		return nil
	}
	s.log.WithField("checkpoint", cp.ID()).Debugf("Extending rollback window by %s", s.settings.CheckpointTimeout)
	return cp.Extend(ctx, s.settings.CheckpointTimeout)
}

// waitSettled polls until no interface is in transition. It fails with
// Timeout when interfaces are still pending after the settle timeout.
func (s *ReconcileService) waitSettled(ctx context.Context, cp checkpoint.Checkpoint) error {
	if s.settler == nil {
		return nil
	}
	deadline := time.Now().Add(s.settings.SettleTimeout)

	for {
		pending, err := s.settler.Pending(ctx)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}
		if !time.Now().Before(deadline) {
			return errors.NewTimeout("interfaces did not settle within %s: %s",
				s.settings.SettleTimeout, strings.Join(pending, ", "))
		}
		s.log.Debugf("Waiting for %s to settle", strings.Join(pending, ", "))

		if err := s.sleep(ctx, s.settings.SettlePollInterval); err != nil {
			return err
		}
		if err := s.extendIfNeeded(ctx, cp); err != nil {
			return err
		}
	}
}
