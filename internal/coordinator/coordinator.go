package coordinator

import (
	"context"
	"errors"
	log "log/slog"
	"time"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/compensator"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/idempotency"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/journal"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/journal/sqlstore"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/lock"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/metrics"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/sakti"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/txcontext"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/validator"
)

// Work is the caller-supplied business logic run between COLLECTING and
// VALIDATING. It enlists resources and operations on tc (directly, or via
// internal/capture) and returns the participants the coordinator should
// drive through prepare/commit/rollback.
type Work func(ctx context.Context, tc *sakti.TransactionContext) ([]Participant, error)

// Coordinator is the public entry point described in spec.md §4.6.
type Coordinator struct {
	Locks       *lock.Manager
	Idempotency *idempotency.Store
	Contexts    *txcontext.Manager
	Validator   *validator.Validator
	Journal     *journal.Log
	Compensator *compensator.Executor
	Metrics     *metrics.Recorder

	IdempotencyTTL time.Duration
}

// Execute runs a transaction's full lifecycle: duplicate check, lock
// acquisition, context creation, fn, validation, commit-or-compensate, and
// lock release on every exit path.
func (c *Coordinator) Execute(ctx context.Context, lockKey, idempotencyKey string, waitMs, leaseMs int, businessKey string, fn Work) error {
	tc, joined := c.Contexts.CreateOrJoin(ctx, businessKey)
	if joined {
		// Nested call: the owning Execute already holds the lock and
		// idempotency marker and will drive commit/rollback. We just run
		// the callback against the shared context (spec.md §4.6 edge case).
		_, err := fn(txcontext.WithContext(ctx, tc), tc)
		return err
	}

	c.Metrics.TransactionStarted()
	// Normal exit path unbinds directly; EnforceClean is reserved for the
	// genuinely abnormal case (a panic unwinding past this point without
	// reaching the Unbind below) so it only ever logs an actual leak.
	defer c.Contexts.Unbind(tc)
	defer func() {
		if r := recover(); r != nil {
			c.Contexts.EnforceClean(tc.TxID)
			panic(r)
		}
	}()

	if c.Idempotency != nil {
		exists, err := c.Idempotency.Exists(ctx, idempotencyKey)
		if err != nil {
			log.Warn("idempotency pre-check failed, proceeding", "error", err)
		} else if exists {
			return sakti.NewError(sakti.DuplicateRequest, errors.New("idempotency key already in flight or completed"), idempotencyKey)
		}
	}

	handle, err := c.Locks.TryLock(ctx, lockKey, waitMs, leaseMs)
	if err != nil {
		return sakti.NewError(sakti.LockUnavailable, err, lockKey)
	}
	if !handle.IsAcquired() && !handle.Degraded {
		return sakti.NewError(sakti.LockUnavailable, errors.New("lock contended"), lockKey)
	}
	defer func() {
		if relErr := handle.Release(context.Background()); relErr != nil {
			log.Warn("lock release failed", "key", lockKey, "error", relErr)
		}
	}()
	if handle.Degraded {
		tc.AddRiskFlag(sakti.RiskLockBypassed)
	} else {
		tc.AddAcquiredLock(lockKey)
	}

	// Anti-race re-check (spec.md §4.2): the pre-lock Exists above only
	// fast-fails an already-marked duplicate. A second caller that raced
	// past it before either had marked "processing" would otherwise both
	// reach here once the lock manager serializes them. SetNX's own
	// atomicity, not a second Exists, is what actually closes the race:
	// MarkProcessing reports whether this call won the key.
	if c.Idempotency != nil {
		won, err := c.Idempotency.MarkProcessing(ctx, idempotencyKey, c.IdempotencyTTL)
		if err != nil {
			log.Warn("idempotency MarkProcessing failed, proceeding", "error", err)
		} else if !won {
			return sakti.NewError(sakti.DuplicateRequest, errors.New("idempotency key already in flight or completed"), idempotencyKey)
		}
	}

	if err := tc.TransitionTo(sakti.PhaseCollecting); err != nil {
		return sakti.NewError(sakti.InvariantViolation, err, nil)
	}

	if err := c.Journal.Begin(ctx, tc); err != nil {
		log.Warn("journal Begin failed", "txId", tc.TxID.String(), "error", err)
	}

	execCtx := txcontext.WithContext(ctx, tc)
	participants, err := fn(execCtx, tc)
	if err != nil {
		return c.rollback(ctx, tc, participants, idempotencyKey, wrapBusinessError(err))
	}

	if err := tc.TransitionTo(sakti.PhaseValidating); err != nil {
		return c.rollback(ctx, tc, participants, idempotencyKey, sakti.NewError(sakti.InvariantViolation, err, nil))
	}
	result := c.Validator.Run(ctx, tc)
	if !result.CanProceed {
		return c.rollback(ctx, tc, participants, idempotencyKey,
			sakti.NewError(sakti.ValidationFailed, errors.New("pre-commit validation failed"), result.Issues))
	}

	if err := tc.TransitionTo(sakti.PhasePrepared); err != nil {
		return c.rollback(ctx, tc, participants, idempotencyKey, sakti.NewError(sakti.InvariantViolation, err, nil))
	}
	for _, p := range participants {
		if err := p.Prepare(ctx); err != nil {
			return c.rollback(ctx, tc, participants, idempotencyKey,
				sakti.NewError(sakti.ValidationFailed, err, p.Name()))
		}
	}
	if err := tc.TransitionTo(sakti.PhaseCommitting); err != nil {
		return c.rollback(ctx, tc, participants, idempotencyKey, sakti.NewError(sakti.InvariantViolation, err, nil))
	}

	for _, p := range participants {
		if err := p.Commit(ctx); err != nil {
			return c.rollback(ctx, tc, participants, idempotencyKey,
				sakti.NewError(sakti.ParticipantCommitFailed, err, p.Name()))
		}
		tc.MarkPrepared(p.Name())
	}

	if err := tc.TransitionTo(sakti.PhaseCommitted); err != nil {
		return sakti.NewError(sakti.InvariantViolation, err, nil)
	}
	if c.Idempotency != nil {
		if err := c.Idempotency.MarkCompleted(ctx, idempotencyKey, c.IdempotencyTTL); err != nil {
			log.Warn("idempotency MarkCompleted failed", "error", err)
		}
	}
	if err := c.Journal.Transition(ctx, tc, sqlstore.StatusCommitted, ""); err != nil {
		log.Warn("journal commit transition failed", "txId", tc.TxID.String(), "error", err)
	}
	c.Metrics.TransactionCommitted(tc.Elapsed().Seconds())
	c.Metrics.ObserveRiskFlags(tc.RiskMetrics())
	return nil
}

// wrapBusinessError wraps a business-logic error as PARTICIPANT_COMMIT_FAILED
// unless it is already a *sakti.Error (fn is expected to return domain
// errors for anything it wants classified differently).
func wrapBusinessError(err error) error {
	var se *sakti.Error
	if errors.As(err, &se) {
		return se
	}
	return sakti.NewError(sakti.ParticipantCommitFailed, err, nil)
}

// rollback transitions tc through ROLLING_BACK, locally aborts every
// participant, compensates any already-committed effects via the journal,
// and resolves to ROLLED_BACK or FAILED.
func (c *Coordinator) rollback(ctx context.Context, tc *sakti.TransactionContext, participants []Participant, idempotencyKey string, cause error) error {
	if !tc.Phase.IsTerminal() && tc.Phase != sakti.PhaseRollingBack {
		if err := tc.TransitionTo(sakti.PhaseRollingBack); err != nil {
			log.Warn("could not transition to ROLLING_BACK", "txId", tc.TxID.String(), "error", err)
		}
	}

	for _, p := range participants {
		if err := p.Rollback(ctx); err != nil {
			log.Warn("participant rollback failed", "participant", p.Name(), "error", err)
		}
	}

	compErr := c.Compensator.Compensate(ctx, tc)
	for _, entry := range tc.Journal() {
		c.Metrics.CompensationAttempted()
		if entry.Compensated {
			c.Metrics.CompensationSucceeded()
		} else {
			c.Metrics.CompensationFailed()
		}
	}

	if compErr != nil {
		if err := tc.TransitionTo(sakti.PhaseFailed); err != nil {
			log.Warn("could not transition to FAILED", "txId", tc.TxID.String(), "error", err)
		}
		if c.Idempotency != nil {
			if err := c.Idempotency.Rollback(ctx, idempotencyKey); err != nil {
				log.Warn("idempotency rollback failed", "error", err)
			}
		}
		if err := c.Journal.Transition(ctx, tc, sqlstore.StatusFailed, cause.Error()); err != nil {
			log.Warn("journal failed transition failed", "txId", tc.TxID.String(), "error", err)
		}
		c.Metrics.TransactionFailed(tc.Elapsed().Seconds())
		c.Metrics.ObserveRiskFlags(tc.RiskMetrics())
		return sakti.NewError(sakti.CompensationFailed, compErr, cause)
	}

	if err := tc.TransitionTo(sakti.PhaseRolledBack); err != nil {
		log.Warn("could not transition to ROLLED_BACK", "txId", tc.TxID.String(), "error", err)
	}
	if c.Idempotency != nil {
		if err := c.Idempotency.Rollback(ctx, idempotencyKey); err != nil {
			log.Warn("idempotency rollback failed", "error", err)
		}
	}
	if err := c.Journal.Transition(ctx, tc, sqlstore.StatusRolledBack, cause.Error()); err != nil {
		log.Warn("journal rolled-back transition failed", "txId", tc.TxID.String(), "error", err)
	}
	c.Metrics.TransactionRolledBack(tc.Elapsed().Seconds())
	c.Metrics.ObserveRiskFlags(tc.RiskMetrics())
	return cause
}
