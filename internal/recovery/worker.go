// Package recovery implements component 11: the periodic scanner that
// promotes stalled tx_log rows to a terminal state by re-running
// compensation (spec.md §4.9). Grounded on the teacher's
// common/transaction_logger.go processExpiredTransactionLogs (claim a
// batch, replay logged functions in reverse, best-effort) and
// cassandra/transactionlog.go's GetOne (claim under an advisory lock,
// process, release).
package recovery

import (
	"context"
	"errors"
	log "log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/compensator"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/journal"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/journal/sqlstore"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/lock"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/metrics"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/sakti"
)

const lockKeyPrefix = "recovery:tx:"

// rowConcurrency bounds how many stalled rows a single scan compensates at
// once, the way the teacher's TaskRunner limits concurrent goroutines by a
// buffered channel.
const rowConcurrency = 4

// claimWaitMs bounds how long a single row-claim attempt waits: a scan
// should skip a contended row and move on, not block the whole sweep.
const claimWaitMs = 200

// Worker is the recovery_worker described in spec.md §4.9: on every tick it
// finds PENDING/ROLLING_BACK rows idle past the stall threshold and either
// resolves them to ROLLED_BACK via compensation or exhausts them to FAILED.
type Worker struct {
	Journal     *journal.Log
	Compensator *compensator.Executor
	Locks       *lock.Manager
	Metrics     *metrics.Recorder

	Interval       time.Duration
	StallThreshold time.Duration
	MaxRetries     int
	ScanLimit      int

	scanning atomic.Bool
}

// NewWorker builds a Worker from the resolved configuration values
// (spec.md §6: recovery.intervalMs, recovery.stallThresholdMs,
// recovery.maxRetries).
func NewWorker(j *journal.Log, c *compensator.Executor, l *lock.Manager, m *metrics.Recorder, interval, stallThreshold time.Duration, maxRetries int) *Worker {
	return &Worker{
		Journal:        j,
		Compensator:    c,
		Locks:          l,
		Metrics:        m,
		Interval:       interval,
		StallThreshold: stallThreshold,
		MaxRetries:     maxRetries,
		ScanLimit:      100,
	}
}

// Run blocks, ticking every w.Interval until ctx is cancelled. Only one scan
// runs at a time; a tick that fires while a scan is still in flight is
// skipped rather than queued (spec.md §4.9 concurrency: "at most one
// recovery scan in-flight; overlapping ticks are skipped").
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	if !w.scanning.CompareAndSwap(false, true) {
		log.Debug("recovery scan already in flight, skipping tick")
		return
	}
	defer w.scanning.Store(false)

	summary, err := w.Scan(ctx)
	if err != nil {
		log.Warn("recovery scan failed", "error", err)
		return
	}
	log.Info("recovery scan complete",
		"examined", summary.Examined, "rolledBack", summary.RolledBack,
		"failed", summary.Failed, "skipped", summary.Skipped)
}

// Summary reports what one scan did, for logging/metrics.
type Summary struct {
	Examined   int
	RolledBack int
	Failed     int
	Skipped    int
}

// Scan runs a single sweep: list stale rows, resolve each under a per-row
// advisory lock. Exposed directly (not just via Run) so callers and tests
// can drive a deterministic single pass.
func (w *Worker) Scan(ctx context.Context) (Summary, error) {
	limit := w.ScanLimit
	if limit <= 0 {
		limit = 100
	}
	rows, err := w.Journal.StalePending(ctx, w.StallThreshold, w.MaxRetries, limit)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	summary.Examined = len(rows)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rowConcurrency)
	var rolledBack, failed, skipped atomic.Int64

	for _, row := range rows {
		row := row
		g.Go(func() error {
			outcome, err := w.resolveOne(gctx, row)
			if err != nil {
				log.Warn("recovery: resolving row failed", "txId", row.TxID, "error", err)
				return nil // best-effort: one bad row must not abort the scan
			}
			switch outcome {
			case outcomeRolledBack:
				rolledBack.Add(1)
			case outcomeFailed:
				failed.Add(1)
			case outcomeSkipped:
				skipped.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	summary.RolledBack = int(rolledBack.Load())
	summary.Failed = int(failed.Load())
	summary.Skipped = int(skipped.Load())
	return summary, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeRolledBack
	outcomeFailed
)

// resolveOne claims row under an advisory lock (so a second node's scan
// doesn't compensate it concurrently), then replays its journal via the
// compensating executor.
func (w *Worker) resolveOne(ctx context.Context, row sqlstore.Record) (outcome, error) {
	handle, err := w.Locks.TryLock(ctx, lockKeyPrefix+row.TxID, claimWaitMs, int(w.Interval.Milliseconds()))
	if err != nil {
		return outcomeSkipped, err
	}
	if !handle.IsAcquired() {
		// Another node already owns this row's recovery, or the store is
		// degraded and this node chose not to proceed without real
		// mutual exclusion on a shared SQL row.
		return outcomeSkipped, nil
	}
	defer func() {
		if relErr := handle.Release(context.Background()); relErr != nil {
			log.Warn("recovery: lock release failed", "txId", row.TxID, "error", relErr)
		}
	}()

	fresh, err := w.Journal.GetOne(ctx, row.TxID)
	if err != nil {
		if errors.Is(err, sqlstore.ErrNotFound) {
			return outcomeSkipped, nil
		}
		return outcomeSkipped, err
	}
	if fresh.Status != sqlstore.StatusPending && fresh.Status != sqlstore.StatusRollingBack {
		// Resolved by someone else between the list query and the claim.
		return outcomeSkipped, nil
	}

	payload, err := journal.Unmarshal(fresh.Payload)
	if err != nil {
		return outcomeSkipped, err
	}

	txID, err := sakti.ParseUUID(fresh.TxID)
	if err != nil {
		return outcomeSkipped, err
	}
	tc := sakti.LoadForRecovery(txID, fresh.BusinessKey, sakti.PhaseRollingBack, payload.Entries)

	compErr := w.Compensator.Compensate(ctx, tc)
	for _, entry := range tc.Journal() {
		w.Metrics.CompensationAttempted()
		if entry.Compensated {
			w.Metrics.CompensationSucceeded()
		} else {
			w.Metrics.CompensationFailed()
		}
	}

	if compErr == nil {
		if err := w.Journal.Transition(ctx, tc, sqlstore.StatusRolledBack, payload.Error); err != nil {
			return outcomeSkipped, err
		}
		return outcomeRolledBack, nil
	}

	if err := w.Journal.IncrementRetry(ctx, fresh.TxID); err != nil {
		log.Warn("recovery: increment retry failed", "txId", fresh.TxID, "error", err)
	}
	if fresh.RetryCount+1 >= w.MaxRetries {
		if err := w.Journal.Transition(ctx, tc, sqlstore.StatusFailed, compErr.Error()); err != nil {
			return outcomeSkipped, err
		}
		return outcomeFailed, nil
	}
	return outcomeSkipped, nil
}
