package journal

import (
	"context"
	log "log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/journal/sqlstore"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/kv"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/sakti"
)

// Log is the durable journal facade used by the phase coordinator and the
// recovery worker: every status transition is written cold to sqlstore and
// mirrored hot into the KV store so readers with only cache access (e.g. a
// status dashboard) don't have to hit the database.
type Log struct {
	repo    *sqlstore.Repository
	kvStore kv.Store
	hotTTL  time.Duration
}

// NewLog builds a Log. hotTTL bounds how long the KV mirror survives;
// sqlstore remains authoritative.
func NewLog(repo *sqlstore.Repository, kvStore kv.Store, hotTTL time.Duration) *Log {
	return &Log{repo: repo, kvStore: kvStore, hotTTL: hotTTL}
}

func mirrorKey(txID sakti.UUID) string {
	return "sakti:txlog:" + txID.String()
}

// Begin writes the initial PENDING row for tc.
func (l *Log) Begin(ctx context.Context, tc *sakti.TransactionContext) error {
	payload, err := Marshal(tc.Journal(), "")
	if err != nil {
		return err
	}
	return l.replicate(ctx, tc.TxID, sqlstore.StatusPending, func(ctx context.Context) error {
		return l.repo.Insert(ctx, tc.TxID.String(), tc.BusinessKey, payload)
	})
}

// Transition records tc moving to status, with errMsg set for terminal
// failure states.
func (l *Log) Transition(ctx context.Context, tc *sakti.TransactionContext, status sqlstore.Status, errMsg string) error {
	payload, err := Marshal(tc.Journal(), errMsg)
	if err != nil {
		return err
	}
	return l.replicate(ctx, tc.TxID, status, func(ctx context.Context) error {
		return l.repo.UpdateStatus(ctx, tc.TxID.String(), status, payload)
	})
}

// replicate runs the cold SQL write and the hot KV mirror write
// concurrently and waits for both, the way the teacher's TaskRunner
// (golang.org/x/sync/errgroup) replicates registry and store-repository
// changes to passive target paths after phase 1 commits before tr.Wait()
// lets the caller proceed. The cold write via writeSQL is authoritative:
// its error is returned and fails the caller. The hot mirror is advisory —
// a reader with only cache access uses it, but sqlstore remains the source
// of truth — so a mirror failure is logged and swallowed inside the group,
// never surfaced as replicate's error.
func (l *Log) replicate(ctx context.Context, txID sakti.UUID, status sqlstore.Status, writeSQL func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return writeSQL(gctx)
	})
	g.Go(func() error {
		if err := l.kvStore.Set(gctx, mirrorKey(txID), string(status), l.hotTTL); err != nil {
			log.Warn("hot mirror write failed", "txId", txID.String(), "error", err)
		}
		return nil
	})
	return g.Wait()
}

// StalePending returns rows the recovery worker should attempt to resolve.
func (l *Log) StalePending(ctx context.Context, stallThreshold time.Duration, maxRetries, limit int) ([]sqlstore.Record, error) {
	return l.repo.ListStalePending(ctx, stallThreshold, maxRetries, limit)
}

// IncrementRetry bumps the retry counter on a stalled row between sweeps.
func (l *Log) IncrementRetry(ctx context.Context, txID string) error {
	return l.repo.IncrementRetry(ctx, txID)
}

// GetOne fetches the durable record for txID.
func (l *Log) GetOne(ctx context.Context, txID string) (sqlstore.Record, error) {
	return l.repo.GetOne(ctx, txID)
}
