package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/compensator"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/idempotency"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/journal"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/journal/sqlstore"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/kv"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/lock"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/metrics"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/sakti"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/txcontext"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/validator"
)

type fakeParticipant struct {
	name       string
	commitErr  error
	rollbackFn func()
	committed  bool
}

func (p *fakeParticipant) Name() string                  { return p.name }
func (p *fakeParticipant) Prepare(context.Context) error { return nil }
func (p *fakeParticipant) Commit(context.Context) error {
	if p.commitErr != nil {
		return p.commitErr
	}
	p.committed = true
	return nil
}
func (p *fakeParticipant) Rollback(context.Context) error {
	if p.rollbackFn != nil {
		p.rollbackFn()
	}
	return nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := sqlstore.NewWithDB(sqlx.NewDb(db, "postgres"))

	store := kv.NewFakeStore("sakti:lock:")
	v := validator.New(30*time.Second, time.Second, func(context.Context, string) error { return nil })

	mock.MatchExpectationsInOrder(false)
	mock.ExpectExec("INSERT INTO tx_log").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE tx_log SET status").WillReturnResult(sqlmock.NewResult(0, 1))

	c := &Coordinator{
		Locks:          lock.NewManager(store, true),
		Idempotency:    idempotency.NewStore(store, "sakti:idemp:"),
		Contexts:       txcontext.NewManager(),
		Validator:      v,
		Journal:        journal.NewLog(repo, store, time.Minute),
		Compensator:    compensator.NewExecutor(func(string) (*sqlx.DB, error) { return nil, errors.New("no datasource in this test") }),
		Metrics:        metrics.NewRecorder(prometheus.NewRegistry()),
		IdempotencyTTL: time.Minute,
	}
	return c, mock
}

func TestExecuteHappyPathCommits(t *testing.T) {
	c, _ := newTestCoordinator(t)
	p := &fakeParticipant{name: "orders-db"}

	err := c.Execute(context.Background(), "tx:1", "idem:1", 200, 5000, "order-1",
		func(ctx context.Context, tc *sakti.TransactionContext) ([]Participant, error) {
			tc.EnlistResource("orders-db", sakti.ResourceDatabase)
			tc.MarkPrepared("orders-db")
			return []Participant{p}, nil
		})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !p.committed {
		t.Fatalf("participant was not committed")
	}
}

func TestExecuteDuplicateIdempotencyKeyFails(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()
	_, _ = c.Idempotency.MarkProcessing(ctx, "idem:dup", time.Minute)

	err := c.Execute(ctx, "tx:2", "idem:dup", 200, 5000, "order-2",
		func(ctx context.Context, tc *sakti.TransactionContext) ([]Participant, error) {
			t.Fatalf("fn should not run for a duplicate request")
			return nil, nil
		})
	if sakti.KindOf(err) != sakti.DuplicateRequest {
		t.Fatalf("error kind = %v, want DuplicateRequest", sakti.KindOf(err))
	}
}

// TestExecuteClosesPostLockIdempotencyRace covers the window the pre-lock
// Exists check alone cannot close: two callers both pass Exists (neither has
// marked "processing" yet), the lock manager serializes them, the first
// runs to completion and releases the lock, and the second then acquires
// the lock. It must not proceed to run fn a second time — MarkProcessing's
// own SetNX result, not a second Exists call, is what has to catch this.
func TestExecuteClosesPostLockIdempotencyRace(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	// Simulates the second caller's pre-lock Exists racing ahead of the
	// first caller's MarkProcessing: both observe "missing" here.
	exists, err := c.Idempotency.Exists(ctx, "idem:race")
	if err != nil || exists {
		t.Fatalf("Exists pre-race = (%v, %v), want (false, nil)", exists, err)
	}

	p := &fakeParticipant{name: "orders-db"}
	err = c.Execute(ctx, "tx:race", "idem:race", 200, 5000, "order-race",
		func(ctx context.Context, tc *sakti.TransactionContext) ([]Participant, error) {
			tc.EnlistResource("orders-db", sakti.ResourceDatabase)
			tc.MarkPrepared("orders-db")
			return []Participant{p}, nil
		})
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if !p.committed {
		t.Fatalf("first Execute did not commit")
	}

	// The second caller, having already observed "missing" at its pre-lock
	// Exists check, now reaches the lock and must still be turned away by
	// the post-lock MarkProcessing check rather than re-running fn.
	won, err := c.Idempotency.MarkProcessing(ctx, "idem:race", time.Minute)
	if err != nil {
		t.Fatalf("post-lock MarkProcessing: %v", err)
	}
	if won {
		t.Fatalf("post-lock MarkProcessing won = true, want false: the race was not closed")
	}
}

func TestExecuteLockContentionFails(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	h, err := c.Locks.TryLock(ctx, "tx:3", 5000, 30000)
	if err != nil || !h.IsAcquired() {
		t.Fatalf("seed lock: acquired=%v err=%v", h.IsAcquired(), err)
	}
	defer h.Release(ctx)

	execErr := c.Execute(ctx, "tx:3", "idem:3", 60, 5000, "order-3",
		func(ctx context.Context, tc *sakti.TransactionContext) ([]Participant, error) {
			t.Fatalf("fn should not run when lock is contended")
			return nil, nil
		})
	if sakti.KindOf(execErr) != sakti.LockUnavailable {
		t.Fatalf("error kind = %v, want LockUnavailable", sakti.KindOf(execErr))
	}
}

func TestExecuteParticipantCommitFailureRollsBack(t *testing.T) {
	c, _ := newTestCoordinator(t)
	good := &fakeParticipant{name: "orders-db"}
	bad := &fakeParticipant{name: "billing-db", commitErr: errors.New("constraint violation")}
	var rolledBack []string

	good.rollbackFn = func() { rolledBack = append(rolledBack, "orders-db") }
	bad.rollbackFn = func() { rolledBack = append(rolledBack, "billing-db") }

	err := c.Execute(context.Background(), "tx:4", "idem:4", 200, 5000, "order-4",
		func(ctx context.Context, tc *sakti.TransactionContext) ([]Participant, error) {
			tc.EnlistResource("orders-db", sakti.ResourceDatabase)
			tc.MarkPrepared("orders-db")
			tc.EnlistResource("billing-db", sakti.ResourceDatabase)
			tc.MarkPrepared("billing-db")
			return []Participant{good, bad}, nil
		})
	if err == nil {
		t.Fatalf("expected error on participant commit failure")
	}
	if len(rolledBack) != 2 {
		t.Fatalf("expected both participants rolled back, got %v", rolledBack)
	}
}

func TestExecuteNestedCallJoinsExistingContext(t *testing.T) {
	c, _ := newTestCoordinator(t)
	var innerRan bool

	err := c.Execute(context.Background(), "tx:5", "idem:5", 200, 5000, "order-5",
		func(ctx context.Context, tc *sakti.TransactionContext) ([]Participant, error) {
			tc.EnlistResource("orders-db", sakti.ResourceDatabase)
			tc.MarkPrepared("orders-db")

			nestedErr := c.Execute(ctx, "tx:5-nested-should-be-ignored", "idem:5-nested", 200, 5000, "order-5",
				func(ctx context.Context, nestedTc *sakti.TransactionContext) ([]Participant, error) {
					innerRan = true
					if nestedTc.TxID != tc.TxID {
						t.Fatalf("nested call did not join the outer context")
					}
					return nil, nil
				})
			if nestedErr != nil {
				t.Fatalf("nested Execute: %v", nestedErr)
			}
			return []Participant{&fakeParticipant{name: "orders-db"}}, nil
		})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !innerRan {
		t.Fatalf("nested fn did not run")
	}
}
