package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/journal/sqlstore"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/kv"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/sakti"
)

func newTestLog(t *testing.T) (*Log, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := sqlstore.NewWithDB(sqlx.NewDb(db, "postgres"))
	store := kv.NewFakeStore("sakti:lock:")
	return NewLog(repo, store, time.Minute), mock
}

func TestLogBeginAndTransition(t *testing.T) {
	l, mock := newTestLog(t)
	tc := sakti.NewTransactionContext("order-1")

	mock.ExpectExec("INSERT INTO tx_log").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := l.Begin(context.Background(), tc); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	mock.ExpectExec("UPDATE tx_log SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := l.Transition(context.Background(), tc, sqlstore.StatusCommitted, ""); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// failingStore wraps a kv.Store so its Set always fails, for exercising the
// hot-mirror-failure-is-advisory-only path.
type failingStore struct {
	kv.Store
}

func (failingStore) Set(context.Context, string, string, time.Duration) error {
	return errStubMirror
}

var errStubMirror = errors.New("stub mirror outage")

func TestLogTransitionSurvivesHotMirrorFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := sqlstore.NewWithDB(sqlx.NewDb(db, "postgres"))
	l := NewLog(repo, failingStore{kv.NewFakeStore("sakti:lock:")}, time.Minute)
	tc := sakti.NewTransactionContext("order-2")

	mock.ExpectExec("INSERT INTO tx_log").WillReturnResult(sqlmock.NewResult(0, 1))
	// The cold SQL write and the hot mirror write run concurrently
	// (internal/journal.Log.replicate); a mirror failure must not fail
	// Begin, since sqlstore remains authoritative.
	if err := l.Begin(context.Background(), tc); err != nil {
		t.Fatalf("Begin: %v, want nil despite hot mirror failure", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	entries := []sakti.OperationJournalEntry{
		{Sequence: 1, Datasource: "orders-db", OperationType: sakti.OpInsert, EntityClass: "Order", EntityID: "42"},
	}
	payload, err := Marshal(entries, "boom")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(payload)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0].EntityID != "42" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Error != "boom" {
		t.Fatalf("error not preserved: %q", got.Error)
	}
}
