package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewWithDB(sqlxDB), mock
}

func TestRepositoryInsert(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("INSERT INTO tx_log").
		WithArgs("tx-1", "order-42", StatusPending, "{}").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Insert(context.Background(), "tx-1", "order-42", "{}"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryGetOneFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"tx_id", "business_key", "status", "created_at", "last_update", "retry_count", "last_retry_at", "payload"}).
		AddRow("tx-1", "order-42", StatusPending, now, now, 0, nil, "{}")
	mock.ExpectQuery("SELECT \\* FROM tx_log WHERE tx_id = \\$1").
		WithArgs("tx-1").
		WillReturnRows(rows)

	rec, err := repo.GetOne(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if rec.TxID != "tx-1" || rec.Status != StatusPending {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestRepositoryGetOneNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT \\* FROM tx_log WHERE tx_id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"tx_id", "business_key", "status", "created_at", "last_update", "retry_count", "last_retry_at", "payload"}))

	_, err := repo.GetOne(context.Background(), "missing")
	if err != ErrNotFound {
		t.Fatalf("GetOne error = %v, want ErrNotFound", err)
	}
}

func TestRepositoryUpdateStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE tx_log SET status").
		WithArgs("tx-1", StatusCommitted, "payload-v2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateStatus(context.Background(), "tx-1", StatusCommitted, "payload-v2"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
}

func TestRepositoryListStalePending(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"tx_id", "business_key", "status", "created_at", "last_update", "retry_count", "last_retry_at", "payload"}).
		AddRow("tx-stalled", "order-7", StatusPending, now.Add(-time.Hour), now.Add(-time.Hour), 1, nil, "{}")
	mock.ExpectQuery("SELECT \\* FROM tx_log").
		WillReturnRows(rows)

	recs, err := repo.ListStalePending(context.Background(), 5*time.Minute, 5, 50)
	if err != nil {
		t.Fatalf("ListStalePending: %v", err)
	}
	if len(recs) != 1 || recs[0].TxID != "tx-stalled" {
		t.Fatalf("unexpected rows: %+v", recs)
	}
}
