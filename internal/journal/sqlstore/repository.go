package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Status mirrors the status column of tx_log (spec.md §6).
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusCommitted   Status = "COMMITTED"
	StatusRollingBack Status = "ROLLING_BACK"
	StatusRolledBack  Status = "ROLLED_BACK"
	StatusFailed      Status = "FAILED"
)

// Record is one row of tx_log.
type Record struct {
	TxID        string       `db:"tx_id"`
	BusinessKey string       `db:"business_key"`
	Status      Status       `db:"status"`
	CreatedAt   time.Time    `db:"created_at"`
	LastUpdate  time.Time    `db:"last_update"`
	RetryCount  int          `db:"retry_count"`
	LastRetryAt sql.NullTime `db:"last_retry_at"`
	Payload     string       `db:"payload"`
}

// ErrNotFound is returned by GetOne when no row matches.
var ErrNotFound = errors.New("sqlstore: record not found")

// Repository is the tx_log data-access layer, grounded on the teacher's
// cassandra/transactionlog.go Add/Remove/GetOne shape.
type Repository struct {
	db *sqlx.DB
}

// Open connects to dsn using the lib/pq driver (registered as "postgres")
// and wraps it with sqlx.
func Open(dsn string) (*Repository, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

// NewWithDB wraps an already-open *sqlx.DB, used by tests against
// go-sqlmock.
func NewWithDB(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// DB exposes the underlying *sql.DB, for goose migrations at process
// startup (internal/journal/sqlstore/migrations).
func (r *Repository) DB() *sql.DB {
	return r.db.DB
}

// Insert writes a new PENDING row for txID.
func (r *Repository) Insert(ctx context.Context, txID, businessKey, payload string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tx_log (tx_id, business_key, status, created_at, last_update, payload)
		VALUES ($1, $2, $3, now(), now(), $4)
	`, txID, businessKey, StatusPending, payload)
	return err
}

// UpdateStatus moves txID to status, refreshing last_update and the payload
// snapshot (serialized journal + error, per spec.md §6).
func (r *Repository) UpdateStatus(ctx context.Context, txID string, status Status, payload string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tx_log SET status = $2, last_update = now(), payload = $3
		WHERE tx_id = $1
	`, txID, status, payload)
	return err
}

// IncrementRetry bumps retry_count and last_retry_at for txID, used by the
// recovery worker between sweep attempts.
func (r *Repository) IncrementRetry(ctx context.Context, txID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tx_log SET retry_count = retry_count + 1, last_retry_at = now()
		WHERE tx_id = $1
	`, txID)
	return err
}

// GetOne fetches a single row by txID.
func (r *Repository) GetOne(ctx context.Context, txID string) (Record, error) {
	var rec Record
	err := r.db.GetContext(ctx, &rec, `SELECT * FROM tx_log WHERE tx_id = $1`, txID)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ListStalePending returns PENDING or ROLLING_BACK rows whose last_update is
// older than stallThreshold, for the recovery worker's periodic sweep
// (spec.md §4.9).
func (r *Repository) ListStalePending(ctx context.Context, stallThreshold time.Duration, maxRetries, limit int) ([]Record, error) {
	var recs []Record
	err := r.db.SelectContext(ctx, &recs, `
		SELECT * FROM tx_log
		WHERE status IN ($1, $2)
		  AND last_update < $3
		  AND retry_count < $4
		ORDER BY last_update ASC
		LIMIT $5
	`, StatusPending, StatusRollingBack, time.Now().Add(-stallThreshold), maxRetries, limit)
	if err != nil {
		return nil, err
	}
	return recs, nil
}
