package sqlparticipant

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Participant wraps one enlisted database's local transaction. It
// implements the coordinator's Participant contract.
type Participant struct {
	name string
	db   *sqlx.DB
	tx   *sqlx.Tx
}

// Begin opens a local transaction against db for name, autoCommit=false per
// spec.md §4.6 step 4.
func Begin(ctx context.Context, name string, db *sqlx.DB) (*Participant, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Participant{name: name, db: db, tx: tx}, nil
}

func (p *Participant) Name() string { return p.name }

// Probe runs a trivial read against the underlying database, independent of
// this participant's own transaction, for the validator's DB_UNREACHABLE
// check.
func (p *Participant) Probe(ctx context.Context) error {
	var ignored int
	return p.db.GetContext(ctx, &ignored, "SELECT 1")
}

// Prepare is a no-op for a single local SQL transaction: there is nothing
// to ready beyond having begun it.
func (p *Participant) Prepare(context.Context) error {
	return nil
}

// Commit commits the local transaction.
func (p *Participant) Commit(ctx context.Context) error {
	return p.tx.Commit()
}

// Rollback aborts the local transaction. Safe to call on an already-closed
// transaction; sql.Tx.Rollback returns sql.ErrTxDone in that case, which
// the caller may ignore.
func (p *Participant) Rollback(ctx context.Context) error {
	return p.tx.Rollback()
}

// Tx exposes the underlying transaction so capture-time operations
// (internal/capture) can execute statements within it.
func (p *Participant) Tx() *sqlx.Tx {
	return p.tx
}
