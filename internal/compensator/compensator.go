package compensator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/sakti"
)

// ErrCompensationFailed is returned by Compensate when at least one journal
// entry could not be undone; the transaction must be reported FAILED, not
// ROLLED_BACK (spec.md §4.7).
var ErrCompensationFailed = errors.New("compensator: one or more entries could not be compensated")

// Resolver maps a datasource name to its live *sqlx.DB handle.
type Resolver func(datasource string) (*sqlx.DB, error)

// bulkRow is one row of a replayed before-image batch (spec.md §4.7's
// "replay captured before-images row-by-row" for BULK_UPDATE/BULK_DELETE).
type bulkRow struct {
	Params []any `json:"params"`
}

// Executor replays a transaction's operation journal in reverse to undo its
// effects.
type Executor struct {
	resolve Resolver
}

// NewExecutor builds an Executor using resolve to obtain a database handle
// per enlisted datasource name.
func NewExecutor(resolve Resolver) *Executor {
	return &Executor{resolve: resolve}
}

// Compensate walks tc's journal in descending sequence order, undoing every
// entry that isn't already marked compensated. It continues past per-entry
// failures (best-effort) and returns ErrCompensationFailed if any entry
// remains uncompensated at the end.
func (e *Executor) Compensate(ctx context.Context, tc *sakti.TransactionContext) error {
	entries := tc.Journal()
	anyFailed := false

	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if entry.Compensated {
			continue
		}
		if err := e.compensateEntry(ctx, entry); err != nil {
			log.Warn("compensation failed for journal entry",
				"sequence", entry.Sequence, "datasource", entry.Datasource, "error", err)
			tc.MarkCompensated(entry.Sequence, err.Error())
			anyFailed = true
			continue
		}
		tc.MarkCompensated(entry.Sequence, "")
	}

	if anyFailed {
		return ErrCompensationFailed
	}
	return nil
}

func (e *Executor) compensateEntry(ctx context.Context, entry sakti.OperationJournalEntry) error {
	if entry.RecoverableResource() && !entry.HasUndoInstructions() {
		return fmt.Errorf("entry %d has no undo instructions", entry.Sequence)
	}
	db, err := e.resolve(entry.Datasource)
	if err != nil {
		return err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	switch entry.OperationType {
	case sakti.OpInsert:
		err = e.undoInsert(ctx, tx, entry)
	case sakti.OpUpdate, sakti.OpDelete:
		err = e.undoOverwrite(ctx, tx, entry)
	case sakti.OpBulkUpdate, sakti.OpBulkDelete:
		err = e.undoBulk(ctx, tx, entry)
	case sakti.OpNativeQuery:
		err = e.undoNativeQuery(ctx, tx, entry)
	case sakti.OpStoredProcedure:
		err = e.undoStoredProcedure(ctx, tx, entry)
	default:
		err = fmt.Errorf("unknown operation type %s", entry.OperationType)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

// undoInsert deletes the inserted row by entity id. The capture layer is
// expected to populate InverseDescriptor.SQL as a parameterized DELETE; a
// generic fallback is used only if it didn't.
func (e *Executor) undoInsert(ctx context.Context, tx *sqlx.Tx, entry sakti.OperationJournalEntry) error {
	if entry.InverseDescriptor.SQL != "" {
		_, err := tx.ExecContext(ctx, entry.InverseDescriptor.SQL, entry.InverseDescriptor.Params...)
		return err
	}
	_, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id = $1", entry.EntityClass), entry.EntityID)
	return err
}

// undoOverwrite reapplies the captured before-image via the inverse SQL
// the capture layer derived from it.
func (e *Executor) undoOverwrite(ctx context.Context, tx *sqlx.Tx, entry sakti.OperationJournalEntry) error {
	if entry.InverseDescriptor.SQL == "" {
		return fmt.Errorf("entry %d: no inverse SQL to overwrite with before-image", entry.Sequence)
	}
	_, err := tx.ExecContext(ctx, entry.InverseDescriptor.SQL, entry.InverseDescriptor.Params...)
	return err
}

func (e *Executor) undoBulk(ctx context.Context, tx *sqlx.Tx, entry sakti.OperationJournalEntry) error {
	if !entry.InverseDescriptor.ReplayBeforeImage {
		return e.undoOverwrite(ctx, tx, entry)
	}
	var rows []bulkRow
	if err := json.Unmarshal(entry.BeforeImage, &rows); err != nil {
		return fmt.Errorf("entry %d: decoding bulk before-image: %w", entry.Sequence, err)
	}
	if entry.InverseDescriptor.SQL == "" {
		return fmt.Errorf("entry %d: bulk replay requires an inverse SQL template", entry.Sequence)
	}
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, entry.InverseDescriptor.SQL, row.Params...); err != nil {
			return fmt.Errorf("entry %d: replaying row: %w", entry.Sequence, err)
		}
	}
	return nil
}

func (e *Executor) undoNativeQuery(ctx context.Context, tx *sqlx.Tx, entry sakti.OperationJournalEntry) error {
	if entry.InverseDescriptor.SQL == "" {
		return fmt.Errorf("entry %d: native query entry has no inverse SQL", entry.Sequence)
	}
	_, err := tx.ExecContext(ctx, entry.InverseDescriptor.SQL, entry.InverseDescriptor.Params...)
	return err
}

func (e *Executor) undoStoredProcedure(ctx context.Context, tx *sqlx.Tx, entry sakti.OperationJournalEntry) error {
	if entry.InverseDescriptor.Procedure == "" {
		return fmt.Errorf("entry %d: stored procedure entry has no inverse procedure", entry.Sequence)
	}
	placeholders := make([]string, len(entry.InverseDescriptor.Params))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	stmt := fmt.Sprintf("CALL %s(%s)", entry.InverseDescriptor.Procedure, joinPlaceholders(placeholders))
	_, err := tx.ExecContext(ctx, stmt, entry.InverseDescriptor.Params...)
	return err
}

func joinPlaceholders(ph []string) string {
	out := ""
	for i, p := range ph {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
