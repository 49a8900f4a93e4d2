// Package capture implements component 10: the TxHandle surface integrators
// use to enlist databases and record entity operations (spec.md §6), plus
// the pre/post entity hooks (spec.md §4.8) that promote a pending snapshot
// into a confirmed journal entry only once a matching post-event arrives.
// Grounded on the teacher's item_action_tracker.go, which keeps a
// pending-by-identity map and only "actively persists" an item once its
// post-condition is confirmed.
package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/sakti"
)

// pendingOp is a pre-event snapshot awaiting its matching post-event, keyed
// by entity identity. It is discarded, never promoted, if commit happens
// before the post-event arrives (the operation never succeeded locally).
type pendingOp struct {
	datasource  string
	opType      sakti.OperationType
	entityClass string
	beforeImage []byte
}

// TxHandle is the capture-side API surface described in spec.md §6. It
// wraps a *sakti.TransactionContext and a Snapshotter, and is what
// integrator code (an ORM event adapter, a manual call site) calls while
// the phase coordinator's Work closure is running.
type TxHandle struct {
	ctx  *sakti.TransactionContext
	snap Snapshotter

	mu      sync.Mutex
	pending map[string]pendingOp
}

// BeginTransaction creates a standalone TxHandle over a fresh
// TransactionContext, for integrators that call into capture directly
// without going through the coordinator. When used underneath
// coordinator.Coordinator.Execute, prefer New, which binds to the context
// the coordinator already created for this transaction.
func BeginTransaction(businessKey string, snap Snapshotter) *TxHandle {
	return New(sakti.NewTransactionContext(businessKey), snap)
}

// New wraps an existing TransactionContext — typically the one the phase
// coordinator created for the transaction currently executing — with a
// capture-layer TxHandle.
func New(tc *sakti.TransactionContext, snap Snapshotter) *TxHandle {
	return &TxHandle{ctx: tc, snap: snap, pending: make(map[string]pendingOp)}
}

// Context returns the underlying transaction context, for callers that need
// to hand it to the coordinator or propagation layer.
func (h *TxHandle) Context() *sakti.TransactionContext { return h.ctx }

// EnlistDatabase registers name as a DATABASE participant on the
// transaction.
func (h *TxHandle) EnlistDatabase(name string) {
	h.ctx.EnlistResource(name, sakti.ResourceDatabase)
}

// EnlistQueue registers name as a QUEUE participant (the optional broker
// sink, spec.md §1).
func (h *TxHandle) EnlistQueue(name string) {
	h.ctx.EnlistResource(name, sakti.ResourceQueue)
}

// RecordEntityOp appends a confirmed journal entry directly, bypassing the
// pre/post hook dance, for integrators that already know the outcome of a
// single-entity write (spec.md §6's RecordEntityOp). For UPDATE/DELETE, a
// generic overwrite statement is derived from entityClass/entityId/
// beforeImage, assuming the canonical `id`/`payload` column shape this
// module's compensator expects (see internal/compensator); integrators with
// a richer schema should use RecordNativeQuery instead.
func (h *TxHandle) RecordEntityOp(datasource string, opType sakti.OperationType, entityClass, entityID string, beforeImage []byte) sakti.OperationJournalEntry {
	entry := sakti.OperationJournalEntry{
		Datasource:    datasource,
		OperationType: opType,
		EntityClass:   entityClass,
		EntityID:      entityID,
		BeforeImage:   beforeImage,
	}
	entry.InverseDescriptor = inverseFor(opType, entityClass, entityID, beforeImage)
	return h.ctx.AppendOperation(entry)
}

// inverseFor derives the InverseDescriptor for a single-entity op: INSERT
// undoes by deleting the row, UPDATE undoes by overwriting the row with the
// captured before-image, and DELETE undoes by re-inserting the row with the
// before-image (overwriting it if a row with that id exists again)
// (spec.md §4.7's strategy table).
func inverseFor(opType sakti.OperationType, entityClass, entityID string, beforeImage []byte) sakti.InverseDescriptor {
	switch opType {
	case sakti.OpInsert:
		return sakti.InverseDescriptor{
			SQL:    fmt.Sprintf("DELETE FROM %s WHERE id = $1", entityClass),
			Params: []any{entityID},
		}
	case sakti.OpUpdate, sakti.OpDelete:
		if len(beforeImage) == 0 {
			return sakti.InverseDescriptor{}
		}
		stmt := fmt.Sprintf("UPDATE %s SET payload = $1 WHERE id = $2", entityClass)
		if opType == sakti.OpDelete {
			stmt = fmt.Sprintf("INSERT INTO %s (id, payload) VALUES ($2, $1) ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload", entityClass)
		}
		return sakti.InverseDescriptor{
			SQL:    stmt,
			Params: []any{string(beforeImage), entityID},
		}
	default:
		return sakti.InverseDescriptor{}
	}
}

// bulkRow mirrors internal/compensator's row-replay shape: one row's bound
// parameters for the inverse SQL template.
type bulkRow struct {
	Params []any `json:"params"`
}

// RecordBulk appends a confirmed BULK_UPDATE/BULK_DELETE entry.
// affectedBeforeImages is one row per affected entity, each a
// {entityId, beforeImage} pair; inverseSQL is a single parameterized
// template replayed once per row by the compensator
// (spec.md §4.7's "replay captured before-images row-by-row").
func (h *TxHandle) RecordBulk(datasource string, opType sakti.OperationType, entityClass string, affectedBeforeImages []KeyedBeforeImage, inverseSQL string) (sakti.OperationJournalEntry, error) {
	rows := make([]bulkRow, 0, len(affectedBeforeImages))
	for _, kb := range affectedBeforeImages {
		rows = append(rows, bulkRow{Params: []any{string(kb.BeforeImage), kb.EntityID}})
	}
	blob, err := json.Marshal(rows)
	if err != nil {
		return sakti.OperationJournalEntry{}, fmt.Errorf("capture: marshaling bulk before-images: %w", err)
	}
	entry := sakti.OperationJournalEntry{
		Datasource:    datasource,
		OperationType: opType,
		EntityClass:   entityClass,
		BeforeImage:   blob,
		InverseDescriptor: sakti.InverseDescriptor{
			SQL:               inverseSQL,
			ReplayBeforeImage: true,
		},
	}
	return h.ctx.AppendOperation(entry), nil
}

// KeyedBeforeImage pairs an affected row's entity id with its before-image,
// for RecordBulk.
type KeyedBeforeImage struct {
	EntityID    string
	BeforeImage []byte
}

// RecordNativeQuery appends a confirmed NATIVE_QUERY entry. sqlText is not
// stored on the entry; inverseSQL+params is what the compensator replays.
func (h *TxHandle) RecordNativeQuery(datasource, entityClass, entityID string, beforeImage []byte, sqlText, inverseSQL string, params []any) sakti.OperationJournalEntry {
	entry := sakti.OperationJournalEntry{
		Datasource:    datasource,
		OperationType: sakti.OpNativeQuery,
		EntityClass:   entityClass,
		EntityID:      entityID,
		BeforeImage:   beforeImage,
		InverseDescriptor: sakti.InverseDescriptor{
			SQL:    inverseSQL,
			Params: params,
		},
	}
	return h.ctx.AppendOperation(entry)
}

// RecordStoredProcedure appends a confirmed STORED_PROCEDURE entry.
// beforeImages carries whatever rows the procedure affected, serialized
// opaquely; inverseProcedureName+params is what the compensator invokes.
func (h *TxHandle) RecordStoredProcedure(datasource, procedureName, inverseProcedureName string, params []any, beforeImages []byte) sakti.OperationJournalEntry {
	entry := sakti.OperationJournalEntry{
		Datasource:    datasource,
		OperationType: sakti.OpStoredProcedure,
		EntityClass:   procedureName,
		BeforeImage:   beforeImages,
		InverseDescriptor: sakti.InverseDescriptor{
			Procedure: inverseProcedureName,
			Params:    params,
		},
	}
	return h.ctx.AppendOperation(entry)
}

// Commit discards any pre-events still awaiting a post-event and commits
// nothing itself, for integrators that model the capture surface
// symmetrically with the business method's own commit/rollback (the
// out-of-scope AOP layer of spec.md §1): the coordinator, not TxHandle,
// owns the actual two-phase commit. It exists so a caller using capture
// directly (BeginTransaction, not New) has a deliberate point to call.
func (h *TxHandle) Commit() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.pending) > 0 {
		h.pending = make(map[string]pendingOp)
	}
	return nil
}

// Rollback discards any unconfirmed pending hooks and records reason on the
// context's metadata for diagnostics. It does not itself transition phases;
// that remains the phase coordinator's responsibility.
func (h *TxHandle) Rollback(reason string) error {
	h.mu.Lock()
	h.pending = make(map[string]pendingOp)
	h.mu.Unlock()
	h.ctx.SetMetadata("rollbackReason", reason)
	return nil
}

// ErrNoSnapshotter is returned by the pre/post entity hooks when the
// TxHandle was built without a Snapshotter.
var ErrNoSnapshotter = errors.New("capture: no Snapshotter configured")
