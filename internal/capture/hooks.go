package capture

import "github.com/ridhoalpha/sakti-tx-sub001/internal/sakti"

// OnPrePersist stashes a pending INSERT for entity, keyed by its identity.
// There is no before-image for an insert (spec.md §3: beforeImage is null
// for INSERT).
func (h *TxHandle) OnPrePersist(datasource, entityClass string, entity any) {
	h.stash(datasource, entityClass, entity, sakti.OpInsert, nil)
}

// OnPostPersist promotes the pending INSERT for entity into a confirmed
// journal entry now that entityID is known. If no matching pre-event is
// pending (the hooks were wired without calling OnPrePersist), nothing is
// recorded and ok is false.
func (h *TxHandle) OnPostPersist(entity any, entityID string) (sakti.OperationJournalEntry, bool) {
	return h.promote(entity, entityID)
}

// OnPreUpdate stashes a pending UPDATE for entity, capturing its
// before-image now (via the Snapshotter) so later mutation of entity by the
// caller doesn't perturb the stored image.
func (h *TxHandle) OnPreUpdate(datasource, entityClass string, entity any) error {
	return h.stashWithSnapshot(datasource, entityClass, entity, sakti.OpUpdate)
}

// OnPostUpdate promotes the pending UPDATE for entity now that the write has
// locally succeeded.
func (h *TxHandle) OnPostUpdate(entity any, entityID string) (sakti.OperationJournalEntry, bool) {
	return h.promote(entity, entityID)
}

// OnPreRemove stashes a pending DELETE for entity, capturing its
// before-image so the compensator can restore it later.
func (h *TxHandle) OnPreRemove(datasource, entityClass string, entity any) error {
	return h.stashWithSnapshot(datasource, entityClass, entity, sakti.OpDelete)
}

// OnPostRemove promotes the pending DELETE for entity now that the removal
// has locally succeeded.
func (h *TxHandle) OnPostRemove(entity any, entityID string) (sakti.OperationJournalEntry, bool) {
	return h.promote(entity, entityID)
}

func (h *TxHandle) stash(datasource, entityClass string, entity any, opType sakti.OperationType, beforeImage []byte) {
	if h.snap == nil {
		return
	}
	key := h.snap.Identity(entity)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending[key] = pendingOp{datasource: datasource, opType: opType, entityClass: entityClass, beforeImage: beforeImage}
}

func (h *TxHandle) stashWithSnapshot(datasource, entityClass string, entity any, opType sakti.OperationType) error {
	if h.snap == nil {
		return ErrNoSnapshotter
	}
	before, err := h.snap.Snapshot(entity)
	if err != nil {
		return err
	}
	h.stash(datasource, entityClass, entity, opType, before)
	return nil
}

// promote looks up the pending entry for entity by identity and, if
// present, appends it to the journal with the resolved entityID, then
// removes it from the pending set. If nothing is pending (no matching
// pre-event), nothing is recorded and ok is false — the spec only confirms
// pending entries that had a matching pre-event; a bare post-event with no
// pre-event is treated as integrator misuse, not silently fabricated.
func (h *TxHandle) promote(entity any, entityID string) (sakti.OperationJournalEntry, bool) {
	if h.snap == nil {
		return sakti.OperationJournalEntry{}, false
	}
	key := h.snap.Identity(entity)
	h.mu.Lock()
	pending, ok := h.pending[key]
	if ok {
		delete(h.pending, key)
	}
	h.mu.Unlock()
	if !ok {
		return sakti.OperationJournalEntry{}, false
	}
	entry := sakti.OperationJournalEntry{
		Datasource:    pending.datasource,
		OperationType: pending.opType,
		EntityClass:   pending.entityClass,
		EntityID:      entityID,
		BeforeImage:   pending.beforeImage,
	}
	entry.InverseDescriptor = inverseFor(pending.opType, pending.entityClass, entityID, pending.beforeImage)
	return h.ctx.AppendOperation(entry), true
}

// DiscardPending drops every pre-event awaiting a post-event that never
// arrived before the transaction reached a terminal phase (spec.md §4.8:
// "the operation never succeeded locally"). It returns the number of
// entries discarded, for diagnostics. Callers (typically the integrator's
// boundary filter, mirroring internal/txcontext.Manager.EnforceClean)
// should call this once the coordinator's Execute has returned.
func (h *TxHandle) DiscardPending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.pending)
	if n > 0 {
		h.pending = make(map[string]pendingOp)
	}
	return n
}

// PendingCount reports how many pre-events are currently awaiting a
// post-event.
func (h *TxHandle) PendingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}
