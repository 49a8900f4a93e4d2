package sakti

import (
	"sync"
	"time"
)

// TransactionContext is the in-memory state of the currently-executing
// transaction: id, phase, enlisted resources, risk flags, metadata
// (spec.md §3). It is exclusively owned by the execution unit that created
// it; nested work sees it only through context propagation
// (internal/propagation). Its exported methods serialize access through an
// unexported mutex; the coordinator (phase transitions), internal/capture
// (enlistments, journal entries), internal/validator (risk flags) and
// internal/compensator (compensation marks) mutate it through them.
type TransactionContext struct {
	mu sync.RWMutex

	TxID        UUID
	BusinessKey string
	Phase       TransactionPhase
	StartTime   time.Time

	enlistments   []ResourceEnlistment
	riskMetrics   map[RiskFlag]int
	acquiredLocks []string
	metadata      map[string]any
	journal       []OperationJournalEntry
	nextSequence  int64

	// PhaseDurations records how long the transaction spent in each phase,
	// keyed by the phase it was leaving, for metrics/diagnostics.
	PhaseDurations map[TransactionPhase]time.Duration
	lastPhaseAt    time.Time
}

// NewTransactionContext creates a fresh context in PhaseCreated for the given
// business key.
func NewTransactionContext(businessKey string) *TransactionContext {
	now := time.Now()
	return &TransactionContext{
		TxID:           NewUUID(),
		BusinessKey:    businessKey,
		Phase:          PhaseCreated,
		StartTime:      now,
		lastPhaseAt:    now,
		riskMetrics:    make(map[RiskFlag]int),
		metadata:       make(map[string]any),
		PhaseDurations: make(map[TransactionPhase]time.Duration),
	}
}

// RestoreTransactionContext rebuilds a TransactionContext bound to the same
// txID as an earlier one, for internal/propagation.Snapshot.Restore.
// Resources are deliberately not part of the restored state — a
// continuation that wants to write must re-enlist (spec.md §4.4).
func RestoreTransactionContext(txID UUID, businessKey string, phase TransactionPhase, startTime time.Time, riskMetrics map[RiskFlag]int, acquiredLocks []string, metadata map[string]any) *TransactionContext {
	rm := make(map[RiskFlag]int, len(riskMetrics))
	for k, v := range riskMetrics {
		rm[k] = v
	}
	locks := make([]string, len(acquiredLocks))
	copy(locks, acquiredLocks)
	md := make(map[string]any, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	now := time.Now()
	return &TransactionContext{
		TxID:           txID,
		BusinessKey:    businessKey,
		Phase:          phase,
		StartTime:      startTime,
		lastPhaseAt:    now,
		riskMetrics:    rm,
		acquiredLocks:  locks,
		metadata:       md,
		PhaseDurations: make(map[TransactionPhase]time.Duration),
	}
}

// LoadForRecovery rebuilds a TransactionContext from a durable journal
// previously written by journal.Log, for the recovery worker's use: unlike
// RestoreTransactionContext (an in-process continuation), this reconstructs
// a context that was never bound in this execution unit at all, off the
// rows persisted in tx_log. Sequence numbers are preserved exactly as
// logged rather than reassigned, since the compensating executor depends on
// them matching what was originally written.
func LoadForRecovery(txID UUID, businessKey string, phase TransactionPhase, entries []OperationJournalEntry) *TransactionContext {
	journal := make([]OperationJournalEntry, len(entries))
	copy(journal, entries)
	var maxSeq int64
	for _, e := range journal {
		if e.Sequence > maxSeq {
			maxSeq = e.Sequence
		}
	}
	return &TransactionContext{
		TxID:           txID,
		BusinessKey:    businessKey,
		Phase:          phase,
		StartTime:      time.Now(),
		lastPhaseAt:    time.Now(),
		riskMetrics:    make(map[RiskFlag]int),
		metadata:       make(map[string]any),
		journal:        journal,
		nextSequence:   maxSeq,
		PhaseDurations: make(map[TransactionPhase]time.Duration),
	}
}

// Enlistments returns a copy of the currently enlisted resources.
func (c *TransactionContext) Enlistments() []ResourceEnlistment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ResourceEnlistment, len(c.enlistments))
	copy(out, c.enlistments)
	return out
}

// Journal returns a copy of the operation journal entries appended so far.
func (c *TransactionContext) Journal() []OperationJournalEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]OperationJournalEntry, len(c.journal))
	copy(out, c.journal)
	return out
}

// RiskMetrics returns a copy of the risk-flag counters.
func (c *TransactionContext) RiskMetrics() map[RiskFlag]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[RiskFlag]int, len(c.riskMetrics))
	for k, v := range c.riskMetrics {
		out[k] = v
	}
	return out
}

// AcquiredLocks returns a copy of the lock keys this context believes it
// holds.
func (c *TransactionContext) AcquiredLocks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.acquiredLocks))
	copy(out, c.acquiredLocks)
	return out
}

// Metadata returns the value stored under key and whether it was present.
func (c *TransactionContext) Metadata(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.metadata[key]
	return v, ok
}

// AllMetadata returns a copy of the full metadata map, for snapshotting
// (internal/propagation) and diagnostics.
func (c *TransactionContext) AllMetadata() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

// Elapsed returns the wall-clock duration since the context was created.
func (c *TransactionContext) Elapsed() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.StartTime)
}

// EnlistResource appends a new participant resource to the context. Returns
// the assigned sequence number. Enlistment is append-only; re-enlisting the
// same name is allowed (e.g. a propagated continuation re-joining) and just
// appends another entry, since join order is what correctness depends on.
func (c *TransactionContext) EnlistResource(name string, typ ResourceType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq := len(c.enlistments)
	c.enlistments = append(c.enlistments, ResourceEnlistment{
		Name:     name,
		Type:     typ,
		Sequence: seq,
	})
	return seq
}

// MarkPrepared flags the named enlistment as prepared.
func (c *TransactionContext) MarkPrepared(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.enlistments {
		if c.enlistments[i].Name == name {
			c.enlistments[i].Prepared = true
		}
	}
}

// AppendOperation assigns the next monotonic sequence number to entry and
// appends it to the journal.
func (c *TransactionContext) AppendOperation(entry OperationJournalEntry) OperationJournalEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSequence++
	entry.Sequence = c.nextSequence
	c.journal = append(c.journal, entry)
	return entry
}

// MarkCompensated flags the journal entry with the given sequence as
// compensated, recording compensationErr if non-empty.
func (c *TransactionContext) MarkCompensated(sequence int64, compensationErr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.journal {
		if c.journal[i].Sequence == sequence {
			c.journal[i].Compensated = compensationErr == ""
			c.journal[i].CompensationError = compensationErr
		}
	}
}

// TransitionTo enforces the phase graph and records how long the context
// spent in the phase being left.
func (c *TransactionContext) TransitionTo(phase TransactionPhase) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !ValidTransition(c.Phase, phase) {
		return ErrInvalidTransition(c.Phase, phase)
	}
	now := time.Now()
	c.PhaseDurations[c.Phase] = now.Sub(c.lastPhaseAt)
	c.lastPhaseAt = now
	c.Phase = phase
	return nil
}

// AddRiskFlag increments the counter for flag on the context's risk metrics.
func (c *TransactionContext) AddRiskFlag(flag RiskFlag) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.riskMetrics[flag]++
}

// AddAcquiredLock records a lock key this context holds.
func (c *TransactionContext) AddAcquiredLock(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acquiredLocks = append(c.acquiredLocks, key)
}

// SetMetadata stores a free-form metadata value under key.
func (c *TransactionContext) SetMetadata(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
}

// CriticalRiskLevel reports whether the aggregated risk on this context
// should be considered CRITICAL: currently true once any CRITICAL_RISK flag
// has been raised, or once three or more distinct risk flags have fired.
func (c *TransactionContext) CriticalRiskLevel() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.riskMetrics[RiskCriticalRisk] > 0 {
		return true
	}
	return len(c.riskMetrics) >= 3
}
