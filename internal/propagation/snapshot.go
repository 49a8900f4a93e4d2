package propagation

import (
	"time"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/sakti"
)

// Snapshot is a serializable copy of a subset of a TransactionContext,
// suitable for crossing a process or execution-unit boundary (spec.md
// §4.4). Resources are intentionally excluded: a continuation that intends
// to write must re-enlist.
type Snapshot struct {
	TxID          sakti.UUID          `json:"txId"`
	BusinessKey   string              `json:"businessKey"`
	Phase         sakti.TransactionPhase `json:"phase"`
	StartTime     time.Time           `json:"startTime"`
	RiskMetrics   map[sakti.RiskFlag]int `json:"riskMetrics"`
	AcquiredLocks []string            `json:"acquiredLocks"`
	Metadata      map[string]any      `json:"metadata"`

	// CapturedAt is the instant Capture ran, for staleness diagnostics.
	CapturedAt time.Time `json:"capturedAt"`
	// OriginFingerprint identifies the execution unit that captured this
	// snapshot (e.g. hostname/goroutine tag), for audit trails.
	OriginFingerprint string `json:"originFingerprint"`
}

// Capture takes a point-in-time Snapshot of tc, tagged with origin.
func Capture(tc *sakti.TransactionContext, origin string) Snapshot {
	return Snapshot{
		TxID:              tc.TxID,
		BusinessKey:       tc.BusinessKey,
		Phase:             tc.Phase,
		StartTime:         tc.StartTime,
		RiskMetrics:       tc.RiskMetrics(),
		AcquiredLocks:     tc.AcquiredLocks(),
		Metadata:          tc.AllMetadata(),
		CapturedAt:        time.Now(),
		OriginFingerprint: origin,
	}
}

// Restore rebuilds a TransactionContext bound to the same txId as the
// Snapshot, for use by the execution unit resuming the transaction. The
// caller is responsible for binding the result via internal/txcontext so
// subsequent operations append to the same journal root.
func (s Snapshot) Restore() *sakti.TransactionContext {
	return sakti.RestoreTransactionContext(
		s.TxID,
		s.BusinessKey,
		s.Phase,
		s.StartTime,
		s.RiskMetrics,
		s.AcquiredLocks,
		s.Metadata,
	)
}
