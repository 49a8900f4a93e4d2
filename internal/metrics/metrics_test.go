package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/sakti"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRecorderCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.TransactionStarted()
	r.TransactionStarted()
	r.TransactionCommitted(0.5)
	r.TransactionRolledBack(1.2)

	if got := counterValue(t, r.total); got != 2 {
		t.Fatalf("total = %v, want 2", got)
	}
	if got := counterValue(t, r.committed); got != 1 {
		t.Fatalf("committed = %v, want 1", got)
	}
	if got := counterValue(t, r.rolledBack); got != 1 {
		t.Fatalf("rolledBack = %v, want 1", got)
	}
}

func TestRecorderRiskFlags(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.RiskFlagRaised(sakti.RiskLongRunningTx)
	r.RiskFlagRaised(sakti.RiskLongRunningTx)
	r.RiskFlagRaised(sakti.RiskCriticalRisk)

	var m dto.Metric
	if err := r.riskFlags.WithLabelValues(string(sakti.RiskLongRunningTx)).Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if m.GetCounter().GetValue() != 2 {
		t.Fatalf("LONG_RUNNING_TX count = %v, want 2", m.GetCounter().GetValue())
	}
}

func TestRecorderObserveRiskFlags(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveRiskFlags(map[sakti.RiskFlag]int{
		sakti.RiskLockBypassed:  1,
		sakti.RiskDBUnreachable: 3,
	})
	r.ObserveRiskFlags(map[sakti.RiskFlag]int{
		sakti.RiskDBUnreachable: 2,
	})

	var m dto.Metric
	if err := r.riskFlags.WithLabelValues(string(sakti.RiskDBUnreachable)).Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 5 {
		t.Fatalf("DB_UNREACHABLE count = %v, want 5", got)
	}
}
