package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/sakti"
)

// Recorder holds every metric the coordinator, compensator, and recovery
// worker update. All updates go through prometheus's own lock-free atomic
// primitives (spec.md §4.10); readers may see slightly stale values, which
// is acceptable.
type Recorder struct {
	total       prometheus.Counter
	committed   prometheus.Counter
	rolledBack  prometheus.Counter
	failed      prometheus.Counter

	compensationAttempts prometheus.Counter
	compensationSuccess  prometheus.Counter
	compensationFailure  prometheus.Counter

	riskFlags *prometheus.CounterVec

	duration prometheus.Histogram
}

// NewRecorder builds a Recorder and registers its collectors with reg. Pass
// prometheus.NewRegistry() in tests to avoid polluting the default
// registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		total: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sakti_tx_total", Help: "Transactions started.",
		}),
		committed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sakti_tx_committed_total", Help: "Transactions that reached COMMITTED.",
		}),
		rolledBack: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sakti_tx_rolled_back_total", Help: "Transactions that reached ROLLED_BACK.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sakti_tx_failed_total", Help: "Transactions that reached FAILED.",
		}),
		compensationAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sakti_compensation_attempts_total", Help: "Journal entries submitted for compensation.",
		}),
		compensationSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sakti_compensation_success_total", Help: "Journal entries successfully compensated.",
		}),
		compensationFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sakti_compensation_failure_total", Help: "Journal entries that failed to compensate.",
		}),
		riskFlags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sakti_risk_flag_total", Help: "Risk flags raised, by flag.",
		}, []string{"flag"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sakti_tx_duration_seconds",
			Help:    "Transaction duration from CREATED to a terminal phase.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(r.total, r.committed, r.rolledBack, r.failed,
		r.compensationAttempts, r.compensationSuccess, r.compensationFailure,
		r.riskFlags, r.duration)
	return r
}

func (r *Recorder) TransactionStarted() { r.total.Inc() }

func (r *Recorder) TransactionCommitted(durationSeconds float64) {
	r.committed.Inc()
	r.duration.Observe(durationSeconds)
}

func (r *Recorder) TransactionRolledBack(durationSeconds float64) {
	r.rolledBack.Inc()
	r.duration.Observe(durationSeconds)
}

func (r *Recorder) TransactionFailed(durationSeconds float64) {
	r.failed.Inc()
	r.duration.Observe(durationSeconds)
}

func (r *Recorder) CompensationAttempted() { r.compensationAttempts.Inc() }
func (r *Recorder) CompensationSucceeded() { r.compensationSuccess.Inc() }
func (r *Recorder) CompensationFailed()    { r.compensationFailure.Inc() }

func (r *Recorder) RiskFlagRaised(flag sakti.RiskFlag) {
	r.riskFlags.WithLabelValues(string(flag)).Inc()
}

// ObserveRiskFlags adds each flag's count from a transaction context's risk
// metrics snapshot (sakti.TransactionContext.RiskMetrics) to the per-flag
// counter, once per terminal transition.
func (r *Recorder) ObserveRiskFlags(counts map[sakti.RiskFlag]int) {
	for flag, n := range counts {
		if n > 0 {
			r.riskFlags.WithLabelValues(string(flag)).Add(float64(n))
		}
	}
}
