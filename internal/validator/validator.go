package validator

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/sakti"
)

// IssueSeverity distinguishes a fatal check from an advisory one.
type IssueSeverity string

const (
	SeverityWarning IssueSeverity = "WARNING"
	SeverityError   IssueSeverity = "ERROR"
)

// Issue is one finding from a validation pass.
type Issue struct {
	Flag     sakti.RiskFlag
	Severity IssueSeverity
	Detail   string
}

// Result is the outcome of Run. CanProceed is false iff any issue is an
// ERROR (spec.md §4.5); the phase coordinator refuses VALIDATING ->
// PREPARED when it is false.
type Result struct {
	CanProceed  bool
	Issues      []Issue
	OverallRisk string
}

// DBProbe checks connectivity to one enlisted database, e.g. a SELECT 1.
type DBProbe func(ctx context.Context, name string) error

// Validator runs the four pre-commit checks against a TransactionContext.
type Validator struct {
	longRunningThreshold time.Duration
	probe                DBProbe
	breakers             map[string]*gobreaker.CircuitBreaker
	probeTimeout         time.Duration
}

// New builds a Validator. longRunningThreshold defaults to 30s per spec.md
// §4.5 if zero is passed. probe is the per-database connectivity check;
// each database gets its own circuit breaker so a single bad participant
// doesn't retry-storm the others.
func New(longRunningThreshold time.Duration, probeTimeout time.Duration, probe DBProbe) *Validator {
	if longRunningThreshold <= 0 {
		longRunningThreshold = 30 * time.Second
	}
	if probeTimeout <= 0 {
		probeTimeout = 2 * time.Second
	}
	return &Validator{
		longRunningThreshold: longRunningThreshold,
		probe:                probe,
		breakers:             make(map[string]*gobreaker.CircuitBreaker),
		probeTimeout:         probeTimeout,
	}
}

func (v *Validator) breakerFor(name string) *gobreaker.CircuitBreaker {
	if b, ok := v.breakers[name]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "db-probe:" + name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	v.breakers[name] = b
	return b
}

// probeDatabases checks every enlisted database concurrently, bounded the
// way the teacher's TaskRunner bounds replication fan-out: each probe is
// independent, so there is no reason to pay for them sequentially. This
// does not touch spec.md §5's sequential-commit guarantee, which only
// governs participant commit/rollback, not read-only validation probes.
func (v *Validator) probeDatabases(ctx context.Context, tc *sakti.TransactionContext) ([]Issue, error) {
	var (
		mu     sync.Mutex
		issues []Issue
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, r := range tc.Enlistments() {
		if r.Type != sakti.ResourceDatabase {
			continue
		}
		r := r
		g.Go(func() error {
			breaker := v.breakerFor(r.Name)
			probeCtx, cancel := context.WithTimeout(gctx, v.probeTimeout)
			defer cancel()
			_, err := breaker.Execute(func() (any, error) {
				return nil, v.probe(probeCtx, r.Name)
			})
			if err != nil {
				tc.AddRiskFlag(sakti.RiskDBUnreachable)
				mu.Lock()
				issues = append(issues, Issue{
					Flag:     sakti.RiskDBUnreachable,
					Severity: SeverityError,
					Detail:   "database " + r.Name + " unreachable: " + err.Error(),
				})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return issues, nil
}

// Run executes the four checks against tc and returns the aggregate result.
func (v *Validator) Run(ctx context.Context, tc *sakti.TransactionContext) Result {
	var issues []Issue

	dbIssues, err := v.probeDatabases(ctx, tc)
	if err != nil {
		return Result{CanProceed: false, Issues: []Issue{{
			Flag: sakti.RiskDBUnreachable, Severity: SeverityError, Detail: err.Error(),
		}}, OverallRisk: "CRITICAL"}
	}
	issues = append(issues, dbIssues...)

	if tc.Elapsed() > v.longRunningThreshold {
		tc.AddRiskFlag(sakti.RiskLongRunningTx)
		issues = append(issues, Issue{
			Flag:     sakti.RiskLongRunningTx,
			Severity: SeverityWarning,
			Detail:   "transaction has exceeded the long-running threshold",
		})
	}

	for _, r := range tc.Enlistments() {
		if !r.Prepared {
			tc.AddRiskFlag(sakti.RiskResourceNotPrepared)
			issues = append(issues, Issue{
				Flag:     sakti.RiskResourceNotPrepared,
				Severity: SeverityWarning,
				Detail:   "resource " + r.Name + " not marked prepared",
			})
		}
	}

	if tc.CriticalRiskLevel() {
		issues = append(issues, Issue{
			Flag:     sakti.RiskCriticalRisk,
			Severity: SeverityWarning,
			Detail:   "aggregated risk level is CRITICAL",
		})
	}

	canProceed := true
	overallRisk := "LOW"
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			canProceed = false
			overallRisk = "CRITICAL"
		}
	}
	if overallRisk != "CRITICAL" && len(issues) > 0 {
		overallRisk = "ELEVATED"
	}

	return Result{CanProceed: canProceed, Issues: issues, OverallRisk: overallRisk}
}
