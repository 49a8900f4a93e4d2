package validator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/sakti"
)

func alwaysOK(context.Context, string) error { return nil }

func TestRunAllHealthyProceeds(t *testing.T) {
	tc := sakti.NewTransactionContext("biz-1")
	tc.EnlistResource("orders-db", sakti.ResourceDatabase)
	tc.MarkPrepared("orders-db")

	v := New(30*time.Second, time.Second, alwaysOK)
	res := v.Run(context.Background(), tc)
	if !res.CanProceed {
		t.Fatalf("expected CanProceed, got issues %+v", res.Issues)
	}
	if res.OverallRisk != "LOW" {
		t.Fatalf("OverallRisk = %q, want LOW", res.OverallRisk)
	}
}

func TestRunUnreachableDBBlocksProceed(t *testing.T) {
	tc := sakti.NewTransactionContext("biz-2")
	tc.EnlistResource("orders-db", sakti.ResourceDatabase)
	tc.MarkPrepared("orders-db")

	failing := func(context.Context, string) error { return errors.New("connection refused") }
	v := New(30*time.Second, time.Second, failing)
	res := v.Run(context.Background(), tc)
	if res.CanProceed {
		t.Fatalf("expected CanProceed = false on unreachable db")
	}
	if res.OverallRisk != "CRITICAL" {
		t.Fatalf("OverallRisk = %q, want CRITICAL", res.OverallRisk)
	}
}

func TestRunUnpreparedResourceIsWarningOnly(t *testing.T) {
	tc := sakti.NewTransactionContext("biz-3")
	tc.EnlistResource("orders-db", sakti.ResourceDatabase)
	// Not marked prepared.

	v := New(30*time.Second, time.Second, alwaysOK)
	res := v.Run(context.Background(), tc)
	if !res.CanProceed {
		t.Fatalf("unprepared resource should be advisory, not blocking")
	}
	found := false
	for _, iss := range res.Issues {
		if iss.Flag == sakti.RiskResourceNotPrepared {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected RESOURCE_NOT_PREPARED issue")
	}
}

func TestRunLongRunningFlagged(t *testing.T) {
	tc := sakti.NewTransactionContext("biz-4")
	v := New(1*time.Millisecond, time.Second, alwaysOK)
	time.Sleep(5 * time.Millisecond)
	res := v.Run(context.Background(), tc)
	if !res.CanProceed {
		t.Fatalf("long running alone should not block proceeding")
	}
	found := false
	for _, iss := range res.Issues {
		if iss.Flag == sakti.RiskLongRunningTx {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected LONG_RUNNING_TX issue")
	}
}
