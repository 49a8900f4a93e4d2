package txcontext

import (
	"context"
	"testing"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/sakti"
)

func TestCreateOrJoinCreatesWhenAbsent(t *testing.T) {
	m := NewManager()
	tc, joined := m.CreateOrJoin(context.Background(), "biz-1")
	if joined {
		t.Fatalf("expected a fresh context, got joined = true")
	}
	if !m.IsBound(tc.TxID) {
		t.Fatalf("fresh context was not registered as bound")
	}
}

func TestCreateOrJoinJoinsPropagatedContext(t *testing.T) {
	m := NewManager()
	tc := sakti.NewTransactionContext("biz-2")
	ctx := WithContext(context.Background(), tc)

	joinedTc, joined := m.CreateOrJoin(ctx, "biz-2")
	if !joined {
		t.Fatalf("expected join, got create")
	}
	if joinedTc.TxID != tc.TxID {
		t.Fatalf("joined wrong context")
	}
}

func TestEnforceCleanClearsLeakedBinding(t *testing.T) {
	m := NewManager()
	tc, _ := m.CreateOrJoin(context.Background(), "biz-3")
	// Simulate forgetting to Unbind.
	m.EnforceClean(tc.TxID)
	if m.IsBound(tc.TxID) {
		t.Fatalf("EnforceClean did not clear the leaked binding")
	}
}

func TestUnbindRemovesBinding(t *testing.T) {
	m := NewManager()
	tc, _ := m.CreateOrJoin(context.Background(), "biz-4")
	m.Unbind(tc)
	if m.IsBound(tc.TxID) {
		t.Fatalf("Unbind did not remove the binding")
	}
}
