package lock

import (
	"context"
	"testing"
	"time"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/kv"
)

func TestTryLockAcquireAndRelease(t *testing.T) {
	store := kv.NewFakeStore("sakti:lock:")
	mgr := NewManager(store, false)
	ctx := context.Background()

	h, err := mgr.TryLock(ctx, "tx:1", 200, 5000)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if !h.IsAcquired() {
		t.Fatalf("expected lock acquired")
	}
	if err := h.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := h.Release(ctx); err != nil {
		t.Fatalf("second Release should be idempotent, got %v", err)
	}
}

func TestTryLockContention(t *testing.T) {
	store := kv.NewFakeStore("sakti:lock:")
	mgr := NewManager(store, false)
	ctx := context.Background()

	h1, err := mgr.TryLock(ctx, "tx:contended", 200, 5000)
	if err != nil || !h1.IsAcquired() {
		t.Fatalf("first TryLock: acquired=%v err=%v", h1.IsAcquired(), err)
	}

	start := time.Now()
	h2, err := mgr.TryLock(ctx, "tx:contended", 80, 5000)
	if err != nil {
		t.Fatalf("second TryLock: %v", err)
	}
	if h2.IsAcquired() {
		t.Fatalf("second TryLock acquired despite contention")
	}
	if h2.Degraded {
		t.Fatalf("contention should not report degraded")
	}
	if time.Since(start) < 60*time.Millisecond {
		t.Fatalf("TryLock returned before honoring wait budget")
	}
}

func TestTryLockDegradeModeOnOutage(t *testing.T) {
	store := kv.NewFakeStore("sakti:lock:")
	store.SetUnreachable(true)
	mgr := NewManager(store, true)
	ctx := context.Background()

	h, err := mgr.TryLock(ctx, "tx:2", 100, 5000)
	if err != nil {
		t.Fatalf("TryLock in degrade mode returned error: %v", err)
	}
	if h.IsAcquired() {
		t.Fatalf("degraded handle should not report acquired")
	}
	if !h.Degraded {
		t.Fatalf("expected Degraded = true")
	}
}

func TestTryLockFailsHardWithoutDegradeMode(t *testing.T) {
	store := kv.NewFakeStore("sakti:lock:")
	store.SetUnreachable(true)
	mgr := NewManager(store, false)
	ctx := context.Background()

	h, err := mgr.TryLock(ctx, "tx:3", 100, 5000)
	if err == nil {
		t.Fatalf("expected error when degrade mode disabled and store unreachable")
	}
	if h.IsAcquired() || h.Degraded {
		t.Fatalf("handle should be neither acquired nor degraded on hard failure")
	}
}
