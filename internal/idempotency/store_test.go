package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/kv"
)

func TestStoreLifecycle(t *testing.T) {
	s := NewStore(kv.NewFakeStore("sakti:idem:"), "sakti:idem:")
	ctx := context.Background()

	exists, err := s.Exists(ctx, "req-1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatalf("fresh key reported as existing")
	}

	won, err := s.MarkProcessing(ctx, "req-1", time.Minute)
	if err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if !won {
		t.Fatalf("MarkProcessing won = false, want true for a fresh key")
	}
	exists, err = s.Exists(ctx, "req-1")
	if err != nil || !exists {
		t.Fatalf("Exists after MarkProcessing = (%v, %v), want (true, nil)", exists, err)
	}

	if err := s.MarkCompleted(ctx, "req-1", time.Minute); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	exists, err = s.Exists(ctx, "req-1")
	if err != nil || !exists {
		t.Fatalf("Exists after MarkCompleted = (%v, %v), want (true, nil)", exists, err)
	}
}

func TestStoreRollbackReturnsToMissing(t *testing.T) {
	s := NewStore(kv.NewFakeStore("sakti:idem:"), "sakti:idem:")
	ctx := context.Background()

	_, _ = s.MarkProcessing(ctx, "req-2", time.Minute)
	if err := s.Rollback(ctx, "req-2"); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	exists, err := s.Exists(ctx, "req-2")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatalf("key still tracked after Rollback")
	}
}

func TestStoreMarkProcessingDoesNotOverwriteExisting(t *testing.T) {
	store := kv.NewFakeStore("sakti:idem:")
	s := NewStore(store, "sakti:idem:")
	ctx := context.Background()

	won, err := s.MarkProcessing(ctx, "req-3", time.Minute)
	if err != nil {
		t.Fatalf("first MarkProcessing: %v", err)
	}
	if !won {
		t.Fatalf("first MarkProcessing won = false, want true")
	}
	if err := s.MarkCompleted(ctx, "req-3", time.Minute); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	// A duplicate caller marking processing again must not clobber the
	// completed status (SetNX is a no-op once the key is present), and
	// must report that it lost the race.
	won, err = s.MarkProcessing(ctx, "req-3", time.Minute)
	if err != nil {
		t.Fatalf("second MarkProcessing: %v", err)
	}
	if won {
		t.Fatalf("second MarkProcessing won = true, want false (key already completed)")
	}
	_, value, err := store.Get(ctx, "sakti:idem:req-3")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if value != statusCompleted {
		t.Fatalf("status = %q, want %q", value, statusCompleted)
	}
}
