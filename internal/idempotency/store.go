package idempotency

import (
	"context"
	"time"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/kv"
)

const (
	statusProcessing = "processing"
	statusCompleted  = "completed"
)

func keyFor(prefix, key string) string {
	return prefix + key
}

// Store tracks idempotency keys over a kv.Store. spec.md §4.2 calls for a
// double-check around lock acquisition: a fast-fail Exists before
// TryLock, and an anti-race check immediately after. The phase coordinator
// does the first with Exists; for the second it doesn't call Exists again
// (which would still race against a concurrent MarkProcessing between the
// re-check and the write), it calls MarkProcessing and inspects the won
// return value, since SetNX's own atomicity is the only thing that can
// actually close the race.
type Store struct {
	kvStore kv.Store
	prefix  string
}

// NewStore builds an idempotency Store namespacing keys under prefix (e.g.
// "sakti:idemp:").
func NewStore(kvStore kv.Store, prefix string) *Store {
	return &Store{kvStore: kvStore, prefix: prefix}
}

// Exists reports whether key is currently tracked in any state (processing
// or completed).
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	found, _, err := s.kvStore.Get(ctx, keyFor(s.prefix, key))
	if err != nil {
		return false, err
	}
	return found, nil
}

// MarkProcessing records key as in-flight for ttl. Uses SetNX so a
// concurrent caller that already marked it processing doesn't get silently
// overwritten; won reports whether this call actually claimed the key (the
// anti-race signal the phase coordinator checks immediately after
// TryLock — spec.md §4.2's post-lock re-check).
func (s *Store) MarkProcessing(ctx context.Context, key string, ttl time.Duration) (won bool, err error) {
	return s.kvStore.SetNX(ctx, keyFor(s.prefix, key), statusProcessing, ttl)
}

// MarkCompleted transitions key to completed, extending its TTL so
// duplicate requests keep failing fast for the full retention window.
func (s *Store) MarkCompleted(ctx context.Context, key string, ttl time.Duration) error {
	return s.kvStore.Set(ctx, keyFor(s.prefix, key), statusCompleted, ttl)
}

// Rollback deletes key, returning the idempotency state to missing. Only
// valid while the key is still processing (the business action failed
// before MarkCompleted); calling it after completion would let a retry
// replay a transaction that already succeeded, so callers must not invoke
// it past that point.
func (s *Store) Rollback(ctx context.Context, key string) error {
	_, err := s.kvStore.Delete(ctx, keyFor(s.prefix, key))
	return err
}
