package kv

import (
	"context"
	"time"
)

// LockKey identifies a single distributed lock attempt: the formatted key,
// the fingerprint of whoever is trying to hold it, and whether that attempt
// won.
type LockKey struct {
	Key         string
	OwnerID     string
	IsLockOwner bool
}

// Store is the opaque interface to the replicated key-value store backing
// the lock manager and idempotency store. Implementations must make Lock's
// double-checked acquisition safe under concurrent callers (spec.md §4.1,
// §4.2).
type Store interface {
	// Set stores value under key with the given expiration. expiration <= 0
	// means no expiration.
	Set(ctx context.Context, key, value string, expiration time.Duration) error
	// Get retrieves a value. found is false if the key is absent; err is
	// only non-nil for a genuine backend failure.
	Get(ctx context.Context, key string) (found bool, value string, err error)
	// SetNX sets key to value only if it does not already exist, returning
	// whether this call won the race.
	SetNX(ctx context.Context, key, value string, expiration time.Duration) (won bool, err error)
	// Delete removes keys, returning the number actually removed.
	Delete(ctx context.Context, keys ...string) (int64, error)
	// Ping checks connectivity to the backend.
	Ping(ctx context.Context) error

	// FormatLockKey namespaces a logical lock name into a store key.
	FormatLockKey(name string) string
	// NewLockKey builds a LockKey with a fresh owner fingerprint for name.
	NewLockKey(name string) *LockKey
	// Lock attempts to acquire every key in keys atomically-enough (each key
	// independently double-checked). Returns true only if all were won.
	Lock(ctx context.Context, duration time.Duration, keys []*LockKey) (bool, error)
	// IsLocked reports whether every key in keys is currently held by its
	// recorded owner.
	IsLocked(ctx context.Context, keys []*LockKey) (bool, error)
	// Unlock releases every key in keys that this process believes it owns.
	Unlock(ctx context.Context, keys []*LockKey) error

	// Publish sends payload on channel.
	Publish(ctx context.Context, channel, payload string) error
	// Subscribe returns a channel of payloads published to channel and an
	// unsubscribe function. The returned channel is closed on unsubscribe or
	// context cancellation.
	Subscribe(ctx context.Context, channel string) (<-chan string, func(), error)
}

// Unreachable is a sentinel error kind implementations should wrap connect
// failures in, so callers (notably the lock manager's degrade mode) can
// detect a KV outage specifically rather than any Store error.
type Unreachable struct {
	Err error
}

func (e *Unreachable) Error() string { return "kv store unreachable: " + e.Err.Error() }
func (e *Unreachable) Unwrap() error { return e.Err }
