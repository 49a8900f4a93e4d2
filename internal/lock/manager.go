package lock

import (
	"context"
	"errors"
	log "log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/kv"
)

// Manager acquires and releases distributed locks over a kv.Store, in the
// shape of the teacher's redis.Locker: wait-bounded acquisition with a
// Fibonacci-backoff retry loop between attempts.
type Manager struct {
	store          kv.Store
	degradeOnOutage bool
}

// NewManager builds a lock Manager. degradeOnOutage mirrors the
// degrade.onKvOutage configuration option: when true, a kv.Store outage
// yields a degraded, unacquired handle instead of an error.
func NewManager(store kv.Store, degradeOnOutage bool) *Manager {
	return &Manager{store: store, degradeOnOutage: degradeOnOutage}
}

// Handle is the result of TryLock. Acquired reports whether the lock is
// held; Degraded reports whether it was issued in degrade mode (the store
// was unreachable and degrade.onKvOutage permitted proceeding without a
// lock). Release is idempotent and safe to call multiple times, including
// after the lease has already expired server-side.
type Handle struct {
	mgr      *Manager
	keys     []*kv.LockKey
	Acquired bool
	Degraded bool
	released bool
}

// IsAcquired reports whether the lock is actually held (false for a
// degraded handle).
func (h *Handle) IsAcquired() bool {
	return h != nil && h.Acquired
}

// Release drops the lock if held. Safe to call more than once.
func (h *Handle) Release(ctx context.Context) error {
	if h == nil || h.released || !h.Acquired {
		if h != nil {
			h.released = true
		}
		return nil
	}
	h.released = true
	// Once the lease has expired another owner may hold the key; only
	// delete it while it still carries this handle's owner fingerprint.
	held, err := h.mgr.store.IsLocked(ctx, h.keys)
	if err != nil {
		return err
	}
	if !held {
		return nil
	}
	return h.mgr.store.Unlock(ctx, h.keys)
}

// TryLock attempts to acquire a lock named key, waiting up to waitMs and,
// once acquired, holding it for at most leaseMs before the underlying store
// expires it. Retries use Fibonacci backoff the way the teacher's internal
// retry helper does, capped by the wait budget (spec.md §4.1).
func (m *Manager) TryLock(ctx context.Context, key string, waitMs, leaseMs int) (*Handle, error) {
	lk := m.store.NewLockKey(key)
	lease := time.Duration(leaseMs) * time.Millisecond
	waitCtx, cancel := context.WithTimeout(ctx, time.Duration(waitMs)*time.Millisecond)
	defer cancel()

	backoff, err := retry.NewFibonacci(5 * time.Millisecond)
	if err != nil {
		return nil, err
	}
	backoff = retry.WithMaxDuration(time.Duration(waitMs)*time.Millisecond, backoff)

	var won bool
	retryErr := retry.Do(waitCtx, backoff, func(ctx context.Context) error {
		w, err := m.store.Lock(ctx, lease, []*kv.LockKey{lk})
		if err != nil {
			var unreachable *kv.Unreachable
			if errors.As(err, &unreachable) {
				return err // not retryable, handled below
			}
			return retry.RetryableError(err)
		}
		if !w {
			return retry.RetryableError(errors.New("lock contended"))
		}
		won = true
		return nil
	})

	var unreachable *kv.Unreachable
	if errors.As(retryErr, &unreachable) {
		if m.degradeOnOutage {
			log.Warn("kv store unreachable, proceeding in degrade mode", "key", key)
			return &Handle{mgr: m, Acquired: false, Degraded: true}, nil
		}
		return &Handle{mgr: m, Acquired: false}, retryErr
	}

	if !won {
		return &Handle{mgr: m, Acquired: false}, nil
	}
	return &Handle{mgr: m, keys: []*kv.LockKey{lk}, Acquired: true}, nil
}
