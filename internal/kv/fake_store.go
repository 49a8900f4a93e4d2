package kv

import (
	"context"
	"sync"
	"time"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/sakti"
)

type fakeEntry struct {
	value   string
	expires time.Time
}

// FakeStore is an in-process Store for unit tests of packages built on top
// of kv.Store (lock manager, idempotency store) that don't need a real or
// miniredis-backed Redis. Not safe to use across process boundaries, only
// within a single test binary.
type FakeStore struct {
	mu     sync.Mutex
	data   map[string]fakeEntry
	prefix string
	subs   map[string][]chan string
	down   bool
}

// NewFakeStore returns an empty in-memory Store.
func NewFakeStore(lockPrefix string) *FakeStore {
	return &FakeStore{
		data:   make(map[string]fakeEntry),
		prefix: lockPrefix,
		subs:   make(map[string][]chan string),
	}
}

// SetUnreachable flips the store into a mode where every call returns
// *Unreachable, to exercise degrade-mode paths in callers.
func (s *FakeStore) SetUnreachable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *FakeStore) unreachableErr() error {
	return &Unreachable{Err: context.DeadlineExceeded}
}

func (s *FakeStore) expired(e fakeEntry) bool {
	return !e.expires.IsZero() && time.Now().After(e.expires)
}

func (s *FakeStore) Set(_ context.Context, key, value string, expiration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return s.unreachableErr()
	}
	var exp time.Time
	if expiration > 0 {
		exp = time.Now().Add(expiration)
	}
	s.data[key] = fakeEntry{value: value, expires: exp}
	return nil
}

func (s *FakeStore) Get(_ context.Context, key string) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return false, "", s.unreachableErr()
	}
	e, ok := s.data[key]
	if !ok || s.expired(e) {
		return false, "", nil
	}
	return true, e.value, nil
}

func (s *FakeStore) SetNX(_ context.Context, key, value string, expiration time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return false, s.unreachableErr()
	}
	if e, ok := s.data[key]; ok && !s.expired(e) {
		return false, nil
	}
	var exp time.Time
	if expiration > 0 {
		exp = time.Now().Add(expiration)
	}
	s.data[key] = fakeEntry{value: value, expires: exp}
	return true, nil
}

func (s *FakeStore) Delete(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return 0, s.unreachableErr()
	}
	var n int64
	for _, k := range keys {
		if _, ok := s.data[k]; ok {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func (s *FakeStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return s.unreachableErr()
	}
	return nil
}

func (s *FakeStore) FormatLockKey(name string) string {
	return s.prefix + name
}

func (s *FakeStore) NewLockKey(name string) *LockKey {
	return &LockKey{Key: s.FormatLockKey(name), OwnerID: sakti.NewUUID().String()}
}

func (s *FakeStore) Lock(ctx context.Context, duration time.Duration, keys []*LockKey) (bool, error) {
	for _, lk := range keys {
		found, owner, err := s.Get(ctx, lk.Key)
		if err != nil {
			return false, err
		}
		if found {
			if owner != lk.OwnerID {
				return false, nil
			}
			lk.IsLockOwner = true
			continue
		}
		won, err := s.SetNX(ctx, lk.Key, lk.OwnerID, duration)
		if err != nil {
			return false, err
		}
		if !won {
			return false, nil
		}
		lk.IsLockOwner = true
	}
	return true, nil
}

func (s *FakeStore) IsLocked(ctx context.Context, keys []*LockKey) (bool, error) {
	for _, lk := range keys {
		found, owner, err := s.Get(ctx, lk.Key)
		if err != nil {
			return false, err
		}
		if !found || owner != lk.OwnerID {
			return false, nil
		}
	}
	return true, nil
}

func (s *FakeStore) Unlock(ctx context.Context, keys []*LockKey) error {
	for _, lk := range keys {
		if !lk.IsLockOwner {
			continue
		}
		if _, err := s.Delete(ctx, lk.Key); err != nil {
			return err
		}
		lk.IsLockOwner = false
	}
	return nil
}

func (s *FakeStore) Publish(_ context.Context, channel, payload string) error {
	s.mu.Lock()
	subs := append([]chan string(nil), s.subs[channel]...)
	s.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (s *FakeStore) Subscribe(ctx context.Context, channel string) (<-chan string, func(), error) {
	ch := make(chan string, 8)
	s.mu.Lock()
	s.subs[channel] = append(s.subs[channel], ch)
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.subs[channel]
		for i, c := range list {
			if c == ch {
				s.subs[channel] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, unsubscribe, nil
}
