package kv

import (
	"context"
	"fmt"
	log "log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/sakti"
)

// RedisStore is a Store backed by a *redis.Client. The locking algorithm
// (set-then-reget double-check) mirrors the teacher's redis/locker.go.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an already-configured *redis.Client. prefix namespaces
// all lock keys (e.g. "sakti:lock:").
func NewRedisStore(client *redis.Client, lockPrefix string) *RedisStore {
	return &RedisStore{client: client, prefix: lockPrefix}
}

func (s *RedisStore) keyNotFound(err error) bool {
	return err == redis.Nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	if expiration <= 0 {
		expiration = 0
	}
	if err := s.client.Set(ctx, key, value, expiration).Err(); err != nil {
		return &Unreachable{Err: err}
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (bool, string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if s.keyNotFound(err) {
		return false, "", nil
	}
	if err != nil {
		return false, "", &Unreachable{Err: err}
	}
	return true, v, nil
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, expiration time.Duration) (bool, error) {
	won, err := s.client.SetNX(ctx, key, value, expiration).Result()
	if err != nil {
		return false, &Unreachable{Err: err}
	}
	return won, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, &Unreachable{Err: err}
	}
	return n, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return &Unreachable{Err: err}
	}
	return nil
}

func (s *RedisStore) FormatLockKey(name string) string {
	return fmt.Sprintf("%s%s", s.prefix, name)
}

func (s *RedisStore) NewLockKey(name string) *LockKey {
	return &LockKey{
		Key:     s.FormatLockKey(name),
		OwnerID: sakti.NewUUID().String(),
	}
}

// Lock attempts to win every key via SETNX, then re-GETs each to confirm, the
// way the teacher's redis.client.Lock does. Any key already held by a
// different owner fails the whole batch and releases the keys this call had
// already won; keys already won by this exact owner (re-entrant call with
// the same LockKey) are treated as already held.
func (s *RedisStore) Lock(ctx context.Context, duration time.Duration, keys []*LockKey) (bool, error) {
	var wonNow []*LockKey
	fail := func(err error) (bool, error) {
		_ = s.Unlock(ctx, wonNow)
		return false, err
	}
	for _, lk := range keys {
		found, owner, err := s.Get(ctx, lk.Key)
		if err != nil {
			return fail(err)
		}
		if !found {
			won, err := s.SetNX(ctx, lk.Key, lk.OwnerID, duration)
			if err != nil {
				return fail(err)
			}
			if !won {
				// Lost the race to another process between Get and SetNX.
				return fail(nil)
			}
			// Re-get to confirm we actually hold it (defends against a
			// concurrent overwrite landing between SetNX and now).
			found2, owner2, err := s.Get(ctx, lk.Key)
			if err != nil {
				return fail(err)
			}
			if !found2 || owner2 != lk.OwnerID {
				return fail(nil)
			}
			lk.IsLockOwner = true
			wonNow = append(wonNow, lk)
			continue
		}
		if owner != lk.OwnerID {
			return fail(nil)
		}
		lk.IsLockOwner = true
	}
	return true, nil
}

func (s *RedisStore) IsLocked(ctx context.Context, keys []*LockKey) (bool, error) {
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

func (s *RedisStore) Unlock(ctx context.Context, keys []*LockKey) error {
	var lastErr error
	for _, lk := range keys {
		if !lk.IsLockOwner {
			continue
		}
		if _, err := s.Delete(ctx, lk.Key); err != nil {
			lastErr = err
			log.Warn("unlock failed", "key", lk.Key, "error", err)
			continue
		}
		lk.IsLockOwner = false
	}
	return lastErr
}

func (s *RedisStore) Publish(ctx context.Context, channel, payload string) error {
	if err := s.client.Publish(ctx, channel, payload).Err(); err != nil {
		return &Unreachable{Err: err}
	}
	return nil
}

func (s *RedisStore) Subscribe(ctx context.Context, channel string) (<-chan string, func(), error) {
	sub := s.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, &Unreachable{Err: err}
	}
	out := make(chan string)
	done := make(chan struct{})
	go func() {
		ch := sub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					close(out)
					return
				}
				select {
				case out <- msg.Payload:
				case <-done:
					close(out)
					return
				}
			case <-done:
				close(out)
				return
			case <-ctx.Done():
				close(out)
				return
			}
		}
	}()
	unsubscribe := func() {
		close(done)
		sub.Close()
	}
	return out, unsubscribe, nil
}
