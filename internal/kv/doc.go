// Package kv implements component 1 of the coordinator: an opaque interface
// to a replicated key-value store offering TTL buckets, pub/sub, and
// distributed locks, plus a Redis-backed implementation. Locks are taken by
// SETNX attempts; waiters are not queued, so acquisition order among
// contending callers is not defined. Lock manager
// (internal/lock) and idempotency store (internal/idempotency) are both
// built on top of this abstraction, the way the teacher's redis.Locker and
// item action tracker are both built on its redis.Client.
package kv
