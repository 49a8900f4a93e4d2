// Package lock implements component 2: a distributed lock manager over
// internal/kv.Store. It grounds the teacher's redis/locker.go double-checked
// acquisition in a TryLock/LockHandle shape, and adds a degrade mode for
// when the backing store is unreachable, matching the DEGRADED_MODE error
// kind and the degrade.onKvOutage configuration option.
package lock
