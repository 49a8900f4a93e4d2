// Package idempotency implements component 3: a double-checked idempotency
// store over internal/kv.Store, tracking each key through the monotonic
// missing -> processing -> completed state machine (or processing ->
// missing on Rollback). Grounded on the teacher's item_action_tracker lock
// double-check pattern, applied to a coarser three-state machine instead of
// per-item CRUD tracking.
package idempotency
