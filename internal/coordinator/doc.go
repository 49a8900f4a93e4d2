// Package coordinator implements component 8, the heart of the system:
// the public Execute entry point driving a transaction through its full
// lifecycle (spec.md §4.6) — idempotency check, lock acquisition, context
// creation, business-logic callback, validation, commit-or-compensate, and
// lock release on every exit path. Grounded on the teacher's
// Phase1Commit/Phase2Commit/rollback shape in
// common/two_phase_commit_transaction.go.
package coordinator
