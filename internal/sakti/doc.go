// Package sakti defines the domain types shared across the transaction
// coordinator: the phase state machine, transaction context, resource
// enlistments, the operation journal entry shape, and the error taxonomy.
// Concrete behavior (lock management, journaling, validation, commit/rollback
// orchestration) lives in sibling packages under internal/ and operates on
// these types.
package sakti
