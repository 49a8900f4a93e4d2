// Package txcontext implements the execution-unit side of component 5: it
// owns the registry of currently-bound transaction contexts and decides
// whether a call joins an already-bound context or creates a fresh one. The
// mutating operations named in spec.md §4.3 (EnlistResource, MarkPrepared,
// AppendOperation, TransitionTo, AddRiskFlag, metadata) live directly on
// sakti.TransactionContext, since its fields are package-private to sakti;
// Manager here is the single-writer boundary enforcement layer sitting in
// front of them, grounded on the teacher's per-goroutine transaction
// registration in common/two_phase_commit_transaction.go.
package txcontext
