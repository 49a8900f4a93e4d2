// Package propagation implements component 6: capturing a serializable
// Snapshot of a subset of a transaction context's fields and restoring it
// into a new execution unit bound to the same txId. Grounded on the
// teacher's context-carrying pattern across goroutine boundaries in
// common/two_phase_commit_transaction.go's replication fan-out, generalized
// from "same process, different goroutine" to "arbitrary execution unit".
package propagation
