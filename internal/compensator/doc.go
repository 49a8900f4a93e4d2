// Package compensator implements component 9: the reverse-order inverse
// replay run when a transaction rolls back. It walks the operation journal
// in descending sequence and dispatches each uncompensated entry to the
// strategy matching its operation type (spec.md §4.7). Grounded on the
// teacher's processExpiredTransactionLogs, which likewise iterates logged
// state in reverse and dispatches per logged-function kind, best-effort
// across entries.
package compensator
