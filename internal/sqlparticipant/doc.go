// Package sqlparticipant wraps a local *sql.Tx as a DATABASE resource
// participant: begin on enlistment, SELECT 1 for the validator's probe,
// commit or rollback as the phase coordinator directs. The teacher's own
// storage backend has no local ACID transaction to wrap (Cassandra), so
// this is concretized directly from spec.md's enlisted-database semantics
// rather than adapted from teacher code, using sqlx the way the rest of
// the pack accesses SQL.
package sqlparticipant
