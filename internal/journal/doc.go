// Package journal is the write path of component 4: it mirrors a
// transaction's status hot into internal/kv.Store (sakti:txlog:<txId>, with
// TTL) and cold into sqlstore's durable tx_log table, serializing the
// operation journal and any terminal error as the payload column. Grounded
// on the teacher's transaction_logger.go log() call sites (one log write
// per commit-function transition).
package journal
