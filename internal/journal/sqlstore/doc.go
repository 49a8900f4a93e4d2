// Package sqlstore is the cold-storage half of component 4: a durable
// tx_log table holding one row per transaction, queried by the recovery
// worker for rows stalled past their threshold. Grounded on the teacher's
// cassandra/transactionlog.go CRUD shape (Add/Remove/GetOne) translated to
// a relational schema, accessed through sqlx over the lib/pq "postgres"
// driver.
package sqlstore
