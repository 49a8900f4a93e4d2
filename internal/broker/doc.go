// Package broker is the optional QUEUE resource participant: it batches
// records produced during COLLECTING and flushes them as a single produce
// call on Commit, discarding the batch on Rollback. Grounded on the
// standalone franz-go client repo's producer API shape; the coordinator
// only ever hands it an opaque payload, never inspects broker internals.
package broker
