package coordinator

import "context"

// Participant is one resource enlisted in a transaction: a local SQL
// transaction (internal/sqlparticipant) or a staged queue batch
// (internal/broker). The coordinator drives every participant through the
// same three calls regardless of kind.
type Participant interface {
	Name() string
	Prepare(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
