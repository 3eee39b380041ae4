package ports

import (
	"context"
	"time"
)

// OutboxRecord is a message stored in the outbox table awaiting relay.
type OutboxRecord struct {
	Seq      int64
	Attempts int
	Message  Message
}

// OutboxRepository is the relay side of the outbox: writers append rows through a
// transaction-bound MessagePublisher, the relay drains them here.
type OutboxRepository interface {
	// FetchDue returns up to limit unsent records whose next attempt is not after now,
	// in insertion order. Rows are locked for the duration of the caller's transaction.
	FetchDue(ctx context.Context, now time.Time, limit int) ([]OutboxRecord, error)

	MarkSent(ctx context.Context, seq int64, at time.Time) error

	// MarkFailed records the failure and postpones the record until nextAttemptAt.
	MarkFailed(ctx context.Context, seq int64, cause error, nextAttemptAt time.Time) error
}
