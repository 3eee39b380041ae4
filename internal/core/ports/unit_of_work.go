package ports

import (
	"context"
)

// UnitOfWorkFactory creates new UnitOfWork instances for each request/command.
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// UnitOfWork represents a business transaction boundary.
// Client code must explicitly manage transaction lifecycle.
type UnitOfWork interface {
	// Begin starts a new database transaction.
	Begin(ctx context.Context) error

	// Commit commits the current transaction and then delivers the events recorded
	// through Events(). A delivery failure after a successful commit is reported as
	// *errs.PublishError; the committed state stays.
	Commit(ctx context.Context) error

	// Rollback rolls back the current transaction and discards recorded events.
	Rollback(ctx context.Context) error

	// OrderRepository returns an OrderRepository bound to the current transaction.
	OrderRepository() OrderRepository

	// Events returns an EventPublisher whose events are delivered only if Commit succeeds.
	Events() EventPublisher

	// OutboxRepository returns the relay view of the outbox bound to the current transaction.
	OutboxRepository() OutboxRepository
}
