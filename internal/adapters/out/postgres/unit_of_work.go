// Package postgres provides the GORM-based Unit of Work for the order service.
//
// A unit of work owns one database transaction and the events recorded during it.
// How those events leave the process depends on the delivery mode:
//
//   - DeliveryDirect: events are buffered in memory and published to the broker right
//     after a successful commit. A failed commit never emits.
//   - DeliveryOutbox: events are inserted into order_outbox inside the same transaction
//     and relayed later by the outbox job.
//
// Usage:
//
//	factory, err := NewGormUnitOfWorkFactory(db, WithDirectDelivery(broker))
//	uow := factory.Create()
//
//	if err := uow.Begin(ctx); err != nil {
//	    return err
//	}
//	defer func() { _ = uow.Rollback(ctx) }()
//
//	if err := uow.OrderRepository().Add(ctx, o); err != nil {
//	    return err
//	}
//	if err := uow.Events().PublishCreated(ctx, o); err != nil {
//	    return err
//	}
//
//	return uow.Commit(ctx)
//
// Each UnitOfWork instance is single-goroutine; create one per operation.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"orders/internal/adapters/out/envelope"
	"orders/internal/adapters/out/postgres/orderrepo"
	"orders/internal/adapters/out/postgres/outboxrepo"
	"orders/internal/core/ports"
	"orders/internal/pkg/errs"

	"gorm.io/gorm"
)

// DeliveryMode selects how recorded events reach the broker.
type DeliveryMode string

const (
	DeliveryDirect DeliveryMode = "direct"
	DeliveryOutbox DeliveryMode = "outbox"
)

var ErrNoBroker = errors.New("direct delivery requires a message publisher")

// ParseDeliveryMode accepts "direct" and "outbox".
func ParseDeliveryMode(s string) (DeliveryMode, error) {
	switch mode := DeliveryMode(s); mode {
	case DeliveryDirect, DeliveryOutbox:
		return mode, nil
	default:
		return "", errs.NewValueIsInvalidErrorWithCause("EVENTS_DELIVERY", fmt.Errorf("unknown delivery mode %q", s))
	}
}

// Option configures a GormUnitOfWorkFactory.
type Option func(*GormUnitOfWorkFactory)

// WithDirectDelivery publishes events to publisher after commit.
func WithDirectDelivery(publisher ports.MessagePublisher) Option {
	return func(f *GormUnitOfWorkFactory) {
		f.mode = DeliveryDirect
		f.publisher = publisher
	}
}

// WithOutboxDelivery writes events to the outbox table inside the transaction.
func WithOutboxDelivery() Option {
	return func(f *GormUnitOfWorkFactory) {
		f.mode = DeliveryOutbox
		f.publisher = nil
	}
}

// GormUnitOfWorkFactory creates UnitOfWork instances sharing one connection pool.
type GormUnitOfWorkFactory struct {
	db        *gorm.DB
	mode      DeliveryMode
	publisher ports.MessagePublisher
}

// NewGormUnitOfWorkFactory defaults to outbox delivery when no option is given.
func NewGormUnitOfWorkFactory(db *gorm.DB, opts ...Option) (*GormUnitOfWorkFactory, error) {
	f := &GormUnitOfWorkFactory{db: db, mode: DeliveryOutbox}
	for _, opt := range opts {
		opt(f)
	}

	if f.mode == DeliveryDirect && f.publisher == nil {
		return nil, ErrNoBroker
	}
	return f, nil
}

// Mode reports the configured delivery mode.
func (f *GormUnitOfWorkFactory) Mode() DeliveryMode {
	return f.mode
}

// Create produces a new UnitOfWork with its own transaction state and event buffer.
func (f *GormUnitOfWorkFactory) Create() ports.UnitOfWork {
	return &GormUnitOfWork{
		db:        f.db,
		mode:      f.mode,
		publisher: f.publisher,
	}
}

// GormUnitOfWork coordinates one database transaction and the events recorded in it.
type GormUnitOfWork struct {
	db        *gorm.DB
	tx        *gorm.DB
	mode      DeliveryMode
	publisher ports.MessagePublisher
	buffered  []ports.Message
}

// Begin starts a transaction. Calling it twice does not nest.
func (uow *GormUnitOfWork) Begin(ctx context.Context) error {
	if uow.tx != nil {
		return nil
	}

	uow.tx = uow.db.WithContext(ctx).Begin()
	if uow.tx.Error != nil {
		err := uow.tx.Error
		uow.tx = nil
		return err
	}

	return nil
}

// Commit commits the transaction and, in direct mode, publishes buffered events in the
// order they were recorded. It stops at the first delivery failure and reports it as
// *errs.PublishError.
func (uow *GormUnitOfWork) Commit(ctx context.Context) error {
	if uow.tx == nil {
		return gorm.ErrInvalidTransaction
	}

	err := uow.tx.Commit().Error
	uow.tx = nil
	if err != nil {
		uow.buffered = nil
		return err
	}

	pending := uow.buffered
	uow.buffered = nil
	for _, msg := range pending {
		if err = uow.publisher.Publish(ctx, msg); err != nil {
			return errs.NewPublishError(msg.Type, err)
		}
	}

	return nil
}

// Rollback discards the transaction and any buffered events.
func (uow *GormUnitOfWork) Rollback(_ context.Context) error {
	uow.buffered = nil
	if uow.tx == nil {
		return gorm.ErrInvalidTransaction
	}

	err := uow.tx.Rollback().Error
	uow.tx = nil
	return err
}

func (uow *GormUnitOfWork) conn() *gorm.DB {
	if uow.tx != nil {
		return uow.tx
	}
	return uow.db
}

// OrderRepository returns a repository bound to the current transaction, or to the pool
// if Begin has not been called.
func (uow *GormUnitOfWork) OrderRepository() ports.OrderRepository {
	return orderrepo.NewGormOrderRepository(uow.conn())
}

// OutboxRepository is used by the relay; row locks from FetchDue last until Commit.
func (uow *GormUnitOfWork) OutboxRepository() ports.OutboxRepository {
	return outboxrepo.NewGormOutboxRepository(uow.conn())
}

// Events returns a publisher whose events leave the process only if Commit succeeds.
func (uow *GormUnitOfWork) Events() ports.EventPublisher {
	if uow.mode == DeliveryOutbox {
		return envelope.NewPublisher(outboxrepo.NewGormOutboxRepository(uow.conn()))
	}
	return envelope.NewPublisher(messageBuffer{uow: uow})
}

// messageBuffer queues messages on the unit of work until Commit.
type messageBuffer struct {
	uow *GormUnitOfWork
}

func (b messageBuffer) Publish(_ context.Context, msg ports.Message) error {
	b.uow.buffered = append(b.uow.buffered, msg)
	return nil
}
