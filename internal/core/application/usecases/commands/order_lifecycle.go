package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"orders/internal/core/domain/model/kernel"
	"orders/internal/core/domain/model/order"
	"orders/internal/core/ports"
	"orders/internal/pkg/errs"
)

var ErrNilDependency = errors.New("order lifecycle dependency is nil")

// OrderLifecycle creates orders, moves them through the status table and deletes them.
// Every successful Create and ChangeStatus hands exactly one event to the unit of work's
// publisher. The lifecycle keeps no state between calls.
//
// Example:
//
//	lifecycle, err := NewOrderLifecycle(uowFactory, pricing.Zero{}, logger)
//	if err != nil {
//	    return err
//	}
//
//	created, err := lifecycle.Create(ctx, createCmd)
//	switch {
//	case errors.Is(err, errs.ErrPublish):
//	    // order exists, notification may be missing
//	case err != nil:
//	    return err
//	}
//
//	ok, err := lifecycle.ChangeStatus(ctx, changeCmd)
//	var transitionErr *order.InvalidTransitionError
//	if errors.As(err, &transitionErr) {
//	    log.Printf("rejected %s -> %s", transitionErr.From, transitionErr.To)
//	}
type OrderLifecycle struct {
	uowFactory OrderUoWFactory
	pricer     ports.PriceQuoter
	now        func() time.Time
	logger     *slog.Logger
}

// Option customises an OrderLifecycle.
type Option func(*OrderLifecycle)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *OrderLifecycle) {
		if now != nil {
			l.now = now
		}
	}
}

func NewOrderLifecycle(
	uowFactory OrderUoWFactory,
	pricer ports.PriceQuoter,
	logger *slog.Logger,
	opts ...Option,
) (*OrderLifecycle, error) {
	if uowFactory == nil {
		return nil, fmt.Errorf("%w: unit of work factory", ErrNilDependency)
	}
	if pricer == nil {
		return nil, fmt.Errorf("%w: price quoter", ErrNilDependency)
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := &OrderLifecycle{
		uowFactory: uowFactory,
		pricer:     pricer,
		now:        time.Now,
		logger:     logger.With("component", "order_lifecycle"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Create prices, persists and announces a new Pending order.
//
// Errors:
//   - pricing failure: returned as is, nothing is persisted
//   - *errs.PersistenceError: the order was not stored and no event was emitted
//   - *errs.PublishError: the order is stored and returned alongside the error
func (l *OrderLifecycle) Create(ctx context.Context, cmd CreateOrderCommand) (*order.Order, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	unitPrice, err := l.pricer.UnitPrice(ctx, cmd.ProductID())
	if err != nil {
		return nil, fmt.Errorf("quote unit price of product %s: %w", cmd.ProductID(), err)
	}

	created, err := order.NewOrder(
		kernel.NewUUID(),
		cmd.OwnerID(),
		cmd.ProductID(),
		cmd.Quantity(),
		unitPrice,
		l.now(),
	)
	if err != nil {
		return nil, err
	}

	uow := l.uowFactory.Create()
	if err = uow.Begin(ctx); err != nil {
		return nil, errs.NewPersistenceError("begin transaction", err)
	}

	defer func() {
		_ = uow.Rollback(ctx)
	}()

	if err = uow.OrderRepository().Add(ctx, created); err != nil {
		return nil, asPersistenceError("insert order", err)
	}

	if err = uow.Events().PublishCreated(ctx, created); err != nil {
		return nil, asPublishError(order.EventOrderCreated, err)
	}

	if err = uow.Commit(ctx); err != nil {
		if errors.Is(err, errs.ErrPublish) {
			l.logger.ErrorContext(ctx, "order created but event not delivered",
				"order_id", created.ID().String(), "error", err)
			return created, err
		}
		return nil, asPersistenceError("commit", err)
	}

	l.logger.InfoContext(ctx, "order created",
		"order_id", created.ID().String(),
		"owner_id", created.OwnerID(),
		"product_id", created.ProductID(),
		"quantity", created.Quantity(),
		"total_price", created.TotalPrice().String())

	return created, nil
}

// ChangeStatus moves an order to the requested status if the transition table allows it.
//
// It returns (true, nil) on success and (false, nil) when the order vanished between the
// read and the conditional write. Errors:
//   - *errs.ObjectNotFoundError: no such order, nothing was written
//   - *order.InvalidTransitionError: the pair is not in the table, nothing was written
//   - *errs.PersistenceError: store failure, or wrapping errs.ErrStaleState when a concurrent
//     writer changed the status to one from which the request would still be legal
//   - *errs.PublishError: the new status is stored but the event was not delivered
func (l *OrderLifecycle) ChangeStatus(ctx context.Context, cmd ChangeOrderStatusCommand) (bool, error) {
	if err := cmd.Validate(); err != nil {
		return false, err
	}

	uow := l.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return false, errs.NewPersistenceError("begin transaction", err)
	}

	defer func() {
		_ = uow.Rollback(ctx)
	}()

	repo := uow.OrderRepository()
	id := cmd.OrderID()
	target := cmd.Status()

	current, err := repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrObjectNotFound) {
			return false, err
		}
		return false, asPersistenceError("get order", err)
	}

	previous := current.Status()
	now := l.now()
	if err = current.ChangeStatus(target, now); err != nil {
		l.logger.WarnContext(ctx, "status change rejected",
			"order_id", id.String(), "from", previous.String(), "to", target.String(), "reason", cmd.Reason())
		return false, err
	}

	affected, err := repo.CompareAndSetStatus(ctx, id, previous, target, now)
	if err != nil {
		return false, asPersistenceError("compare and set status", err)
	}
	if affected == 0 {
		return l.resolveLostWrite(ctx, repo, id, previous, target)
	}

	if err = uow.Events().PublishStatusUpdated(ctx, current, previous, cmd.Reason()); err != nil {
		return false, asPublishError(order.EventOrderStatusUpdated, err)
	}

	if err = uow.Commit(ctx); err != nil {
		if errors.Is(err, errs.ErrPublish) {
			l.logger.ErrorContext(ctx, "status changed but event not delivered",
				"order_id", id.String(), "status", target.String(), "error", err)
			return true, err
		}
		return false, asPersistenceError("commit", err)
	}

	l.logger.InfoContext(ctx, "order status changed",
		"order_id", id.String(), "from", previous.String(), "to", target.String(), "reason", cmd.Reason())

	return true, nil
}

// resolveLostWrite re-reads an order whose conditional update matched no row.
func (l *OrderLifecycle) resolveLostWrite(
	ctx context.Context,
	repo ports.OrderRepository,
	id kernel.UUID,
	expected, target order.Status,
) (bool, error) {
	latest, err := repo.Get(ctx, id)
	if errors.Is(err, errs.ErrObjectNotFound) {
		l.logger.InfoContext(ctx, "order deleted during status change", "order_id", id.String())
		return false, nil
	}
	if err != nil {
		return false, asPersistenceError("reload order", err)
	}

	if !latest.Status().CanTransitionTo(target) {
		l.logger.WarnContext(ctx, "status change lost to a concurrent update",
			"order_id", id.String(), "from", latest.Status().String(), "to", target.String())
		return false, order.NewInvalidTransitionError(latest.Status(), target)
	}

	return false, errs.NewPersistenceError("compare and set status",
		fmt.Errorf("%w: expected %s, found %s", errs.ErrStaleState, expected, latest.Status()))
}

// Delete removes an order whatever its status. It reports false if there was no such order.
// No event is emitted.
func (l *OrderLifecycle) Delete(ctx context.Context, cmd DeleteOrderCommand) (bool, error) {
	if err := cmd.Validate(); err != nil {
		return false, err
	}

	uow := l.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return false, errs.NewPersistenceError("begin transaction", err)
	}

	defer func() {
		_ = uow.Rollback(ctx)
	}()

	affected, err := uow.OrderRepository().Delete(ctx, cmd.OrderID())
	if err != nil {
		return false, asPersistenceError("delete order", err)
	}

	if err = uow.Commit(ctx); err != nil {
		return false, asPersistenceError("commit", err)
	}

	if affected == 0 {
		return false, nil
	}

	l.logger.InfoContext(ctx, "order deleted", "order_id", cmd.OrderID().String())
	return true, nil
}

func asPersistenceError(op string, err error) error {
	if errors.Is(err, errs.ErrPersistence) {
		return err
	}
	return errs.NewPersistenceError(op, err)
}

// asPublishError keeps outbox write failures classified as persistence faults.
func asPublishError(event string, err error) error {
	if errors.Is(err, errs.ErrPublish) || errors.Is(err, errs.ErrPersistence) {
		return err
	}
	return errs.NewPublishError(event, err)
}
