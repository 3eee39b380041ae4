package commands_test

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"orders/internal/core/application/usecases/commands"
	"orders/internal/core/domain/model/kernel"
	"orders/internal/core/domain/model/order"
	"orders/internal/pkg/errs"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLifecycle(t *testing.T, factory commands.OrderUoWFactory, pricer *MockPriceQuoter) *commands.OrderLifecycle {
	t.Helper()
	l, err := commands.NewOrderLifecycle(factory, pricer, discardLogger(),
		commands.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return l
}

func zeroPricer(productID string) *MockPriceQuoter {
	p := new(MockPriceQuoter)
	p.On("UnitPrice", mock.Anything, productID).Return(decimal.Zero, nil)
	return p
}

func existingOrder(t *testing.T, status order.Status) *order.Order {
	t.Helper()
	o, err := order.RestoreOrder(kernel.NewUUID(), "u1", "p1", 2, decimal.Zero, decimal.Zero,
		status, fixedNow.Add(-time.Hour), nil)
	require.NoError(t, err)
	return o
}

func TestNewOrderLifecycle_NilDependencies(t *testing.T) {
	_, err := commands.NewOrderLifecycle(nil, new(MockPriceQuoter), nil)
	require.ErrorIs(t, err, commands.ErrNilDependency)

	_, err = commands.NewOrderLifecycle(new(MockOrderUoWFactory), nil, nil)
	require.ErrorIs(t, err, commands.ErrNilDependency)
}

func TestOrderLifecycle_Create_Success(t *testing.T) {
	ctx := t.Context()
	cmd, _ := commands.NewCreateOrderCommand("u1", "p1", 3)

	pricer := new(MockPriceQuoter)
	pricer.On("UnitPrice", ctx, "p1").Return(decimal.RequireFromString("2.50"), nil).Once()

	repo := new(MockOrderRepository)
	events := new(MockEventPublisher)
	uow := new(MockOrderUoW)
	mock.InOrder(
		uow.On("Begin", ctx).Return(nil).Once(),
		uow.On("OrderRepository").Return(repo).Once(),
		repo.On("Add", ctx, mock.AnythingOfType("*order.Order")).Return(nil).Once(),
		uow.On("Events").Return(events).Once(),
		events.On("PublishCreated", ctx, mock.AnythingOfType("*order.Order")).Return(nil).Once(),
		uow.On("Commit", ctx).Return(nil).Once(),
		uow.On("Rollback", ctx).Return(nil).Once(),
	)

	factory := new(MockOrderUoWFactory)
	factory.On("Create").Return(uow).Once()

	created, err := newLifecycle(t, factory, pricer).Create(ctx, cmd)

	require.NoError(t, err)
	require.NotNil(t, created)
	require.NoError(t, created.ID().Validate())
	assert.Equal(t, order.Pending, created.Status())
	assert.Equal(t, 3, created.Quantity())
	assert.True(t, decimal.RequireFromString("7.50").Equal(created.TotalPrice()))
	assert.Equal(t, fixedNow, created.CreatedAt())
	assert.Nil(t, created.UpdatedAt())

	published := events.Calls[0].Arguments.Get(1).(*order.Order)
	assert.True(t, published.IsEqual(created))

	pricer.AssertExpectations(t)
	repo.AssertExpectations(t)
	events.AssertExpectations(t)
	uow.AssertExpectations(t)
	factory.AssertExpectations(t)
}

func TestOrderLifecycle_Create_ValidationError(t *testing.T) {
	factory := new(MockOrderUoWFactory)
	pricer := new(MockPriceQuoter)

	_, err := newLifecycle(t, factory, pricer).Create(t.Context(), commands.CreateOrderCommand{})

	require.ErrorIs(t, err, commands.ErrCreateOrderCommandIsNotConstructed)
	factory.AssertNotCalled(t, "Create")
	pricer.AssertNotCalled(t, "UnitPrice", mock.Anything, mock.Anything)
}

func TestOrderLifecycle_Create_PricingError(t *testing.T) {
	ctx := t.Context()
	cmd, _ := commands.NewCreateOrderCommand("u1", "p1", 1)
	priceErr := errors.New("product service down")

	pricer := new(MockPriceQuoter)
	pricer.On("UnitPrice", ctx, "p1").Return(decimal.Zero, priceErr).Once()
	factory := new(MockOrderUoWFactory)

	created, err := newLifecycle(t, factory, pricer).Create(ctx, cmd)

	require.ErrorIs(t, err, priceErr)
	assert.Nil(t, created)
	factory.AssertNotCalled(t, "Create")
}

func TestOrderLifecycle_Create_BeginError(t *testing.T) {
	ctx := t.Context()
	cmd, _ := commands.NewCreateOrderCommand("u1", "p1", 1)

	uow := new(MockOrderUoW)
	factory := new(MockOrderUoWFactory)
	mock.InOrder(
		factory.On("Create").Return(uow).Once(),
		uow.On("Begin", ctx).Return(errors.New("begin error")).Once(),
	)

	_, err := newLifecycle(t, factory, zeroPricer("p1")).Create(ctx, cmd)

	require.ErrorIs(t, err, errs.ErrPersistence)
}

func TestOrderLifecycle_Create_AddError_NoEvent(t *testing.T) {
	ctx := t.Context()
	cmd, _ := commands.NewCreateOrderCommand("u1", "p1", 1)
	storeErr := errors.New("connection refused")

	repo := new(MockOrderRepository)
	uow := new(MockOrderUoW)
	mock.InOrder(
		uow.On("Begin", ctx).Return(nil).Once(),
		uow.On("OrderRepository").Return(repo).Once(),
		repo.On("Add", ctx, mock.AnythingOfType("*order.Order")).Return(storeErr).Once(),
		uow.On("Rollback", ctx).Return(nil).Once(),
	)

	factory := new(MockOrderUoWFactory)
	factory.On("Create").Return(uow).Once()

	created, err := newLifecycle(t, factory, zeroPricer("p1")).Create(ctx, cmd)

	require.Error(t, err)
	assert.Nil(t, created)
	assert.ErrorIs(t, err, errs.ErrPersistence)
	assert.ErrorIs(t, err, storeErr)

	var persistenceErr *errs.PersistenceError
	require.ErrorAs(t, err, &persistenceErr)
	assert.Equal(t, "insert order", persistenceErr.Op)

	uow.AssertNotCalled(t, "Events")
	uow.AssertNotCalled(t, "Commit", mock.Anything)
	uow.AssertExpectations(t)
}

func TestOrderLifecycle_Create_CommitError_NoEvent(t *testing.T) {
	ctx := t.Context()
	cmd, _ := commands.NewCreateOrderCommand("u1", "p1", 1)

	repo := new(MockOrderRepository)
	events := new(MockEventPublisher)
	uow := new(MockOrderUoW)
	mock.InOrder(
		uow.On("Begin", ctx).Return(nil).Once(),
		uow.On("OrderRepository").Return(repo).Once(),
		repo.On("Add", ctx, mock.AnythingOfType("*order.Order")).Return(nil).Once(),
		uow.On("Events").Return(events).Once(),
		events.On("PublishCreated", ctx, mock.AnythingOfType("*order.Order")).Return(nil).Once(),
		uow.On("Commit", ctx).Return(errors.New("serialization failure")).Once(),
		uow.On("Rollback", ctx).Return(nil).Once(),
	)

	factory := new(MockOrderUoWFactory)
	factory.On("Create").Return(uow).Once()

	created, err := newLifecycle(t, factory, zeroPricer("p1")).Create(ctx, cmd)

	require.ErrorIs(t, err, errs.ErrPersistence)
	assert.NotErrorIs(t, err, errs.ErrPublish)
	assert.Nil(t, created)
}

func TestOrderLifecycle_Create_DeliveryError_OrderExists(t *testing.T) {
	ctx := t.Context()
	cmd, _ := commands.NewCreateOrderCommand("u1", "p1", 1)
	deliveryErr := errs.NewPublishError(order.EventOrderCreated, errors.New("broker unreachable"))

	repo := new(MockOrderRepository)
	events := new(MockEventPublisher)
	uow := new(MockOrderUoW)
	uow.On("Begin", ctx).Return(nil).Once()
	uow.On("OrderRepository").Return(repo).Once()
	repo.On("Add", ctx, mock.AnythingOfType("*order.Order")).Return(nil).Once()
	uow.On("Events").Return(events).Once()
	events.On("PublishCreated", ctx, mock.AnythingOfType("*order.Order")).Return(nil).Once()
	uow.On("Commit", ctx).Return(deliveryErr).Once()
	uow.On("Rollback", ctx).Return(nil).Once()

	factory := new(MockOrderUoWFactory)
	factory.On("Create").Return(uow).Once()

	created, err := newLifecycle(t, factory, zeroPricer("p1")).Create(ctx, cmd)

	require.ErrorIs(t, err, errs.ErrPublish)
	require.NotNil(t, created)
	assert.Equal(t, order.Pending, created.Status())
}

func TestOrderLifecycle_Create_PublishError(t *testing.T) {
	ctx := t.Context()
	cmd, _ := commands.NewCreateOrderCommand("u1", "p1", 1)
	sinkErr := errors.New("encode failed")

	repo := new(MockOrderRepository)
	events := new(MockEventPublisher)
	uow := new(MockOrderUoW)
	uow.On("Begin", ctx).Return(nil).Once()
	uow.On("OrderRepository").Return(repo).Once()
	repo.On("Add", ctx, mock.AnythingOfType("*order.Order")).Return(nil).Once()
	uow.On("Events").Return(events).Once()
	events.On("PublishCreated", ctx, mock.AnythingOfType("*order.Order")).Return(sinkErr).Once()
	uow.On("Rollback", ctx).Return(nil).Once()

	factory := new(MockOrderUoWFactory)
	factory.On("Create").Return(uow).Once()

	_, err := newLifecycle(t, factory, zeroPricer("p1")).Create(ctx, cmd)

	var publishErr *errs.PublishError
	require.ErrorAs(t, err, &publishErr)
	assert.Equal(t, order.EventOrderCreated, publishErr.Event)
	assert.ErrorIs(t, err, sinkErr)
	uow.AssertNotCalled(t, "Commit", mock.Anything)
}

func TestOrderLifecycle_Create_OutboxWriteError_IsPersistence(t *testing.T) {
	ctx := t.Context()
	cmd, _ := commands.NewCreateOrderCommand("u1", "p1", 1)
	outboxErr := errs.NewPersistenceError("insert outbox message", errors.New("disk full"))

	repo := new(MockOrderRepository)
	events := new(MockEventPublisher)
	uow := new(MockOrderUoW)
	uow.On("Begin", ctx).Return(nil).Once()
	uow.On("OrderRepository").Return(repo).Once()
	repo.On("Add", ctx, mock.AnythingOfType("*order.Order")).Return(nil).Once()
	uow.On("Events").Return(events).Once()
	events.On("PublishCreated", ctx, mock.AnythingOfType("*order.Order")).Return(outboxErr).Once()
	uow.On("Rollback", ctx).Return(nil).Once()

	factory := new(MockOrderUoWFactory)
	factory.On("Create").Return(uow).Once()

	_, err := newLifecycle(t, factory, zeroPricer("p1")).Create(ctx, cmd)

	require.ErrorIs(t, err, errs.ErrPersistence)
	assert.NotErrorIs(t, err, errs.ErrPublish)
}

func TestOrderLifecycle_ChangeStatus_Success(t *testing.T) {
	ctx := t.Context()
	current := existingOrder(t, order.Pending)
	cmd, _ := commands.NewChangeOrderStatusCommand(current.ID(), order.Shipping, "packed")

	repo := new(MockOrderRepository)
	events := new(MockEventPublisher)
	uow := new(MockOrderUoW)
	mock.InOrder(
		uow.On("Begin", ctx).Return(nil).Once(),
		uow.On("OrderRepository").Return(repo).Once(),
		repo.On("Get", ctx, current.ID()).Return(current, nil).Once(),
		repo.On("CompareAndSetStatus", ctx, current.ID(), order.Pending, order.Shipping, fixedNow).
			Return(int64(1), nil).Once(),
		uow.On("Events").Return(events).Once(),
		events.On("PublishStatusUpdated", ctx, current, order.Pending, "packed").Return(nil).Once(),
		uow.On("Commit", ctx).Return(nil).Once(),
		uow.On("Rollback", ctx).Return(nil).Once(),
	)

	factory := new(MockOrderUoWFactory)
	factory.On("Create").Return(uow).Once()

	ok, err := newLifecycle(t, factory, new(MockPriceQuoter)).ChangeStatus(ctx, cmd)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, order.Shipping, current.Status())
	require.NotNil(t, current.UpdatedAt())
	assert.Equal(t, fixedNow, *current.UpdatedAt())

	repo.AssertExpectations(t)
	events.AssertExpectations(t)
	uow.AssertExpectations(t)
}

func TestOrderLifecycle_ChangeStatus_NotFound_NoWrite(t *testing.T) {
	ctx := t.Context()
	id := kernel.NewUUID()
	cmd, _ := commands.NewChangeOrderStatusCommand(id, order.Shipping, "")

	repo := new(MockOrderRepository)
	uow := new(MockOrderUoW)
	uow.On("Begin", ctx).Return(nil).Once()
	uow.On("OrderRepository").Return(repo).Once()
	repo.On("Get", ctx, id).Return(nil, errs.NewObjectNotFoundError("order", id.String())).Once()
	uow.On("Rollback", ctx).Return(nil).Once()

	factory := new(MockOrderUoWFactory)
	factory.On("Create").Return(uow).Once()

	ok, err := newLifecycle(t, factory, new(MockPriceQuoter)).ChangeStatus(ctx, cmd)

	assert.False(t, ok)
	require.ErrorIs(t, err, errs.ErrObjectNotFound)
	assert.IsType(t, &errs.ObjectNotFoundError{}, err)
	repo.AssertNotCalled(t, "CompareAndSetStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	uow.AssertNotCalled(t, "Commit", mock.Anything)
}

func TestOrderLifecycle_ChangeStatus_InvalidTransition_NoWrite(t *testing.T) {
	for _, tc := range []struct {
		from, to order.Status
	}{
		{order.Pending, order.Delivered},
		{order.Pending, order.Pending},
		{order.Shipping, order.Pending},
		{order.Delivered, order.Cancelled},
		{order.Cancelled, order.Shipping},
	} {
		t.Run(tc.from.String()+"->"+tc.to.String(), func(t *testing.T) {
			ctx := t.Context()
			current := existingOrder(t, tc.from)
			cmd, _ := commands.NewChangeOrderStatusCommand(current.ID(), tc.to, "")

			repo := new(MockOrderRepository)
			uow := new(MockOrderUoW)
			uow.On("Begin", ctx).Return(nil).Once()
			uow.On("OrderRepository").Return(repo).Once()
			repo.On("Get", ctx, current.ID()).Return(current, nil).Once()
			uow.On("Rollback", ctx).Return(nil).Once()

			factory := new(MockOrderUoWFactory)
			factory.On("Create").Return(uow).Once()

			ok, err := newLifecycle(t, factory, new(MockPriceQuoter)).ChangeStatus(ctx, cmd)

			assert.False(t, ok)
			var transitionErr *order.InvalidTransitionError
			require.ErrorAs(t, err, &transitionErr)
			assert.Equal(t, tc.from, transitionErr.From)
			assert.Equal(t, tc.to, transitionErr.To)
			repo.AssertNotCalled(t, "CompareAndSetStatus",
				mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			uow.AssertNotCalled(t, "Events")
			uow.AssertNotCalled(t, "Commit", mock.Anything)
		})
	}
}

func TestOrderLifecycle_ChangeStatus_LostWrite(t *testing.T) {
	testCases := []struct {
		name      string
		target    order.Status
		reload    func(t *testing.T, id kernel.UUID) (*order.Order, error)
		assertion func(t *testing.T, ok bool, err error)
	}{
		{
			name:   "deleted concurrently",
			target: order.Shipping,
			reload: func(_ *testing.T, id kernel.UUID) (*order.Order, error) {
				return nil, errs.NewObjectNotFoundError("order", id.String())
			},
			assertion: func(t *testing.T, ok bool, err error) {
				require.NoError(t, err)
				assert.False(t, ok)
			},
		},
		{
			name:   "cancelled concurrently",
			target: order.Shipping,
			reload: func(t *testing.T, id kernel.UUID) (*order.Order, error) {
				return order.RestoreOrder(id, "u1", "p1", 2, decimal.Zero, decimal.Zero,
					order.Cancelled, fixedNow.Add(-time.Hour), &fixedNow)
			},
			assertion: func(t *testing.T, ok bool, err error) {
				assert.False(t, ok)
				var transitionErr *order.InvalidTransitionError
				require.ErrorAs(t, err, &transitionErr)
				assert.Equal(t, order.Cancelled, transitionErr.From)
				assert.Equal(t, order.Shipping, transitionErr.To)
			},
		},
		{
			name:   "shipped concurrently",
			target: order.Cancelled,
			reload: func(t *testing.T, id kernel.UUID) (*order.Order, error) {
				return order.RestoreOrder(id, "u1", "p1", 2, decimal.Zero, decimal.Zero,
					order.Shipping, fixedNow.Add(-time.Hour), &fixedNow)
			},
			assertion: func(t *testing.T, ok bool, err error) {
				assert.False(t, ok)
				require.ErrorIs(t, err, errs.ErrPersistence)
				assert.ErrorIs(t, err, errs.ErrStaleState)
			},
		},
		{
			name:   "reload fails",
			target: order.Shipping,
			reload: func(_ *testing.T, _ kernel.UUID) (*order.Order, error) {
				return nil, errors.New("timeout")
			},
			assertion: func(t *testing.T, ok bool, err error) {
				assert.False(t, ok)
				require.ErrorIs(t, err, errs.ErrPersistence)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := t.Context()
			current := existingOrder(t, order.Pending)
			cmd, _ := commands.NewChangeOrderStatusCommand(current.ID(), tc.target, "")
			reloaded, reloadErr := tc.reload(t, current.ID())

			repo := new(MockOrderRepository)
			uow := new(MockOrderUoW)
			mock.InOrder(
				uow.On("Begin", ctx).Return(nil).Once(),
				uow.On("OrderRepository").Return(repo).Once(),
				repo.On("Get", ctx, current.ID()).Return(current, nil).Once(),
				repo.On("CompareAndSetStatus", ctx, current.ID(), order.Pending, tc.target, fixedNow).
					Return(int64(0), nil).Once(),
				repo.On("Get", ctx, current.ID()).Return(reloaded, reloadErr).Once(),
				uow.On("Rollback", ctx).Return(nil).Once(),
			)

			factory := new(MockOrderUoWFactory)
			factory.On("Create").Return(uow).Once()

			ok, err := newLifecycle(t, factory, new(MockPriceQuoter)).ChangeStatus(ctx, cmd)

			tc.assertion(t, ok, err)
			uow.AssertNotCalled(t, "Events")
			uow.AssertNotCalled(t, "Commit", mock.Anything)
			repo.AssertExpectations(t)
		})
	}
}

func TestOrderLifecycle_ChangeStatus_StoreError(t *testing.T) {
	ctx := t.Context()
	current := existingOrder(t, order.Pending)
	cmd, _ := commands.NewChangeOrderStatusCommand(current.ID(), order.Cancelled, "")
	storeErr := errors.New("connection reset")

	repo := new(MockOrderRepository)
	uow := new(MockOrderUoW)
	uow.On("Begin", ctx).Return(nil).Once()
	uow.On("OrderRepository").Return(repo).Once()
	repo.On("Get", ctx, current.ID()).Return(current, nil).Once()
	repo.On("CompareAndSetStatus", ctx, current.ID(), order.Pending, order.Cancelled, fixedNow).
		Return(int64(0), storeErr).Once()
	uow.On("Rollback", ctx).Return(nil).Once()

	factory := new(MockOrderUoWFactory)
	factory.On("Create").Return(uow).Once()

	ok, err := newLifecycle(t, factory, new(MockPriceQuoter)).ChangeStatus(ctx, cmd)

	assert.False(t, ok)
	require.ErrorIs(t, err, errs.ErrPersistence)
	assert.ErrorIs(t, err, storeErr)
}

func TestOrderLifecycle_Delete(t *testing.T) {
	for _, tc := range []struct {
		name     string
		affected int64
		expected bool
	}{
		{"existing order", 1, true},
		{"missing order", 0, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := t.Context()
			id := kernel.NewUUID()
			cmd, _ := commands.NewDeleteOrderCommand(id)

			repo := new(MockOrderRepository)
			uow := new(MockOrderUoW)
			mock.InOrder(
				uow.On("Begin", ctx).Return(nil).Once(),
				uow.On("OrderRepository").Return(repo).Once(),
				repo.On("Delete", ctx, id).Return(tc.affected, nil).Once(),
				uow.On("Commit", ctx).Return(nil).Once(),
				uow.On("Rollback", ctx).Return(nil).Once(),
			)

			factory := new(MockOrderUoWFactory)
			factory.On("Create").Return(uow).Once()

			ok, err := newLifecycle(t, factory, new(MockPriceQuoter)).Delete(ctx, cmd)

			require.NoError(t, err)
			assert.Equal(t, tc.expected, ok)
			uow.AssertNotCalled(t, "Events")
			uow.AssertExpectations(t)
		})
	}
}

func TestOrderLifecycle_Delete_StoreError(t *testing.T) {
	ctx := t.Context()
	id := kernel.NewUUID()
	cmd, _ := commands.NewDeleteOrderCommand(id)

	repo := new(MockOrderRepository)
	uow := new(MockOrderUoW)
	uow.On("Begin", ctx).Return(nil).Once()
	uow.On("OrderRepository").Return(repo).Once()
	repo.On("Delete", ctx, id).Return(int64(0), errors.New("boom")).Once()
	uow.On("Rollback", ctx).Return(nil).Once()

	factory := new(MockOrderUoWFactory)
	factory.On("Create").Return(uow).Once()

	ok, err := newLifecycle(t, factory, new(MockPriceQuoter)).Delete(ctx, cmd)

	assert.False(t, ok)
	require.ErrorIs(t, err, errs.ErrPersistence)
}

// The walk-through below runs against an in-memory store with real CAS semantics.

func TestOrderLifecycle_Scenario(t *testing.T) {
	ctx := t.Context()
	store := newMemoryStore()
	l := newLifecycle(t, store, zeroPricer("p1"))

	createCmd, _ := commands.NewCreateOrderCommand("u1", "p1", 2)
	created, err := l.Create(ctx, createCmd)
	require.NoError(t, err)
	assert.Equal(t, order.Pending, created.Status())
	assert.Equal(t, 2, created.Quantity())
	assert.True(t, created.TotalPrice().IsZero())

	change := func(to order.Status) (bool, error) {
		cmd, cmdErr := commands.NewChangeOrderStatusCommand(created.ID(), to, "")
		require.NoError(t, cmdErr)
		return l.ChangeStatus(ctx, cmd)
	}

	ok, err := change(order.Shipping)
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded, err := store.Get(ctx, created.ID())
	require.NoError(t, err)
	assert.Equal(t, order.Shipping, reloaded.Status())
	assert.NotNil(t, reloaded.UpdatedAt())

	_, err = change(order.Pending)
	var transitionErr *order.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, order.Shipping, transitionErr.From)
	assert.Equal(t, order.Pending, transitionErr.To)

	ok, err = change(order.Delivered)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = change(order.Cancelled)
	require.ErrorIs(t, err, order.ErrInvalidTransition)

	status, _ := store.status(created.ID())
	assert.Equal(t, order.Delivered, status)

	events := store.published()
	require.Len(t, events, 3)
	assert.Equal(t, order.EventOrderCreated, events[0].Type)
	assert.Equal(t, order.Pending, events[0].Status)
	assert.Equal(t, order.Shipping, events[1].Status)
	assert.Equal(t, order.Pending, events[1].Previous)
	assert.Equal(t, order.Delivered, events[2].Status)
	for _, e := range events {
		assert.Equal(t, created.ID(), e.OrderID)
	}

	deleteCmd, _ := commands.NewDeleteOrderCommand(created.ID())
	deleted, err := l.Delete(ctx, deleteCmd)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Len(t, store.published(), 3)

	deleted, err = l.Delete(ctx, deleteCmd)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = change(order.Shipping)
	require.ErrorIs(t, err, errs.ErrObjectNotFound)
}

func TestOrderLifecycle_ConcurrentChangeStatus_ExactlyOneWins(t *testing.T) {
	for i := range 20 {
		t.Run(fmt.Sprintf("round %d", i), func(t *testing.T) {
			ctx := t.Context()
			store := newMemoryStore()
			l := newLifecycle(t, store, zeroPricer("p1"))

			createCmd, _ := commands.NewCreateOrderCommand("u1", "p1", 1)
			created, err := l.Create(ctx, createCmd)
			require.NoError(t, err)

			// Both requests read Pending before either writes.
			store.holdFirstReads(2)

			targets := []order.Status{order.Shipping, order.Cancelled}
			results := make([]bool, len(targets))
			failures := make([]error, len(targets))

			var wg sync.WaitGroup
			for j, target := range targets {
				wg.Add(1)
				go func() {
					defer wg.Done()
					cmd, _ := commands.NewChangeOrderStatusCommand(created.ID(), target, "")
					results[j], failures[j] = l.ChangeStatus(ctx, cmd)
				}()
			}
			wg.Wait()

			winners := 0
			for j := range targets {
				if results[j] {
					winners++
					require.NoError(t, failures[j])
					status, _ := store.status(created.ID())
					assert.Equal(t, targets[j], status)
					continue
				}
				require.Error(t, failures[j])
				assert.True(t, isInvalidTransition(failures[j]) || isStaleState(failures[j]),
					"unexpected loser error: %v", failures[j])
			}
			assert.Equal(t, 1, winners)
			assert.Len(t, store.published(), 2)
		})
	}
}

func isInvalidTransition(err error) bool {
	var transitionErr *order.InvalidTransitionError
	return errors.As(err, &transitionErr)
}

func isStaleState(err error) bool {
	return errors.Is(err, errs.ErrStaleState)
}
