package commands_test

import (
	"context"
	"sync"
	"time"

	"orders/internal/core/application/usecases/commands"
	"orders/internal/core/domain/model/kernel"
	"orders/internal/core/domain/model/order"
	"orders/internal/core/ports"
	"orders/internal/pkg/errs"

	"github.com/shopspring/decimal"
)

// memoryStore is an in-process OrderRepository with an atomic compare-and-set.
// It snapshots rows so callers never share aggregates with the store.
type memoryStore struct {
	mu     sync.Mutex
	rows   map[kernel.UUID]storedOrder
	events []publishedEvent

	// readBarrier, when set, holds the first barrierReads Get calls until all of them arrived.
	readBarrier  *sync.WaitGroup
	barrierReads int
	reads        int
}

type storedOrder struct {
	ownerID, productID string
	quantity           int
	unitPrice, total   decimal.Decimal
	status             order.Status
	createdAt          time.Time
	updatedAt          *time.Time
}

type publishedEvent struct {
	Type     string
	OrderID  kernel.UUID
	Status   order.Status
	Previous order.Status
	Reason   string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: make(map[kernel.UUID]storedOrder)}
}

func (s *memoryStore) holdFirstReads(n int) {
	s.readBarrier = &sync.WaitGroup{}
	s.readBarrier.Add(n)
	s.barrierReads = n
	s.reads = 0
}

func (s *memoryStore) Create() commands.OrderUoW {
	return &memoryUoW{store: s}
}

func (s *memoryStore) Add(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[o.ID()] = storedOrder{
		ownerID:   o.OwnerID(),
		productID: o.ProductID(),
		quantity:  o.Quantity(),
		unitPrice: o.UnitPrice(),
		total:     o.TotalPrice(),
		status:    o.Status(),
		createdAt: o.CreatedAt(),
		updatedAt: o.UpdatedAt(),
	}
	return nil
}

func (s *memoryStore) Get(_ context.Context, id kernel.UUID) (*order.Order, error) {
	s.mu.Lock()
	barrier := s.readBarrier != nil && s.reads < s.barrierReads
	s.reads++
	s.mu.Unlock()

	if barrier {
		s.readBarrier.Done()
		s.readBarrier.Wait()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, errs.NewObjectNotFoundError("order", id.String())
	}
	return order.RestoreOrder(id, row.ownerID, row.productID, row.quantity,
		row.unitPrice, row.total, row.status, row.createdAt, row.updatedAt)
}

func (s *memoryStore) ListByOwner(context.Context, string) ([]*order.Order, error) {
	return nil, nil
}

func (s *memoryStore) ListByProduct(context.Context, string) ([]*order.Order, error) {
	return nil, nil
}

func (s *memoryStore) CompareAndSetStatus(
	_ context.Context,
	id kernel.UUID,
	expected, next order.Status,
	updatedAt time.Time,
) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.status != expected {
		return 0, nil
	}
	row.status = next
	row.updatedAt = &updatedAt
	s.rows[id] = row
	return 1, nil
}

func (s *memoryStore) Delete(_ context.Context, id kernel.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return 0, nil
	}
	delete(s.rows, id)
	return 1, nil
}

func (s *memoryStore) status(id kernel.UUID) (order.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	return row.status, ok
}

func (s *memoryStore) published() []publishedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]publishedEvent(nil), s.events...)
}

// memoryUoW records events and releases them to the store on Commit.
type memoryUoW struct {
	store   *memoryStore
	pending []publishedEvent
}

func (u *memoryUoW) Begin(context.Context) error { return nil }

func (u *memoryUoW) Commit(context.Context) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	u.store.events = append(u.store.events, u.pending...)
	u.pending = nil
	return nil
}

func (u *memoryUoW) Rollback(context.Context) error {
	u.pending = nil
	return nil
}

func (u *memoryUoW) OrderRepository() ports.OrderRepository { return u.store }

func (u *memoryUoW) Events() ports.EventPublisher { return u }

func (u *memoryUoW) PublishCreated(_ context.Context, o *order.Order) error {
	u.pending = append(u.pending, publishedEvent{
		Type: order.EventOrderCreated, OrderID: o.ID(), Status: o.Status(),
	})
	return nil
}

func (u *memoryUoW) PublishStatusUpdated(_ context.Context, o *order.Order, previous order.Status, reason string) error {
	u.pending = append(u.pending, publishedEvent{
		Type: order.EventOrderStatusUpdated, OrderID: o.ID(), Status: o.Status(), Previous: previous, Reason: reason,
	})
	return nil
}
