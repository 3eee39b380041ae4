package commands

import (
	"context"
	"log/slog"
	"time"

	"orders/internal/core/ports"
)

const (
	defaultRetryBase  = time.Second
	defaultRetryLimit = 5 * time.Minute

	// maxRelayRounds bounds one Handle call. Each round sends at most one row per order.
	maxRelayRounds = 10
)

// RelayOutboxCommandHandler sends outbox rows to the broker in insertion order.
// A failed row is postponed with exponential backoff and blocks later rows of the
// same order until it goes out.
//
// Example:
//
//	handler := NewRelayOutboxCommandHandler(outboxUoWFactory, rabbitPublisher, logger)
//	cmd, _ := NewRelayOutboxCommand(100)
//	sent, err := handler.Handle(ctx, cmd)
type RelayOutboxCommandHandler struct {
	uowFactory OutboxUoWFactory
	publisher  ports.MessagePublisher
	retryBase  time.Duration
	retryLimit time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

func NewRelayOutboxCommandHandler(
	uowFactory OutboxUoWFactory,
	publisher ports.MessagePublisher,
	logger *slog.Logger,
) RelayOutboxCommandHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return RelayOutboxCommandHandler{
		uowFactory: uowFactory,
		publisher:  publisher,
		retryBase:  defaultRetryBase,
		retryLimit: defaultRetryLimit,
		now:        time.Now,
		logger:     logger.With("component", "outbox_relay"),
	}
}

// WithClock returns a copy of the handler reading time from now.
func (h RelayOutboxCommandHandler) WithClock(now func() time.Time) RelayOutboxCommandHandler {
	h.now = now
	return h
}

// Handle drains due rows and returns how many were sent. It keeps going while a round
// sends something, so a backlog of several events for one order clears in one call.
func (h *RelayOutboxCommandHandler) Handle(ctx context.Context, cmd RelayOutboxCommand) (int, error) {
	if err := cmd.Validate(); err != nil {
		return 0, err
	}

	total := 0
	for range maxRelayRounds {
		sent, fetched, err := h.round(ctx, cmd.BatchSize())
		total += sent
		if err != nil {
			return total, err
		}
		if fetched == 0 || sent == 0 {
			break
		}
	}

	return total, nil
}

func (h *RelayOutboxCommandHandler) round(ctx context.Context, limit int) (sent, fetched int, err error) {
	uow := h.uowFactory.Create()
	if err = uow.Begin(ctx); err != nil {
		return 0, 0, err
	}

	defer func() {
		_ = uow.Rollback(ctx)
	}()

	repo := uow.OutboxRepository()
	records, err := repo.FetchDue(ctx, h.now(), limit)
	if err != nil {
		return 0, 0, err
	}

	for _, record := range records {
		if pubErr := h.publisher.Publish(ctx, record.Message); pubErr != nil {
			retryAt := h.now().Add(h.backoff(record.Attempts))
			h.logger.WarnContext(ctx, "outbox message not delivered",
				"seq", record.Seq,
				"type", record.Message.Type,
				"order_id", record.Message.Key,
				"attempts", record.Attempts+1,
				"retry_at", retryAt,
				"error", pubErr)

			if err = repo.MarkFailed(ctx, record.Seq, pubErr, retryAt); err != nil {
				return sent, len(records), err
			}
			continue
		}

		if err = repo.MarkSent(ctx, record.Seq, h.now()); err != nil {
			return sent, len(records), err
		}
		sent++
	}

	if err = uow.Commit(ctx); err != nil {
		return 0, len(records), err
	}

	return sent, len(records), nil
}

// backoff doubles per attempt from retryBase up to retryLimit.
func (h *RelayOutboxCommandHandler) backoff(attempts int) time.Duration {
	delay := h.retryBase
	for range attempts {
		delay *= 2
		if delay >= h.retryLimit {
			return h.retryLimit
		}
	}
	return delay
}
