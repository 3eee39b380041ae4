// Package notifier turns order events from the broker into user notifications.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"orders/internal/adapters/out/envelope"
	"orders/internal/core/domain/model/order"
)

var ErrUnsupportedEvent = errors.New("unsupported event type")

// Notification is one message for one user.
type Notification struct {
	UserID  string
	OrderID string
	Subject string
	Body    string
}

// Sender delivers notifications. LogSender is the only implementation for now.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) LogSender {
	return LogSender{logger: logger.With("component", "notification_sender")}
}

func (s LogSender) Send(ctx context.Context, n Notification) error {
	s.logger.InfoContext(ctx, "notification sent",
		"user_id", n.UserID, "order_id", n.OrderID, "subject", n.Subject, "body", n.Body)
	return nil
}

// Handler maps order events to notifications.
type Handler struct {
	sender Sender
}

func NewHandler(sender Sender) *Handler {
	return &Handler{sender: sender}
}

// Handle returns an error wrapping envelope.ErrMalformedEnvelope or ErrUnsupportedEvent
// for messages that will never succeed; any other error is worth a retry.
func (h *Handler) Handle(ctx context.Context, env envelope.Envelope) error {
	var n Notification

	switch env.Type {
	case order.EventOrderCreated:
		evt, err := env.CreatedEvent()
		if err != nil {
			return err
		}
		n = Notification{
			UserID:  evt.OwnerID,
			OrderID: evt.OrderID,
			Subject: "Order received",
			Body: fmt.Sprintf("Your order of %d x %s (total %s) was received.",
				evt.Quantity, evt.ProductID, evt.TotalPrice.StringFixed(2)),
		}
	case order.EventOrderStatusUpdated:
		evt, err := env.StatusUpdatedEvent()
		if err != nil {
			return err
		}
		body := fmt.Sprintf("Your order is now %s.", evt.Status)
		if evt.Reason != "" {
			body += " Reason: " + evt.Reason
		}
		n = Notification{
			UserID:  evt.OwnerID,
			OrderID: evt.OrderID,
			Subject: "Order " + evt.Status.String(),
			Body:    body,
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedEvent, env.Type)
	}

	return h.sender.Send(ctx, n)
}

// IsPermanent reports whether err means the message can never be handled.
func IsPermanent(err error) bool {
	return errors.Is(err, envelope.ErrMalformedEnvelope) || errors.Is(err, ErrUnsupportedEvent)
}
