package outboxrepo

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// Listen opens a dedicated connection subscribed to NotifyChannel. The relay reads
// NotificationChannel to wake up as soon as a writer commits. A nil notification is
// sent after a reconnect, when notifications may have been missed.
func Listen(dsn string, logger *slog.Logger) (*pq.Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}

	listener := pq.NewListener(dsn, 500*time.Millisecond, time.Minute,
		func(event pq.ListenerEventType, err error) {
			if err != nil {
				logger.Warn("outbox listener event", "event", int(event), "error", err)
			}
		})

	if err := listener.Listen(NotifyChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}

	return listener, nil
}
