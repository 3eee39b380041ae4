package ports

import "context"

// IdempotencyStore deduplicates client retries keyed by an Idempotency-Key header.
// Keys are scoped (per owner) so two users can reuse the same key value.
type IdempotencyStore interface {
	// TryLock claims the key. It returns false if another request already holds it.
	TryLock(ctx context.Context, scope, key string) (bool, error)

	// Remember stores the result (an order id) for later replays.
	Remember(ctx context.Context, scope, key, value string) error

	// Recall returns the remembered result, if any.
	Recall(ctx context.Context, scope, key string) (string, bool, error)

	// Release drops the lock so a failed request can be retried.
	Release(ctx context.Context, scope, key string) error
}
