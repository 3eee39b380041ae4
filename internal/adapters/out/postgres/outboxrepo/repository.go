package outboxrepo

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"orders/internal/core/ports"
	"orders/internal/pkg/errs"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxLastErrorLength = 1000

// GormOutboxRepository writes and drains order_outbox. Bind it to a transaction for both
// sides: writers so the row commits with the state change, the relay so FetchDue locks hold.
type GormOutboxRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db, now: time.Now}
}

// Publish appends msg to the outbox and signals NotifyChannel. Postgres delivers the
// notification only when the surrounding transaction commits.
func (r *GormOutboxRepository) Publish(ctx context.Context, msg ports.Message) error {
	dto := fromMessage(msg, r.now())
	db := r.db.WithContext(ctx)

	if err := db.Create(&dto).Error; err != nil {
		return errs.NewPersistenceError("insert outbox message", err)
	}

	if err := db.Exec("SELECT pg_notify(?, ?)", NotifyChannel, msg.Type).Error; err != nil {
		return errs.NewPersistenceError("notify outbox", err)
	}

	return nil
}

// FetchDue returns unsent, due rows in seq order. A row is skipped while an older unsent
// row with the same key exists, which keeps per-order event order across retries.
// Rows are locked FOR UPDATE SKIP LOCKED so concurrent relays do not double send.
func (r *GormOutboxRepository) FetchDue(ctx context.Context, now time.Time, limit int) ([]ports.OutboxRecord, error) {
	var dtos []MessageDTO
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("sent_at IS NULL AND next_attempt_at <= ?", now.UTC()).
		Where(`NOT EXISTS (
			SELECT 1 FROM order_outbox older
			WHERE older.message_key = order_outbox.message_key
			  AND older.sent_at IS NULL
			  AND older.seq < order_outbox.seq)`).
		Order("seq").
		Limit(limit).
		Find(&dtos).Error
	if err != nil {
		return nil, err
	}

	records := make([]ports.OutboxRecord, 0, len(dtos))
	for _, dto := range dtos {
		records = append(records, toRecord(dto))
	}
	return records, nil
}

func (r *GormOutboxRepository) MarkSent(ctx context.Context, seq int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&MessageDTO{}).
		Where("seq = ?", seq).
		Updates(map[string]any{
			"sent_at":  at.UTC(),
			"attempts": gorm.Expr("attempts + 1"),
		}).Error
}

func (r *GormOutboxRepository) MarkFailed(ctx context.Context, seq int64, cause error, nextAttemptAt time.Time) error {
	msg := truncateUTF8(cause.Error(), maxLastErrorLength)

	return r.db.WithContext(ctx).
		Model(&MessageDTO{}).
		Where("seq = ?", seq).
		Updates(map[string]any{
			"attempts":        gorm.Expr("attempts + 1"),
			"last_error":      msg,
			"next_attempt_at": nextAttemptAt.UTC(),
		}).Error
}

// truncateUTF8 returns valid UTF-8 of at most limit bytes, cut on a rune boundary.
func truncateUTF8(s string, limit int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Pending counts unsent rows; used by the health endpoint.
func (r *GormOutboxRepository) Pending(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&MessageDTO{}).Where("sent_at IS NULL").Count(&n).Error
	return n, err
}

var (
	_ ports.MessagePublisher = (*GormOutboxRepository)(nil)
	_ ports.OutboxRepository = (*GormOutboxRepository)(nil)
)
