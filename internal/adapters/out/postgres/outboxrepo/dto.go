// Package outboxrepo stores encoded order events in the order_outbox table.
// Writers insert inside the business transaction; the relay job drains due rows.
package outboxrepo

import (
	"time"

	"orders/internal/core/ports"
)

// NotifyChannel is the LISTEN/NOTIFY channel signalled on every insert.
const NotifyChannel = "order_outbox"

// MessageDTO is one outbox row. Seq gives the global relay order.
type MessageDTO struct {
	Seq           int64      `gorm:"primaryKey;autoIncrement"`
	MessageID     string     `gorm:"type:varchar(64);not null;uniqueIndex"`
	EventType     string     `gorm:"type:varchar(64);not null"`
	MessageKey    string     `gorm:"type:varchar(128);not null;index:idx_order_outbox_key_pending,priority:1"`
	Payload       []byte     `gorm:"type:jsonb;not null"`
	OccurredAt    time.Time  `gorm:"not null"`
	Attempts      int        `gorm:"not null;default:0"`
	LastError     string     `gorm:"type:text"`
	NextAttemptAt time.Time  `gorm:"not null;index"`
	SentAt        *time.Time `gorm:"index:idx_order_outbox_key_pending,priority:2"`
}

func (MessageDTO) TableName() string {
	return "order_outbox"
}

func fromMessage(msg ports.Message, now time.Time) MessageDTO {
	return MessageDTO{
		MessageID:     msg.ID,
		EventType:     msg.Type,
		MessageKey:    msg.Key,
		Payload:       msg.Body,
		OccurredAt:    msg.OccurredAt.UTC(),
		NextAttemptAt: now.UTC(),
	}
}

func toRecord(dto MessageDTO) ports.OutboxRecord {
	return ports.OutboxRecord{
		Seq:      dto.Seq,
		Attempts: dto.Attempts,
		Message: ports.Message{
			ID:         dto.MessageID,
			Type:       dto.EventType,
			Key:        dto.MessageKey,
			OccurredAt: dto.OccurredAt,
			Body:       dto.Payload,
		},
	}
}
