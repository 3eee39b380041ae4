package broker

import (
	"context"
	"fmt"
	"time"

	"orders/internal/core/ports"

	"github.com/IBM/sarama"
)

// KafkaPublisher implements ports.MessagePublisher with a synchronous producer.
type KafkaPublisher struct {
	producer sarama.SyncProducer
}

func NewKafkaPublisher(producer sarama.SyncProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

// NewKafkaConfig waits for all in-sync replicas and hashes keys to partitions.
func NewKafkaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_6_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Net.DialTimeout = 5 * time.Second
	return cfg
}

func NewKafkaSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewKafkaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

// Publish blocks until the broker acknowledges the message. SyncProducer has no
// cancellation, so ctx is only checked before sending.
func (p *KafkaPublisher) Publish(ctx context.Context, msg ports.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: msg.Type,
		Key:   sarama.StringEncoder(msg.Key),
		Value: sarama.ByteEncoder(msg.Body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("message-id"), Value: []byte(msg.ID)},
			{Key: []byte("content-type"), Value: []byte("application/json")},
		},
		Timestamp: msg.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("send %s to kafka: %w", msg.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

var _ ports.MessagePublisher = (*KafkaPublisher)(nil)
