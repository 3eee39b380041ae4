package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orders/internal/adapters/out/broker"
	"orders/internal/adapters/out/postgres/orderrepo"
	"orders/internal/adapters/out/postgres/outboxrepo"
	redisstore "orders/internal/adapters/out/redis"
	"orders/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Closer releases an infrastructure resource on shutdown.
type Closer func() error

// Broker is an opened message publisher with its liveness probe.
type Broker struct {
	Publisher ports.MessagePublisher
	Check     func(ctx context.Context) error
	Close     Closer
}

// OpenDatabase connects with gorm and migrates the order and outbox tables.
func OpenDatabase(cfg Config) (*gorm.DB, error) {
	db, err := gorm.Open(gormpostgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err = db.AutoMigrate(&orderrepo.OrderDTO{}, &outboxrepo.MessageDTO{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// OpenBroker connects to the broker selected by BROKER.
func OpenBroker(cfg Config) (*Broker, error) {
	switch cfg.Broker {
	case BrokerKafka:
		producer, err := broker.NewKafkaSyncProducer(cfg.KafkaBrokers)
		if err != nil {
			return nil, err
		}
		publisher := broker.NewKafkaPublisher(producer)
		return &Broker{
			Publisher: publisher,
			Check:     func(context.Context) error { return nil },
			Close:     publisher.Close,
		}, nil

	default:
		conn, ch, err := broker.DialRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			return nil, err
		}
		publisher, err := broker.NewRabbitPublisher(ch, cfg.RabbitMQExchange)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		return &Broker{
			Publisher: publisher,
			Check:     publisher.Check,
			Close: func() error {
				return errors.Join(ch.Close(), conn.Close())
			},
		}, nil
	}
}

// OpenIdempotencyStore returns nil when REDIS_ADDR is empty.
func OpenIdempotencyStore(ctx context.Context, cfg Config) (*redisstore.IdempotencyStore, Closer, error) {
	if cfg.RedisAddr == "" {
		return nil, func() error { return nil }, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}

	return redisstore.NewIdempotencyStore(rdb, cfg.IdempotencyTTL), rdb.Close, nil
}
