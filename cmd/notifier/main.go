package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"orders/cmd"
	"orders/internal/adapters/in/notifier"
	"orders/internal/adapters/out/broker"
	"orders/internal/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := cmd.LoadConfig(".env")
	if err != nil {
		return err
	}
	if cfg.Broker != cmd.BrokerRabbitMQ {
		return fmt.Errorf("notifier consumes from rabbitmq only, BROKER is %q", cfg.Broker)
	}

	logger, logCloser, err := logging.New(logging.Options{Service: "orders-notifier", Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, ch, err := broker.DialRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer ch.Close()

	consumer := notifier.NewConsumer(
		ch,
		cfg.RabbitMQExchange,
		cfg.NotifierQueue,
		notifier.NewHandler(notifier.NewLogSender(logger)),
		logger,
	)
	if err = consumer.Setup(); err != nil {
		return err
	}

	logger.Info("notifier started", "queue", cfg.NotifierQueue, "exchange", cfg.RabbitMQExchange)
	err = consumer.Run(ctx)
	logger.Info("notifier stopped")
	return err
}
