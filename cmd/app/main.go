package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"orders/cmd"
	httpin "orders/internal/adapters/in/http"
	"orders/internal/adapters/out/postgres/outboxrepo"
	"orders/internal/jobs"
	"orders/internal/pkg/logging"

	"golang.org/x/sync/errgroup"
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
	if err = cfg.ValidateAPI(); err != nil {
		return err
	}

	logger, logCloser, err := logging.New(logging.Options{Service: "orders", Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := cmd.OpenDatabase(cfg)
	if err != nil {
		return err
	}

	brk, err := cmd.OpenBroker(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := brk.Close(); err != nil {
			logger.Warn("close broker", "error", err)
		}
	}()

	deps := cmd.Deps{DB: db, Broker: brk, Logger: logger}
	store, closeStore, err := cmd.OpenIdempotencyStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()
	if store != nil {
		deps.Idempotency = store
		deps.IdempotencyCheck = store.Check
	}

	app, err := cmd.NewCompositionRoot(cfg, deps)
	if err != nil {
		return err
	}

	doc, err := httpin.LoadOpenAPI(ctx)
	if err != nil {
		return err
	}
	if err = httpin.RegisterSwagger(doc); err != nil {
		return err
	}

	e, err := app.CreateHTTPServer(doc)
	if err != nil {
		return err
	}

	var source jobs.NotificationSource
	if app.UsesOutbox() {
		listener, err := outboxrepo.Listen(cfg.DSN(), logger)
		if err != nil {
			logger.Warn("outbox notifications unavailable, relaying on schedule only", "error", err)
		} else {
			defer listener.Close()
			source = listener
		}
	}

	relayJobs, err := app.CreateJobs(source)
	if err != nil {
		return err
	}
	manager := jobs.NewJobManager(relayJobs...)
	if err = manager.StartAll(); err != nil {
		return err
	}
	defer manager.StopAll()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf("0.0.0.0:%s", cfg.HTTPPort)
		logger.Info("http server listening", "addr", addr, "delivery", cfg.EventsDelivery, "broker", cfg.Broker)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cmd.ShutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("orders service stopped")
	return err
}
