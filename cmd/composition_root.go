package cmd

import (
	"context"
	"log/slog"
	"time"

	httpin "orders/internal/adapters/in/http"
	"orders/internal/adapters/out/postgres"
	"orders/internal/adapters/out/postgres/outboxrepo"
	"orders/internal/adapters/out/pricing"
	"orders/internal/core/application/usecases/commands"
	"orders/internal/core/application/usecases/queries"
	"orders/internal/core/ports"
	"orders/internal/jobs"
	"orders/internal/pkg/logging"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
)

// Deps are the opened infrastructure handles the composition root builds on.
type Deps struct {
	DB          *gorm.DB
	Broker      *Broker
	Idempotency ports.IdempotencyStore
	// IdempotencyCheck is nil when no store is configured.
	IdempotencyCheck func(ctx context.Context) error
	Logger           *slog.Logger
}

type CompositionRoot struct {
	cfg        Config
	deps       Deps
	mode       postgres.DeliveryMode
	uowFactory *postgres.GormUnitOfWorkFactory
	registry   *prometheus.Registry
	metrics    *httpin.Metrics
}

func NewCompositionRoot(cfg Config, deps Deps) (*CompositionRoot, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	mode, err := postgres.ParseDeliveryMode(cfg.EventsDelivery)
	if err != nil {
		return nil, err
	}

	opt := postgres.WithOutboxDelivery()
	if mode == postgres.DeliveryDirect {
		opt = postgres.WithDirectDelivery(deps.Broker.Publisher)
	}
	uowFactory, err := postgres.NewGormUnitOfWorkFactory(deps.DB, opt)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	root := &CompositionRoot{
		cfg:        cfg,
		deps:       deps,
		mode:       mode,
		uowFactory: uowFactory,
		registry:   registry,
		metrics:    httpin.NewMetrics(registry),
	}
	if mode == postgres.DeliveryOutbox {
		root.registerOutboxGauge()
	}
	return root, nil
}

// UsesOutbox reports whether events go through the outbox table.
func (c *CompositionRoot) UsesOutbox() bool {
	return c.mode == postgres.DeliveryOutbox
}

func (c *CompositionRoot) orderUoWFactory() commands.OrderUoWFactory {
	return FuncOrderUoWFactory(func() commands.OrderUoW {
		return c.uowFactory.Create()
	})
}

func (c *CompositionRoot) outboxUoWFactory() commands.OutboxUoWFactory {
	return FuncOutboxUoWFactory(func() commands.OutboxUoW {
		return c.uowFactory.Create()
	})
}

// PriceQuoter falls back to zero pricing when no product service is configured.
func (c *CompositionRoot) PriceQuoter() ports.PriceQuoter {
	if c.cfg.ProductServiceURL == "" {
		return pricing.Zero{}
	}
	return pricing.NewProductClient(c.cfg.ProductServiceURL, c.cfg.ProductTimeout)
}

func (c *CompositionRoot) CreateOrderLifecycle() (*commands.OrderLifecycle, error) {
	return commands.NewOrderLifecycle(c.orderUoWFactory(), c.PriceQuoter(), c.deps.Logger)
}

func (c *CompositionRoot) CreateGetOrderQueryHandler() queries.GetOrderQueryHandler {
	return queries.NewGetOrderQueryHandler(c.deps.DB)
}

func (c *CompositionRoot) CreateListOrdersQueryHandler() queries.ListOrdersQueryHandler {
	return queries.NewListOrdersQueryHandler(c.deps.DB)
}

func (c *CompositionRoot) CreateRelayOutboxCommandHandler() commands.RelayOutboxCommandHandler {
	return commands.NewRelayOutboxCommandHandler(c.outboxUoWFactory(), c.deps.Broker.Publisher, c.deps.Logger)
}

// CreateJobs returns the background jobs for the configured delivery mode. Direct
// delivery needs none. source may be nil.
func (c *CompositionRoot) CreateJobs(source jobs.NotificationSource) ([]jobs.Job, error) {
	if c.mode != postgres.DeliveryOutbox {
		return nil, nil
	}

	cmd, err := commands.NewRelayOutboxCommand(c.cfg.OutboxBatchSize)
	if err != nil {
		return nil, err
	}

	handler := c.CreateRelayOutboxCommandHandler()
	relay := jobs.NewOutboxRelayJob(
		&handler,
		cmd,
		c.cfg.OutboxRelaySchedule,
		source,
		c.deps.Logger,
	)
	return []jobs.Job{relay}, nil
}

// CreateHTTPServer wires the echo router with every API handler.
func (c *CompositionRoot) CreateHTTPServer(doc *openapi3.T) (*echo.Echo, error) {
	lifecycle, err := c.CreateOrderLifecycle()
	if err != nil {
		return nil, err
	}

	server := httpin.NewServer(
		lifecycle,
		c.CreateGetOrderQueryHandler(),
		c.CreateListOrdersQueryHandler(),
		c.deps.Idempotency,
		c.metrics,
		c.deps.Logger,
	)

	return httpin.NewRouter(server, c.metrics, httpin.RouterConfig{
		Auth: httpin.AuthConfig{
			Secret:   c.cfg.JWTSecret,
			Issuer:   c.cfg.JWTIssuer,
			Audience: c.cfg.JWTAudience,
		},
		OpenAPI:      doc,
		Gatherer:     c.registry,
		HealthChecks: c.healthChecks(),
		Logger:       c.deps.Logger,
		LogLevel:     echoLogLevel(c.cfg.LogLevel),
	}), nil
}

func (c *CompositionRoot) healthChecks() map[string]httpin.HealthCheck {
	checks := map[string]httpin.HealthCheck{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := c.deps.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"broker": c.deps.Broker.Check,
	}
	if c.deps.IdempotencyCheck != nil {
		checks["redis"] = c.deps.IdempotencyCheck
	}
	if c.mode == postgres.DeliveryOutbox {
		checks["outbox"] = c.outboxBacklogCheck
	}
	return checks
}

// outboxBacklogCheck fails only when the outbox table cannot be read.
func (c *CompositionRoot) outboxBacklogCheck(ctx context.Context) error {
	_, err := outboxrepo.NewGormOutboxRepository(c.deps.DB).Pending(ctx)
	return err
}

func (c *CompositionRoot) registerOutboxGauge() {
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "orders_outbox_pending",
		Help: "Unsent rows in the order outbox.",
	}, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		pending, err := outboxrepo.NewGormOutboxRepository(c.deps.DB).Pending(ctx)
		if err != nil {
			c.deps.Logger.Warn("read outbox backlog", "error", err)
			return -1
		}
		return float64(pending)
	}))
}

func echoLogLevel(level string) log.Lvl {
	l, _ := logging.ParseLevel(level)
	switch {
	case l <= slog.LevelDebug:
		return log.DEBUG
	case l <= slog.LevelInfo:
		return log.INFO
	case l <= slog.LevelWarn:
		return log.WARN
	default:
		return log.ERROR
	}
}

// ShutdownTimeout bounds graceful shutdown of the HTTP server.
const ShutdownTimeout = 10 * time.Second

type FuncOrderUoWFactory func() commands.OrderUoW

func (f FuncOrderUoWFactory) Create() commands.OrderUoW {
	return f()
}

type FuncOutboxUoWFactory func() commands.OutboxUoW

func (f FuncOutboxUoWFactory) Create() commands.OutboxUoW {
	return f()
}
