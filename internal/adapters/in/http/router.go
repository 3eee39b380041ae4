package http

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Auth         AuthConfig
	OpenAPI      *openapi3.T
	Gatherer     prometheus.Gatherer
	HealthChecks map[string]HealthCheck
	Logger       *slog.Logger
	LogLevel     log.Lvl
}

// NewRouter builds the echo instance: public /health, /metrics and /swagger, and the
// authenticated, schema-validated /api routes.
func NewRouter(server ServerInterface, metrics *Metrics, cfg RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(cfg.LogLevel)

	e.Use(middleware.Recover())
	if metrics != nil {
		e.Use(metrics.Middleware())
	}
	if cfg.Logger != nil {
		e.Use(RequestLogger(cfg.Logger))
	}

	e.GET("/health", healthHandler(cfg.HealthChecks))
	if cfg.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	apiMiddleware := []echo.MiddlewareFunc{Authenticate(cfg.Auth)}
	if cfg.OpenAPI != nil {
		apiMiddleware = append(apiMiddleware, ValidateRequest(cfg.OpenAPI))
	}
	RegisterHandlers(e, server, RequireRole(RoleAdmin), apiMiddleware...)

	return e
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) echo.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "Healthy", Checks: make(map[string]string, len(names))}
		code := http.StatusOK
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "Unhealthy"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		return c.JSON(code, resp)
	}
}
