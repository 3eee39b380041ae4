package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"orders/internal/pkg/logging"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the HTTP and order counters of one server.
type Metrics struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	ordersCreated prometheus.Counter
	statusChanges *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "Duration of HTTP requests in ms",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
		}, []string{"method", "path"}),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders created",
		}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_status_changes_total",
			Help: "Accepted order status changes by target status",
		}, []string{"status"}),
	}
	reg.MustRegister(m.requests, m.duration, m.ordersCreated, m.statusChanges)
	return m
}

func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			status := strconv.Itoa(c.Response().Status)
			m.requests.WithLabelValues(c.Request().Method, path, status).Inc()
			m.duration.WithLabelValues(c.Request().Method, path).
				Observe(float64(time.Since(start).Milliseconds()))
			return nil
		}
	}
}

// RequestLogger attaches a request-scoped logger and logs one line per request.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			l := logger.With("request_id", requestID)
			c.SetRequest(req.WithContext(logging.WithCtx(req.Context(), l)))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			l.InfoContext(req.Context(), "http request",
				"method", req.Method,
				"path", c.Path(),
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds())
			return nil
		}
	}
}

// ValidateRequest checks the matched request against doc before it reaches a handler.
// Authentication is enforced by Authenticate, so security requirements are skipped here.
func ValidateRequest(doc *openapi3.T) echo.MiddlewareFunc {
	options := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		MultiError:         false,
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := openAPIPath(c.Path())
			item := doc.Paths.Find(path)
			if item == nil {
				return next(c)
			}
			operation := item.GetOperation(req.Method)
			if operation == nil {
				return next(c)
			}

			params := make(map[string]string, len(c.ParamNames()))
			for i, name := range c.ParamNames() {
				params[name] = c.ParamValues()[i]
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    req,
				PathParams: params,
				Route: &routers.Route{
					Spec:      doc,
					Path:      path,
					PathItem:  item,
					Method:    req.Method,
					Operation: operation,
				},
				Options: options,
			}
			if err := openapi3filter.ValidateRequest(req.Context(), input); err != nil {
				return c.JSON(http.StatusBadRequest, Error{Code: http.StatusBadRequest, Message: validationMessage(err)})
			}

			return next(c)
		}
	}
}

func validationMessage(err error) string {
	switch e := err.(type) {
	case *openapi3filter.RequestError:
		if e.Parameter != nil {
			return "invalid parameter " + e.Parameter.Name + ": " + e.Reason
		}
		if e.RequestBody != nil {
			return "invalid request body: " + e.Error()
		}
		return e.Error()
	default:
		return err.Error()
	}
}
