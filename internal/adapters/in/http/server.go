// Package http exposes the order lifecycle over a JSON API built on echo.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"orders/internal/core/application/usecases/commands"
	"orders/internal/core/application/usecases/queries"
	"orders/internal/core/domain/model/kernel"
	"orders/internal/core/domain/model/order"
	"orders/internal/core/ports"
	"orders/internal/pkg/errs"
	"orders/internal/pkg/logging"

	"github.com/labstack/echo/v4"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// OrderCommands is implemented by *commands.OrderLifecycle.
type OrderCommands interface {
	Create(ctx context.Context, cmd commands.CreateOrderCommand) (*order.Order, error)
	ChangeStatus(ctx context.Context, cmd commands.ChangeOrderStatusCommand) (bool, error)
	Delete(ctx context.Context, cmd commands.DeleteOrderCommand) (bool, error)
}

type GetOrderHandler interface {
	Handle(ctx context.Context, query queries.GetOrderQuery) (queries.OrderResponse, error)
}

type ListOrdersHandler interface {
	HandleByOwner(ctx context.Context, query queries.ListOrdersByOwnerQuery) ([]queries.OrderResponse, error)
	HandleByProduct(ctx context.Context, query queries.ListOrdersByProductQuery) ([]queries.OrderResponse, error)
}

// Server implements ServerInterface on top of the application use cases.
type Server struct {
	lifecycle   OrderCommands
	getOrder    GetOrderHandler
	listOrders  ListOrdersHandler
	idempotency ports.IdempotencyStore
	metrics     *Metrics
	logger      *slog.Logger
}

// NewServer wires the handlers. idempotency may be nil, in which case the
// Idempotency-Key header is ignored.
func NewServer(
	lifecycle OrderCommands,
	getOrder GetOrderHandler,
	listOrders ListOrdersHandler,
	idempotency ports.IdempotencyStore,
	metrics *Metrics,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		lifecycle:   lifecycle,
		getOrder:    getOrder,
		listOrders:  listOrders,
		idempotency: idempotency,
		metrics:     metrics,
		logger:      logger.With("component", "http_server"),
	}
}

// CreateOrder handles POST /api/orders.
func (s *Server) CreateOrder(ctx echo.Context, params CreateOrderParams) error {
	principal, _ := PrincipalFrom(ctx)

	var body CreateOrderRequest
	if err := ctx.Bind(&body); err != nil {
		return s.jsonError(ctx, http.StatusBadRequest, "Invalid request body")
	}

	cmd, err := commands.NewCreateOrderCommand(principal.UserID, body.ProductID, body.Quantity)
	if err != nil {
		return s.fail(ctx, err)
	}

	if params.IdempotencyKey == nil || s.idempotency == nil {
		return s.create(ctx, cmd, nil)
	}
	return s.createIdempotent(ctx, cmd, principal.UserID, *params.IdempotencyKey)
}

// createIdempotent deduplicates retries per caller: scope is the user id.
func (s *Server) createIdempotent(ctx echo.Context, cmd commands.CreateOrderCommand, scope, key string) error {
	reqCtx := ctx.Request().Context()

	if replayed, err := s.replay(ctx, scope, key); replayed || err != nil {
		return err
	}

	locked, err := s.idempotency.TryLock(reqCtx, scope, key)
	if err != nil {
		return s.fail(ctx, err)
	}
	if !locked {
		if replayed, err := s.replay(ctx, scope, key); replayed || err != nil {
			return err
		}
		return s.jsonError(ctx, http.StatusConflict, "A request with this Idempotency-Key is in progress")
	}

	return s.create(ctx, cmd, func(created *order.Order) {
		if created == nil {
			if err := s.idempotency.Release(reqCtx, scope, key); err != nil {
				s.log(ctx).WarnContext(reqCtx, "release idempotency key", "error", err)
			}
			return
		}
		if err := s.idempotency.Remember(reqCtx, scope, key, created.ID().String()); err != nil {
			s.log(ctx).WarnContext(reqCtx, "remember idempotency key", "error", err)
		}
	})
}

// replay answers with the order an earlier request under key created.
func (s *Server) replay(ctx echo.Context, scope, key string) (bool, error) {
	reqCtx := ctx.Request().Context()

	orderID, found, err := s.idempotency.Recall(reqCtx, scope, key)
	if err != nil {
		return true, s.fail(ctx, err)
	}
	if !found {
		return false, nil
	}

	query, err := queries.NewGetOrderQuery(orderID)
	if err != nil {
		return true, s.fail(ctx, err)
	}
	resp, err := s.getOrder.Handle(reqCtx, query)
	if err != nil {
		return true, s.fail(ctx, err)
	}
	return true, ctx.JSON(http.StatusOK, orderFromResponse(resp))
}

// create runs the command; done, when set, sees the created order or nil on failure.
func (s *Server) create(ctx echo.Context, cmd commands.CreateOrderCommand, done func(*order.Order)) error {
	created, err := s.lifecycle.Create(ctx.Request().Context(), cmd)
	if done != nil {
		done(created)
	}
	if err != nil {
		return s.fail(ctx, err)
	}

	if s.metrics != nil {
		s.metrics.ordersCreated.Inc()
	}
	ctx.Response().Header().Set(echo.HeaderLocation, "/api/orders/"+created.ID().String())
	return ctx.JSON(http.StatusCreated, orderFromAggregate(created))
}

// GetOrder handles GET /api/orders/{id}. Only the owner or an Admin may read an order.
func (s *Server) GetOrder(ctx echo.Context, id openapi_types.UUID) error {
	principal, _ := PrincipalFrom(ctx)

	query, err := queries.NewGetOrderQuery(id.String())
	if err != nil {
		return s.fail(ctx, err)
	}

	resp, err := s.getOrder.Handle(ctx.Request().Context(), query)
	if err != nil {
		return s.fail(ctx, err)
	}

	if !principal.IsAdmin() && resp.OwnerID != principal.UserID {
		return s.jsonError(ctx, http.StatusForbidden, "Order belongs to another user")
	}

	return ctx.JSON(http.StatusOK, orderFromResponse(resp))
}

// ListMyOrders handles GET /api/orders/user.
func (s *Server) ListMyOrders(ctx echo.Context) error {
	principal, _ := PrincipalFrom(ctx)

	query, err := queries.NewListOrdersByOwnerQuery(principal.UserID)
	if err != nil {
		return s.fail(ctx, err)
	}

	orders, err := s.listOrders.HandleByOwner(ctx.Request().Context(), query)
	if err != nil {
		return s.fail(ctx, err)
	}

	return ctx.JSON(http.StatusOK, ordersFromResponses(orders))
}

// ListProductOrders handles GET /api/orders/product/{productId}.
func (s *Server) ListProductOrders(ctx echo.Context, productID string) error {
	query, err := queries.NewListOrdersByProductQuery(productID)
	if err != nil {
		return s.fail(ctx, err)
	}

	orders, err := s.listOrders.HandleByProduct(ctx.Request().Context(), query)
	if err != nil {
		return s.fail(ctx, err)
	}

	return ctx.JSON(http.StatusOK, ordersFromResponses(orders))
}

// UpdateOrderStatus handles PUT /api/orders/{id}/status.
func (s *Server) UpdateOrderStatus(ctx echo.Context, id openapi_types.UUID) error {
	var body UpdateOrderStatusRequest
	if err := ctx.Bind(&body); err != nil {
		return s.jsonError(ctx, http.StatusBadRequest, "Invalid request body")
	}

	status, err := order.ParseStatus(body.Status)
	if err != nil {
		return s.fail(ctx, err)
	}

	orderID, err := kernel.UUIDFromBytes(id[:])
	if err != nil {
		return s.fail(ctx, err)
	}

	cmd, err := commands.NewChangeOrderStatusCommand(orderID, status, body.Reason)
	if err != nil {
		return s.fail(ctx, err)
	}

	updated, err := s.lifecycle.ChangeStatus(ctx.Request().Context(), cmd)
	if err != nil {
		return s.fail(ctx, err)
	}
	if !updated {
		return s.jsonError(ctx, http.StatusNotFound, "Order not found")
	}

	if s.metrics != nil {
		s.metrics.statusChanges.WithLabelValues(status.String()).Inc()
	}
	return ctx.JSON(http.StatusOK, UpdatedResponse{Updated: true})
}

// DeleteOrder handles DELETE /api/orders/{id}.
func (s *Server) DeleteOrder(ctx echo.Context, id openapi_types.UUID) error {
	orderID, err := kernel.UUIDFromBytes(id[:])
	if err != nil {
		return s.fail(ctx, err)
	}

	cmd, err := commands.NewDeleteOrderCommand(orderID)
	if err != nil {
		return s.fail(ctx, err)
	}

	deleted, err := s.lifecycle.Delete(ctx.Request().Context(), cmd)
	if err != nil {
		return s.fail(ctx, err)
	}
	if !deleted {
		return s.jsonError(ctx, http.StatusNotFound, "Order not found")
	}

	return ctx.NoContent(http.StatusOK)
}

// fail maps use case errors to responses. Store and broker faults are logged and
// answered with a generic 500.
func (s *Server) fail(ctx echo.Context, err error) error {
	var transitionErr *order.InvalidTransitionError

	switch {
	case errors.As(err, &transitionErr):
		return s.jsonError(ctx, http.StatusConflict,
			"Cannot change order status from "+transitionErr.From.String()+" to "+transitionErr.To.String())
	case errors.Is(err, errs.ErrObjectNotFound):
		return s.jsonError(ctx, http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrValueIsRequired),
		errors.Is(err, errs.ErrValueIsInvalid),
		errors.Is(err, errs.ErrValueIsOutOfRange):
		return s.jsonError(ctx, http.StatusBadRequest, err.Error())
	}

	reqCtx := ctx.Request().Context()
	switch {
	case errors.Is(err, errs.ErrPublish):
		s.log(ctx).ErrorContext(reqCtx, "event delivery failed", "error", err)
	case errors.Is(err, errs.ErrPersistence):
		s.log(ctx).ErrorContext(reqCtx, "persistence failure", "error", err)
	default:
		s.log(ctx).ErrorContext(reqCtx, "request failed", "error", err)
	}
	return s.jsonError(ctx, http.StatusInternalServerError, "Internal server error")
}

func (s *Server) jsonError(ctx echo.Context, code int, msg string) error {
	return ctx.JSON(code, Error{Code: code, Message: msg})
}

func (s *Server) log(ctx echo.Context) *slog.Logger {
	return logging.FromCtx(ctx.Request().Context(), s.logger)
}

var _ ServerInterface = (*Server)(nil)
