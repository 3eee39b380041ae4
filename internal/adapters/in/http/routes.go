package http

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

const idempotencyKeyHeader = "Idempotency-Key"

type CreateOrderParams struct {
	IdempotencyKey *string
}

// ServerInterface lists the operations of openapi.yaml.
type ServerInterface interface {
	// (POST /api/orders)
	CreateOrder(ctx echo.Context, params CreateOrderParams) error
	// (GET /api/orders/user)
	ListMyOrders(ctx echo.Context) error
	// (GET /api/orders/product/{productId})
	ListProductOrders(ctx echo.Context, productID string) error
	// (GET /api/orders/{id})
	GetOrder(ctx echo.Context, id openapi_types.UUID) error
	// (DELETE /api/orders/{id})
	DeleteOrder(ctx echo.Context, id openapi_types.UUID) error
	// (PUT /api/orders/{id}/status)
	UpdateOrderStatus(ctx echo.Context, id openapi_types.UUID) error
}

// serverWrapper binds path and header parameters before calling the handler.
type serverWrapper struct {
	handler ServerInterface
}

func (w *serverWrapper) CreateOrder(ctx echo.Context) error {
	var params CreateOrderParams

	if values := ctx.Request().Header.Values(idempotencyKeyHeader); len(values) > 0 {
		if len(values) > 1 {
			return badParam("Expected one value for " + idempotencyKeyHeader)
		}
		var key string
		err := runtime.BindStyledParameterWithOptions("simple", idempotencyKeyHeader, values[0], &key,
			runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationHeader, Explode: false, Required: true})
		if err != nil {
			return badParam("Invalid format for parameter " + idempotencyKeyHeader + ": " + err.Error())
		}
		params.IdempotencyKey = &key
	}

	return w.handler.CreateOrder(ctx, params)
}

func (w *serverWrapper) ListMyOrders(ctx echo.Context) error {
	return w.handler.ListMyOrders(ctx)
}

func (w *serverWrapper) ListProductOrders(ctx echo.Context) error {
	var productID string
	err := runtime.BindStyledParameterWithOptions("simple", "productId", ctx.Param("productId"), &productID,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return badParam("Invalid format for parameter productId: " + err.Error())
	}
	return w.handler.ListProductOrders(ctx, productID)
}

func (w *serverWrapper) GetOrder(ctx echo.Context) error {
	id, err := bindOrderID(ctx)
	if err != nil {
		return err
	}
	return w.handler.GetOrder(ctx, id)
}

func (w *serverWrapper) DeleteOrder(ctx echo.Context) error {
	id, err := bindOrderID(ctx)
	if err != nil {
		return err
	}
	return w.handler.DeleteOrder(ctx, id)
}

func (w *serverWrapper) UpdateOrderStatus(ctx echo.Context) error {
	id, err := bindOrderID(ctx)
	if err != nil {
		return err
	}
	return w.handler.UpdateOrderStatus(ctx, id)
}

func bindOrderID(ctx echo.Context) (openapi_types.UUID, error) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", ctx.Param("id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return id, badParam("Invalid format for parameter id: " + err.Error())
	}
	return id, nil
}

func badParam(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}

// EchoRouter is implemented by both *echo.Echo and *echo.Group.
type EchoRouter interface {
	GET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	POST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	PUT(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	DELETE(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
}

// RegisterHandlers mounts the API on router. common runs on every operation, adminOnly
// additionally on the Admin operations.
func RegisterHandlers(router EchoRouter, si ServerInterface, adminOnly echo.MiddlewareFunc, common ...echo.MiddlewareFunc) {
	w := &serverWrapper{handler: si}
	admin := append(slices.Clone(common), adminOnly)

	router.POST("/api/orders", w.CreateOrder, common...)
	router.GET("/api/orders/user", w.ListMyOrders, common...)
	router.GET("/api/orders/product/:productId", w.ListProductOrders, admin...)
	router.GET("/api/orders/:id", w.GetOrder, common...)
	router.DELETE("/api/orders/:id", w.DeleteOrder, admin...)
	router.PUT("/api/orders/:id/status", w.UpdateOrderStatus, admin...)
}
