package handler

import (
	"context"
	"net/http"
	"storefront-service/internal/middleware"
	"storefront-service/internal/model"

	"github.com/labstack/echo/v4"
)

// OrderHistory reads the caller's own orders
type OrderHistory interface {
	ListForUser(ctx context.Context, p model.Principal) ([]model.Order, error)
	Get(ctx context.Context, p model.Principal, orderID uint) (*model.Order, error)
}

type OrderHandler struct {
	orders OrderHistory
}

func NewOrderHandler(orders OrderHistory) *OrderHandler {
	return &OrderHandler{orders: orders}
}

func (h *OrderHandler) ListOrders(c echo.Context) error {
	p, _ := middleware.PrincipalFromContext(c)
	orders, err := h.orders.ListForUser(c.Request().Context(), p)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, orders)
}

// GetOrder serves both the shopper and the admin detail routes; ownership is checked by the service
func (h *OrderHandler) GetOrder(c echo.Context) error {
	p, _ := middleware.PrincipalFromContext(c)
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	order, err := h.orders.Get(c.Request().Context(), p, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}
