package handler

import (
	"context"
	"net/http"
	"storefront-service/internal/middleware"
	"storefront-service/internal/model"
	"storefront-service/internal/service"
	"storefront-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Checkout places orders from the caller's cart
type Checkout interface {
	Preview(ctx context.Context, p model.Principal) (*service.CartView, error)
	Checkout(ctx context.Context, p model.Principal, in service.CheckoutInput) (*model.Order, error)
}

type CheckoutHandler struct {
	checkout Checkout
}

func NewCheckoutHandler(checkout Checkout) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout}
}

func (h *CheckoutHandler) Preview(c echo.Context) error {
	p, _ := middleware.PrincipalFromContext(c)
	view, err := h.checkout.Preview(c.Request().Context(), p)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *CheckoutHandler) PlaceOrder(c echo.Context) error {
	log := logger.FromContext(c)
	p, _ := middleware.PrincipalFromContext(c)

	var req service.CheckoutInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	order, err := h.checkout.Checkout(c.Request().Context(), p, req)
	if err != nil {
		log.Warn("Checkout rejected", zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, order)
}
