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

// Cart is the cart surface used by the HTTP layer
type Cart interface {
	List(ctx context.Context, p model.Principal) (*service.CartView, error)
	Add(ctx context.Context, p model.Principal, productID uint, qty int) (*model.CartItem, error)
	Update(ctx context.Context, p model.Principal, itemID uint, qty int) (*service.CartTotals, error)
	Remove(ctx context.Context, p model.Principal, itemID uint) error
}

type CartHandler struct {
	cart Cart
}

func NewCartHandler(cart Cart) *CartHandler {
	return &CartHandler{cart: cart}
}

func (h *CartHandler) GetCart(c echo.Context) error {
	p, _ := middleware.PrincipalFromContext(c)
	view, err := h.cart.List(c.Request().Context(), p)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *CartHandler) AddItem(c echo.Context) error {
	log := logger.FromContext(c)
	p, _ := middleware.PrincipalFromContext(c)

	var req struct {
		ProductID uint `json:"product_id"`
		Quantity  *int `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil || req.ProductID == 0 {
		return badRequest(c, "product_id is required")
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	item, err := h.cart.Add(c.Request().Context(), p, req.ProductID, qty)
	if err != nil {
		log.Warn("Add to cart rejected", zap.Uint("product_id", req.ProductID), zap.Int("quantity", qty), zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *CartHandler) UpdateItem(c echo.Context) error {
	p, _ := middleware.PrincipalFromContext(c)
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid cart item id")
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	totals, err := h.cart.Update(c.Request().Context(), p, id, req.Quantity)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, totals)
}

func (h *CartHandler) RemoveItem(c echo.Context) error {
	p, _ := middleware.PrincipalFromContext(c)
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid cart item id")
	}

	err := h.cart.Remove(c.Request().Context(), p, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
