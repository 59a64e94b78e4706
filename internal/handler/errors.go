package handler

import (
	"errors"
	"net/http"
	"storefront-service/internal/service"
	"storefront-service/pkg/imagestore"
	"storefront-service/pkg/logger"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// respondError maps a service error to its HTTP status and a stable error code
func respondError(c echo.Context, err error) error {
	var stock *service.InsufficientStockError
	if errors.As(err, &stock) {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":      err.Error(),
			"code":       "insufficient_stock",
			"product_id": stock.ProductID,
			"available":  stock.Available,
		})
	}

	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, service.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrUnauthorized):
		status, code = http.StatusForbidden, "unauthorized"
	case errors.Is(err, service.ErrEmptyCart):
		status, code = http.StatusBadRequest, "empty_cart"
	case errors.Is(err, service.ErrInvalidQuantity):
		status, code = http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, service.ErrInvalidInput):
		status, code = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, imagestore.ErrUnsupportedType):
		status, code = http.StatusBadRequest, "invalid_image"
	case errors.Is(err, service.ErrInvalidStatus):
		status, code = http.StatusBadRequest, "invalid_status"
	case errors.Is(err, service.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, service.ErrCategoryInUse):
		status, code = http.StatusConflict, "category_in_use"
	case errors.Is(err, service.ErrProductInUse):
		status, code = http.StatusConflict, "product_in_use"
	case errors.Is(err, service.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrInvalidCredentials):
		status, code = http.StatusUnauthorized, "invalid_credentials"
	}

	if status == http.StatusInternalServerError {
		logger.FromContext(c).Error("Request failed", zap.Error(err))
		return c.JSON(status, echo.Map{"error": "internal server error", "code": code})
	}
	return c.JSON(status, echo.Map{"error": err.Error(), "code": code})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": "invalid_input"})
}

func paramID(c echo.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func queryInt(c echo.Context, name string) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return 0
	}
	return n
}
