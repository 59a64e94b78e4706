package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"storefront-service/internal/model"
	"storefront-service/internal/service"
	"storefront-service/pkg/logger"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CatalogAdmin is the write side of the catalog
type CatalogAdmin interface {
	ListAdminProducts(ctx context.Context, page int) (*service.ProductPage, error)
	CreateProduct(ctx context.Context, in service.ProductInput) (*model.Product, error)
	UpdateProduct(ctx context.Context, id uint, in service.ProductInput) (*model.Product, error)
	DeleteProduct(ctx context.Context, id uint) error
	ListCategories(ctx context.Context) ([]model.Category, error)
	CreateCategory(ctx context.Context, in service.CategoryInput) (*model.Category, error)
	UpdateCategory(ctx context.Context, id uint, in service.CategoryInput) (*model.Category, error)
	DeleteCategory(ctx context.Context, id uint) error
}

// OrderAdmin moves orders through their lifecycle
type OrderAdmin interface {
	ListAll(ctx context.Context, status string, page int) (*service.OrderPage, error)
	SetStatus(ctx context.Context, orderID uint, status string) (*model.Order, error)
}

type DashboardReader interface {
	Summary(ctx context.Context) (*service.Dashboard, error)
}

// ImageStore persists uploaded product images
type ImageStore interface {
	Save(originalName string, r io.Reader) (string, error)
	Remove(name string) error
}

type AdminHandler struct {
	catalog   CatalogAdmin
	orders    OrderAdmin
	dashboard DashboardReader
	images    ImageStore
	urlPrefix string
}

func NewAdminHandler(catalog CatalogAdmin, orders OrderAdmin, dashboard DashboardReader, images ImageStore, urlPrefix string) *AdminHandler {
	return &AdminHandler{
		catalog:   catalog,
		orders:    orders,
		dashboard: dashboard,
		images:    images,
		urlPrefix: urlPrefix,
	}
}

func (h *AdminHandler) Dashboard(c echo.Context) error {
	summary, err := h.dashboard.Summary(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *AdminHandler) ListProducts(c echo.Context) error {
	page, err := h.catalog.ListAdminProducts(c.Request().Context(), queryInt(c, "page"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *AdminHandler) CreateProduct(c echo.Context) error {
	log := logger.FromContext(c)

	in, err := h.bindProduct(c)
	if err != nil {
		return respondError(c, err)
	}

	product, err := h.catalog.CreateProduct(c.Request().Context(), in)
	if err != nil {
		h.discard(c, in.Image)
		return respondError(c, err)
	}

	log.Info("Product created", zap.Uint("product_id", product.ID), zap.String("name", product.Name))
	return c.JSON(http.StatusCreated, product)
}

func (h *AdminHandler) UpdateProduct(c echo.Context) error {
	log := logger.FromContext(c)
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid product id")
	}

	in, err := h.bindProduct(c)
	if err != nil {
		return respondError(c, err)
	}

	product, err := h.catalog.UpdateProduct(c.Request().Context(), id, in)
	if err != nil {
		h.discard(c, in.Image)
		return respondError(c, err)
	}

	log.Info("Product updated", zap.Uint("product_id", product.ID), zap.Int("stock", product.Stock))
	return c.JSON(http.StatusOK, product)
}

func (h *AdminHandler) DeleteProduct(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid product id")
	}
	if err := h.catalog.DeleteProduct(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	logger.FromContext(c).Info("Product deleted", zap.Uint("product_id", id))
	return c.NoContent(http.StatusNoContent)
}

// bindProduct accepts either a JSON body or a multipart form with an optional "image" file
func (h *AdminHandler) bindProduct(c echo.Context) (service.ProductInput, error) {
	var in service.ProductInput
	ctype := c.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(ctype, echo.MIMEMultipartForm) {
		if err := c.Bind(&in); err != nil {
			return in, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
		}
		return in, nil
	}

	var err error
	in.Name = c.FormValue("name")
	in.Description = c.FormValue("description")
	if in.Price, err = decimal.NewFromString(c.FormValue("price")); err != nil {
		return in, fmt.Errorf("%w: price is not a number", service.ErrInvalidInput)
	}
	if raw := strings.TrimSpace(c.FormValue("sale_price")); raw != "" {
		sale, err := decimal.NewFromString(raw)
		if err != nil {
			return in, fmt.Errorf("%w: sale_price is not a number", service.ErrInvalidInput)
		}
		in.SalePrice = decimal.NewNullDecimal(sale)
	}
	if in.Stock, err = strconv.Atoi(c.FormValue("stock")); err != nil {
		return in, fmt.Errorf("%w: stock is not a number", service.ErrInvalidInput)
	}
	category, err := strconv.ParseUint(c.FormValue("category_id"), 10, 64)
	if err != nil {
		return in, fmt.Errorf("%w: category_id is not a number", service.ErrInvalidInput)
	}
	in.CategoryID = uint(category)

	file, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil
	}
	if err != nil {
		return in, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
	}
	src, err := file.Open()
	if err != nil {
		return in, err
	}
	defer src.Close()

	name, err := h.images.Save(file.Filename, src)
	if err != nil {
		return in, err
	}
	in.Image = path.Join(h.urlPrefix, name)
	return in, nil
}

// discard drops an uploaded image that no product ended up referencing
func (h *AdminHandler) discard(c echo.Context, image string) {
	if image == "" {
		return
	}
	if err := h.images.Remove(image); err != nil {
		logger.FromContext(c).Warn("Failed to remove orphaned image", zap.String("image", image), zap.Error(err))
	}
}

func (h *AdminHandler) ListCategories(c echo.Context) error {
	categories, err := h.catalog.ListCategories(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, categories)
}

func (h *AdminHandler) CreateCategory(c echo.Context) error {
	var req service.CategoryInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	category, err := h.catalog.CreateCategory(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	logger.FromContext(c).Info("Category created", zap.Uint("category_id", category.ID), zap.String("name", category.Name))
	return c.JSON(http.StatusCreated, category)
}

func (h *AdminHandler) UpdateCategory(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid category id")
	}
	var req service.CategoryInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	category, err := h.catalog.UpdateCategory(c.Request().Context(), id, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, category)
}

func (h *AdminHandler) DeleteCategory(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid category id")
	}
	if err := h.catalog.DeleteCategory(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	logger.FromContext(c).Info("Category deleted", zap.Uint("category_id", id))
	return c.NoContent(http.StatusNoContent)
}

// ListOrders handles ?status and ?page
func (h *AdminHandler) ListOrders(c echo.Context) error {
	page, err := h.orders.ListAll(c.Request().Context(), c.QueryParam("status"), queryInt(c, "page"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *AdminHandler) SetOrderStatus(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	order, err := h.orders.SetStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		logger.FromContext(c).Warn("Order status change rejected",
			zap.Uint("order_id", id),
			zap.String("status", req.Status),
			zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}
