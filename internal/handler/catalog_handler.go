package handler

import (
	"context"
	"net/http"
	"storefront-service/internal/model"
	"storefront-service/internal/service"

	"github.com/labstack/echo/v4"
)

// Catalog is the read side of the catalog used by the storefront
type Catalog interface {
	ListProducts(ctx context.Context, f service.ProductFilter) (*service.ProductPage, error)
	GetProduct(ctx context.Context, id uint) (*service.ProductDetail, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	GetCategory(ctx context.Context, id uint) (*model.Category, error)
}

type CatalogHandler struct {
	catalog Catalog
}

func NewCatalogHandler(catalog Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListProducts handles ?category_id, ?search and ?page
func (h *CatalogHandler) ListProducts(c echo.Context) error {
	f := service.ProductFilter{
		Search: c.QueryParam("search"),
		Page:   queryInt(c, "page"),
	}
	if raw := c.QueryParam("category_id"); raw != "" {
		n := queryInt(c, "category_id")
		if n <= 0 {
			return badRequest(c, "invalid category_id")
		}
		f.CategoryID = uint(n)
	}

	page, err := h.catalog.ListProducts(c.Request().Context(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *CatalogHandler) GetProduct(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid product id")
	}
	detail, err := h.catalog.GetProduct(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *CatalogHandler) ListCategories(c echo.Context) error {
	categories, err := h.catalog.ListCategories(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, categories)
}

// CategoryProducts lists one category's products after checking the category exists
func (h *CatalogHandler) CategoryProducts(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid category id")
	}
	ctx := c.Request().Context()

	category, err := h.catalog.GetCategory(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	page, err := h.catalog.ListProducts(ctx, service.ProductFilter{CategoryID: id, Page: queryInt(c, "page")})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"category": category,
		"products": page.Products,
		"total":    page.Total,
		"page":     page.Page,
		"per_page": page.PerPage,
	})
}
