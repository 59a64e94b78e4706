package service

import (
	"context"
	"encoding/json"
	"errors"
	"storefront-service/internal/model"
	"storefront-service/pkg/cache"
	"storefront-service/prometheus"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ImageRemover deletes stored product images that are no longer referenced
type ImageRemover interface {
	Remove(name string) error
}

// CatalogOptions sizes listings and the product detail cache
type CatalogOptions struct {
	PageSize          int
	AdminPageSize     int
	RelatedProducts   int
	LowStockThreshold int
	ProductTTL        time.Duration
}

// ProductFilter narrows the storefront listing
type ProductFilter struct {
	CategoryID uint
	Search     string
	Page       int
}

type ProductPage struct {
	Products []model.Product `json:"products"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PerPage  int             `json:"per_page"`
}

// ProductDetail is the product page payload
type ProductDetail struct {
	Product  model.Product   `json:"product"`
	Category model.Category  `json:"category"`
	Related  []model.Product `json:"related"`
}

// ProductInput is the admin form for creating or editing a product
type ProductInput struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Price       decimal.Decimal     `json:"price"`
	SalePrice   decimal.NullDecimal `json:"sale_price"`
	Stock       int                 `json:"stock"`
	CategoryID  uint                `json:"category_id"`
	Image       string              `json:"-"`
}

func (in *ProductInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.Name == "":
		return invalidInput("name is required")
	case len(in.Name) > 200:
		return invalidInput("name is too long")
	case in.Price.IsNegative():
		return invalidInput("price must not be negative")
	case in.SalePrice.Valid && in.SalePrice.Decimal.IsNegative():
		return invalidInput("sale_price must not be negative")
	case in.Stock < 0:
		return invalidInput("stock must not be negative")
	case in.CategoryID == 0:
		return invalidInput("category_id is required")
	}
	return nil
}

// CategoryInput is the admin form for a category
type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (in *CategoryInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return invalidInput("name is required")
	}
	if len(in.Name) > 100 {
		return invalidInput("name is too long")
	}
	return nil
}

type CatalogService struct {
	db     *gorm.DB
	log    *zap.Logger
	cache  cache.Store
	images ImageRemover
	opts   CatalogOptions
}

func NewCatalogService(db *gorm.DB, log *zap.Logger, store cache.Store, images ImageRemover, opts CatalogOptions) *CatalogService {
	return &CatalogService{db: db, log: log, cache: store, images: images, opts: opts}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListProducts filters by category and a case-insensitive name substring
func (s *CatalogService) ListProducts(ctx context.Context, f ProductFilter) (*ProductPage, error) {
	defer prometheus.TrackDBOperation("product_list")(time.Now())

	filter := func(db *gorm.DB) *gorm.DB {
		if f.CategoryID != 0 {
			db = db.Where("category_id = ?", f.CategoryID)
		}
		if q := strings.TrimSpace(f.Search); q != "" {
			db = db.Where("name ILIKE ?", "%"+likeEscaper.Replace(q)+"%")
		}
		return db
	}
	return s.pageProducts(ctx, filter, "id", normalizePage(f.Page), s.opts.PageSize)
}

// ListAdminProducts pages through all products, newest first
func (s *CatalogService) ListAdminProducts(ctx context.Context, page int) (*ProductPage, error) {
	all := func(db *gorm.DB) *gorm.DB { return db }
	return s.pageProducts(ctx, all, "created_at DESC, id DESC", normalizePage(page), s.opts.AdminPageSize)
}

func (s *CatalogService) pageProducts(ctx context.Context, filter func(*gorm.DB) *gorm.DB, order string, page, perPage int) (*ProductPage, error) {
	db := s.db.WithContext(ctx)
	out := &ProductPage{Products: []model.Product{}, Page: page, PerPage: perPage}
	if err := db.Model(&model.Product{}).Scopes(filter).Count(&out.Total).Error; err != nil {
		return nil, persistence("count products", err)
	}
	err := db.Scopes(filter).
		Order(order).
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&out.Products).Error
	if err != nil {
		return nil, persistence("list products", err)
	}
	return out, nil
}

// GetProduct returns a product with its category and a few related products.
// The payload is cached; stock shown here is informational only.
func (s *CatalogService) GetProduct(ctx context.Context, id uint) (*ProductDetail, error) {
	key := cache.ProductKey(id)
	if b, err := s.cache.Get(ctx, key); err == nil {
		var detail ProductDetail
		if err := json.Unmarshal(b, &detail); err == nil {
			return &detail, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		s.log.Warn("Product cache read failed", zap.String("key", key), zap.Error(err))
	}

	defer prometheus.TrackDBOperation("product_detail")(time.Now())
	db := s.db.WithContext(ctx)

	var detail ProductDetail
	if err := db.First(&detail.Product, id).Error; err != nil {
		return nil, lookup("load product", err)
	}
	if err := db.First(&detail.Category, detail.Product.CategoryID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, persistence("load category", err)
	}
	detail.Related = []model.Product{}
	err := db.Where("category_id = ? AND id <> ?", detail.Product.CategoryID, id).
		Order("id").
		Limit(s.opts.RelatedProducts).
		Find(&detail.Related).Error
	if err != nil {
		return nil, persistence("load related products", err)
	}

	if b, err := json.Marshal(detail); err == nil {
		if err := s.cache.Set(ctx, key, b, s.opts.ProductTTL); err != nil {
			s.log.Warn("Product cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return &detail, nil
}

// LowStockProducts lists products under the configured threshold, lowest first
func (s *CatalogService) LowStockProducts(ctx context.Context) ([]model.Product, error) {
	products := []model.Product{}
	err := s.db.WithContext(ctx).
		Where("stock < ?", s.opts.LowStockThreshold).
		Order("stock, id").
		Find(&products).Error
	if err != nil {
		return nil, persistence("list low stock products", err)
	}
	return products, nil
}

// CreateProduct adds a product to an existing category
func (s *CatalogService) CreateProduct(ctx context.Context, in ProductInput) (*model.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	defer prometheus.TrackDBOperation("product_create")(time.Now())

	product := model.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		SalePrice:   in.SalePrice,
		Stock:       in.Stock,
		CategoryID:  in.CategoryID,
		ImageURL:    in.Image,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockCategoryShared(tx, in.CategoryID); err != nil {
			return err
		}
		if err := tx.Create(&product).Error; err != nil {
			return persistence("create product", err)
		}
		return nil
	})
	if err != nil {
		return nil, passthrough("create product", err)
	}

	prometheus.RecordCatalogOperation("product", "create")
	prometheus.UpdateProductInventory(product.ID, product.Stock)
	return &product, nil
}

// UpdateProduct replaces the editable fields. A non-empty Image replaces the stored image.
func (s *CatalogService) UpdateProduct(ctx context.Context, id uint, in ProductInput) (*model.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	defer prometheus.TrackDBOperation("product_update")(time.Now())

	var (
		product  model.Product
		oldImage string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&product, id).Error; err != nil {
			return lookup("load product", err)
		}
		if in.CategoryID != product.CategoryID {
			if err := lockCategoryShared(tx, in.CategoryID); err != nil {
				return err
			}
		}

		product.Name = in.Name
		product.Description = in.Description
		product.Price = in.Price
		product.SalePrice = in.SalePrice
		product.Stock = in.Stock
		product.CategoryID = in.CategoryID
		if in.Image != "" && in.Image != product.ImageURL {
			oldImage = product.ImageURL
			product.ImageURL = in.Image
		}
		if err := tx.Save(&product).Error; err != nil {
			return persistence("update product", err)
		}
		return nil
	})
	if err != nil {
		return nil, passthrough("update product", err)
	}

	prometheus.RecordCatalogOperation("product", "update")
	prometheus.UpdateProductInventory(product.ID, product.Stock)
	s.invalidate(ctx, product.ID)
	s.removeImage(oldImage)
	return &product, nil
}

// DeleteProduct removes a product that no cart line or order line references
func (s *CatalogService) DeleteProduct(ctx context.Context, id uint) error {
	defer prometheus.TrackDBOperation("product_delete")(time.Now())

	var product model.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&product, id).Error; err != nil {
			return lookup("load product", err)
		}

		var inCarts, inOrders int64
		if err := tx.Model(&model.CartItem{}).Where("product_id = ?", id).Count(&inCarts).Error; err != nil {
			return persistence("count cart references", err)
		}
		if err := tx.Model(&model.OrderItem{}).Where("product_id = ?", id).Count(&inOrders).Error; err != nil {
			return persistence("count order references", err)
		}
		if inCarts > 0 || inOrders > 0 {
			s.log.Warn("Cannot delete product that is referenced",
				zap.Uint("product_id", id),
				zap.Int64("cart_items", inCarts),
				zap.Int64("order_items", inOrders))
			return ErrProductInUse
		}

		if err := tx.Delete(&product).Error; err != nil {
			return persistence("delete product", err)
		}
		return nil
	})
	if err != nil {
		return passthrough("delete product", err)
	}

	prometheus.RecordCatalogOperation("product", "delete")
	s.invalidate(ctx, id)
	s.removeImage(product.ImageURL)
	return nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]model.Category, error) {
	categories := []model.Category{}
	if err := s.db.WithContext(ctx).Order("name").Find(&categories).Error; err != nil {
		return nil, persistence("list categories", err)
	}
	return categories, nil
}

func (s *CatalogService) GetCategory(ctx context.Context, id uint) (*model.Category, error) {
	var category model.Category
	if err := s.db.WithContext(ctx).First(&category, id).Error; err != nil {
		return nil, lookup("load category", err)
	}
	return &category, nil
}

func (s *CatalogService) CreateCategory(ctx context.Context, in CategoryInput) (*model.Category, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&model.Category{}).Where("name = ?", in.Name).Count(&count).Error; err != nil {
		return nil, persistence("check category name", err)
	}
	if count > 0 {
		return nil, ErrConflict
	}

	category := model.Category{Name: in.Name, Description: in.Description}
	if err := db.Create(&category).Error; err != nil {
		return nil, persistence("create category", err)
	}
	prometheus.RecordCatalogOperation("category", "create")
	return &category, nil
}

func (s *CatalogService) UpdateCategory(ctx context.Context, id uint, in CategoryInput) (*model.Category, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var category model.Category
	if err := db.First(&category, id).Error; err != nil {
		return nil, lookup("load category", err)
	}
	if in.Name != category.Name {
		var count int64
		if err := db.Model(&model.Category{}).Where("name = ? AND id <> ?", in.Name, id).Count(&count).Error; err != nil {
			return nil, persistence("check category name", err)
		}
		if count > 0 {
			return nil, ErrConflict
		}
	}

	category.Name = in.Name
	category.Description = in.Description
	if err := db.Save(&category).Error; err != nil {
		return nil, persistence("update category", err)
	}
	prometheus.RecordCatalogOperation("category", "update")
	return &category, nil
}

// DeleteCategory refuses while any product belongs to the category. The category
// row lock pairs with the shared lock taken by product create and update.
func (s *CatalogService) DeleteCategory(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var category model.Category
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&category, id).Error; err != nil {
			return lookup("load category", err)
		}

		var count int64
		if err := tx.Model(&model.Product{}).Where("category_id = ?", id).Count(&count).Error; err != nil {
			return persistence("count category products", err)
		}
		if count > 0 {
			s.log.Warn("Cannot delete category that is being used by products",
				zap.Uint("category_id", id),
				zap.Int64("product_count", count))
			return ErrCategoryInUse
		}

		if err := tx.Delete(&category).Error; err != nil {
			return persistence("delete category", err)
		}
		return nil
	})
	if err != nil {
		return passthrough("delete category", err)
	}
	prometheus.RecordCatalogOperation("category", "delete")
	return nil
}

func lockCategoryShared(tx *gorm.DB, id uint) error {
	var category model.Category
	err := tx.Clauses(clause.Locking{Strength: "SHARE"}).First(&category, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return invalidInput("category does not exist")
	}
	if err != nil {
		return persistence("lock category", err)
	}
	return nil
}

func (s *CatalogService) invalidate(ctx context.Context, id uint) {
	if err := s.cache.Del(ctx, cache.ProductKey(id)); err != nil {
		s.log.Warn("Failed to invalidate product cache", zap.Uint("product_id", id), zap.Error(err))
	}
}

func (s *CatalogService) removeImage(name string) {
	if name == "" || s.images == nil {
		return
	}
	if err := s.images.Remove(name); err != nil {
		s.log.Warn("Failed to remove product image", zap.String("image", name), zap.Error(err))
	}
}
