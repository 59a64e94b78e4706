package service

import (
	"context"
	"storefront-service/internal/model"
	"storefront-service/pkg/events"
	"storefront-service/prometheus"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CartLine is a cart item joined to its product at current price
type CartLine struct {
	Item     model.CartItem  `json:"item"`
	Product  model.Product   `json:"product"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// CartView is the full cart of one user
type CartView struct {
	Lines []CartLine      `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

// CartTotals is returned after a quantity change
type CartTotals struct {
	ItemID   uint            `json:"item_id"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Total    decimal.Decimal `json:"total"`
}

type CartService struct {
	db     *gorm.DB
	log    *zap.Logger
	events events.Publisher
	locks  *UserLocks
}

func NewCartService(db *gorm.DB, log *zap.Logger, pub events.Publisher, locks *UserLocks) *CartService {
	return &CartService{db: db, log: log, events: pub, locks: locks}
}

// Add puts qty units of a product in the caller's cart, merging with an existing line
func (s *CartService) Add(ctx context.Context, p model.Principal, productID uint, qty int) (*model.CartItem, error) {
	if qty < 1 {
		prometheus.RecordCartOperation("add", "invalid_quantity")
		return nil, ErrInvalidQuantity
	}

	unlock := s.locks.lock(p.UserID)
	defer unlock()
	defer prometheus.TrackDBOperation("cart_add")(time.Now())

	var item model.CartItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product model.Product
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&product, productID).Error; err != nil {
			return lookup("load product", err)
		}
		if qty > product.Stock {
			return &InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   qty,
				Available:   product.Stock,
			}
		}

		var existing []model.CartItem
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND product_id = ?", p.UserID, productID).
			Limit(1).
			Find(&existing).Error
		if err != nil {
			return persistence("load cart item", err)
		}

		if len(existing) == 1 {
			item = existing[0]
			item.Quantity += qty
			if err := tx.Model(&item).Update("quantity", item.Quantity).Error; err != nil {
				return persistence("update cart item", err)
			}
			return nil
		}

		item = model.CartItem{UserID: p.UserID, ProductID: productID, Quantity: qty}
		if err := tx.Create(&item).Error; err != nil {
			return persistence("create cart item", err)
		}
		return nil
	})
	if err != nil {
		err = passthrough("add to cart", err)
		prometheus.RecordCartOperation("add", resultLabel(err))
		return nil, err
	}

	prometheus.RecordCartOperation("add", "ok")
	s.publish(ctx, events.TopicCartItemAdded, p.UserID, events.CartItemChanged{
		UserID:    p.UserID,
		ProductID: productID,
		ItemID:    item.ID,
		Quantity:  item.Quantity,
	})
	return &item, nil
}

// Update overwrites the quantity of one of the caller's cart lines
func (s *CartService) Update(ctx context.Context, p model.Principal, itemID uint, qty int) (*CartTotals, error) {
	if qty < 1 {
		prometheus.RecordCartOperation("update", "invalid_quantity")
		return nil, ErrInvalidQuantity
	}

	unlock := s.locks.lock(p.UserID)
	defer unlock()
	defer prometheus.TrackDBOperation("cart_update")(time.Now())

	var totals CartTotals
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item model.CartItem
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&item, itemID).Error; err != nil {
			return lookup("load cart item", err)
		}
		if item.UserID != p.UserID {
			return ErrUnauthorized
		}

		var product model.Product
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).First(&product, item.ProductID).Error; err != nil {
			return lookup("load product", err)
		}
		if qty > product.Stock {
			return &InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   qty,
				Available:   product.Stock,
			}
		}

		if err := tx.Model(&item).Update("quantity", qty).Error; err != nil {
			return persistence("update cart item", err)
		}

		view, err := loadCart(tx, p.UserID)
		if err != nil {
			return err
		}
		totals = CartTotals{
			ItemID:   item.ID,
			Quantity: qty,
			Subtotal: lineSubtotal(product.Price, qty),
			Total:    view.Total,
		}
		return nil
	})
	if err != nil {
		err = passthrough("update cart item", err)
		prometheus.RecordCartOperation("update", resultLabel(err))
		return nil, err
	}

	prometheus.RecordCartOperation("update", "ok")
	return &totals, nil
}

// Remove deletes one of the caller's cart lines. Unknown or foreign ids are ignored.
func (s *CartService) Remove(ctx context.Context, p model.Principal, itemID uint) error {
	unlock := s.locks.lock(p.UserID)
	defer unlock()
	defer prometheus.TrackDBOperation("cart_remove")(time.Now())

	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", itemID, p.UserID).
		Delete(&model.CartItem{})
	if res.Error != nil {
		prometheus.RecordCartOperation("remove", "error")
		return persistence("delete cart item", res.Error)
	}

	prometheus.RecordCartOperation("remove", "ok")
	if res.RowsAffected > 0 {
		s.publish(ctx, events.TopicCartItemRemoved, p.UserID, events.CartItemChanged{
			UserID: p.UserID,
			ItemID: itemID,
		})
	}
	return nil
}

// List returns the caller's cart in insertion order priced at current prices
func (s *CartService) List(ctx context.Context, p model.Principal) (*CartView, error) {
	defer prometheus.TrackDBOperation("cart_list")(time.Now())
	return loadCart(s.db.WithContext(ctx), p.UserID)
}

func (s *CartService) publish(ctx context.Context, topic string, userID uint, event interface{}) {
	key := strconv.FormatUint(uint64(userID), 10)
	if err := s.events.Publish(ctx, topic, key, event); err != nil {
		s.log.Warn("Failed to publish cart event", zap.String("topic", topic), zap.Error(err))
	}
}

// loadCart reads the cart lines of a user and their products with explicit lookups
func loadCart(db *gorm.DB, userID uint) (*CartView, error) {
	var items []model.CartItem
	if err := db.Where("user_id = ?", userID).Order("id").Find(&items).Error; err != nil {
		return nil, persistence("load cart", err)
	}

	view := &CartView{Lines: []CartLine{}, Total: decimal.Zero}
	if len(items) == 0 {
		return view, nil
	}

	products, err := productsByID(db, productIDs(items))
	if err != nil {
		return nil, err
	}

	for _, it := range items {
		product, ok := products[it.ProductID]
		if !ok {
			continue
		}
		sub := lineSubtotal(product.Price, it.Quantity)
		view.Lines = append(view.Lines, CartLine{Item: it, Product: product, Subtotal: sub})
		view.Total = view.Total.Add(sub)
	}
	return view, nil
}

func productsByID(db *gorm.DB, ids []uint) (map[uint]model.Product, error) {
	var products []model.Product
	if err := db.Where("id IN ?", ids).Order("id").Find(&products).Error; err != nil {
		return nil, persistence("load products", err)
	}
	out := make(map[uint]model.Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func productIDs(items []model.CartItem) []uint {
	ids := make([]uint, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

func lineSubtotal(price decimal.Decimal, qty int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(qty)))
}
