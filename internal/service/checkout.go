package service

import (
	"context"
	"errors"
	"sort"
	"storefront-service/internal/model"
	"storefront-service/pkg/cache"
	"storefront-service/pkg/events"
	"storefront-service/prometheus"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CheckoutInput carries the delivery details captured with the order
type CheckoutInput struct {
	ShippingAddress string `json:"shipping_address"`
	Phone           string `json:"phone"`
	Note            string `json:"note"`
}

func (in *CheckoutInput) normalize() error {
	in.ShippingAddress = strings.TrimSpace(in.ShippingAddress)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Note = strings.TrimSpace(in.Note)
	switch {
	case in.ShippingAddress == "":
		return invalidInput("shipping_address is required")
	case len(in.ShippingAddress) > 500:
		return invalidInput("shipping_address is too long")
	case in.Phone == "":
		return invalidInput("phone is required")
	case len(in.Phone) > 20:
		return invalidInput("phone is too long")
	}
	return nil
}

// CheckoutService turns a cart into an order
type CheckoutService struct {
	db     *gorm.DB
	log    *zap.Logger
	events events.Publisher
	cache  cache.Store
	locks  *UserLocks
}

func NewCheckoutService(db *gorm.DB, log *zap.Logger, pub events.Publisher, store cache.Store, locks *UserLocks) *CheckoutService {
	return &CheckoutService{db: db, log: log, events: pub, cache: store, locks: locks}
}

// Preview returns what checkout would charge right now
func (s *CheckoutService) Preview(ctx context.Context, p model.Principal) (*CartView, error) {
	view, err := loadCart(s.db.WithContext(ctx), p.UserID)
	if err != nil {
		return nil, err
	}
	if len(view.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	return view, nil
}

// Checkout revalidates every cart line against current stock, records the order
// with frozen prices, decrements stock and clears the consumed lines in one transaction.
func (s *CheckoutService) Checkout(ctx context.Context, p model.Principal, in CheckoutInput) (*model.Order, error) {
	if err := in.normalize(); err != nil {
		prometheus.RecordCheckout("invalid")
		return nil, err
	}

	unlock := s.locks.lock(p.UserID)
	defer unlock()
	defer prometheus.TrackDBOperation("checkout")(time.Now())

	var (
		order     model.Order
		remaining = map[uint]int{}
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var items []model.CartItem
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", p.UserID).
			Order("id").
			Find(&items).Error
		if err != nil {
			return persistence("load cart", err)
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		// lock products in ascending id order so concurrent checkouts cannot deadlock
		ids := productIDs(items)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		var products []model.Product
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", ids).
			Order("id").
			Find(&products).Error
		if err != nil {
			return persistence("lock products", err)
		}
		byID := make(map[uint]model.Product, len(products))
		for _, pr := range products {
			byID[pr.ID] = pr
		}

		total := decimal.Zero
		for _, it := range items {
			product, ok := byID[it.ProductID]
			if !ok {
				return ErrNotFound
			}
			if it.Quantity > product.Stock {
				return &InsufficientStockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Requested:   it.Quantity,
					Available:   product.Stock,
				}
			}
			total = total.Add(lineSubtotal(product.Price, it.Quantity))
		}

		order = model.Order{
			UserID:          p.UserID,
			Status:          model.StatusPending,
			TotalAmount:     total,
			ShippingAddress: in.ShippingAddress,
			Phone:           in.Phone,
			Note:            in.Note,
		}
		if err := tx.Create(&order).Error; err != nil {
			return persistence("create order", err)
		}

		orderItems := make([]model.OrderItem, 0, len(items))
		cartIDs := make([]uint, 0, len(items))
		for _, it := range items {
			orderItems = append(orderItems, model.OrderItem{
				OrderID:   order.ID,
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				Price:     byID[it.ProductID].Price,
			})
			cartIDs = append(cartIDs, it.ID)
		}
		if err := tx.Create(&orderItems).Error; err != nil {
			return persistence("create order items", err)
		}

		for _, it := range items {
			res := tx.Model(&model.Product{}).
				Where("id = ? AND stock >= ?", it.ProductID, it.Quantity).
				Update("stock", gorm.Expr("stock - ?", it.Quantity))
			if res.Error != nil {
				return persistence("decrement stock", res.Error)
			}
			if res.RowsAffected != 1 {
				product := byID[it.ProductID]
				return &InsufficientStockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Requested:   it.Quantity,
					Available:   product.Stock,
				}
			}
			remaining[it.ProductID] = byID[it.ProductID].Stock - it.Quantity
		}

		if err := tx.Where("id IN ?", cartIDs).Delete(&model.CartItem{}).Error; err != nil {
			return persistence("clear cart", err)
		}

		order.Items = orderItems
		return nil
	})
	if err != nil {
		err = passthrough("checkout", err)
		prometheus.RecordCheckout(resultLabel(err))
		if errors.Is(err, ErrPersistence) {
			s.log.Error("Checkout failed", zap.Uint("user_id", p.UserID), zap.Error(err))
		}
		return nil, err
	}

	prometheus.RecordCheckout("placed")
	s.afterCheckout(ctx, &order, remaining)
	return &order, nil
}

// afterCheckout runs the side effects that must only happen once the order is durable
func (s *CheckoutService) afterCheckout(ctx context.Context, order *model.Order, remaining map[uint]int) {
	keys := make([]string, 0, len(remaining))
	for id, stock := range remaining {
		prometheus.UpdateProductInventory(id, stock)
		keys = append(keys, cache.ProductKey(id))
	}
	sort.Strings(keys)
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.log.Warn("Failed to invalidate product cache", zap.Uint("order_id", order.ID), zap.Error(err))
	}

	rows := make([]events.OrderPlacedRow, 0, len(order.Items))
	for _, it := range order.Items {
		rows = append(rows, events.OrderPlacedRow{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price.StringFixed(2),
		})
	}
	err := s.events.Publish(ctx, events.TopicOrderPlaced, strconv.FormatUint(uint64(order.ID), 10), events.OrderPlaced{
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount.StringFixed(2),
		Items:       rows,
		PlacedAt:    order.CreatedAt,
	})
	if err != nil {
		s.log.Warn("Failed to publish order placed event", zap.Uint("order_id", order.ID), zap.Error(err))
	}

	s.log.Info("Order placed",
		zap.Uint("order_id", order.ID),
		zap.Uint("user_id", order.UserID),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)),
		zap.Int("items", len(order.Items)))
}
