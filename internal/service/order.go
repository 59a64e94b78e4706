package service

import (
	"context"
	"errors"
	"storefront-service/internal/model"
	"storefront-service/pkg/cache"
	"storefront-service/pkg/events"
	"storefront-service/prometheus"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderPage is one page of the admin order list
type OrderPage struct {
	Orders  []model.Order `json:"orders"`
	Total   int64         `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
}

type OrderService struct {
	db      *gorm.DB
	log     *zap.Logger
	events  events.Publisher
	cache   cache.Store
	perPage int
}

func NewOrderService(db *gorm.DB, log *zap.Logger, pub events.Publisher, store cache.Store, perPage int) *OrderService {
	return &OrderService{db: db, log: log, events: pub, cache: store, perPage: perPage}
}

// ListForUser returns the caller's orders, newest first, with their items
func (s *OrderService) ListForUser(ctx context.Context, p model.Principal) ([]model.Order, error) {
	defer prometheus.TrackDBOperation("order_list")(time.Now())

	orders := []model.Order{}
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("user_id = ?", p.UserID).
		Order("created_at DESC, id DESC").
		Find(&orders).Error
	if err != nil {
		return nil, persistence("list orders", err)
	}
	return orders, nil
}

// Get returns one order when the caller owns it or is an admin
func (s *OrderService) Get(ctx context.Context, p model.Principal, orderID uint) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&order, orderID).Error
	if err != nil {
		return nil, lookup("load order", err)
	}
	if order.UserID != p.UserID && !p.IsAdmin {
		return nil, ErrUnauthorized
	}
	return &order, nil
}

// ListAll pages through every order, optionally filtered by status
func (s *OrderService) ListAll(ctx context.Context, status string, page int) (*OrderPage, error) {
	filter := func(db *gorm.DB) *gorm.DB { return db }
	if status != "" {
		st, ok := model.ParseOrderStatus(status)
		if !ok {
			return nil, ErrInvalidStatus
		}
		filter = func(db *gorm.DB) *gorm.DB { return db.Where("status = ?", st) }
	}
	page = normalizePage(page)

	db := s.db.WithContext(ctx)
	out := &OrderPage{Orders: []model.Order{}, Page: page, PerPage: s.perPage}
	if err := db.Model(&model.Order{}).Scopes(filter).Count(&out.Total).Error; err != nil {
		return nil, persistence("count orders", err)
	}
	err := db.Scopes(filter).
		Order("created_at DESC, id DESC").
		Limit(s.perPage).
		Offset((page - 1) * s.perPage).
		Find(&out.Orders).Error
	if err != nil {
		return nil, persistence("list orders", err)
	}
	return out, nil
}

// SetStatus moves an order along its lifecycle. Cancelling puts the ordered
// quantities back into stock in the same transaction.
func (s *OrderService) SetStatus(ctx context.Context, orderID uint, status string) (*model.Order, error) {
	next, ok := model.ParseOrderStatus(status)
	if !ok {
		return nil, ErrInvalidStatus
	}
	defer prometheus.TrackDBOperation("order_status")(time.Now())

	var (
		order     model.Order
		prev      model.OrderStatus
		restocked []model.OrderItem
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, orderID).Error; err != nil {
			return lookup("load order", err)
		}
		prev = order.Status
		if prev == next {
			return nil
		}
		if !prev.CanTransitionTo(next) {
			return &InvalidTransitionError{From: string(prev), To: string(next)}
		}

		if next == model.StatusCancelled {
			var items []model.OrderItem
			if err := tx.Where("order_id = ?", order.ID).Order("product_id").Find(&items).Error; err != nil {
				return persistence("load order items", err)
			}
			for _, it := range items {
				err := tx.Model(&model.Product{}).
					Where("id = ?", it.ProductID).
					Update("stock", gorm.Expr("stock + ?", it.Quantity)).Error
				if err != nil {
					return persistence("restock product", err)
				}
			}
			restocked = items
		}

		if err := tx.Model(&order).Update("status", next).Error; err != nil {
			return persistence("update order status", err)
		}
		order.Status = next
		return nil
	})
	if err != nil {
		err = passthrough("set order status", err)
		if errors.Is(err, ErrPersistence) {
			s.log.Error("Failed to update order status", zap.Uint("order_id", orderID), zap.Error(err))
		}
		return nil, err
	}
	if prev == next {
		return &order, nil
	}

	prometheus.RecordOrderTransition(string(prev), string(next))
	s.afterTransition(ctx, &order, prev, restocked)
	return &order, nil
}

func (s *OrderService) afterTransition(ctx context.Context, order *model.Order, prev model.OrderStatus, restocked []model.OrderItem) {
	if len(restocked) > 0 {
		keys := make([]string, 0, len(restocked))
		for _, it := range restocked {
			keys = append(keys, cache.ProductKey(it.ProductID))
		}
		if err := s.cache.Del(ctx, keys...); err != nil {
			s.log.Warn("Failed to invalidate product cache", zap.Uint("order_id", order.ID), zap.Error(err))
		}
	}

	err := s.events.Publish(ctx, events.TopicOrderStatusChanged, strconv.FormatUint(uint64(order.ID), 10), events.OrderStatusChanged{
		OrderID:   order.ID,
		From:      string(prev),
		To:        string(order.Status),
		Restocked: len(restocked) > 0,
		ChangedAt: order.UpdatedAt,
	})
	if err != nil {
		s.log.Warn("Failed to publish order status event", zap.Uint("order_id", order.ID), zap.Error(err))
	}

	s.log.Info("Order status updated",
		zap.Uint("order_id", order.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(order.Status)),
		zap.Int("restocked_lines", len(restocked)))
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
