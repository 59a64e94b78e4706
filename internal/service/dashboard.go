package service

import (
	"context"
	"storefront-service/internal/model"
	"storefront-service/prometheus"
	"time"

	"gorm.io/gorm"
)

// Dashboard is the admin landing summary
type Dashboard struct {
	TotalUsers    int64           `json:"total_users"`
	TotalOrders   int64           `json:"total_orders"`
	TotalProducts int64           `json:"total_products"`
	RecentOrders  []model.Order   `json:"recent_orders"`
	LowStock      []model.Product `json:"low_stock"`
}

type DashboardService struct {
	db      *gorm.DB
	catalog *CatalogService
	recent  int
}

func NewDashboardService(db *gorm.DB, catalog *CatalogService, recent int) *DashboardService {
	return &DashboardService{db: db, catalog: catalog, recent: recent}
}

func (s *DashboardService) Summary(ctx context.Context) (*Dashboard, error) {
	defer prometheus.TrackDBOperation("dashboard")(time.Now())
	db := s.db.WithContext(ctx)

	out := &Dashboard{RecentOrders: []model.Order{}}
	if err := db.Model(&model.User{}).Count(&out.TotalUsers).Error; err != nil {
		return nil, persistence("count users", err)
	}
	if err := db.Model(&model.Order{}).Count(&out.TotalOrders).Error; err != nil {
		return nil, persistence("count orders", err)
	}
	if err := db.Model(&model.Product{}).Count(&out.TotalProducts).Error; err != nil {
		return nil, persistence("count products", err)
	}
	if err := db.Order("created_at DESC, id DESC").Limit(s.recent).Find(&out.RecentOrders).Error; err != nil {
		return nil, persistence("recent orders", err)
	}

	low, err := s.catalog.LowStockProducts(ctx)
	if err != nil {
		return nil, err
	}
	out.LowStock = low
	return out, nil
}
