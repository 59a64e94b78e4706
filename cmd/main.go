package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"storefront-service/internal/handler"
	"storefront-service/internal/middleware"
	"storefront-service/internal/service"
	"storefront-service/pkg/cache"
	"storefront-service/pkg/config"
	"storefront-service/pkg/database"
	"storefront-service/pkg/events"
	"storefront-service/pkg/imagestore"
	"storefront-service/pkg/jwtutil"
	"storefront-service/pkg/logger"
	"storefront-service/prometheus"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	if err := logger.InitLogger(cfg); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer log.Sync()
	log.Info("Starting storefront service...", cfg.LogConfig()...)

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Failed to get database handle", zap.Error(err))
	}
	defer sqlDB.Close()
	log.Info("Database connection established")

	tokens := jwtutil.NewJWTUtil(cfg.JWT)

	var store cache.Store = cache.Nop{}
	if cfg.Redis.Addr != "" {
		redisStore, err := cache.Connect(context.Background(), cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer redisStore.Close()
		store = redisStore
		log.Info("Product cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := events.NewKafkaPublisher(cfg.Kafka, log)
		if err != nil {
			log.Fatal("Failed to connect to Kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.Error(err))
		}
		defer kafka.Close()
		publisher = kafka
		log.Info("Event publishing enabled", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	images, err := imagestore.New(cfg.Upload.Dir)
	if err != nil {
		log.Fatal("Failed to prepare upload directory", zap.Error(err))
	}

	locks := service.NewUserLocks()
	catalogSvc := service.NewCatalogService(db, log, store, images, service.CatalogOptions{
		PageSize:          cfg.Catalog.PageSize,
		AdminPageSize:     cfg.Catalog.AdminPageSize,
		RelatedProducts:   cfg.Catalog.RelatedProducts,
		LowStockThreshold: cfg.Catalog.LowStockThreshold,
		ProductTTL:        cfg.Redis.ProductTTL,
	})
	cartSvc := service.NewCartService(db, log, publisher, locks)
	checkoutSvc := service.NewCheckoutService(db, log, publisher, store, locks)
	orderSvc := service.NewOrderService(db, log, publisher, store, cfg.Catalog.AdminPageSize)
	authSvc := service.NewAuthService(db, log, tokens)
	dashboardSvc := service.NewDashboardService(db, catalogSvc, cfg.Catalog.RecentOrders)

	if cfg.Admin.Username != "" {
		if err := authSvc.EnsureAdmin(context.Background(), cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			log.Fatal("Failed to create admin account", zap.Error(err))
		}
	}

	authHandler := handler.NewAuthHandler(authSvc)
	catalogHandler := handler.NewCatalogHandler(catalogSvc)
	cartHandler := handler.NewCartHandler(cartSvc)
	checkoutHandler := handler.NewCheckoutHandler(checkoutSvc)
	orderHandler := handler.NewOrderHandler(orderSvc)
	adminHandler := handler.NewAdminHandler(catalogSvc, orderSvc, dashboardSvc, images, cfg.Upload.URLPrefix)
	healthHandler := handler.NewHealthHandler(sqlDB)

	e := echo.New()
	e.HideBanner = true

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.BodyLimit(cfg.Server.BodyLimit))
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware())
	e.Use(prometheus.MetricsMiddleware())

	e.GET("/health", healthHandler.HealthCheck)
	e.GET("/metrics", echo.WrapHandler(prometheus.GetPrometheusHandler()))
	e.Static(cfg.Upload.URLPrefix, cfg.Upload.Dir)

	auth := e.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)

	// Public catalog
	api := e.Group("/api")
	api.GET("/products", catalogHandler.ListProducts)
	api.GET("/products/:id", catalogHandler.GetProduct)
	api.GET("/categories", catalogHandler.ListCategories)
	api.GET("/categories/:id/products", catalogHandler.CategoryProducts)

	// Shopper routes
	user := api.Group("", middleware.AuthMiddleware(tokens))
	user.GET("/profile", authHandler.GetProfile)
	user.PATCH("/profile", authHandler.UpdateProfile)
	user.GET("/cart", cartHandler.GetCart)
	user.POST("/cart/items", cartHandler.AddItem)
	user.PATCH("/cart/items/:id", cartHandler.UpdateItem)
	user.DELETE("/cart/items/:id", cartHandler.RemoveItem)
	user.GET("/checkout", checkoutHandler.Preview)
	user.POST("/checkout", checkoutHandler.PlaceOrder)
	user.GET("/orders", orderHandler.ListOrders)
	user.GET("/orders/:id", orderHandler.GetOrder)

	admin := api.Group("/admin", middleware.AuthMiddleware(tokens), middleware.RequireAdmin)
	admin.GET("/dashboard", adminHandler.Dashboard)
	admin.GET("/products", adminHandler.ListProducts)
	admin.POST("/products", adminHandler.CreateProduct)
	admin.PUT("/products/:id", adminHandler.UpdateProduct)
	admin.DELETE("/products/:id", adminHandler.DeleteProduct)
	admin.GET("/categories", adminHandler.ListCategories)
	admin.POST("/categories", adminHandler.CreateCategory)
	admin.PUT("/categories/:id", adminHandler.UpdateCategory)
	admin.DELETE("/categories/:id", adminHandler.DeleteCategory)
	admin.GET("/orders", adminHandler.ListOrders)
	admin.GET("/orders/:id", orderHandler.GetOrder)
	admin.PATCH("/orders/:id/status", adminHandler.SetOrderStatus)

	go func() {
		log.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
}
