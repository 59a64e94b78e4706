package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Auth errors by type
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_auth_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"type"}, // "invalid_credentials", "invalid_token", "duplicate_user" ...
	)

	CartOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_operations_total",
			Help: "Total number of cart operations by result",
		},
		[]string{"operation", "result"},
	)

	CheckoutCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_checkouts_total",
			Help: "Total number of checkout attempts by result",
		},
		[]string{"result"}, // "placed", "empty_cart", "insufficient_stock", "error"
	)

	OrderTransitionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_order_transitions_total",
			Help: "Total number of applied order status transitions",
		},
		[]string{"from", "to"},
	)

	CatalogOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_catalog_operations_total",
			Help: "Total number of admin catalog operations",
		},
		[]string{"entity", "operation"},
	)
)

// Histogram metrics
var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Gauge metrics
var (
	ProductInventoryGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storefront_product_inventory",
			Help: "Current stock level for products",
		},
		[]string{"product_id"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestCounter)
	prometheus.MustRegister(AuthErrorCounter)
	prometheus.MustRegister(CartOperationCounter)
	prometheus.MustRegister(CheckoutCounter)
	prometheus.MustRegister(OrderTransitionCounter)
	prometheus.MustRegister(CatalogOperationCounter)

	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)

	prometheus.MustRegister(ProductInventoryGauge)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// TrackDBOperation measures database operation durations:
//
//	defer prometheus.TrackDBOperation("checkout")(time.Now())
func TrackDBOperation(operation string) func(time.Time) {
	return func(start time.Time) {
		DBOperationDuration.With(prometheus.Labels{"operation": operation}).
			Observe(time.Since(start).Seconds())
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			if he, ok := err.(*echo.HTTPError); ok {
				status = strconv.Itoa(he.Code)
			}
			endpoint := c.Path()
			method := c.Request().Method

			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}

// RecordAuthError records an authentication error by type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

func RecordCartOperation(operation, result string) {
	CartOperationCounter.With(prometheus.Labels{"operation": operation, "result": result}).Inc()
}

func RecordCheckout(result string) {
	CheckoutCounter.With(prometheus.Labels{"result": result}).Inc()
}

func RecordOrderTransition(from, to string) {
	OrderTransitionCounter.With(prometheus.Labels{"from": from, "to": to}).Inc()
}

func RecordCatalogOperation(entity, operation string) {
	CatalogOperationCounter.With(prometheus.Labels{"entity": entity, "operation": operation}).Inc()
}

// UpdateProductInventory sets the stock gauge for a product
func UpdateProductInventory(productID uint, stock int) {
	ProductInventoryGauge.With(prometheus.Labels{
		"product_id": strconv.FormatUint(uint64(productID), 10),
	}).Set(float64(stock))
}
