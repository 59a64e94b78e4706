package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// GetDSN returns the PostgreSQL connection string
func (c *DBConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port      string
	Env       string
	BodyLimit string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SigningKey      string
	ExpirationHours int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// RedisConfig holds the product cache configuration. An empty Addr disables caching.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	ProductTTL time.Duration
}

// KafkaConfig holds the event publisher configuration. No brokers disables publishing.
type KafkaConfig struct {
	Brokers     []string
	ClientID    string
	TopicPrefix string
	Retries     int
	RetryDelay  time.Duration
}

// UploadConfig holds product image storage configuration
type UploadConfig struct {
	Dir       string
	URLPrefix string
}

// CatalogConfig holds storefront listing parameters
type CatalogConfig struct {
	PageSize          int
	AdminPageSize     int
	LowStockThreshold int
	RelatedProducts   int
	RecentOrders      int
}

// AdminConfig seeds the first administrator; an empty Username disables it
type AdminConfig struct {
	Username string
	Email    string
	Password string
}

// Config holds all configuration
type Config struct {
	DB      DBConfig
	Server  ServerConfig
	JWT     JWTConfig
	Log     LogConfig
	Redis   RedisConfig
	Kafka   KafkaConfig
	Upload  UploadConfig
	Catalog CatalogConfig
	Admin   AdminConfig
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: .env file not found, using environment variables\n")
	}

	config := &Config{
		DB: DBConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "password"),
			DBName:          getEnv("DB_NAME", "storefront"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnvAsLogLevel("DB_LOG_LEVEL", logger.Warn),
		},
		Server: ServerConfig{
			Port:      getEnv("SERVER_PORT", "8080"),
			Env:       getEnv("APP_ENV", "development"),
			BodyLimit: getEnv("SERVER_BODY_LIMIT", "16M"),
		},
		JWT: JWTConfig{
			SigningKey:      getEnv("JWT_SIGNING_KEY", "defaultsecretkey"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", ""),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvAsInt("REDIS_DB", 0),
			ProductTTL: getEnvAsDuration("REDIS_PRODUCT_TTL", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:     getEnvAsList("KAFKA_BROKERS"),
			ClientID:    getEnv("KAFKA_CLIENT_ID", "storefront-service"),
			TopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),
			Retries:     getEnvAsInt("KAFKA_CONNECT_RETRIES", 10),
			RetryDelay:  getEnvAsDuration("KAFKA_CONNECT_RETRY_DELAY", 5*time.Second),
		},
		Upload: UploadConfig{
			Dir:       getEnv("UPLOAD_DIR", "./uploads"),
			URLPrefix: getEnv("UPLOAD_URL_PREFIX", "/uploads"),
		},
		Catalog: CatalogConfig{
			PageSize:          getEnvAsInt("CATALOG_PAGE_SIZE", 12),
			AdminPageSize:     getEnvAsInt("CATALOG_ADMIN_PAGE_SIZE", 20),
			LowStockThreshold: getEnvAsInt("CATALOG_LOW_STOCK_THRESHOLD", 10),
			RelatedProducts:   getEnvAsInt("CATALOG_RELATED_PRODUCTS", 4),
			RecentOrders:      getEnvAsInt("DASHBOARD_RECENT_ORDERS", 5),
		},
		Admin: AdminConfig{
			Username: getEnv("ADMIN_USERNAME", ""),
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
	}

	if config.JWT.ExpirationHours <= 0 {
		return nil, fmt.Errorf("JWT_EXPIRATION_HOURS must be positive, got %d", config.JWT.ExpirationHours)
	}
	if config.Catalog.PageSize <= 0 || config.Catalog.AdminPageSize <= 0 {
		return nil, fmt.Errorf("catalog page sizes must be positive")
	}

	return config, nil
}

// LogConfig returns the configuration as a zap logger-friendly format
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("environment", c.Server.Env),
		zap.String("db_host", c.DB.Host),
		zap.String("db_port", c.DB.Port),
		zap.String("db_user", c.DB.User),
		zap.String("db_name", c.DB.DBName),
		zap.String("server_port", c.Server.Port),
		zap.Bool("cache_enabled", c.Redis.Addr != ""),
		zap.Strings("kafka_brokers", c.Kafka.Brokers),
		zap.String("upload_dir", c.Upload.Dir),
	}
}

// Helper function to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as integers
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as durations
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Comma separated, blanks dropped
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Helper function to get environment variables as log levels
func getEnvAsLogLevel(key string, defaultValue logger.LogLevel) logger.LogLevel {
	valueStr := getEnv(key, "")
	switch valueStr {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return defaultValue
	}
}
