package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"
)

type Config struct {
	Environment string
	HTTPPort    string
	GRPCPort    string
	// Storage
	StorageDriver     string
	MySQLDSN          string
	MySQLMaxOpenConns int
	MySQLMaxIdleConns int
	AutoMigrate       bool

	// SeedItems are item prices registered at startup by the in-memory
	// store, parsed from SEED_ITEMS ("7:20.00,9:12.50").
	SeedItems map[int64]decimal.Decimal
	// Redis (cart and stock cache)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
	// Auth
	JWTSecret string
	JWTTTL    time.Duration
	// Orders
	OrderTimeout time.Duration
	VerifyTotal  bool
	// Stock cache sync
	StockCacheTTL time.Duration
	SyncWorkers   int
	SyncQueueSize int
}

func Load() *Config {
	// .env is optional, the environment wins
	_ = godotenv.Load()

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		GRPCPort:    getEnv("GRPC_PORT", "50051"),

		StorageDriver:     strings.ToLower(getEnv("STORAGE_DRIVER", StorageMySQL)),
		MySQLDSN:          getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/storefront?parseTime=true"),
		MySQLMaxOpenConns: getEnvAsInt("MYSQL_MAX_OPEN_CONNS", 50),
		MySQLMaxIdleConns: getEnvAsInt("MYSQL_MAX_IDLE_CONNS", 25),
		AutoMigrate:       getEnvAsBool("AUTO_MIGRATE", true),
		SeedItems:         getEnvAsItemPrices("SEED_ITEMS"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		RedisPoolSize: getEnvAsInt("REDIS_POOL_SIZE", 100),

		JWTSecret: getEnv("JWT_SECRET", "change-me-in-production-at-least-32-chars"),
		JWTTTL:    getEnvAsDuration("JWT_TTL", 24*time.Hour),

		OrderTimeout: getEnvAsDuration("ORDER_TIMEOUT", 5*time.Second),
		VerifyTotal:  getEnvAsBool("VERIFY_TOTAL", true),

		StockCacheTTL: getEnvAsDuration("STOCK_CACHE_TTL", time.Minute),
		SyncWorkers:   getEnvAsInt("SYNC_WORKERS", 4),
		SyncQueueSize: getEnvAsInt("SYNC_QUEUE_SIZE", 1024),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return result
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.ToLower(value) == "true" || value == "1"
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return result
}

// getEnvAsItemPrices parses "id:price" pairs separated by commas. Malformed
// pairs are skipped.
func getEnvAsItemPrices(key string) map[int64]decimal.Decimal {
	prices := make(map[int64]decimal.Decimal)
	for _, pair := range strings.Split(os.Getenv(key), ",") {
		idPart, pricePart, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		price, err := decimal.NewFromString(strings.TrimSpace(pricePart))
		if err != nil || price.IsNegative() {
			continue
		}
		prices[id] = price
	}
	return prices
}
