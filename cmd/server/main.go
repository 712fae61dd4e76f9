package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/storefront/internal/adapter/handler"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/auth"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/logger"
	"github.com/rl1809/storefront/internal/port"
)

// stores groups the port implementations selected by STORAGE_DRIVER.
type stores struct {
	orders    port.OrderRepository
	inventory port.InventoryRepository
	catalog   port.CatalogRepository
	carts     port.CartRepository
	cache     port.StockCache
	closers   []func() error
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Environment)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open storage", zap.String("driver", cfg.StorageDriver), zap.Error(err))
	}

	// Stock cache sync workers
	syncer := service.NewStockSyncer(st.inventory, st.cache, cfg.StockCacheTTL, cfg.SyncQueueSize, log)
	syncer.Start(cfg.SyncWorkers)

	// Services
	orderService := service.NewOrderService(st.orders, st.catalog, st.carts, syncer, log, service.OrderOptions{
		VerifyTotal: cfg.VerifyTotal,
		Timeout:     cfg.OrderTimeout,
	})
	inventoryService := service.NewInventoryService(st.inventory, st.cache, syncer, cfg.StockCacheTTL, log)
	cartService := service.NewCartService(st.carts)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL, log)

	// gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(orderService, jwtManager, log))

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatal("failed to listen", zap.String("port", cfg.GRPCPort), zap.Error(err))
	}

	go func() {
		log.Info("gRPC server listening", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server error", zap.Error(err))
		}
	}()

	// HTTP server
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), logger.RequestLogger(log))
	handler.NewHTTPHandler(orderService, inventoryService, cartService, jwtManager, log).Register(router)

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("port", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	// Pending cache refreshes are drained before the stores close.
	syncer.Close()
	log.Info("stock sync workers stopped")

	for _, closeFn := range st.closers {
		if err := closeFn(); err != nil {
			log.Warn("failed to close connection", zap.Error(err))
		}
	}
	log.Info("connections closed")
}

func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*stores, error) {
	if cfg.StorageDriver == config.StorageMemory {
		mem := storage.NewMemoryAdapter()
		for id, price := range cfg.SeedItems {
			mem.PutItem(id, price)
		}
		log.Warn("using in-memory storage, data is lost on exit", zap.Int("seed_items", len(cfg.SeedItems)))
		if len(cfg.SeedItems) == 0 {
			log.Warn("no SEED_ITEMS configured, stock cannot be added and orders will report unknown items")
		}
		return &stores{orders: mem, inventory: mem, catalog: mem, carts: mem, cache: mem}, nil
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MySQLMaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQLMaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("connected to MySQL")

	mysqlAdapter := storage.NewMySQLAdapter(db)
	if cfg.AutoMigrate {
		if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		log.Info("schema ensured")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		db.Close()
		rdb.Close()
		return nil, err
	}
	log.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))

	redisAdapter := storage.NewRedisAdapter(rdb)
	return &stores{
		orders:    mysqlAdapter,
		inventory: mysqlAdapter,
		catalog:   mysqlAdapter,
		carts:     redisAdapter,
		cache:     redisAdapter,
		closers:   []func() error{rdb.Close, db.Close},
	}, nil
}
