package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/logger"
	"github.com/rl1809/storefront/internal/port"
)

const (
	itemID        = int64(424242)
	sizeID        = int64(1)
	initialStock  = 20
	totalRequests = 50
)

var itemPrice = decimal.RequireFromString("19.99")

type repository interface {
	port.OrderRepository
	port.InventoryRepository
	port.CatalogRepository
}

func main() {
	ctx := context.Background()
	cfg := config.Load()

	log, err := logger.New(cfg.Environment)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	repo, cleanup, err := setup(ctx, cfg)
	if err != nil {
		log.Fatal("failed to prepare storage", zap.String("driver", cfg.StorageDriver), zap.Error(err))
	}
	defer cleanup()

	orderService := service.NewOrderService(repo, repo, nil, nil, zap.NewNop(), service.OrderOptions{
		VerifyTotal: true,
		Timeout:     cfg.OrderTimeout,
	})

	var successCount, soldOutCount, errorCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(user int) {
			defer wg.Done()

			_, err := orderService.PlaceOrder(ctx, service.PlaceOrderRequest{
				UserID: fmt.Sprintf("stress-user-%d", user),
				Total:  itemPrice,
				Items:  []domain.LineRequest{{ItemID: itemID, SizeID: sizeID, Quantity: 1}},
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				errorCount.Add(1)
				log.Error("unexpected order failure", zap.Int("user", user), zap.Error(err))
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Storage Driver:   %s\n", cfg.StorageDriver)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Placed:           %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == initialStock && soldOut == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d orders placed, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d placed/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
	}

	record, err := repo.GetInventory(ctx, domain.InventoryKey{ItemID: itemID, SizeID: sizeID})
	if err != nil || record == nil {
		fmt.Printf("FAIL: Could not read final stock: %v\n", err)
		return
	}
	fmt.Printf("Final Stock:      %d\n", record.Quantity)

	if record.Quantity == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", record.Quantity)
	}
}

func setup(ctx context.Context, cfg *config.Config) (repository, func(), error) {
	if cfg.StorageDriver == config.StorageMemory {
		mem := storage.NewMemoryAdapter()
		mem.PutItem(itemID, itemPrice)
		if _, err := mem.AddStock(ctx, domain.InventoryKey{ItemID: itemID, SizeID: sizeID}, initialStock); err != nil {
			return nil, nil, err
		}
		return mem, func() {}, nil
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(cfg.MySQLMaxOpenConns)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	adapter := storage.NewMySQLAdapter(db)
	if err := adapter.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	// Reset the stress item to a known stock level
	if _, err := db.ExecContext(ctx,
		`INSERT INTO items (id, name, price) VALUES (?, 'stress item', ?)
		 ON DUPLICATE KEY UPDATE price = VALUES(price)`,
		itemID, itemPrice.StringFixed(2),
	); err != nil {
		db.Close()
		return nil, nil, err
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO inventory (item_id, size_id, quantity) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE quantity = VALUES(quantity), version = version + 1`,
		itemID, sizeID, initialStock,
	); err != nil {
		db.Close()
		return nil, nil, err
	}

	return adapter, func() { db.Close() }, nil
}
