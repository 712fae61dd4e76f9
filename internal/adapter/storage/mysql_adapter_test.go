package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
)

func setupMockDB(t *testing.T) (*MySQLAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewMySQLAdapter(db), mock
}

func newTestOrder(userID string, lines ...domain.OrderLineItem) *domain.Order {
	now := time.Now().UTC()
	order := &domain.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Total:     decimal.RequireFromString("40.00"),
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, l := range lines {
		l.ID = uuid.NewString()
		l.OrderID = order.ID
		order.Items = append(order.Items, l)
	}
	return order
}

func TestCreateOrder_CommitsAllSteps(t *testing.T) {
	adapter, mock := setupMockDB(t)

	order := newTestOrder("user-1",
		domain.OrderLineItem{ItemID: 9, SizeID: 1, Quantity: 1},
		domain.OrderLineItem{ItemID: 7, SizeID: 2, Quantity: 2},
		domain.OrderLineItem{ItemID: 9, SizeID: 1, Quantity: 3},
	)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO orders`)).
		WithArgs(order.ID, "user-1", sqlmock.AnyArg(), "pending", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// distinct keys, ascending, quantities merged, all before any line item
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE inventory`)).
		WithArgs(2, 7, 2, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE inventory`)).
		WithArgs(4, 9, 1, 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for _, item := range order.Items {
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO order_items`)).
			WithArgs(item.ID, order.ID, item.ItemID, item.SizeID, item.Quantity).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE orders SET status = ?`)).
		WithArgs("placed", sqlmock.AnyArg(), order.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := adapter.CreateOrder(context.Background(), order)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPlaced, order.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrder_InsufficientStockRollsBack(t *testing.T) {
	adapter, mock := setupMockDB(t)

	order := newTestOrder("user-1", domain.OrderLineItem{ItemID: 7, SizeID: 2, Quantity: 2})

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO orders`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE inventory`)).
		WithArgs(2, 7, 2, 2).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT quantity FROM inventory`)).
		WithArgs(7, 2).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(1))
	mock.ExpectRollback()

	err := adapter.CreateOrder(context.Background(), order)

	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	var derr *domain.Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, int64(7), derr.ItemID)
	assert.Equal(t, int64(2), derr.SizeID)
	assert.Equal(t, 2, derr.Requested)
	assert.Equal(t, 1, derr.Available)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrder_UnknownStockRow(t *testing.T) {
	adapter, mock := setupMockDB(t)

	order := newTestOrder("user-1", domain.OrderLineItem{ItemID: 7, SizeID: 99, Quantity: 1})

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO orders`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE inventory`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT quantity FROM inventory`)).
		WithArgs(7, 99).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}))
	mock.ExpectRollback()

	err := adapter.CreateOrder(context.Background(), order)

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrder_ForeignKeyViolationIsNotFound(t *testing.T) {
	adapter, mock := setupMockDB(t)

	order := newTestOrder("user-1", domain.OrderLineItem{ItemID: 404, SizeID: 1, Quantity: 1})

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO orders`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE inventory`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO order_items`)).
		WillReturnError(&mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"})
	mock.ExpectRollback()

	err := adapter.CreateOrder(context.Background(), order)

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrder_CommitFailureIsStorageError(t *testing.T) {
	adapter, mock := setupMockDB(t)

	order := newTestOrder("user-1", domain.OrderLineItem{ItemID: 7, SizeID: 2, Quantity: 1})

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO orders`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE inventory`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO order_items`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE orders SET status = ?`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("connection lost"))

	err := adapter.CreateOrder(context.Background(), order)

	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrder_InsertFailureRollsBack(t *testing.T) {
	adapter, mock := setupMockDB(t)

	order := newTestOrder("user-1", domain.OrderLineItem{ItemID: 7, SizeID: 2, Quantity: 1})

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO orders`)).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := adapter.CreateOrder(context.Background(), order)

	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrder_WithItems(t *testing.T) {
	adapter, mock := setupMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_id, total, status, created_at, updated_at`)).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "total", "status", "created_at", "updated_at"}).
			AddRow("order-1", "user-1", "25.50", "placed", now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM order_items WHERE order_id = ?`)).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "item_id", "size_id", "quantity"}).
			AddRow("line-1", "order-1", 7, 2, 1).
			AddRow("line-2", "order-1", 9, 1, 3))

	order, err := adapter.GetOrder(context.Background(), "order-1")
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.Equal(t, "user-1", order.UserID)
	assert.True(t, decimal.RequireFromString("25.50").Equal(order.Total))
	assert.Equal(t, domain.OrderStatusPlaced, order.Status)
	require.Len(t, order.Items, 2)
	assert.Equal(t, 3, order.Items[1].Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrder_NotFound(t *testing.T) {
	adapter, mock := setupMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM orders WHERE id = ?`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "total", "status", "created_at", "updated_at"}))

	order, err := adapter.GetOrder(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, order)
}

func TestItemPrices(t *testing.T) {
	adapter, mock := setupMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, price FROM items WHERE id IN (?,?)`)).
		WithArgs(7, 9).
		WillReturnRows(sqlmock.NewRows([]string{"id", "price"}).AddRow(7, "12.50"))

	prices, err := adapter.ItemPrices(context.Background(), []int64{7, 9})
	require.NoError(t, err)

	assert.Len(t, prices, 1)
	assert.True(t, decimal.RequireFromString("12.50").Equal(prices[7]))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddStock_Upserts(t *testing.T) {
	adapter, mock := setupMockDB(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO inventory`)).
		WithArgs(7, 2, 5).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM inventory WHERE item_id = ? AND size_id = ?`)).
		WithArgs(7, 2).
		WillReturnRows(sqlmock.NewRows([]string{"item_id", "size_id", "quantity", "version", "updated_at"}).
			AddRow(7, 2, 8, 4, now))
	mock.ExpectCommit()

	record, err := adapter.AddStock(context.Background(), domain.InventoryKey{ItemID: 7, SizeID: 2}, 5)
	require.NoError(t, err)

	assert.Equal(t, 8, record.Quantity)
	assert.Equal(t, 4, record.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Live MySQL tests below skip when MYSQL_DSN is unreachable.

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/storefront?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := NewMySQLAdapter(db).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return db
}

func seedStock(t *testing.T, db *sql.DB, itemID, sizeID int64, stock int) {
	t.Helper()
	ctx := context.Background()

	cleanupItem(db, itemID)
	_, err := db.ExecContext(ctx, `INSERT INTO items (id, name, price) VALUES (?, ?, 10.00)`, itemID, "test item")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `
		INSERT INTO inventory (item_id, size_id, quantity, version) VALUES (?, ?, ?, 0)`,
		itemID, sizeID, stock)
	require.NoError(t, err)

	t.Cleanup(func() { cleanupItem(db, itemID) })
}

func cleanupItem(db *sql.DB, itemID int64) {
	ctx := context.Background()
	db.ExecContext(ctx, `DELETE FROM order_items WHERE item_id = ?`, itemID)
	db.ExecContext(ctx, `
		DELETE FROM orders
		WHERE user_id = 'mysql-test-user' AND id NOT IN (SELECT order_id FROM order_items)`)
	db.ExecContext(ctx, `DELETE FROM inventory WHERE item_id = ?`, itemID)
	db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, itemID)
}

func stockOf(t *testing.T, db *sql.DB, itemID, sizeID int64) int {
	t.Helper()
	var qty int
	err := db.QueryRowContext(context.Background(),
		`SELECT quantity FROM inventory WHERE item_id = ? AND size_id = ?`, itemID, sizeID).Scan(&qty)
	require.NoError(t, err)
	return qty
}

func TestMySQL_PlaceTwiceUntilInsufficient(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	seedStock(t, db, 900007, 2, 3)

	first := newTestOrder("mysql-test-user", domain.OrderLineItem{ItemID: 900007, SizeID: 2, Quantity: 2})
	require.NoError(t, adapter.CreateOrder(ctx, first))
	assert.Equal(t, 1, stockOf(t, db, 900007, 2))

	second := newTestOrder("mysql-test-user", domain.OrderLineItem{ItemID: 900007, SizeID: 2, Quantity: 2})
	err := adapter.CreateOrder(ctx, second)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 1, stockOf(t, db, 900007, 2))

	// the rejected order left no rows behind
	stored, err := adapter.GetOrder(ctx, second.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	stored, err = adapter.GetOrder(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.OrderStatusPlaced, stored.Status)
	assert.Len(t, stored.Items, 1)
}

func TestMySQL_PartialFailureLeavesNoDecrement(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	seedStock(t, db, 900008, 1, 10)
	seedStock(t, db, 900009, 1, 1)

	order := newTestOrder("mysql-test-user",
		domain.OrderLineItem{ItemID: 900008, SizeID: 1, Quantity: 4},
		domain.OrderLineItem{ItemID: 900009, SizeID: 1, Quantity: 2},
	)
	err := adapter.CreateOrder(ctx, order)

	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 10, stockOf(t, db, 900008, 1))
	assert.Equal(t, 1, stockOf(t, db, 900009, 1))
}

func TestMySQL_ConcurrentOrdersNeverOversell(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	stock := 5
	requests := 20
	seedStock(t, db, 900010, 1, stock)

	var successCount, soldOutCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order := newTestOrder("mysql-test-user", domain.OrderLineItem{ItemID: 900010, SizeID: 1, Quantity: 1})
			err := adapter.CreateOrder(ctx, order)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(stock), successCount.Load())
	assert.Equal(t, int32(requests-stock), soldOutCount.Load())
	assert.Equal(t, 0, stockOf(t, db, 900010, 1))
}

func TestMySQL_ConcurrentMultiLineOrdersDoNotDeadlock(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	stock := 6
	requests := 16
	seedStock(t, db, 900011, 1, stock)
	seedStock(t, db, 900012, 1, stock)

	var successCount, soldOutCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(reversed bool) {
			defer wg.Done()
			lines := []domain.OrderLineItem{
				{ItemID: 900011, SizeID: 1, Quantity: 1},
				{ItemID: 900012, SizeID: 1, Quantity: 1},
			}
			if reversed {
				lines[0], lines[1] = lines[1], lines[0]
			}
			err := adapter.CreateOrder(ctx, newTestOrder("mysql-test-user", lines...))
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i%2 == 1)
	}

	wg.Wait()

	assert.Equal(t, int32(stock), successCount.Load())
	assert.Equal(t, int32(requests-stock), soldOutCount.Load())
	assert.Equal(t, 0, stockOf(t, db, 900011, 1))
	assert.Equal(t, 0, stockOf(t, db, 900012, 1))
}

func TestMySQL_CancelledContextWritesNothing(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	adapter := NewMySQLAdapter(db)
	seedStock(t, db, 900011, 1, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	order := newTestOrder("mysql-test-user", domain.OrderLineItem{ItemID: 900011, SizeID: 1, Quantity: 1})
	err := adapter.CreateOrder(ctx, order)

	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Equal(t, 3, stockOf(t, db, 900011, 1))
}
