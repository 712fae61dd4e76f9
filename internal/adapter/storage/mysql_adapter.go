package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
)

// MySQL server error numbers.
const (
	errNoReferencedRow = 1452
	errCheckViolated   = 3819
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// CreateOrder inserts the order, decrements stock for every distinct
// (item, size) and inserts the line items in one transaction. Stock rows are
// updated in key order so concurrent multi-line orders lock them in the same
// sequence.
func (m *MySQLAdapter) CreateOrder(ctx context.Context, order *domain.Order) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Storage("begin tx", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.Total, domain.OrderStatusPending,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return domain.Storage("insert order", err)
	}

	// Decrement before inserting line items. The order_items foreign key
	// takes a shared lock on the inventory row; taking the exclusive lock
	// first, in key order, keeps concurrent orders from deadlocking on the
	// upgrade.
	for _, change := range domain.StockDemand(order.Items) {
		if err := decrementStock(ctx, tx, change); err != nil {
			return err
		}
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, item_id, size_id, quantity)
			VALUES (?, ?, ?, ?, ?)`,
			item.ID, order.ID, item.ItemID, item.SizeID, item.Quantity,
		)
		if isMySQLError(err, errNoReferencedRow) {
			return domain.StockNotFound(domain.InventoryKey{ItemID: item.ItemID, SizeID: item.SizeID})
		}
		if err != nil {
			return domain.Storage("insert order item", err)
		}
	}

	placedAt := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		domain.OrderStatusPlaced, placedAt, order.ID,
	)
	if err != nil {
		return domain.Storage("mark order placed", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Storage("commit", err)
	}

	order.Status = domain.OrderStatusPlaced
	order.UpdatedAt = placedAt
	return nil
}

// decrementStock subtracts change.Quantity only while enough stock remains.
// The guard lives in the UPDATE itself, so there is no read-then-write
// window between concurrent orders.
func decrementStock(ctx context.Context, tx *sql.Tx, change domain.StockChange) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE inventory
		SET quantity = quantity - ?, version = version + 1, updated_at = NOW(6)
		WHERE item_id = ? AND size_id = ? AND quantity >= ?`,
		change.Quantity, change.ItemID, change.SizeID, change.Quantity,
	)
	if isMySQLError(err, errCheckViolated) {
		return domain.InsufficientStock(change.InventoryKey, change.Quantity, 0)
	}
	if err != nil {
		return domain.Storage("update inventory", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return domain.Storage("update inventory", err)
	}
	if rows > 0 {
		return nil
	}

	var available int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity FROM inventory WHERE item_id = ? AND size_id = ?`,
		change.ItemID, change.SizeID,
	).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StockNotFound(change.InventoryKey)
	}
	if err != nil {
		return domain.Storage("query inventory", err)
	}

	return domain.InsufficientStock(change.InventoryKey, change.Quantity, available)
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order
	err := m.db.QueryRowContext(ctx, `
		SELECT id, user_id, total, status, created_at, updated_at
		FROM orders WHERE id = ?`, orderID,
	).Scan(&order.ID, &order.UserID, &order.Total, &order.Status, &order.CreatedAt, &order.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Storage("query order", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, order_id, item_id, size_id, quantity
		FROM order_items WHERE order_id = ?
		ORDER BY item_id, size_id, id`, orderID,
	)
	if err != nil {
		return nil, domain.Storage("query order items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderLineItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ItemID, &item.SizeID, &item.Quantity); err != nil {
			return nil, domain.Storage("scan order item", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Storage("query order items", err)
	}

	return &order, nil
}

func (m *MySQLAdapter) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, user_id, total, status, created_at, updated_at
		FROM orders WHERE user_id = ?
		ORDER BY created_at DESC, id`, userID,
	)
	if err != nil {
		return nil, domain.Storage("query orders", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Total, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, domain.Storage("scan order", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Storage("query orders", err)
	}

	return orders, nil
}

func (m *MySQLAdapter) GetInventory(ctx context.Context, key domain.InventoryKey) (*domain.InventoryRecord, error) {
	return getInventory(ctx, m.db, key)
}

// AddStock upserts the inventory row, adding quantity to any existing stock.
func (m *MySQLAdapter) AddStock(ctx context.Context, key domain.InventoryKey, quantity int) (*domain.InventoryRecord, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.Storage("begin tx", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory (item_id, size_id, quantity, version, updated_at)
		VALUES (?, ?, ?, 1, NOW(6))
		ON DUPLICATE KEY UPDATE
			quantity = quantity + VALUES(quantity),
			version = version + 1,
			updated_at = NOW(6)`,
		key.ItemID, key.SizeID, quantity,
	)
	if isMySQLError(err, errNoReferencedRow) {
		return nil, domain.StockNotFound(key)
	}
	if err != nil {
		return nil, domain.Storage("upsert inventory", err)
	}

	record, err := getInventory(ctx, tx, key)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.Storage("commit", err)
	}
	return record, nil
}

func (m *MySQLAdapter) ItemPrices(ctx context.Context, itemIDs []int64) (map[int64]decimal.Decimal, error) {
	prices := make(map[int64]decimal.Decimal, len(itemIDs))
	if len(itemIDs) == 0 {
		return prices, nil
	}

	args := make([]any, len(itemIDs))
	for i, id := range itemIDs {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(itemIDs)), ",")

	rows, err := m.db.QueryContext(ctx, `SELECT id, price FROM items WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, domain.Storage("query prices", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    int64
			price decimal.Decimal
		)
		if err := rows.Scan(&id, &price); err != nil {
			return nil, domain.Storage("scan price", err)
		}
		prices[id] = price
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Storage("query prices", err)
	}

	return prices, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getInventory(ctx context.Context, q queryer, key domain.InventoryKey) (*domain.InventoryRecord, error) {
	var inv domain.InventoryRecord
	err := q.QueryRowContext(ctx, `
		SELECT item_id, size_id, quantity, version, updated_at
		FROM inventory WHERE item_id = ? AND size_id = ?`,
		key.ItemID, key.SizeID,
	).Scan(&inv.ItemID, &inv.SizeID, &inv.Quantity, &inv.Version, &inv.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Storage("query inventory", err)
	}

	return &inv, nil
}

func isMySQLError(err error, number uint16) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == number
}
