package storage

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id          BIGINT NOT NULL AUTO_INCREMENT,
		category_id BIGINT NULL,
		name        VARCHAR(255) NOT NULL,
		price       DECIMAL(10,2) NOT NULL,
		PRIMARY KEY (id)
	)`,
	`CREATE TABLE IF NOT EXISTS inventory (
		item_id    BIGINT NOT NULL,
		size_id    BIGINT NOT NULL,
		quantity   INT NOT NULL DEFAULT 0,
		version    INT NOT NULL DEFAULT 0,
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		PRIMARY KEY (item_id, size_id),
		CONSTRAINT inventory_quantity_non_negative CHECK (quantity >= 0),
		CONSTRAINT fk_inventory_item FOREIGN KEY (item_id) REFERENCES items (id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id         CHAR(36) NOT NULL,
		user_id    VARCHAR(64) NOT NULL,
		total      DECIMAL(10,2) NOT NULL,
		status     VARCHAR(16) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		PRIMARY KEY (id),
		KEY idx_orders_user_created (user_id, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id       CHAR(36) NOT NULL,
		order_id CHAR(36) NOT NULL,
		item_id  BIGINT NOT NULL,
		size_id  BIGINT NOT NULL,
		quantity INT NOT NULL,
		PRIMARY KEY (id),
		KEY idx_order_items_order (order_id),
		CONSTRAINT order_items_quantity_positive CHECK (quantity > 0),
		CONSTRAINT fk_order_items_order FOREIGN KEY (order_id) REFERENCES orders (id),
		CONSTRAINT fk_order_items_inventory FOREIGN KEY (item_id, size_id) REFERENCES inventory (item_id, size_id)
	)`,
}

// EnsureSchema creates the tables the adapter uses when they do not exist.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
