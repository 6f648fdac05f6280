package migrations

import (
	"database/sql"
	"fmt"
	"time"
)

var orderTables = []string{
	`CREATE TABLE IF NOT EXISTS order_ids (
		id BIGINT AUTO_INCREMENT PRIMARY KEY
	);`,
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		status VARCHAR(20) NOT NULL,
		total_amount DECIMAL(12,2) NOT NULL,
		reservation_id VARCHAR(36) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		INDEX idx_orders_user (user_id)
	);`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		order_id BIGINT NOT NULL,
		product_id BIGINT NOT NULL,
		quantity INT NOT NULL,
		price DECIMAL(12,2) NOT NULL,
		FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
	);`,
}

var catalogTables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(32) NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS products (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		price DECIMAL(12,2) NOT NULL,
		status VARCHAR(16) NOT NULL,
		created_at DATETIME(6) NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS inventory (
		product_id BIGINT PRIMARY KEY,
		available INT NOT NULL,
		reserved INT NOT NULL DEFAULT 0,
		CHECK (available >= 0),
		CHECK (reserved >= 0)
	);`,
	`CREATE TABLE IF NOT EXISTS inventory_reservations (
		id VARCHAR(36) NOT NULL,
		product_id BIGINT NOT NULL,
		order_ref VARCHAR(64) NOT NULL,
		quantity INT NOT NULL,
		status VARCHAR(16) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		PRIMARY KEY (id, product_id)
	);`,
	`CREATE TABLE IF NOT EXISTS payment_intents (
		id VARCHAR(36) PRIMARY KEY,
		order_id BIGINT NOT NULL,
		amount DECIMAL(12,2) NOT NULL,
		payment_method VARCHAR(32) NOT NULL,
		status VARCHAR(20) NOT NULL,
		transaction_id VARCHAR(64) NOT NULL DEFAULT '',
		refund_id VARCHAR(64) NOT NULL DEFAULT '',
		failure_reason VARCHAR(255) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		active_order_id BIGINT NULL UNIQUE,
		INDEX idx_payment_intents_order (order_id)
	);`,
}

// AutoMigrateOrders creates the order tables on every shard.
func AutoMigrateOrders(retries int, dbs ...*sql.DB) error {
	for _, db := range dbs {
		for _, query := range orderTables {
			if err := execWithRetry(db, query, retries); err != nil {
				return err
			}
		}
	}
	return nil
}

// AutoMigrateCatalog creates users, products, inventory and payment tables
// on the primary database.
func AutoMigrateCatalog(retries int, db *sql.DB) error {
	for _, query := range catalogTables {
		if err := execWithRetry(db, query, retries); err != nil {
			return err
		}
	}
	return nil
}

func execWithRetry(db *sql.DB, query string, retries int) error {
	_, err := db.Exec(query)
	for i := 0; err != nil && i < retries; i++ {
		time.Sleep(1 * time.Second)
		_, err = db.Exec(query)
	}
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
