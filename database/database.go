package database

import (
	"context"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"backoffice-sync/config"
)

var DB *sqlx.DB

// DSN builds the driver connection string for the remote store.
func DSN(cfg *config.Config) string {
	mc := mysql.NewConfig()
	mc.User = cfg.DBUser
	mc.Passwd = cfg.DBPassword
	mc.Net = "tcp"
	mc.Addr = cfg.DBHost + ":" + cfg.DBPort
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

func InitDB(cfg *config.Config) error {
	db, err := sqlx.Open("mysql", DSN(cfg))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	DB = db
	return nil
}

func CloseDB() {
	if DB != nil {
		_ = DB.Close()
	}
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id CHAR(36) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL DEFAULT '',
		phone VARCHAR(64) NOT NULL DEFAULT '',
		address TEXT NOT NULL,
		tour_name VARCHAR(255) NOT NULL DEFAULT '',
		sector VARCHAR(64) NOT NULL DEFAULT '',
		seat_number VARCHAR(32) NOT NULL DEFAULT '',
		city VARCHAR(128) NOT NULL DEFAULT '',
		state VARCHAR(64) NOT NULL DEFAULT '',
		departure_time VARCHAR(32) NOT NULL DEFAULT '',
		created_at DATETIME(3) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id CHAR(36) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		price DECIMAL(12,2) NOT NULL DEFAULT 0,
		stock INT NOT NULL DEFAULT 0,
		images JSON NULL,
		created_at DATETIME(3) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id CHAR(36) PRIMARY KEY,
		customer_id CHAR(36) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		total DECIMAL(12,2) NOT NULL DEFAULT 0,
		created_at DATETIME(3) NOT NULL,
		INDEX idx_orders_customer (customer_id),
		CONSTRAINT fk_orders_customer FOREIGN KEY (customer_id) REFERENCES customers(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		order_id CHAR(36) NOT NULL,
		product_id CHAR(36) NOT NULL,
		product_name VARCHAR(255) NOT NULL,
		price DECIMAL(12,2) NOT NULL,
		quantity INT NOT NULL,
		INDEX idx_order_items_order (order_id),
		CONSTRAINT fk_order_items_order FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS shipments (
		id CHAR(36) PRIMARY KEY,
		name VARCHAR(255) NOT NULL DEFAULT '',
		created_at DATETIME(3) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS shipment_customers (
		shipment_id CHAR(36) NOT NULL,
		customer_id CHAR(36) NOT NULL,
		PRIMARY KEY (shipment_id, customer_id),
		CONSTRAINT fk_sc_shipment FOREIGN KEY (shipment_id) REFERENCES shipments(id) ON DELETE CASCADE,
		CONSTRAINT fk_sc_customer FOREIGN KEY (customer_id) REFERENCES customers(id) ON DELETE CASCADE
	)`,
}

// Migrate creates the remote tables when they do not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
