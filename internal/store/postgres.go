package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var (
	// ErrInsufficientStock means a decrement would have driven stock below
	// zero. Retrying the same delivery cannot create stock, so callers
	// treat this as permanent and dead-letter the event.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrStatusMismatch means a conditional status transition found the
	// order in a different state than expected.
	ErrStatusMismatch = errors.New("order status mismatch")
)

// DB wraps the Postgres connection pool. It is created once at process
// start and shared by all webhook invocations; the database's transaction
// isolation is the only cross-checkout mutual exclusion in the system.
type DB struct {
	SQL     *sqlx.DB
	nowFunc func() time.Time
}

// Config holds Postgres connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// New opens a pooled connection to Postgres.
func New(cfg Config) (*DB, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &DB{SQL: db, nowFunc: time.Now}, nil
}

// Init creates the schema if it does not exist yet.
func (d *DB) Init(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS products (
	id BIGINT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	stock INT NOT NULL DEFAULT 0 CHECK (stock >= 0)
);

CREATE TABLE IF NOT EXISTS product_variations (
	id BIGINT PRIMARY KEY,
	product_id BIGINT NOT NULL REFERENCES products(id),
	stock INT NOT NULL DEFAULT 0 CHECK (stock >= 0)
);

CREATE TABLE IF NOT EXISTS orders (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	customer_name TEXT NOT NULL,
	customer_email TEXT NOT NULL,
	shipping_address TEXT NOT NULL,
	total NUMERIC(12,2) NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS order_items (
	id BIGSERIAL PRIMARY KEY,
	order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	product_id BIGINT NOT NULL,
	variation_id BIGINT,
	quantity INT NOT NULL,
	unit_price NUMERIC(12,2) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);

CREATE TABLE IF NOT EXISTS stock_movements (
	event_id UUID PRIMARY KEY,
	order_id UUID NOT NULL,
	product_id BIGINT NOT NULL,
	variation_id BIGINT,
	quantity_delta INT NOT NULL,
	new_stock INT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);
`
	_, err := d.SQL.ExecContext(ctx, schema)
	return err
}

// CreateOrderTx creates the order, its line items, and the per-item stock
// decrements inside a single transaction. Any failure rolls back the whole
// transaction: no partial order, no partial stock mutation is ever
// observable. The committed timestamps are written back onto order, and the
// returned deltas describe each decrement for the derived inventory events.
//
// Each decrement is a single conditional UPDATE so concurrent checkouts for
// the same product serialize on the row lock and can never both pass zero.
func (d *DB) CreateOrderTx(ctx context.Context, order *Order, items []OrderItem) ([]StockDelta, error) {
	tx, err := d.SQL.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := d.nowFunc().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO orders (id, user_id, customer_name, customer_email, shipping_address, total, status, created_at, updated_at)
		VALUES (:id, :user_id, :customer_name, :customer_email, :shipping_address, :total, :status, :created_at, :updated_at)`,
		order)
	if err != nil {
		return nil, fmt.Errorf("insert order %s: %w", order.ID, err)
	}

	deltas := make([]StockDelta, 0, len(items))
	for _, item := range items {
		item.OrderID = order.ID
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, variation_id, quantity, unit_price)
			VALUES (:order_id, :product_id, :variation_id, :quantity, :unit_price)`,
			item)
		if err != nil {
			return nil, fmt.Errorf("insert order item for product %d: %w", item.ProductID, err)
		}

		var newStock int
		err = tx.GetContext(ctx, &newStock, `
			UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1
			RETURNING stock`,
			item.Quantity, item.ProductID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %d: %w", item.ProductID, ErrInsufficientStock)
		}
		if err != nil {
			return nil, fmt.Errorf("decrement stock for product %d: %w", item.ProductID, err)
		}

		if item.VariationID != nil {
			var varStock int
			err = tx.GetContext(ctx, &varStock, `
				UPDATE product_variations SET stock = stock - $1 WHERE id = $2 AND stock >= $1
				RETURNING stock`,
				item.Quantity, *item.VariationID)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("variation %d: %w", *item.VariationID, ErrInsufficientStock)
			}
			if err != nil {
				return nil, fmt.Errorf("decrement stock for variation %d: %w", *item.VariationID, err)
			}
		}

		deltas = append(deltas, StockDelta{
			ProductID:     item.ProductID,
			VariationID:   item.VariationID,
			Quantity:      item.Quantity,
			PreviousStock: newStock + item.Quantity,
			NewStock:      newStock,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit order %s: %w", order.ID, err)
	}
	return deltas, nil
}

// GetOrder fetches an order by id. Returns (nil, nil) when not found.
func (d *DB) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var o Order
	err := d.SQL.GetContext(ctx, &o, `SELECT * FROM orders WHERE id = $1`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return &o, nil
}

// UpdateOrderStatus transitions an order from expected to next. Returns
// ErrStatusMismatch when the order is not in the expected status, which is
// how redelivered order.created events are recognized as already handled.
func (d *DB) UpdateOrderStatus(ctx context.Context, orderID, expected, next string) error {
	res, err := d.SQL.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		next, d.nowFunc().UTC(), orderID, expected)
	if err != nil {
		return fmt.Errorf("update order %s status: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for order %s: %w", orderID, err)
	}
	if n == 0 {
		return ErrStatusMismatch
	}
	return nil
}

// GetStock reads the current stock level for a product.
func (d *DB) GetStock(ctx context.Context, productID int64) (int, error) {
	var stock int
	err := d.SQL.GetContext(ctx, &stock, `SELECT stock FROM products WHERE id = $1`, productID)
	if err != nil {
		return 0, fmt.Errorf("get stock for product %d: %w", productID, err)
	}
	return stock, nil
}

// RecordStockMovement inserts the audit row for a stock-updated event. The
// event id is the primary key, so redeliveries are no-ops; the returned
// bool reports whether this call actually inserted the row.
func (d *DB) RecordStockMovement(ctx context.Context, m StockMovement) (bool, error) {
	if m.RecordedAt.IsZero() {
		m.RecordedAt = d.nowFunc().UTC()
	}
	res, err := d.SQL.NamedExecContext(ctx, `
		INSERT INTO stock_movements (event_id, order_id, product_id, variation_id, quantity_delta, new_stock, recorded_at)
		VALUES (:event_id, :order_id, :product_id, :variation_id, :quantity_delta, :new_stock, :recorded_at)
		ON CONFLICT (event_id) DO NOTHING`,
		m)
	if err != nil {
		return false, fmt.Errorf("record stock movement %s: %w", m.EventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected for movement %s: %w", m.EventID, err)
	}
	return n > 0, nil
}

func (d *DB) Close() {
	d.SQL.Close()
}
