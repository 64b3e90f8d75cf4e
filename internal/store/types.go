package store

import "time"

// Order statuses. The normal lifecycle is PENDING -> PROCESSING -> SHIPPED
// -> DELIVERED; CANCELLED is reachable from any non-terminal status.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusShipped    = "SHIPPED"
	StatusDelivered  = "DELIVERED"
	StatusCancelled  = "CANCELLED"
)

// Order is the persisted order row. Customer fields are a snapshot taken at
// checkout time.
type Order struct {
	ID              string    `db:"id" json:"id"`
	UserID          string    `db:"user_id" json:"userId,omitempty"`
	CustomerName    string    `db:"customer_name" json:"customerName"`
	CustomerEmail   string    `db:"customer_email" json:"customerEmail"`
	ShippingAddress string    `db:"shipping_address" json:"shippingAddress"`
	Total           float64   `db:"total" json:"total"`
	Status          string    `db:"status" json:"status"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

// OrderItem is one line of an order. UnitPrice is snapshotted at order time
// and never recomputed. Items are owned by their order and are removed with
// it (cascade).
type OrderItem struct {
	ID          int64   `db:"id"`
	OrderID     string  `db:"order_id"`
	ProductID   int64   `db:"product_id"`
	VariationID *int64  `db:"variation_id"`
	Quantity    int     `db:"quantity"`
	UnitPrice   float64 `db:"unit_price"`
}

// StockDelta reports the stock change applied to one line item inside the
// order transaction, for the derived inventory events.
type StockDelta struct {
	ProductID     int64
	VariationID   *int64
	Quantity      int
	PreviousStock int
	NewStock      int
}

// StockMovement is the audit row the inventory consumer persists for each
// inventory.stock.updated event. EventID keys the row, which makes the
// insert idempotent under redelivery.
type StockMovement struct {
	EventID       string    `db:"event_id"`
	OrderID       string    `db:"order_id"`
	ProductID     int64     `db:"product_id"`
	VariationID   *int64    `db:"variation_id"`
	QuantityDelta int       `db:"quantity_delta"`
	NewStock      int       `db:"new_stock"`
	RecordedAt    time.Time `db:"recorded_at"`
}
