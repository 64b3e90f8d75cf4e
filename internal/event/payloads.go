package event

import (
	"encoding/json"
	"time"
)

// LineItem is a single ordered position. UnitPrice is the price at checkout
// time; it is snapshotted into the order and never recomputed.
type LineItem struct {
	ProductID   int64   `json:"productId"`
	VariationID *int64  `json:"variationId,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
}

// CheckoutCommand is the payload of command.checkout. It is produced once by
// the checkout API after payment success and consumed exactly once by the
// order transaction processor.
type CheckoutCommand struct {
	UserID          string     `json:"userId,omitempty"`
	CustomerName    string     `json:"customerName"`
	CustomerEmail   string     `json:"customerEmail"`
	ShippingAddress string     `json:"shippingAddress"`
	Items           []LineItem `json:"items"`
	Total           float64    `json:"total"`
	PaymentToken    string     `json:"paymentToken"`
}

// OrderCreated is the payload of order.created.
type OrderCreated struct {
	OrderID       string    `json:"orderId"`
	UserID        string    `json:"userId,omitempty"`
	CustomerEmail string    `json:"customerEmail"`
	Total         float64   `json:"total"`
	Status        string    `json:"status"`
	ItemCount     int       `json:"itemCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// EmailNotification is the payload of notification.email.
type EmailNotification struct {
	Recipient string  `json:"recipient"`
	Template  string  `json:"template"`
	OrderID   string  `json:"orderId"`
	Total     float64 `json:"total"`
}

// StockUpdated is the payload of inventory.stock.updated, emitted once per
// affected line item after the order transaction commits.
type StockUpdated struct {
	ProductID     int64  `json:"productId"`
	VariationID   *int64 `json:"variationId,omitempty"`
	OrderID       string `json:"orderId"`
	QuantityDelta int    `json:"quantityDelta"` // negative for a sale
	PreviousStock int    `json:"previousStock"`
	NewStock      int    `json:"newStock"`
}

// AuditRecord is the payload of analytics.audit.
type AuditRecord struct {
	Action  string          `json:"action"`
	OrderID string          `json:"orderId,omitempty"`
	Detail  json.RawMessage `json:"detail,omitempty"`
}

// DeadLetter is the payload of analytics.deadletter: a permanently failed
// event with its original payload intact for manual follow-up.
type DeadLetter struct {
	OriginalID      string          `json:"originalId"`
	OriginalType    string          `json:"originalType"`
	OriginalPayload json.RawMessage `json:"originalPayload"`
	Error           string          `json:"error"`
	Attempts        int             `json:"attempts"`
}
