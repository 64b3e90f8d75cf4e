package validation

// LineItem is a single position of a checkout request.
type LineItem struct {
	ProductID   int64   `json:"productId" validate:"required"`
	VariationID *int64  `json:"variationId,omitempty"`
	Quantity    int     `json:"quantity" validate:"required,min=1"`
	UnitPrice   float64 `json:"unitPrice" validate:"required,gt=0"` // price per unit at checkout time
}

// CheckoutRequest is the payload for POST /checkout. The caller has already
// validated availability and taken payment; this layer only guards shape
// and arithmetic before the command enters the pipeline.
type CheckoutRequest struct {
	UserID          string     `json:"userId,omitempty"`
	CustomerName    string     `json:"customerName" validate:"required"`
	CustomerEmail   string     `json:"customerEmail" validate:"required,email"`
	ShippingAddress string     `json:"shippingAddress" validate:"required"`
	Items           []LineItem `json:"items" validate:"required,min=1,dive"`
	Total           float64    `json:"total" validate:"required,gt=0"` // total the client claims
	PaymentToken    string     `json:"paymentToken" validate:"required"`
	CorrelationID   string     `json:"correlationId,omitempty"` // optional, propagated across the causal chain
}
