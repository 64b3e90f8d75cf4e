package validation

import "testing"

func validRequest() CheckoutRequest {
	return CheckoutRequest{
		CustomerName:    "Ada Lovelace",
		CustomerEmail:   "ada@example.com",
		ShippingAddress: "1 Analytical Way",
		Items: []LineItem{
			{ProductID: 1, Quantity: 2, UnitPrice: 10},
			{ProductID: 2, Quantity: 1, UnitPrice: 25},
		},
		Total:        45,
		PaymentToken: "pay-tok",
	}
}

func TestCheckoutRequestValid(t *testing.T) {
	v := New()
	if err := v.Struct(validRequest()); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestCheckoutRequestTotalMismatch(t *testing.T) {
	v := New()
	req := validRequest()
	req.Total = 44.99
	if err := v.Struct(req); err == nil {
		t.Fatalf("expected total mismatch to fail validation")
	}
}

func TestCheckoutRequestMissingFields(t *testing.T) {
	v := New()
	cases := []struct {
		name   string
		mutate func(*CheckoutRequest)
	}{
		{"no items", func(r *CheckoutRequest) { r.Items = nil; r.Total = 0 }},
		{"no email", func(r *CheckoutRequest) { r.CustomerEmail = "" }},
		{"bad email", func(r *CheckoutRequest) { r.CustomerEmail = "not-an-email" }},
		{"no payment token", func(r *CheckoutRequest) { r.PaymentToken = "" }},
		{"zero quantity", func(r *CheckoutRequest) { r.Items[0].Quantity = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			if err := v.Struct(req); err == nil {
				t.Fatalf("expected validation failure")
			}
		})
	}
}

func TestCheckoutRequestRoundingTolerated(t *testing.T) {
	v := New()
	req := CheckoutRequest{
		CustomerName:    "Ada",
		CustomerEmail:   "ada@example.com",
		ShippingAddress: "addr",
		Items: []LineItem{
			{ProductID: 1, Quantity: 3, UnitPrice: 0.10},
		},
		Total:        0.30,
		PaymentToken: "tok",
	}
	// 3 * 0.10 is not exactly 0.30 in floats; cents comparison absorbs it
	if err := v.Struct(req); err != nil {
		t.Fatalf("cent-level comparison should tolerate float rounding: %v", err)
	}
}
