package model

import "github.com/shopspring/decimal"

// PaymentNotification is the payment provider's webhook payload. Delivery is
// at-least-once and unauthenticated: nothing in here is trusted beyond the
// identifier, which is re-resolved against the provider before crediting.
//
// Two shapes exist: a direct payment reference (topic/type "payment" with an
// id) and an order indirection (topic "merchant_order" with a resource URL
// that resolves to a list of payments).
type PaymentNotification struct {
	ID       string `json:"id"`
	Topic    string `json:"topic"`
	Type     string `json:"type"`
	Resource string `json:"resource"`
	Data     struct {
		ID string `json:"id"`
	} `json:"data"`
}

type CheckoutRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

// Checkout is the created payment-provider preference the user is redirected to.
type Checkout struct {
	Reference    string          `json:"reference"`
	PreferenceID string          `json:"preference_id"`
	InitPoint    string          `json:"init_point"`
	Amount       decimal.Decimal `json:"amount"`
}
