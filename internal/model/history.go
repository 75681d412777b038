package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// UsageRecord is written once per successful billable lookup. Free lookups
// by authenticated users produce a zero-amount row. Immutable.
type UsageRecord struct {
	ID            int64           `json:"id"`
	AccountID     int64           `json:"account_id"`
	Item          string          `json:"item"`
	AmountCharged decimal.Decimal `json:"amount_charged"`
	CreatedAt     time.Time       `json:"created_at"`
}

// PaymentRecord is written once per approved provider payment. The unique
// constraint on ProviderPaymentID is what makes crediting idempotent.
type PaymentRecord struct {
	ID                int64           `json:"id"`
	AccountID         int64           `json:"account_id"`
	ProviderPaymentID string          `json:"provider_payment_id"`
	AmountCredited    decimal.Decimal `json:"amount_credited"`
	CreatedAt         time.Time       `json:"created_at"`
}

const (
	HistoryKindUsage   = "usage"
	HistoryKindPayment = "payment"
)

// HistoryEntry is one row of the merged per-account audit trail.
// Amount is negative for debits and positive for credits.
type HistoryEntry struct {
	Kind      string          `json:"kind"`
	Item      string          `json:"item"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}
