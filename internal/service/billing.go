package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"consultaplaca/internal/model"
	"consultaplaca/internal/provider"
)

// Billing creates checkouts and serves the balance/history read side.
type Billing struct {
	ledger          LedgerStore
	checkout        CheckoutCreator
	notificationURL string
}

func NewBilling(ledger LedgerStore, checkout CheckoutCreator, notificationURL string) *Billing {
	return &Billing{
		ledger:          ledger,
		checkout:        checkout,
		notificationURL: notificationURL,
	}
}

// CreateCheckout opens a provider checkout for a credit top-up. The account
// id travels in the checkout metadata so the reconciler can attribute the
// approved payment later; the actual credited amount is whatever the
// provider resolves at reconciliation time.
func (b *Billing) CreateCheckout(ctx context.Context, accountID int64, amount decimal.Decimal) (*model.Checkout, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	reference := uuid.NewString()
	result, err := b.checkout.CreateCheckout(ctx, provider.CheckoutSpec{
		AccountID:         accountID,
		Amount:            amount,
		Title:             "Créditos de consulta de placa",
		ExternalReference: reference,
		NotificationURL:   b.notificationURL,
	})
	if err != nil {
		return nil, err
	}

	return &model.Checkout{
		Reference:    reference,
		PreferenceID: result.PreferenceID,
		InitPoint:    result.InitPoint,
		Amount:       amount,
	}, nil
}

func (b *Billing) Balance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	return b.ledger.GetBalance(ctx, accountID)
}

func (b *Billing) History(ctx context.Context, accountID int64) ([]model.HistoryEntry, error) {
	return b.ledger.ListHistory(ctx, accountID)
}
