package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"

	"consultaplaca/internal/model"
	"consultaplaca/internal/provider"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidAmount      = errors.New("amount must be positive")
)

// LedgerStore is the durable ledger contract the coordinator and reconciler
// run against. Implementations must make DebitForUsage and CreditPayment
// atomic at the storage layer; no caller holds locks around them.
type LedgerStore interface {
	GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error)
	DebitForUsage(ctx context.Context, accountID int64, item string, amount decimal.Decimal) (decimal.Decimal, error)
	RecordFreeUsage(ctx context.Context, accountID int64, item string) error
	CreditPayment(ctx context.Context, accountID int64, providerPaymentID string, amount decimal.Decimal) (decimal.Decimal, error)
	HasProcessed(ctx context.Context, providerPaymentID string) (bool, error)
	ListHistory(ctx context.Context, accountID int64) ([]model.HistoryEntry, error)
}

type AccountStore interface {
	Create(ctx context.Context, email, passwordHash, apiToken string) (*model.Account, error)
	GetByID(ctx context.Context, id int64) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	GetByToken(ctx context.Context, apiToken string) (*model.Account, error)
}

// LookupProvider is the paid upstream: a black box returning the report or
// a failure, with transport and application failures kept distinct.
type LookupProvider interface {
	Lookup(ctx context.Context, placa string) (json.RawMessage, error)
}

// PaymentResolver resolves notifications against the payment provider's
// source of truth.
type PaymentResolver interface {
	ResolvePayment(ctx context.Context, id string) (*provider.Payment, error)
	ResolveOrder(ctx context.Context, id string) ([]provider.OrderPayment, error)
}

type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, spec provider.CheckoutSpec) (*provider.CheckoutResult, error)
}

// MessageBus decouples the webhook handler from notification processing.
type MessageBus interface {
	Publish(topic string, data []byte) error
}
