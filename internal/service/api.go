package service

import (
	"context"

	"github.com/shopspring/decimal"

	"consultaplaca/internal/model"
)

// NotificationsSubject is the bus topic inbound payment notifications are
// queued on when NATS is configured.
const NotificationsSubject = "payments.notifications"

// Transport layers depend on these interfaces, not on the concrete services.

type AccountService interface {
	Register(ctx context.Context, email, password string) (*model.Account, error)
	Login(ctx context.Context, email, password string) (*model.Account, error)
	ByToken(ctx context.Context, apiToken string) (*model.Account, error)
}

type ChargeService interface {
	Charge(ctx context.Context, accountID int64, plate string, tier model.LookupTier) (*model.LookupOutcome, error)
	Fee() decimal.Decimal
}

type BillingService interface {
	CreateCheckout(ctx context.Context, accountID int64, amount decimal.Decimal) (*model.Checkout, error)
	Balance(ctx context.Context, accountID int64) (decimal.Decimal, error)
	History(ctx context.Context, accountID int64) ([]model.HistoryEntry, error)
}

type NotificationService interface {
	HandleNotification(ctx context.Context, n model.PaymentNotification) error
}
