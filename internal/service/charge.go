package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"consultaplaca/internal/model"
	"consultaplaca/internal/repository"
)

// Charger coordinates one billable lookup: check balance, call the paid
// provider, debit, record usage. The balance pre-check avoids spending
// upstream quota on requests that cannot be billed; the conditional debit
// after the provider call is what actually guarantees the balance never
// goes negative.
type Charger struct {
	ledger LedgerStore
	lookup LookupProvider
	fee    decimal.Decimal
}

func NewCharger(ledger LedgerStore, lookup LookupProvider, fee decimal.Decimal) *Charger {
	return &Charger{
		ledger: ledger,
		lookup: lookup,
		fee:    fee,
	}
}

// Fee is the price of one full report.
func (c *Charger) Fee() decimal.Decimal {
	return c.fee
}

// Charge runs a lookup for the given tier. accountID 0 means anonymous and
// is only valid for the free tier.
func (c *Charger) Charge(ctx context.Context, accountID int64, plate string, tier model.LookupTier) (*model.LookupOutcome, error) {
	switch tier {
	case model.TierFree:
		return c.chargeFree(ctx, accountID, plate)
	case model.TierFull:
		return c.chargeFull(ctx, accountID, plate)
	default:
		return nil, fmt.Errorf("unknown lookup tier %q", tier)
	}
}

func (c *Charger) chargeFree(ctx context.Context, accountID int64, plate string) (*model.LookupOutcome, error) {
	data, err := c.lookup.Lookup(ctx, plate)
	if err != nil {
		return nil, err
	}

	// Zero-amount usage row for known accounts. Best effort: a history miss
	// must not fail a lookup that charged nothing.
	if accountID != 0 {
		if err := c.ledger.RecordFreeUsage(ctx, accountID, plate); err != nil {
			slog.Warn("failed to record free usage", "account_id", accountID, "plate", plate, "error", err)
		}
	}

	return &model.LookupOutcome{
		Plate:   plate,
		Data:    data,
		Charged: decimal.Zero,
	}, nil
}

func (c *Charger) chargeFull(ctx context.Context, accountID int64, plate string) (*model.LookupOutcome, error) {
	if accountID == 0 {
		return nil, repository.ErrAccountNotFound
	}

	// Pre-check only: the balance may change between here and the debit.
	// A request that clearly cannot be billed never reaches the provider.
	balance, err := c.ledger.GetBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(c.fee) {
		return nil, repository.ErrInsufficientFunds
	}

	data, err := c.lookup.Lookup(ctx, plate)
	if err != nil {
		// Transport or in-band failure: the user is not charged.
		return nil, err
	}

	// The provider result is already delivered; caller cancellation must not
	// strand the debit, so it commits outside the request's cancel scope.
	// A concurrent debit may have consumed the balance since the pre-check,
	// in which case this fails with ErrInsufficientFunds and no charge.
	newBalance, err := c.ledger.DebitForUsage(context.WithoutCancel(ctx), accountID, plate, c.fee)
	if err != nil {
		return nil, err
	}

	return &model.LookupOutcome{
		Plate:   plate,
		Data:    data,
		Charged: c.fee,
		Balance: &newBalance,
	}, nil
}
