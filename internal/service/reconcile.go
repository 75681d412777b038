package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"consultaplaca/internal/model"
	"consultaplaca/internal/provider"
	"consultaplaca/internal/repository"
)

// Reconciler turns at-least-once payment notifications into exactly-once
// balance credits. Nothing in the notification body is trusted: the payment
// is always re-resolved from the provider by id, and the credit itself is
// deduplicated by the unique payment record insert.
//
// A nil return means the notification is dealt with (credited, duplicate,
// not yet approved, or unattributable) and must not be retried. A non-nil
// return marks a transient failure the provider's redelivery will retry.
type Reconciler struct {
	ledger   LedgerStore
	payments PaymentResolver
}

func NewReconciler(ledger LedgerStore, payments PaymentResolver) *Reconciler {
	return &Reconciler{
		ledger:   ledger,
		payments: payments,
	}
}

func (r *Reconciler) HandleNotification(ctx context.Context, n model.PaymentNotification) error {
	paymentID, err := r.paymentID(ctx, n)
	if err != nil {
		return err
	}
	if paymentID == "" {
		slog.Info("notification carries no payment reference, ignoring",
			"topic", n.Topic, "type", n.Type, "resource", n.Resource)
		return nil
	}

	// Advisory fast path; may race, the credit insert is authoritative.
	if processed, err := r.ledger.HasProcessed(ctx, paymentID); err == nil && processed {
		slog.Debug("payment already processed, ignoring", "payment_id", paymentID)
		return nil
	}

	payment, err := r.payments.ResolvePayment(ctx, paymentID)
	if err != nil {
		var rejected *provider.RejectedError
		if errors.As(err, &rejected) {
			slog.Warn("payment cannot be resolved, ignoring",
				"payment_id", paymentID, "reason", rejected.Reason)
			return nil
		}
		return fmt.Errorf("resolving payment %s: %w", paymentID, err)
	}

	if payment.Status != provider.PaymentStatusApproved {
		// A later redelivery for the same id credits once it is approved.
		slog.Info("payment not approved yet, ignoring",
			"payment_id", payment.ID, "status", payment.Status)
		return nil
	}
	if payment.AccountID == 0 {
		slog.Warn("approved payment has no account attribution, ignoring",
			"payment_id", payment.ID, "external_reference", payment.ExternalReference)
		return nil
	}
	if payment.TransactionAmount.Sign() <= 0 {
		slog.Warn("approved payment has non-positive amount, ignoring",
			"payment_id", payment.ID, "amount", payment.TransactionAmount)
		return nil
	}

	// Credit the provider-resolved amount, never the notification's.
	newBalance, err := r.ledger.CreditPayment(ctx, payment.AccountID, payment.ID, payment.TransactionAmount)
	if errors.Is(err, repository.ErrAlreadyProcessed) {
		slog.Info("duplicate payment notification, credit already applied", "payment_id", payment.ID)
		return nil
	}
	if errors.Is(err, repository.ErrAccountNotFound) {
		slog.Warn("approved payment references unknown account, ignoring",
			"payment_id", payment.ID, "account_id", payment.AccountID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("crediting payment %s: %w", payment.ID, err)
	}

	slog.Info("payment credited",
		"payment_id", payment.ID,
		"account_id", payment.AccountID,
		"amount", payment.TransactionAmount,
		"balance", newBalance,
	)
	return nil
}

// paymentID extracts the payment identifier from either notification shape:
// a direct payment reference, or a merchant-order indirection resolved to
// its first approved payment. Empty means there is nothing to reconcile.
func (r *Reconciler) paymentID(ctx context.Context, n model.PaymentNotification) (string, error) {
	topic := n.Topic
	if topic == "" {
		topic = n.Type
	}

	switch {
	case topic == "payment":
		if n.Data.ID != "" {
			return n.Data.ID, nil
		}
		if n.Resource != "" {
			return provider.ResourceID(n.Resource), nil
		}
		return n.ID, nil

	case topic == "merchant_order" || strings.Contains(n.Resource, "merchant_orders"):
		orderID := n.ID
		if orderID == "" {
			orderID = provider.ResourceID(n.Resource)
		}
		if orderID == "" {
			return "", nil
		}
		payments, err := r.payments.ResolveOrder(ctx, orderID)
		if err != nil {
			var rejected *provider.RejectedError
			if errors.As(err, &rejected) {
				slog.Warn("order cannot be resolved, ignoring", "order_id", orderID, "reason", rejected.Reason)
				return "", nil
			}
			return "", fmt.Errorf("resolving order %s: %w", orderID, err)
		}
		for _, p := range payments {
			if p.Status == provider.PaymentStatusApproved {
				return p.ID, nil
			}
		}
		return "", nil

	default:
		return "", nil
	}
}
