package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"consultaplaca/internal/model"
	"consultaplaca/internal/service"
)

// NotificationWorker consumes queued payment notifications and runs them
// through the reconciler. Reconciliation is idempotent, so at-least-once
// delivery from NATS is safe.
type NotificationWorker struct {
	reconciler service.NotificationService
	natsConn   *nats.Conn
}

func NewNotificationWorker(reconciler service.NotificationService, nc *nats.Conn) *NotificationWorker {
	return &NotificationWorker{
		reconciler: reconciler,
		natsConn:   nc,
	}
}

// Run subscribes to the notifications subject and blocks until ctx is
// cancelled. QueueSubscribe ensures each notification is handled by only
// one instance of the service.
func (w *NotificationWorker) Run(ctx context.Context) error {
	sub, err := w.natsConn.QueueSubscribe(service.NotificationsSubject, "reconciler_group", func(m *nats.Msg) {
		var n model.PaymentNotification
		if err := json.Unmarshal(m.Data, &n); err != nil {
			slog.Error("worker: failed to unmarshal payment notification", "error", err)
			return
		}

		// A failure here is logged and dropped; the payment provider's
		// webhook redelivery is the retry path, and duplicates are no-ops.
		if err := w.reconciler.HandleNotification(ctx, n); err != nil {
			slog.Error("worker: failed to reconcile payment notification",
				"topic", n.Topic,
				"id", n.ID,
				"error", err,
			)
			return
		}
	})

	if err != nil {
		return fmt.Errorf("worker: failed to subscribe to NATS: %w", err)
	}

	slog.Info("Payment notification worker is running")

	// Wait for shutdown signal.
	<-ctx.Done()

	slog.Info("Worker received shutdown signal, draining subscription...")
	// Close subscription gracefully, waiting for current processing to complete.
	return sub.Drain()
}

// Start implements the infrastructure.Server interface.
func (w *NotificationWorker) Start(ctx context.Context) error {
	return w.Run(ctx)
}

// Stop implements the infrastructure.Server interface (no-op, shutdown is via ctx).
func (w *NotificationWorker) Stop(ctx context.Context) error {
	return nil
}
