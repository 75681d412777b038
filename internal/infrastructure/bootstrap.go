package infrastructure

import (
	"context"

	"consultaplaca/internal/config"
	"consultaplaca/internal/provider"
	"consultaplaca/internal/repository"
	"consultaplaca/internal/service"
	transportHTTP "consultaplaca/internal/transport/http"
	transportNATS "consultaplaca/internal/transport/nats"
	"consultaplaca/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the application.
// Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	db, err := connectPostgres(cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	rdb, err := connectRedis(cfg.RedisAddr())
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	var cleanupFns []func()
	cleanupFns = append(cleanupFns, func() {
		db.Close()
		_ = rdb.Close()
	})

	// ── Stores and provider clients ────────────────────────────────────────────
	ledgerRepo := repository.NewLedgerRepo(db, rdb)
	accountRepo := repository.NewAccountRepo(db)

	fipe := provider.NewFipeClient(cfg.FipeBaseURL, cfg.FipeToken)
	payments := provider.NewPaymentClient(cfg.PaymentBaseURL, cfg.PaymentAccessToken)

	// ── Services ───────────────────────────────────────────────────────────────
	accounts := service.NewAccounts(accountRepo)
	charger := service.NewCharger(ledgerRepo, fipe, cfg.LookupFee)
	billing := service.NewBilling(ledgerRepo, payments, cfg.NotificationURL())
	reconciler := service.NewReconciler(ledgerRepo, payments)

	// ── Transports ─────────────────────────────────────────────────────────────
	// With NATS configured the webhook queues notifications and the worker
	// reconciles them; without it the webhook reconciles inline.
	var bus service.MessageBus
	var servers []Server

	if natsURL, natsErr := cfg.NatsAddr(); natsErr == nil {
		nc, err := connectNats(natsURL)
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		bus = transportNATS.NewBus(nc)
		cleanupFns = append(cleanupFns, nc.Close)

		servers = append(servers, worker.NewNotificationWorker(reconciler, nc))
	}

	handler := transportHTTP.NewHandler(accounts, charger, billing, reconciler, bus)
	servers = append(servers, transportHTTP.NewServer(cfg.ApiAddr(), handler))

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
