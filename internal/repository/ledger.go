package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"consultaplaca/internal/model"
)

// processedTTL bounds the advisory processed-payment keys in Redis. The
// authoritative record is the unique index on payment_records.
const processedTTL = 30 * 24 * time.Hour

// LedgerRepo owns account balances and the usage/payment audit trail.
// Postgres is the source of truth; Redis carries a write-through balance
// cache and the advisory processed-payment fast path.
type LedgerRepo struct {
	dbPool      *pgxpool.Pool
	redisClient *redis.Client
}

func NewLedgerRepo(db *pgxpool.Pool, rdb *redis.Client) *LedgerRepo {
	return &LedgerRepo{
		dbPool:      db,
		redisClient: rdb,
	}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the conditional
// adjustment can run standalone or inside a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// adjustBalance applies delta to the account's balance in a single
// conditional UPDATE. With enforceNonNegative the update only matches when
// the resulting balance stays >= 0, so two concurrent debits against a
// balance that covers only one of them resolve to exactly one success at
// the row level, across processes.
func adjustBalance(ctx context.Context, q querier, accountID int64, delta decimal.Decimal, enforceNonNegative bool) (decimal.Decimal, error) {
	var newBalance decimal.Decimal
	err := q.QueryRow(ctx, `
		UPDATE accounts
		SET balance = balance + $2
		WHERE id = $1 AND ($3::bool = false OR balance + $2 >= 0)
		RETURNING balance`,
		accountID, delta, enforceNonNegative,
	).Scan(&newBalance)

	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists); err != nil {
			return decimal.Zero, fmt.Errorf("checking account existence: %w", err)
		}
		if !exists {
			return decimal.Zero, ErrAccountNotFound
		}
		return decimal.Zero, ErrInsufficientFunds
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("adjusting balance: %w", err)
	}
	return newBalance, nil
}

// GetBalance reads the balance through the Redis cache, warming it from
// Postgres on a miss. The cached value is advisory: every mutation goes
// through the conditional UPDATE and rewrites the cache afterwards.
func (r *LedgerRepo) GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	key := balanceKey(accountID)

	cached, err := r.redisClient.Get(ctx, key).Result()
	if err == nil {
		if bal, perr := decimal.NewFromString(cached); perr == nil {
			return bal, nil
		}
	}

	var balance decimal.Decimal
	err = r.dbPool.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrAccountNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("reading balance: %w", err)
	}

	r.cacheBalance(ctx, accountID, balance)
	return balance, nil
}

// AdjustBalance is the generic conditional adjustment used outside the
// debit/credit transactions (administrative corrections).
func (r *LedgerRepo) AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal, enforceNonNegative bool) (decimal.Decimal, error) {
	newBalance, err := adjustBalance(ctx, r.dbPool, accountID, delta, enforceNonNegative)
	if err != nil {
		return decimal.Zero, err
	}
	r.cacheBalance(ctx, accountID, newBalance)
	return newBalance, nil
}

// DebitForUsage debits amount and appends the usage row in one transaction.
// Fails with ErrInsufficientFunds when the conditional update finds the
// balance no longer covers the amount.
func (r *LedgerRepo) DebitForUsage(ctx context.Context, accountID int64, item string, amount decimal.Decimal) (decimal.Decimal, error) {
	tx, err := r.dbPool.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("starting debit tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	newBalance, err := adjustBalance(ctx, tx, accountID, amount.Neg(), true)
	if err != nil {
		return decimal.Zero, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO usage_records (account_id, item, amount_charged)
		VALUES ($1, $2, $3)`,
		accountID, item, amount,
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("recording usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("committing debit: %w", err)
	}

	r.cacheBalance(ctx, accountID, newBalance)
	return newBalance, nil
}

// RecordFreeUsage appends a zero-amount usage row. No balance mutation.
func (r *LedgerRepo) RecordFreeUsage(ctx context.Context, accountID int64, item string) error {
	_, err := r.dbPool.Exec(ctx, `
		INSERT INTO usage_records (account_id, item, amount_charged)
		VALUES ($1, $2, 0)`,
		accountID, item,
	)
	if err != nil {
		return fmt.Errorf("recording free usage: %w", err)
	}
	return nil
}

// CreditPayment increments the balance and inserts the payment record as
// one transaction. The ON CONFLICT DO NOTHING on provider_payment_id is the
// authoritative dedup: when a concurrent duplicate already inserted the
// record, the insert affects zero rows and the rollback undoes the
// increment, so exactly one credit is ever durably observed per payment id.
func (r *LedgerRepo) CreditPayment(ctx context.Context, accountID int64, providerPaymentID string, amount decimal.Decimal) (decimal.Decimal, error) {
	tx, err := r.dbPool.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("starting credit tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	newBalance, err := adjustBalance(ctx, tx, accountID, amount, false)
	if err != nil {
		return decimal.Zero, err
	}

	ct, err := tx.Exec(ctx, `
		INSERT INTO payment_records (account_id, provider_payment_id, amount_credited)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider_payment_id) DO NOTHING`,
		accountID, providerPaymentID, amount,
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("recording payment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return decimal.Zero, ErrAlreadyProcessed
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("committing credit: %w", err)
	}

	r.cacheBalance(ctx, accountID, newBalance)
	r.markProcessed(ctx, providerPaymentID)
	return newBalance, nil
}

// HasProcessed is the advisory fast-path guard before the credit path.
// It may race; CreditPayment's unique constraint is what correctness
// ultimately rests on.
func (r *LedgerRepo) HasProcessed(ctx context.Context, providerPaymentID string) (bool, error) {
	n, err := r.redisClient.Exists(ctx, processedKey(providerPaymentID)).Result()
	if err == nil && n > 0 {
		return true, nil
	}

	var exists bool
	err = r.dbPool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM payment_records WHERE provider_payment_id = $1)`,
		providerPaymentID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking processed payment: %w", err)
	}
	if exists {
		r.markProcessed(ctx, providerPaymentID)
	}
	return exists, nil
}

// ListHistory returns the merged usage/payment audit trail for an account,
// most recent first. Debits carry negative amounts.
func (r *LedgerRepo) ListHistory(ctx context.Context, accountID int64) ([]model.HistoryEntry, error) {
	rows, err := r.dbPool.Query(ctx, `
		SELECT 'usage' AS kind, item, -amount_charged AS amount, created_at
		FROM usage_records
		WHERE account_id = $1
		UNION ALL
		SELECT 'payment', provider_payment_id, amount_credited, created_at
		FROM payment_records
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT 200`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		if err := rows.Scan(&e.Kind, &e.Item, &e.Amount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *LedgerRepo) cacheBalance(ctx context.Context, accountID int64, balance decimal.Decimal) {
	if err := r.redisClient.Set(ctx, balanceKey(accountID), balance.String(), 0).Err(); err != nil {
		slog.Warn("failed to cache balance", "account_id", accountID, "error", err)
	}
}

func (r *LedgerRepo) markProcessed(ctx context.Context, providerPaymentID string) {
	if err := r.redisClient.Set(ctx, processedKey(providerPaymentID), 1, processedTTL).Err(); err != nil {
		slog.Warn("failed to mark payment processed in cache", "payment_id", providerPaymentID, "error", err)
	}
}

func balanceKey(accountID int64) string {
	return fmt.Sprintf("balance:%d", accountID)
}

func processedKey(providerPaymentID string) string {
	return fmt.Sprintf("payment:processed:%s", providerPaymentID)
}
