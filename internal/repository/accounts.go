package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"consultaplaca/internal/model"
)

// AccountRepo stores user identities. Balances live on the same rows but
// are mutated only through LedgerRepo's conditional adjustments.
type AccountRepo struct {
	dbPool *pgxpool.Pool
}

func NewAccountRepo(db *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{dbPool: db}
}

func (r *AccountRepo) Create(ctx context.Context, email, passwordHash, apiToken string) (*model.Account, error) {
	acc := &model.Account{
		Email:        email,
		PasswordHash: passwordHash,
		APIToken:     apiToken,
	}
	err := r.dbPool.QueryRow(ctx, `
		INSERT INTO accounts (email, password_hash, api_token)
		VALUES ($1, $2, $3)
		RETURNING id, balance, created_at`,
		email, passwordHash, apiToken,
	).Scan(&acc.ID, &acc.Balance, &acc.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}
	return acc, nil
}

func (r *AccountRepo) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	return r.getBy(ctx, `id = $1`, id)
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.getBy(ctx, `email = $1`, email)
}

func (r *AccountRepo) GetByToken(ctx context.Context, apiToken string) (*model.Account, error) {
	return r.getBy(ctx, `api_token = $1`, apiToken)
}

func (r *AccountRepo) getBy(ctx context.Context, where string, arg any) (*model.Account, error) {
	var acc model.Account
	err := r.dbPool.QueryRow(ctx, `
		SELECT id, email, password_hash, api_token, balance, created_at
		FROM accounts
		WHERE `+where,
		arg,
	).Scan(&acc.ID, &acc.Email, &acc.PasswordHash, &acc.APIToken, &acc.Balance, &acc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading account: %w", err)
	}
	return &acc, nil
}
