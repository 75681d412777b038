package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"consultaplaca/internal/model"
	"consultaplaca/internal/repository"
)

// Accounts handles registration and token authentication. Plumbing around
// the ledger; no balance logic lives here.
type Accounts struct {
	store AccountStore
}

func NewAccounts(store AccountStore) *Accounts {
	return &Accounts{store: store}
}

func (a *Accounts) Register(ctx context.Context, email, password string) (*model.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	email = strings.ToLower(strings.TrimSpace(email))
	return a.store.Create(ctx, email, string(hash), uuid.NewString())
}

func (a *Accounts) Login(ctx context.Context, email, password string) (*model.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	acc, err := a.store.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return acc, nil
}

func (a *Accounts) ByToken(ctx context.Context, apiToken string) (*model.Account, error) {
	return a.store.GetByToken(ctx, apiToken)
}
