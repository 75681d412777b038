package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a registered user of the lookup service. Balance is the
// prepaid credit in BRL and is only ever mutated through the conditional
// adjustment paths in the ledger repository.
type Account struct {
	ID           int64           `json:"id"`
	Email        string          `json:"email"`
	PasswordHash string          `json:"-"`
	APIToken     string          `json:"api_token,omitempty"`
	Balance      decimal.Decimal `json:"balance"`
	CreatedAt    time.Time       `json:"created_at"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
