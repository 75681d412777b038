package repository

import "errors"

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAlreadyProcessed  = errors.New("payment already processed")
	ErrEmailTaken        = errors.New("email already registered")
)
