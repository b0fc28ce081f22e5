// Package wallet is the balance-ledger collaborator consumed by the round
// engine. Balances are opaque atomic counters keyed by user id; the engine
// only debits and credits through this interface.
package wallet

import (
	"context"
	"errors"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnavailable       = errors.New("balance ledger unavailable")
)

type Ledger interface {
	// Debit atomically removes amount from the user's balance. It fails
	// with ErrInsufficientFunds without changing the balance if the user
	// cannot cover it. amount must be positive.
	Debit(ctx context.Context, userID string, amount float64) error

	// Credit atomically adds amount to the user's balance.
	Credit(ctx context.Context, userID string, amount float64) error

	// Balance returns the user's current balance.
	Balance(ctx context.Context, userID string) (float64, error)
}
