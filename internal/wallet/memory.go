package wallet

import (
	"context"
	"sync"
)

// MemoryLedger is an in-process balance ledger for tests and local runs
// without Redis.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]float64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]float64)}
}

func (l *MemoryLedger) Debit(ctx context.Context, userID string, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[userID] < amount {
		return ErrInsufficientFunds
	}
	l.balances[userID] -= amount
	return nil
}

func (l *MemoryLedger) Credit(ctx context.Context, userID string, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[userID] += amount
	return nil
}

func (l *MemoryLedger) Balance(ctx context.Context, userID string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.balances[userID], nil
}

func (l *MemoryLedger) SetBalance(ctx context.Context, userID string, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[userID] = amount
	return nil
}
