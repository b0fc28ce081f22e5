package game

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"crash/internal/wallet"
)

// Ledger is the in-memory bet registry for a single round. It owns the
// debit/credit interaction with the balance ledger: stakes are debited
// before a bet is recorded, so a bet never exists against uncovered funds.
//
// The ledger is not safe for concurrent use on its own; every call happens
// inside the engine's serialization boundary.
type Ledger struct {
	wallet  wallet.Ledger
	bets    map[string]*Bet
	order   []string
	settled bool
}

func NewLedger(w wallet.Ledger) *Ledger {
	return &Ledger{
		wallet: w,
		bets:   make(map[string]*Bet),
	}
}

// Place debits the stake and records a bet for the user. One active bet per
// user per round. On a failed debit nothing is recorded.
func (l *Ledger) Place(ctx context.Context, userID string, stake float64) (Bet, error) {
	if stake <= 0 {
		return Bet{}, ErrInvalidStake
	}
	if _, exists := l.bets[userID]; exists {
		return Bet{}, ErrBetAlreadyPlaced
	}

	if err := l.wallet.Debit(ctx, userID, stake); err != nil {
		return Bet{}, err
	}

	bet := &Bet{
		BetID:    uuid.NewString(),
		UserID:   userID,
		Stake:    stake,
		PlacedAt: time.Now(),
		Status:   BetPlaced,
	}
	l.bets[userID] = bet
	l.order = append(l.order, userID)

	return *bet, nil
}

// CashOut settles the user's placed bet at the given multiplier and credits
// the payout. Irrevocable; a bet cashes out at most once.
func (l *Ledger) CashOut(ctx context.Context, userID string, multiplier float64) (Bet, error) {
	bet, exists := l.bets[userID]
	if !exists || bet.Status != BetPlaced {
		return Bet{}, ErrNoActiveBet
	}

	payout := bet.Stake * multiplier
	if err := l.wallet.Credit(ctx, userID, payout); err != nil {
		return Bet{}, err
	}

	bet.Status = BetCashedOut
	bet.CashOutMultiplier = multiplier
	bet.Payout = payout

	return *bet, nil
}

// SettleLosses marks every remaining placed bet as lost with payout 0.
// Called exactly once, at the RUNNING -> CRASHED transition; the bets are
// immutable afterwards.
func (l *Ledger) SettleLosses() int {
	if l.settled {
		return 0
	}
	l.settled = true

	lost := 0
	for _, userID := range l.order {
		bet := l.bets[userID]
		if bet.Status == BetPlaced {
			bet.Status = BetLost
			bet.Payout = 0
			lost++
		}
	}
	return lost
}

// RefundPlaced returns every still-placed stake to its owner. Only the
// shutdown path calls this; a wager is never dropped without an outcome.
func (l *Ledger) RefundPlaced(ctx context.Context) int {
	refunded := 0
	for _, userID := range l.order {
		bet := l.bets[userID]
		if bet.Status != BetPlaced {
			continue
		}
		if err := l.wallet.Credit(ctx, userID, bet.Stake); err != nil {
			log.Printf("[LEDGER] Refund failed for user %s stake %.2f: %v", userID, bet.Stake, err)
			continue
		}
		bet.Status = BetRefunded
		bet.Payout = bet.Stake
		refunded++
	}
	return refunded
}

// Bets returns the bet list in placement order.
func (l *Ledger) Bets() []Bet {
	out := make([]Bet, 0, len(l.order))
	for _, userID := range l.order {
		out = append(out, *l.bets[userID])
	}
	return out
}

func (l *Ledger) Len() int {
	return len(l.bets)
}
