package game

import "time"

// Phase is the round lifecycle state. Rounds loop through
// BETTING_OPEN -> RUNNING -> CRASHED -> SETTLING for the life of the process.
type Phase string

const (
	PhaseBettingOpen Phase = "BETTING_OPEN"
	PhaseRunning     Phase = "RUNNING"
	PhaseCrashed     Phase = "CRASHED"
	PhaseSettling    Phase = "SETTLING"
)

type BetStatus string

const (
	BetPlaced    BetStatus = "placed"
	BetCashedOut BetStatus = "cashed_out"
	BetLost      BetStatus = "lost"
	// BetRefunded only appears when a shutdown aborts an in-flight round;
	// the stake goes back in full.
	BetRefunded BetStatus = "refunded"
)

type Bet struct {
	BetID             string    `json:"bet_id"`
	UserID            string    `json:"user_id"`
	Stake             float64   `json:"stake"`
	PlacedAt          time.Time `json:"placed_at"`
	Status            BetStatus `json:"status"`
	CashOutMultiplier float64   `json:"cashout_multiplier,omitempty"`
	Payout            float64   `json:"payout,omitempty"`
}

// Snapshot reconstructs the engine state for a subscriber joining
// mid-round. Seq is the last event sequence the snapshot covers; live
// events at or below it are already reflected and can be discarded.
type Snapshot struct {
	Seq        uint64  `json:"seq"`
	RoundID    int64   `json:"round_id"`
	Phase      Phase   `json:"phase"`
	Hash       string  `json:"hash"`
	ElapsedMs  int64   `json:"elapsed_ms"`
	Multiplier float64 `json:"multiplier"`
	Bets       []Bet   `json:"bets"`
	Halted     bool    `json:"halted"`
}

// RoundRecord is the immutable archive entry appended to the event log once
// a round settles. Replaying seed, hash and the bet list reproduces the
// settlement exactly.
type RoundRecord struct {
	RoundID    int64     `json:"round_id"`
	Seed       string    `json:"seed"`
	Hash       string    `json:"hash"`
	CrashPoint float64   `json:"crash_point"`
	StartedAt  time.Time `json:"started_at"`
	CrashedAt  time.Time `json:"crashed_at"`
	Bets       []Bet     `json:"bets"`
}

type BetRequest struct {
	UserID string  `json:"user_id"`
	Stake  float64 `json:"stake"`
}

type BetResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message,omitempty"`
	Bet     *Bet    `json:"bet,omitempty"`
	RoundID int64   `json:"round_id,omitempty"`
	Balance float64 `json:"balance,omitempty"`
}

type CashOutRequest struct {
	UserID string `json:"user_id"`
}

type CashOutResponse struct {
	Success    bool    `json:"success"`
	Message    string  `json:"message,omitempty"`
	Bet        *Bet    `json:"bet,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty"`
	Payout     float64 `json:"payout,omitempty"`
	Balance    float64 `json:"balance,omitempty"`
}
