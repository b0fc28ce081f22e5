package game

import "errors"

// Rejections are synchronous and leave no state behind. None are retried
// internally.
var (
	ErrInvalidStake          = errors.New("invalid stake")
	ErrRoundNotAcceptingBets = errors.New("round is not accepting bets")
	ErrRoundNotRunning       = errors.New("round is not running")
	ErrNoActiveBet           = errors.New("no active bet for this round")
	ErrBetAlreadyPlaced      = errors.New("user already has an active bet this round")

	// ErrEngineHalted means a previous round failed its fairness
	// self-check. No new round opens until an operator intervenes.
	ErrEngineHalted = errors.New("engine halted: fairness verification failed")
)
