package game

// Event is one entry of the engine's ordered broadcast stream. Seq is
// assigned at the engine's serialization boundary, so equal-round events
// compare in production order.
type Event struct {
	Seq  uint64      `json:"seq"`
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

const (
	EventRoundStarted   = "round_started"
	EventRoundRunning   = "round_running"
	EventMultiplierTick = "multiplier_tick"
	EventBetPlaced      = "bet_placed"
	EventCashedOut      = "cashed_out"
	EventRoundCrashed   = "round_crashed"
	EventRoundAborted   = "round_aborted"
	EventSnapshot       = "snapshot"
)

type RoundStartedEvent struct {
	RoundID       int64   `json:"round_id"`
	Hash          string  `json:"hash"`
	BettingWindow float64 `json:"betting_window_seconds"`
}

type RoundRunningEvent struct {
	RoundID int64 `json:"round_id"`
}

type MultiplierTickEvent struct {
	RoundID    int64   `json:"round_id"`
	Multiplier float64 `json:"multiplier"`
	ElapsedMs  int64   `json:"elapsed_ms"`
}

type BetPlacedEvent struct {
	RoundID int64   `json:"round_id"`
	BetID   string  `json:"bet_id"`
	UserID  string  `json:"user_id"`
	Stake   float64 `json:"stake"`
}

type CashedOutEvent struct {
	RoundID    int64   `json:"round_id"`
	BetID      string  `json:"bet_id"`
	UserID     string  `json:"user_id"`
	Multiplier float64 `json:"multiplier"`
	Payout     float64 `json:"payout"`
}

type RoundCrashedEvent struct {
	RoundID    int64   `json:"round_id"`
	CrashPoint float64 `json:"crash_point"`
	Seed       string  `json:"seed"`
	Hash       string  `json:"hash"`
	Bets       []Bet   `json:"bets"`
}

type RoundAbortedEvent struct {
	RoundID  int64 `json:"round_id"`
	Refunded int   `json:"refunded"`
}

// Broadcaster receives the engine's event stream. Implementations must not
// block the caller; the engine emits while holding its round lock.
type Broadcaster interface {
	Broadcast(event Event)
}

// NopBroadcaster discards events. Used when the engine runs without any
// subscriber fan-out, e.g. in tests that only assert on state.
type NopBroadcaster struct{}

func (NopBroadcaster) Broadcast(Event) {}
