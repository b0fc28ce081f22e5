package game

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"crash/internal/wallet"
)

// EventLog is the durable archive collaborator. Append failures are
// reported, never retried, and never block the next round.
type EventLog interface {
	Append(ctx context.Context, record RoundRecord) error
}

const RECENT_CRASHES_KEPT = 50

// Engine runs the round lifecycle: BETTING_OPEN -> RUNNING -> CRASHED ->
// SETTLING, then the next round, indefinitely. One mutex serializes every
// mutation of phase, bets and balances; the periodic tick is the sole
// writer that moves RUNNING to CRASHED, so a cash-out racing the crash
// either completes entirely before the transition or is rejected.
type Engine struct {
	cfg         Config
	gen         *FairnessGenerator
	clock       Clock
	wallet      wallet.Ledger
	eventLog    EventLog
	broadcaster Broadcaster

	mu            sync.Mutex
	roundID       int64
	phase         Phase
	commitment    Commitment
	crashPoint    float64
	startTime     time.Time
	multiplier    float64
	ledger        *Ledger
	halted        bool
	seq           uint64
	recentCrashes []float64

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

func NewEngine(cfg Config, w wallet.Ledger, eventLog EventLog, broadcaster Broadcaster) *Engine {
	if broadcaster == nil {
		broadcaster = NopBroadcaster{}
	}
	return &Engine{
		cfg:         cfg,
		gen:         NewFairnessGenerator(cfg.HouseEdge),
		clock:       NewClock(cfg.ClockStep, cfg.ClockIncrement),
		wallet:      w,
		eventLog:    eventLog,
		broadcaster: broadcaster,
		phase:       PhaseSettling,
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
}

// SetEntropy swaps the fairness generator's entropy source. Must be called
// before Run; tests use it to drive rounds from known seeds.
func (e *Engine) SetEntropy(entropy io.Reader) {
	e.gen = NewFairnessGeneratorWithEntropy(e.cfg.HouseEdge, entropy)
}

// StartFromRound sets the last used round id, so ids keep growing across
// process restarts instead of colliding with archived rounds. Call before
// Run.
func (e *Engine) StartFromRound(lastRoundID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.roundID = lastRoundID
}

// Run drives rounds until Stop is called or a fairness check fails.
func (e *Engine) Run() {
	defer close(e.doneChan)

	for {
		select {
		case <-e.stopChan:
			log.Println("[ENGINE] Round loop stopped")
			return
		default:
		}

		if e.Halted() {
			log.Println("[ENGINE] Halted after fairness verification failure; refusing to open a new round")
			return
		}

		e.runRound()
	}
}

// Stop signals the engine to shut down. The in-flight round is settled
// immediately: every bet still in placed status is refunded at its stake.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
}

// Done is closed once the round loop has fully drained.
func (e *Engine) Done() <-chan struct{} {
	return e.doneChan
}

func (e *Engine) runRound() {
	commitment, err := e.gen.Commit()
	if err != nil {
		log.Printf("[ENGINE] Seed commitment failed: %v", err)
		e.pause(time.Second)
		return
	}

	e.mu.Lock()
	e.roundID++
	roundID := e.roundID
	e.phase = PhaseBettingOpen
	e.commitment = commitment
	e.crashPoint = e.gen.DeriveCrashPoint(commitment.Seed)
	e.multiplier = 1.00
	e.startTime = time.Time{}
	e.ledger = NewLedger(e.wallet)
	e.emit(EventRoundStarted, RoundStartedEvent{
		RoundID:       roundID,
		Hash:          commitment.Hash,
		BettingWindow: e.cfg.BettingWindow.Seconds(),
	})
	crashPoint := e.crashPoint
	e.mu.Unlock()

	log.Printf("[ENGINE] Round %d betting open, commitment %s...", roundID, commitment.Hash[:16])

	bettingTimer := time.NewTimer(e.cfg.BettingWindow)
	select {
	case <-bettingTimer.C:
	case <-e.stopChan:
		bettingTimer.Stop()
		e.abortRound()
		return
	}

	e.mu.Lock()
	e.phase = PhaseRunning
	e.startTime = time.Now()
	e.emit(EventRoundRunning, RoundRunningEvent{RoundID: roundID})
	e.mu.Unlock()

	log.Printf("[ENGINE] Round %d running", roundID)

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if e.tick(roundID) {
				log.Printf("[ENGINE] Round %d crashed at %.2fx", roundID, crashPoint)
				e.settle(roundID)
				e.pause(e.cfg.RoundPause)
				return
			}
		case <-e.stopChan:
			e.abortRound()
			return
		}
	}
}

// tick advances the multiplier and evaluates the crash condition. Returns
// true once the round has transitioned to CRASHED.
func (e *Engine) tick(roundID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	elapsed := time.Since(e.startTime)
	e.multiplier = e.clock.MultiplierAt(elapsed)

	if !e.clock.HasCrashed(elapsed, e.crashPoint) {
		e.emit(EventMultiplierTick, MultiplierTickEvent{
			RoundID:    roundID,
			Multiplier: e.multiplier,
			ElapsedMs:  elapsed.Milliseconds(),
		})
		return false
	}

	// Crash transition. The seed is revealed, self-checked against the
	// published commitment, and remaining bets settle as losses, all
	// inside the same critical section as the phase flip.
	e.phase = PhaseCrashed
	e.multiplier = e.crashPoint

	if !Verify(e.commitment.Seed, e.commitment.Hash) {
		e.halted = true
		log.Printf("[ENGINE] FATAL: round %d fairness verification failed, commitment %s does not match revealed seed", roundID, e.commitment.Hash)
	}

	lost := e.ledger.SettleLosses()
	log.Printf("[ENGINE] Round %d settled %d losing bets", roundID, lost)

	e.emit(EventRoundCrashed, RoundCrashedEvent{
		RoundID:    roundID,
		CrashPoint: e.crashPoint,
		Seed:       e.commitment.Seed,
		Hash:       e.commitment.Hash,
		Bets:       e.ledger.Bets(),
	})
	return true
}

// settle archives the finished round. Append failures are durability
// warnings, not round blockers.
func (e *Engine) settle(roundID int64) {
	e.mu.Lock()
	e.phase = PhaseSettling
	record := RoundRecord{
		RoundID:    roundID,
		Seed:       e.commitment.Seed,
		Hash:       e.commitment.Hash,
		CrashPoint: e.crashPoint,
		StartedAt:  e.startTime,
		CrashedAt:  time.Now(),
		Bets:       e.ledger.Bets(),
	}
	e.recentCrashes = append(e.recentCrashes, e.crashPoint)
	if len(e.recentCrashes) > RECENT_CRASHES_KEPT {
		e.recentCrashes = e.recentCrashes[1:]
	}
	e.mu.Unlock()

	if e.eventLog == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.eventLog.Append(ctx, record); err != nil {
		log.Printf("[ENGINE] WARNING: round %d archive append failed, record not durable: %v", roundID, err)
	}
}

// abortRound is the shutdown path: refund every placed stake, announce the
// abort, stop. A wager never disappears without a recorded outcome.
func (e *Engine) abortRound() {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	refunded := e.ledger.RefundPlaced(ctx)
	e.phase = PhaseSettling
	e.emit(EventRoundAborted, RoundAbortedEvent{RoundID: e.roundID, Refunded: refunded})

	log.Printf("[ENGINE] Round %d aborted on shutdown, %d stakes refunded", e.roundID, refunded)
}

func (e *Engine) pause(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-e.stopChan:
	}
}

// PlaceBet validates and records a bet for the current round. The stake is
// debited before the bet exists; on any rejection the balance is untouched.
func (e *Engine) PlaceBet(ctx context.Context, userID string, stake float64) (Bet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.halted {
		return Bet{}, ErrEngineHalted
	}
	if stake <= 0 || stake < e.cfg.MinBet || stake > e.cfg.MaxBet {
		return Bet{}, fmt.Errorf("%w: stake must be between %.2f and %.2f", ErrInvalidStake, e.cfg.MinBet, e.cfg.MaxBet)
	}
	if !e.acceptingBets() {
		return Bet{}, ErrRoundNotAcceptingBets
	}

	bet, err := e.ledger.Place(ctx, userID, stake)
	if err != nil {
		return Bet{}, err
	}

	e.emit(EventBetPlaced, BetPlacedEvent{
		RoundID: e.roundID,
		BetID:   bet.BetID,
		UserID:  userID,
		Stake:   stake,
	})

	log.Printf("[BET] Round %d: user %s staked %.2f (bet %s)", e.roundID, userID, stake, bet.BetID)
	return bet, nil
}

// acceptingBets holds the late-entry policy. Caller holds e.mu.
func (e *Engine) acceptingBets() bool {
	switch e.phase {
	case PhaseBettingOpen:
		return true
	case PhaseRunning:
		return e.cfg.AllowLateBets && time.Since(e.startTime) < e.cfg.LateBetWindow
	default:
		return false
	}
}

// CashOut settles the caller's bet at the present multiplier. Once the
// crash instant has passed the round is no longer running, even if the
// tick that records the transition has not fired yet.
func (e *Engine) CashOut(ctx context.Context, userID string) (Bet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseRunning {
		return Bet{}, ErrRoundNotRunning
	}

	elapsed := time.Since(e.startTime)
	if e.clock.HasCrashed(elapsed, e.crashPoint) {
		return Bet{}, ErrRoundNotRunning
	}

	multiplier := e.clock.MultiplierAt(elapsed)
	bet, err := e.ledger.CashOut(ctx, userID, multiplier)
	if err != nil {
		return Bet{}, err
	}

	e.emit(EventCashedOut, CashedOutEvent{
		RoundID:    e.roundID,
		BetID:      bet.BetID,
		UserID:     userID,
		Multiplier: multiplier,
		Payout:     bet.Payout,
	})

	log.Printf("[CASHOUT] Round %d: user %s cashed out at %.2fx for %.2f", e.roundID, userID, multiplier, bet.Payout)
	return bet, nil
}

// Snapshot reconstructs the current state for a subscriber joining
// mid-round: phase, elapsed time, multiplier and the live bet list.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	var elapsedMs int64
	if e.phase == PhaseRunning || e.phase == PhaseCrashed {
		elapsedMs = time.Since(e.startTime).Milliseconds()
	}

	snap := Snapshot{
		Seq:        e.seq,
		RoundID:    e.roundID,
		Phase:      e.phase,
		Hash:       e.commitment.Hash,
		ElapsedMs:  elapsedMs,
		Multiplier: e.multiplier,
		Halted:     e.halted,
	}
	if e.ledger != nil {
		snap.Bets = e.ledger.Bets()
	}
	return snap
}

func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *Engine) Halted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}

// RecentCrashPoints returns the crash points of recently settled rounds,
// oldest first.
func (e *Engine) RecentCrashPoints() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]float64, len(e.recentCrashes))
	copy(out, e.recentCrashes)
	return out
}

// emit assigns the next sequence number and hands the event to the
// broadcaster. Caller holds e.mu, so sequence order is production order.
func (e *Engine) emit(eventType string, data interface{}) {
	e.seq++
	e.broadcaster.Broadcast(Event{Seq: e.seq, Type: eventType, Data: data})
}
