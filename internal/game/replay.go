package game

import (
	"fmt"
	"math"
)

const replayEpsilon = 1e-9

// VerifyRecord replays an archived round from its stored seed, hash and bet
// list and checks that the recorded settlement is exactly what the fairness
// scheme implies. This is the audit path: any observer holding a published
// record can run it.
func VerifyRecord(record RoundRecord, houseEdge float64) error {
	if !Verify(record.Seed, record.Hash) {
		return fmt.Errorf("round %d: revealed seed does not match commitment hash", record.RoundID)
	}

	gen := NewFairnessGenerator(houseEdge)
	crashPoint := gen.DeriveCrashPoint(record.Seed)
	if crashPoint != record.CrashPoint {
		return fmt.Errorf("round %d: derived crash point %.2f does not match recorded %.2f",
			record.RoundID, crashPoint, record.CrashPoint)
	}

	for _, bet := range record.Bets {
		switch bet.Status {
		case BetCashedOut:
			if bet.CashOutMultiplier >= crashPoint {
				return fmt.Errorf("round %d bet %s: cashed out at %.2fx, at or past the crash point %.2fx",
					record.RoundID, bet.BetID, bet.CashOutMultiplier, crashPoint)
			}
			want := bet.Stake * bet.CashOutMultiplier
			if math.Abs(bet.Payout-want) > replayEpsilon {
				return fmt.Errorf("round %d bet %s: payout %.4f, expected %.4f",
					record.RoundID, bet.BetID, bet.Payout, want)
			}
		case BetLost:
			if bet.Payout != 0 {
				return fmt.Errorf("round %d bet %s: lost bet carries payout %.4f",
					record.RoundID, bet.BetID, bet.Payout)
			}
		case BetRefunded:
			if math.Abs(bet.Payout-bet.Stake) > replayEpsilon {
				return fmt.Errorf("round %d bet %s: refund %.4f does not match stake %.4f",
					record.RoundID, bet.BetID, bet.Payout, bet.Stake)
			}
		case BetPlaced:
			return fmt.Errorf("round %d bet %s: archived round holds an unsettled bet",
				record.RoundID, bet.BetID)
		}
	}
	return nil
}
