package engine

import (
	"signal-backtest/internal/types"
)

// stopManager holds the exit levels of one open trade.
type stopManager struct {
	stop      float64 // Stop-loss price, valid when hasStop
	target    float64 // Target price, valid when hasTarget
	hasStop   bool
	hasTarget bool
}

// newStopManager derives the exit levels from the entry fill.
//
// Levels are percentage offsets from entry:
//   - stop:   entry * (1 - sl/100)
//   - target: entry * (1 + tp/100)
//
// No tick rounding is applied; the levels are the exact fill prices used
// when a level is hit.
func newStopManager(entry float64, policy types.ExitPolicy) *stopManager {
	sm := &stopManager{}
	if policy.StopLossPct != nil {
		sm.stop = entry * (1.0 - *policy.StopLossPct/100.0)
		sm.hasStop = true
	}
	if policy.TargetProfitPct != nil {
		sm.target = entry * (1.0 + *policy.TargetProfitPct/100.0)
		sm.hasTarget = true
	}
	return sm
}

// stopHit reports whether the candle traded at or below the stop.
func (sm *stopManager) stopHit(c types.Candle) bool {
	return sm.hasStop && c.Low <= sm.stop
}

// targetHit reports whether the candle traded at or above the target.
func (sm *stopManager) targetHit(c types.Candle) bool {
	return sm.hasTarget && c.High >= sm.target
}

// check applies the intrabar priority for one candle: a stop touch wins over
// a target touch on the same bar.
func (sm *stopManager) check(c types.Candle) (types.ExitReason, float64, bool) {
	if sm.stopHit(c) {
		return types.ExitStopLoss, sm.stop, true
	}
	if sm.targetHit(c) {
		return types.ExitTargetProfit, sm.target, true
	}
	return "", 0, false
}
