// Package metrics reduces trade outcomes to a PerformanceSummary.
package metrics

import (
	"math"

	"signal-backtest/internal/types"
)

// Summarize computes the full summary over outcomes in the order given.
// Drawdown is order-sensitive; everything else is not. An empty slice
// yields a zeroed summary.
func Summarize(outcomes []types.TradeOutcome) types.PerformanceSummary {
	s := types.PerformanceSummary{ExitReasons: map[types.ExitReason]int{}}
	n := len(outcomes)
	if n == 0 {
		return s
	}

	var (
		winSum, lossSum float64
		daysSum         int
		cum             float64
		peak            = math.Inf(-1)
		maxPeak         = math.Inf(-1)
	)
	s.BestTradePct = math.Inf(-1)
	s.WorstTradePct = math.Inf(1)

	for _, o := range outcomes {
		s.TotalPnL += o.PnL
		s.TotalReturnPct += o.PnLPct
		daysSum += o.DaysHeld
		s.ExitReasons[o.ExitReason]++

		switch {
		case o.PnLPct > 0:
			s.WinningTrades++
			winSum += o.PnL
		case o.PnLPct < 0:
			s.LosingTrades++
			lossSum += o.PnL
		}

		if o.PnLPct > s.BestTradePct {
			s.BestTradePct, s.BestSymbol = o.PnLPct, o.Symbol
		}
		if o.PnLPct < s.WorstTradePct {
			s.WorstTradePct, s.WorstSymbol = o.PnLPct, o.Symbol
		}

		cum += o.PnL
		peak = math.Max(peak, cum)
		maxPeak = math.Max(maxPeak, peak)
		if dd := cum - peak; dd < s.MaxDrawdown {
			s.MaxDrawdown = dd
		}
	}

	s.TotalTrades = n
	s.WinRate = float64(s.WinningTrades) / float64(n) * 100
	s.AvgPnL = s.TotalPnL / float64(n)
	s.AvgReturnPct = s.TotalReturnPct / float64(n)
	s.AvgDaysHeld = float64(daysSum) / float64(n)

	if s.WinningTrades > 0 {
		s.AvgWinPnL = winSum / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AvgLossPnL = lossSum / float64(s.LosingTrades)
		s.RiskReward = s.AvgWinPnL / math.Abs(s.AvgLossPnL)
	}
	if maxPeak > 0 {
		s.MaxDrawdownPct = s.MaxDrawdown / maxPeak * 100
	}
	return s
}
