package engine

import (
	"context"
	"errors"
	"fmt"

	"signal-backtest/internal/interfaces"
	"signal-backtest/internal/logger"
	"signal-backtest/internal/types"
)

// ErrInvalidEntryPrice is returned when the resolved entry fill is not a
// positive price.
var ErrInvalidEntryPrice = errors.New("invalid entry price")

// Simulator replays one signal against historical candles.
type Simulator struct {
	fetcher  interfaces.SeriesFetcher
	interval types.Interval
	lookback int
	slack    int
}

func NewSimulator(fetcher interfaces.SeriesFetcher, interval types.Interval, lookbackDays, slackDays int) *Simulator {
	if interval == "" {
		interval = types.Interval1d
	}
	return &Simulator{fetcher: fetcher, interval: interval, lookback: max(lookbackDays, 0), slack: max(slackDays, 0)}
}

// Simulate fetches the series around the signal and walks it to an exit.
func (s *Simulator) Simulate(ctx context.Context, sig types.TradeSignal, policy types.ExitPolicy) (types.TradeOutcome, error) {
	start, end := seriesWindow(sig.EntryTime, policy.MaxHoldingDays, s.lookback, s.slack)
	req := types.SeriesRequest{Symbol: sig.Symbol, Start: start, End: end, Interval: s.interval}

	series, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		return types.TradeOutcome{}, err
	}

	out, err := simulate(series, sig, policy)
	if err != nil {
		return types.TradeOutcome{}, err
	}

	logger.Outcome(ctx, out.Symbol, string(out.ExitReason), out.EntryPrice, out.ExitPrice, out.PnLPct,
		"days_held", out.DaysHeld,
		"source", out.Source,
		"synthetic", out.Synthetic,
	)
	return out, nil
}

// simulate is the pure state machine: PENDING_ENTRY resolves to a fill,
// OPEN walks forward, CLOSED records the exit.
func simulate(series *types.CandleSeries, sig types.TradeSignal, policy types.ExitPolicy) (types.TradeOutcome, error) {
	if series.Empty() {
		return types.TradeOutcome{}, fmt.Errorf("%w: no candles for %s", types.ErrDataUnavailable, sig.Symbol)
	}

	candles := series.Candles
	daily := series.Interval.Daily() || series.Interval == ""

	idx, entryPrice, atOpen := resolveEntry(candles, sig.EntryTime, daily)
	if entryPrice <= 0 {
		return types.TradeOutcome{}, fmt.Errorf("%w: %s resolved to %.4f", ErrInvalidEntryPrice, sig.Symbol, entryPrice)
	}
	entry := candles[idx]

	walkFrom := idx
	if !atOpen {
		// Filled at the last close; nothing left to walk.
		walkFrom = len(candles)
	}

	sm := newStopManager(entryPrice, policy)
	out := types.TradeOutcome{
		Symbol:     sig.Symbol,
		EntryTime:  sig.EntryTime,
		EntryDate:  entry.Time,
		EntryPrice: entryPrice,
		Source:     series.Source,
		Synthetic:  series.Synthetic,
	}
	if sm.hasStop {
		out.StopLossPrice = sm.stop
	}
	if sm.hasTarget {
		out.TargetPrice = sm.target
	}

	exit := candles[len(candles)-1]
	exitPrice := exit.Close
	reason := types.ExitEndOfData

	if policy.SimpleMode() {
		deadline := holdingDeadline(entry.Time, policy.MaxHoldingDays, daily)
		for i := walkFrom; i < len(candles); i++ {
			if onOrAfter(candles[i].Time, deadline, daily) {
				exit, exitPrice, reason = candles[i], candles[i].Open, types.ExitMaxHolding
				break
			}
		}
	} else {
		for i := walkFrom; i < len(candles); i++ {
			c := candles[i]
			if types.DaysBetween(entry.Time, c.Time) >= policy.MaxHoldingDays {
				exit, exitPrice, reason = c, c.Close, types.ExitMaxHolding
				break
			}
			if r, px, ok := sm.check(c); ok {
				exit, exitPrice, reason = c, px, r
				break
			}
		}
	}

	out.ExitDate = exit.Time
	out.ExitPrice = exitPrice
	out.ExitReason = reason
	out.DaysHeld = types.DaysBetween(entry.Time, exit.Time)
	out.PnL = exitPrice - entryPrice
	out.PnLPct = out.PnL / entryPrice * 100
	return out, nil
}
