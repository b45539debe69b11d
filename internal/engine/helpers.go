package engine

import (
	"context"
	"errors"
	"time"

	"signal-backtest/internal/types"
)

// resolveEntry finds the fill for a signal: the open of the first candle at
// or after the entry. Daily-or-coarser bars compare by market date,
// intraday bars by timestamp. When every candle precedes the entry, the
// last candle's close is used and atOpen is false.
func resolveEntry(candles []types.Candle, entry time.Time, daily bool) (idx int, price float64, atOpen bool) {
	key := entry
	if daily {
		key = types.DayOf(entry)
	}
	for i, c := range candles {
		t := c.Time
		if daily {
			t = types.DayOf(t)
		}
		if !t.Before(key) {
			return i, c.Open, true
		}
	}
	last := len(candles) - 1
	return last, candles[last].Close, false
}

// holdingDeadline is the first instant at which a simple-mode trade exits.
func holdingDeadline(entry time.Time, days int, daily bool) time.Time {
	if daily {
		return types.DayOf(entry).AddDate(0, 0, days)
	}
	return entry.AddDate(0, 0, days)
}

func onOrAfter(t, deadline time.Time, daily bool) bool {
	if daily {
		t = types.DayOf(t)
	}
	return !t.Before(deadline)
}

// seriesWindow is the calendar span fetched for one signal.
func seriesWindow(entry time.Time, maxHold, lookback, slack int) (time.Time, time.Time) {
	day := types.DayOf(entry)
	return day.AddDate(0, 0, -lookback), day.AddDate(0, 0, maxHold+slack)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
