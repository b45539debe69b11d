// Package synthetic generates deterministic random-walk candles. It is the
// provider of last resort and every series it returns is flagged Synthetic.
package synthetic

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"time"

	"signal-backtest/internal/interfaces"
	"signal-backtest/internal/types"
)

const (
	Name = "synthetic"

	dailyVol     = 0.02
	sessionOpen  = 9*time.Hour + 15*time.Minute
	sessionClose = 15*time.Hour + 30*time.Minute
	maxBars      = 250_000
)

// epoch anchors every daily walk. It is a Monday.
var epoch = time.Date(2000, 1, 3, 0, 0, 0, 0, types.MarketTZ)

type Provider struct{}

var _ interfaces.SeriesProvider = (*Provider)(nil)

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string { return Name }

// Fetch regenerates the same series for the same request on every call.
// Prices depend only on the symbol and the bar time: the daily walk always
// starts at the epoch and the request window is sliced out of it, so
// overlapping requests agree on every shared bar.
func (p *Provider) Fetch(ctx context.Context, req types.SeriesRequest) (*types.CandleSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !req.Interval.Valid() {
		return nil, fmt.Errorf("%w: unknown interval %q", types.ErrDataUnavailable, req.Interval)
	}
	if req.End.Before(req.Start) {
		return nil, fmt.Errorf("%w: end %s before start %s", types.ErrDataUnavailable, req.End, req.Start)
	}

	first, last := types.DayOf(req.Start), types.DayOf(req.End)
	if req.Interval == types.Interval1wk {
		first = monday(first)
	}
	if n := estimateBars(first, last, req.Interval); n > maxBars {
		return nil, fmt.Errorf("%w: %d bars requested, limit is %d", types.ErrDataUnavailable, n, maxBars)
	}

	seed := Seed(req.Symbol)
	days, err := dailyWalk(ctx, seed, first, last)
	if err != nil {
		return nil, err
	}

	out := &types.CandleSeries{
		Symbol:    req.Symbol,
		Interval:  req.Interval,
		Source:    Name,
		Synthetic: true,
	}
	switch {
	case req.Interval == types.Interval1wk:
		out.Candles = weekly(days, types.DayOf(req.Start), last)
	case req.Interval.Daily():
		out.Candles = days
	default:
		for _, d := range days {
			for _, c := range session(seed, d, req.Interval) {
				if c.Time.Before(req.Start) || c.Time.After(req.End) {
					continue
				}
				out.Candles = append(out.Candles, c)
			}
		}
	}
	return out, nil
}

// Seed is the FNV-1a hash of the upper-cased symbol.
func Seed(symbol string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToUpper(strings.TrimSpace(symbol))))
	return h.Sum64()
}

// dailyWalk steps one daily bar per weekday from epoch through last and
// keeps the bars on or after first. Days before the epoch have no bars.
func dailyWalk(ctx context.Context, seed uint64, first, last time.Time) ([]types.Candle, error) {
	rng := rand.New(rand.NewSource(int64(seed)))
	prev := 100 + float64(seed%1000)
	var out []types.Candle
	for day, i := epoch, 0; !day.After(last); day, i = day.AddDate(0, 0, 1), i+1 {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if weekend(day) {
			continue
		}
		c := nextBar(rng, prev, dailyVol)
		prev = c.Close
		if day.Before(first) {
			continue
		}
		c.Time = day
		out = append(out, c)
	}
	return out, nil
}

// session splits one daily bar into intraday slots. The walk starts at the
// day's open and is seeded by symbol and day, so it does not depend on the
// request either.
func session(seed uint64, d types.Candle, iv types.Interval) []types.Candle {
	rng := rand.New(rand.NewSource(int64(seed ^ uint64(d.Time.Unix()))))
	sigma := barVol(iv)
	prev := d.Open
	var out []types.Candle
	for t := d.Time.Add(sessionOpen); t.Before(d.Time.Add(sessionClose)); t = t.Add(iv.Duration()) {
		c := nextBar(rng, prev, sigma)
		c.Time = t
		prev = c.Close
		out = append(out, c)
	}
	return out
}

// weekly folds daily bars into Monday-stamped weeks, keeping weeks that
// start in [DayOf(start) rounded back to Monday, last].
func weekly(days []types.Candle, start, last time.Time) []types.Candle {
	var out []types.Candle
	for _, d := range days {
		wk := monday(d.Time)
		if wk.Before(monday(start)) || wk.After(last) {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Time.Equal(wk) {
			b := &out[n-1]
			b.High = max(b.High, d.High)
			b.Low = min(b.Low, d.Low)
			b.Close = d.Close
			b.Volume += d.Volume
			continue
		}
		d.Time = wk
		out = append(out, d)
	}
	return out
}

// nextBar always draws the same number of values so the walk stays aligned.
func nextBar(rng *rand.Rand, prev, sigma float64) types.Candle {
	open := prev * math.Exp(rng.NormFloat64()*sigma/4)
	closePx := open * math.Exp(rng.NormFloat64()*sigma)
	high := max(open, closePx) * (1 + math.Abs(rng.NormFloat64())*sigma/2)
	low := min(open, closePx) * (1 - math.Min(math.Abs(rng.NormFloat64())*sigma/2, 0.5))
	return types.Candle{
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePx,
		Volume: float64(100_000 + rng.Intn(900_000)),
	}
}

func barVol(iv types.Interval) float64 {
	switch {
	case iv == types.Interval1wk:
		return dailyVol * math.Sqrt(5)
	case iv.Daily():
		return dailyVol
	}
	perDay := float64(sessionClose-sessionOpen) / float64(iv.Duration())
	return dailyVol / math.Sqrt(max(perDay, 1))
}

// estimateBars bounds the work for a request, counting the walk from the
// epoch as well as the bars returned.
func estimateBars(first, last time.Time, iv types.Interval) int {
	walk := 0
	if !last.Before(epoch) {
		walk = int(last.Sub(epoch).Hours()/24) + 1
	}
	if iv.Daily() {
		return walk
	}
	span := 0
	if !last.Before(first) {
		span = int(last.Sub(first).Hours()/24) + 1
	}
	perDay := int((sessionClose-sessionOpen)/iv.Duration()) + 1
	return max(walk, span*perDay)
}

func weekend(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func monday(day time.Time) time.Time {
	off := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -off)
}
