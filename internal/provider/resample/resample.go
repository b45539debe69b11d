// Package resample adapts a provider that only serves one bar size to
// requests for another.
package resample

import (
	"context"
	"fmt"
	"time"

	"signal-backtest/internal/interfaces"
	"signal-backtest/internal/types"
)

const (
	sessionOpen  = 9*time.Hour + 15*time.Minute
	sessionClose = 15*time.Hour + 30*time.Minute
)

type Provider struct {
	inner interfaces.SeriesProvider
	base  types.Interval
}

var _ interfaces.SeriesProvider = (*Provider)(nil)

// New wraps inner so it is always asked for base bars.
func New(inner interfaces.SeriesProvider, base types.Interval) *Provider {
	return &Provider{inner: inner, base: base}
}

// Name is the inner provider's name so budgets and logs stay attributable.
func (p *Provider) Name() string { return p.inner.Name() }

func (p *Provider) Fetch(ctx context.Context, req types.SeriesRequest) (*types.CandleSeries, error) {
	if req.Interval == p.base {
		return p.inner.Fetch(ctx, req)
	}
	if !req.Interval.Valid() {
		return nil, fmt.Errorf("%w: cannot resample to %q", types.ErrDataUnavailable, req.Interval)
	}

	baseReq := req
	baseReq.Interval = p.base
	switch {
	case p.base.Daily():
		baseReq.Start, baseReq.End = types.DayOf(req.Start), types.DayOf(req.End)
	case req.Interval.Daily():
		// Intraday bars for a daily bucket: cover the whole last session.
		baseReq.Start = types.DayOf(req.Start)
		baseReq.End = types.DayOf(req.End).AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	src, err := p.inner.Fetch(ctx, baseReq)
	if err != nil {
		return nil, err
	}
	return Convert(src, req.Interval), nil
}

// Convert returns a new series at the target interval. Coarser targets
// aggregate buckets; finer targets forward-fill each bar across the trading
// session it covers. The input is not modified.
func Convert(src *types.CandleSeries, target types.Interval) *types.CandleSeries {
	out := &types.CandleSeries{
		Symbol:    src.Symbol,
		Interval:  target,
		Source:    src.Source,
		Synthetic: src.Synthetic,
		Derived:   true,
	}
	if src.Empty() || src.Interval == target {
		out.Candles = append([]types.Candle(nil), src.Candles...)
		out.Derived = src.Derived
		return out
	}

	if target.Duration() > src.Interval.Duration() {
		out.Candles = downsample(src.Candles, target)
	} else {
		out.Candles = upsample(src.Candles, src.Interval, target)
	}
	return out
}

func downsample(in []types.Candle, target types.Interval) []types.Candle {
	var out []types.Candle
	for _, c := range in {
		start := bucketStart(c.Time, target)
		n := len(out)
		if n > 0 && out[n-1].Time.Equal(start) {
			b := &out[n-1]
			b.High = max(b.High, c.High)
			b.Low = min(b.Low, c.Low)
			b.Close = c.Close
			b.Volume += c.Volume
			continue
		}
		c.Time = start
		out = append(out, c)
	}
	return out
}

func upsample(in []types.Candle, base, target types.Interval) []types.Candle {
	step := target.Duration()
	out := make([]types.Candle, 0, len(in))
	for _, c := range in {
		var from, to time.Time
		if base.Daily() {
			day := types.DayOf(c.Time)
			span := int(base.Duration() / (24 * time.Hour))
			from = day.Add(sessionOpen)
			to = day.AddDate(0, 0, span-1).Add(sessionClose)
		} else {
			from = c.Time
			to = c.Time.Add(base.Duration())
		}

		var slots []time.Time
		for t := from; t.Before(to); t = t.Add(step) {
			if base.Daily() && !inSession(t) {
				continue
			}
			slots = append(slots, t)
		}
		if len(slots) == 0 {
			slots = []time.Time{from}
		}
		vol := c.Volume / float64(len(slots))
		for _, t := range slots {
			out = append(out, types.Candle{Time: t, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: vol})
		}
	}
	return out
}

// bucketStart aligns intraday buckets to the 09:15 session open, daily
// buckets to midnight and weekly buckets to Monday.
func bucketStart(t time.Time, target types.Interval) time.Time {
	day := types.DayOf(t)
	switch {
	case target == types.Interval1wk:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case target.Daily():
		return day
	}
	open := day.Add(sessionOpen)
	if t.Before(open) {
		return day
	}
	d := target.Duration()
	return open.Add(t.Sub(open) / d * d)
}

func inSession(t time.Time) bool {
	day := types.DayOf(t)
	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	off := t.Sub(day)
	return off >= sessionOpen && off < sessionClose
}
