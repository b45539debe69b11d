package synthetic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-backtest/internal/types"
)

func request(symbol string, iv types.Interval) types.SeriesRequest {
	return types.SeriesRequest{
		Symbol:   symbol,
		Start:    time.Date(2024, 1, 1, 0, 0, 0, 0, types.MarketTZ),
		End:      time.Date(2024, 1, 31, 23, 59, 0, 0, types.MarketTZ),
		Interval: iv,
	}
}

func TestDeterministicPerSymbol(t *testing.T) {
	p := New()
	a, err := p.Fetch(context.Background(), request("INFY", types.Interval1d))
	require.NoError(t, err)
	b, err := p.Fetch(context.Background(), request("infy", types.Interval1d))
	require.NoError(t, err)
	c, err := p.Fetch(context.Background(), request("TCS", types.Interval1d))
	require.NoError(t, err)

	assert.Equal(t, a.Candles, b.Candles)
	assert.NotEqual(t, a.Candles[0].Open, c.Candles[0].Open)
	assert.True(t, a.Synthetic)
	assert.Equal(t, Name, a.Source)
}

func TestDailyBarsAreWeekdaysAndValid(t *testing.T) {
	s, err := New().Fetch(context.Background(), request("RELIANCE", types.Interval1d))
	require.NoError(t, err)

	assert.Len(t, s.Candles, 23, "January 2024 has 23 weekdays")
	for _, c := range s.Candles {
		wd := c.Time.Weekday()
		assert.NotEqual(t, time.Saturday, wd)
		assert.NotEqual(t, time.Sunday, wd)
		assert.Greater(t, c.Low, 0.0)
	}
	assert.NoError(t, s.Validate())
}

func TestIntradayBarsStayInSession(t *testing.T) {
	req := request("SBIN", types.Interval1h)
	req.End = time.Date(2024, 1, 2, 23, 0, 0, 0, types.MarketTZ)

	s, err := New().Fetch(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, s.Candles, 14, "two sessions of seven hourly bars")
	assert.Equal(t, time.Date(2024, 1, 1, 9, 15, 0, 0, types.MarketTZ), s.Candles[0].Time)
	assert.NoError(t, s.Validate())
}

func TestRejectsInvertedRange(t *testing.T) {
	req := request("X", types.Interval1d)
	req.Start, req.End = req.End, req.Start
	_, err := New().Fetch(context.Background(), req)
	assert.ErrorIs(t, err, types.ErrDataUnavailable)
}

func TestSeedStable(t *testing.T) {
	assert.Equal(t, Seed("ACME"), Seed(" acme "))
}

func TestOverlappingWindowsShareBars(t *testing.T) {
	for _, iv := range []types.Interval{types.Interval1d, types.Interval15m, types.Interval1wk} {
		t.Run(string(iv), func(t *testing.T) {
			wide := request("ACME", iv)
			narrow := request("ACME", iv)
			narrow.Start = time.Date(2024, 1, 15, 0, 0, 0, 0, types.MarketTZ)

			a, err := New().Fetch(context.Background(), wide)
			require.NoError(t, err)
			b, err := New().Fetch(context.Background(), narrow)
			require.NoError(t, err)
			require.NotEmpty(t, b.Candles)

			byTime := make(map[time.Time]types.Candle, len(a.Candles))
			for _, c := range a.Candles {
				byTime[c.Time] = c
			}
			for _, c := range b.Candles {
				want, ok := byTime[c.Time]
				require.True(t, ok, "bar %s missing from the wider window", c.Time)
				assert.Equal(t, want, c)
			}
		})
	}
}

func TestWeeklyBarsStartOnMonday(t *testing.T) {
	s, err := New().Fetch(context.Background(), request("TCS", types.Interval1wk))
	require.NoError(t, err)
	require.Len(t, s.Candles, 5)
	for _, c := range s.Candles {
		assert.Equal(t, time.Monday, c.Time.Weekday())
	}
	assert.NoError(t, s.Validate())
}

func TestBeforeEpochIsEmpty(t *testing.T) {
	req := request("ACME", types.Interval1d)
	req.Start = time.Date(1999, 6, 1, 0, 0, 0, 0, types.MarketTZ)
	req.End = time.Date(1999, 6, 30, 0, 0, 0, 0, types.MarketTZ)
	s, err := New().Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, s.Candles)
}
