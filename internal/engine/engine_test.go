package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-backtest/internal/datasource"
	"signal-backtest/internal/types"
)

type acmeProvider struct{}

func (acmeProvider) Name() string { return "acme-feed" }

func (acmeProvider) Fetch(_ context.Context, req types.SeriesRequest) (*types.CandleSeries, error) {
	s := dailySeries(20, rising)
	s.Symbol = req.Symbol
	s.Source = ""
	return s, nil
}

func TestRunEndToEndThroughRouter(t *testing.T) {
	router, err := datasource.NewRouter([]datasource.Source{{Provider: acmeProvider{}, DailyBudget: 10}})
	require.NoError(t, err)

	eng := NewWithParams(router, Params{Workers: 2, Interval: types.Interval1d, LookbackDays: 5, SlackDays: 5}, nil)
	res, err := eng.Run(context.Background(), []types.TradeSignal{
		{Symbol: "ACME", EntryTime: time.Date(2024, 1, 1, 10, 0, 0, 0, types.MarketTZ)},
	}, types.ExitPolicy{MaxHoldingDays: 10})
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 1)
	o := res.Outcomes[0]
	assert.Equal(t, 100.0, o.EntryPrice)
	assert.Equal(t, 120.0, o.ExitPrice)
	assert.InDelta(t, 20, o.PnL, 1e-9)
	assert.InDelta(t, 20, o.PnLPct, 1e-9)
	assert.Equal(t, types.ExitMaxHolding, o.ExitReason)
	assert.Equal(t, "acme-feed", o.Source)

	assert.NotEmpty(t, res.RunID)
	assert.Zero(t, res.FailedCount)
	assert.Equal(t, 1, res.Summary.TotalTrades)
	assert.Equal(t, 100.0, res.Summary.WinRate)
	require.Len(t, res.ProviderUsage, 1)
	assert.Equal(t, 1, res.ProviderUsage[0].Used)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

func TestRunPreservesInputOrder(t *testing.T) {
	// Earlier signals take longer so completion order is reversed.
	f := seriesFunc(func(_ context.Context, req types.SeriesRequest) (*types.CandleSeries, error) {
		var idx int
		_, _ = fmt.Sscanf(req.Symbol, "S%d", &idx)
		time.Sleep(time.Duration(10-idx) * 3 * time.Millisecond)
		s := dailySeries(20, rising)
		s.Symbol = req.Symbol
		return s, nil
	})

	signals := make([]types.TradeSignal, 10)
	for i := range signals {
		signals[i] = types.TradeSignal{Symbol: fmt.Sprintf("S%d", i), EntryTime: day(0)}
	}

	res, err := NewWithParams(f, Params{Workers: 5}, nil).Run(context.Background(), signals, types.ExitPolicy{MaxHoldingDays: 3})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, len(signals))
	for i, o := range res.Outcomes {
		assert.Equal(t, signals[i].Symbol, o.Symbol)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	f := seriesFunc(func(_ context.Context, req types.SeriesRequest) (*types.CandleSeries, error) {
		switch req.Symbol {
		case "MISSING":
			return nil, fmt.Errorf("%w: nobody has it", types.ErrDataUnavailable)
		case "ZERO":
			s := dailySeries(10, flat)
			s.Candles[0].Open = 0
			return s, nil
		}
		return dailySeries(20, rising), nil
	})

	j := &memJournal{}
	signals := []types.TradeSignal{
		{Symbol: "GOOD1", EntryTime: day(0)},
		{Symbol: "MISSING", EntryTime: day(0)},
		{Symbol: "ZERO", EntryTime: day(0)},
		{Symbol: "GOOD2", EntryTime: day(1)},
	}
	res, err := NewWithParams(f, Params{Workers: 2}, j).Run(context.Background(), signals, types.ExitPolicy{MaxHoldingDays: 2})
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, "GOOD1", res.Outcomes[0].Symbol)
	assert.Equal(t, "GOOD2", res.Outcomes[1].Symbol)

	assert.Equal(t, 2, res.FailedCount)
	require.Len(t, res.Failed, 2)
	assert.Equal(t, "MISSING", res.Failed[0].Symbol)
	assert.Equal(t, types.FailDataUnavailable, res.Failed[0].Reason)
	assert.Equal(t, "ZERO", res.Failed[1].Symbol)
	assert.Equal(t, types.FailInvalidPrice, res.Failed[1].Reason)

	assert.Equal(t, 2, res.Summary.TotalTrades)
	assert.Len(t, j.outcomes, 2)
	assert.Len(t, j.failures, 2)
	assert.Nil(t, res.ProviderUsage, "plain fetchers report no usage")
}

func TestRunRejectsInvalidPolicy(t *testing.T) {
	f := seriesFunc(func(context.Context, types.SeriesRequest) (*types.CandleSeries, error) {
		t.Fatal("no fetch expected")
		return nil, nil
	})
	_, err := NewWithParams(f, Params{}, nil).Run(context.Background(),
		[]types.TradeSignal{{Symbol: "X", EntryTime: day(0)}},
		types.ExitPolicy{MaxHoldingDays: 5, StopLossPct: pct(-1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfiguration))

	_, err = NewWithParams(nil, Params{}, nil).Run(context.Background(), nil, types.ExitPolicy{MaxHoldingDays: 1})
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestRunEmptySignals(t *testing.T) {
	f := seriesFunc(func(context.Context, types.SeriesRequest) (*types.CandleSeries, error) {
		return nil, errors.New("unused")
	})
	res, err := NewWithParams(f, Params{}, nil).Run(context.Background(), nil, types.ExitPolicy{MaxHoldingDays: 1})
	require.NoError(t, err)
	assert.Empty(t, res.Outcomes)
	assert.Zero(t, res.Summary.TotalTrades)
}

func TestRunCancellationAborts(t *testing.T) {
	f := seriesFunc(func(ctx context.Context, _ types.SeriesRequest) (*types.CandleSeries, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	signals := make([]types.TradeSignal, 8)
	for i := range signals {
		signals[i] = types.TradeSignal{Symbol: fmt.Sprintf("S%d", i), EntryTime: day(0)}
	}
	start := time.Now()
	_, err := NewWithParams(f, Params{Workers: 2}, nil).Run(ctx, signals, types.ExitPolicy{MaxHoldingDays: 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)
}

func TestRunsDoNotShareState(t *testing.T) {
	f := seriesFunc(func(_ context.Context, req types.SeriesRequest) (*types.CandleSeries, error) {
		return dailySeries(20, rising), nil
	})
	eng := NewWithParams(f, Params{Workers: 3}, nil)

	var wg sync.WaitGroup
	results := make([]*types.RunResult, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sigs := make([]types.TradeSignal, i+2)
			for k := range sigs {
				sigs[k] = types.TradeSignal{Symbol: fmt.Sprintf("R%dS%d", i, k), EntryTime: day(0)}
			}
			res, err := eng.Run(context.Background(), sigs, types.ExitPolicy{MaxHoldingDays: 2})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.Len(t, results[0].Outcomes, 2)
	assert.Len(t, results[1].Outcomes, 3)
	assert.NotEqual(t, results[0].RunID, results[1].RunID)
}

type memJournal struct {
	mu       sync.Mutex
	outcomes []types.TradeOutcome
	failures []types.FailedTrade
}

func (m *memJournal) RecordOutcome(_ context.Context, _ string, o types.TradeOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
	return nil
}

func (m *memJournal) RecordFailure(_ context.Context, _ string, f types.FailedTrade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, f)
	return nil
}
